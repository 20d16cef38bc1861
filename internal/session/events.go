package session

import (
	"sync"
	"time"
)

// EventType classifies messages emitted by the worker.
type EventType string

const (
	EventItemQueued   EventType = "item_queued"
	EventItemStarted  EventType = "item_started"
	EventNothingToDo  EventType = "nothing_to_do"
	EventFileStarted  EventType = "file_started"
	EventFileDone     EventType = "file_done"
	EventFileFailed   EventType = "file_failed"
	EventItemDone     EventType = "item_done"
	EventError        EventType = "error"
	EventStateChanged EventType = "state_changed"
)

// Event is one sequenced status message for front-ends.
type Event struct {
	Seq       int64     `json:"seq"`
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	ItemID    string    `json:"itemId,omitempty"`
	State     State     `json:"state,omitempty"`
	Media     string    `json:"media,omitempty"`
	Output    string    `json:"output,omitempty"`
	Index     int       `json:"index,omitempty"`
	Total     int       `json:"total,omitempty"`
	Message   string    `json:"message,omitempty"`
	Err       error     `json:"-"`
}

// Bus delivers events to a single subscriber without ever blocking the
// publisher. Undelivered events queue up in memory until read.
type Bus struct {
	mu      sync.Mutex
	nextSeq int64
	pending []Event
	closed  bool
	wake    chan struct{}
	out     chan Event
}

func NewBus() *Bus {
	b := &Bus{
		wake: make(chan struct{}, 1),
		out:  make(chan Event),
	}
	go b.pump()
	return b
}

// Publish stamps the event and queues it for delivery. It is a no-op after
// Close.
func (b *Bus) Publish(event Event) Event {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return event
	}
	b.nextSeq++
	event.Seq = b.nextSeq
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	b.pending = append(b.pending, event)
	b.mu.Unlock()

	select {
	case b.wake <- struct{}{}:
	default:
	}
	return event
}

// Events is closed after Close once every queued event has been delivered.
func (b *Bus) Events() <-chan Event {
	return b.out
}

func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	select {
	case b.wake <- struct{}{}:
	default:
	}
}

func (b *Bus) pump() {
	defer close(b.out)
	for {
		b.mu.Lock()
		batch := b.pending
		b.pending = nil
		closed := b.closed
		b.mu.Unlock()

		for _, event := range batch {
			b.out <- event
		}

		if len(batch) > 0 {
			continue
		}
		if closed {
			return
		}
		<-b.wake
	}
}
