package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fmueller/voxsrt/internal/media"
	"github.com/fmueller/voxsrt/internal/pipeline"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrEmptyWorkItem  = errors.New("work item has no paths")
	ErrStopped        = errors.New("session is stopped")
	ErrStopTimeout    = errors.New("timed out waiting for worker to stop")
	ErrAlreadyStarted = errors.New("worker already started")
)

// State is the worker lifecycle: Idle and Processing alternate until Stopped.
type State string

const (
	StateIdle       State = "idle"
	StateProcessing State = "processing"
	StateStopped    State = "stopped"
)

// WorkItem is one batch of raw input paths handled as a unit.
type WorkItem struct {
	ID    string
	Paths []string
}

// Batch is the part of the pipeline the worker drives.
type Batch interface {
	ProcessAll(ctx context.Context, mediaPaths []string, opts pipeline.Options) ([]pipeline.Result, error)
}

type Options struct {
	Recursive    bool
	IgnoreErrors bool
	Logger       *zap.Logger
}

// Worker owns the engine for a session and processes submitted work items
// one at a time on a single goroutine.
type Worker struct {
	batch   Batch
	opts    Options
	bus     *Bus
	queue   *queue
	state   atomic.Value
	logger  *zap.Logger
	collect func(inputs []string, recursive bool) ([]string, error)

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	started  bool
	stopping bool
	stopCh   chan struct{}
	done     chan struct{}
}

func NewWorker(batch Batch, opts Options) *Worker {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &Worker{
		ctx:     ctx,
		cancel:  cancel,
		batch:   batch,
		opts:    opts,
		bus:     NewBus(),
		queue:   newQueue(),
		logger:  logger.With(zap.String("component", "worker")),
		collect: media.Collect,
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
	}
	w.state.Store(StateIdle)
	return w
}

// Events streams progress for the front-end. The channel closes after the
// worker has stopped and all events were delivered.
func (w *Worker) Events() <-chan Event {
	return w.bus.Events()
}

func (w *Worker) State() State {
	return w.state.Load().(State)
}

// Pending returns the number of queued, not yet started work items.
func (w *Worker) Pending() int {
	return w.queue.len()
}

// Submit queues paths as one work item and returns its ID. It never waits
// for the worker.
func (w *Worker) Submit(paths []string) (string, error) {
	if len(paths) == 0 {
		return "", ErrEmptyWorkItem
	}

	item := WorkItem{ID: uuid.NewString(), Paths: append([]string(nil), paths...)}
	if !w.queue.push(item) {
		return "", ErrStopped
	}

	w.bus.Publish(Event{Type: EventItemQueued, ItemID: item.ID, Total: len(item.Paths)})
	return item.ID, nil
}

// Start launches the worker goroutine.
func (w *Worker) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch {
	case w.stopping:
		return ErrStopped
	case w.started:
		return ErrAlreadyStarted
	}
	w.started = true
	go w.run()
	return nil
}

// Stop requests shutdown and waits up to timeout for the worker to exit. A
// transcription already running is allowed to finish; queued items that have
// not started are dropped.
func (w *Worker) Stop(timeout time.Duration) error {
	w.mu.Lock()
	if !w.stopping {
		w.stopping = true
		w.cancel()
		close(w.stopCh)
		w.queue.close()
		if !w.started {
			w.setState(StateStopped)
			w.bus.Close()
			close(w.done)
		}
	}
	w.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-w.done:
		return nil
	case <-timer.C:
		return ErrStopTimeout
	}
}

// Finish enqueues the end-of-work sentinel. Items already queued are still
// processed, then the worker stops on its own. Submit fails afterwards.
func (w *Worker) Finish() {
	w.queue.close()
}

// Done is closed once the worker goroutine has exited.
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

func (w *Worker) run() {
	defer close(w.done)
	defer w.bus.Close()
	defer w.setState(StateStopped)
	defer w.cancel()

	w.logger.Debug("worker started")
	for {
		item, ok := w.queue.pop(w.ctx)
		if !ok || w.stopRequested() {
			w.logger.Debug("worker stopping", zap.Int("dropped", w.queue.len()))
			return
		}
		w.handle(w.ctx, item)
	}
}

func (w *Worker) stopRequested() bool {
	select {
	case <-w.stopCh:
		return true
	default:
		return false
	}
}

func (w *Worker) handle(ctx context.Context, item WorkItem) {
	w.setState(StateProcessing)
	defer w.setState(StateIdle)

	log := w.logger.With(zap.String("item", item.ID))
	w.bus.Publish(Event{Type: EventItemStarted, ItemID: item.ID, Total: len(item.Paths)})

	mediaPaths, err := w.collect(item.Paths, w.opts.Recursive)
	if err != nil {
		log.Warn("discovery failed", zap.Error(err))
		w.bus.Publish(Event{Type: EventError, ItemID: item.ID, Message: err.Error(), Err: err})
		return
	}

	if len(mediaPaths) == 0 {
		w.bus.Publish(Event{Type: EventNothingToDo, ItemID: item.ID, Message: "nothing to do: no media without subtitles found"})
		return
	}

	results, err := w.runBatch(ctx, item.ID, mediaPaths)
	failed := len(pipeline.Failures(results))
	done := Event{
		Type:    EventItemDone,
		ItemID:  item.ID,
		Total:   len(mediaPaths),
		Index:   len(results),
		Message: fmt.Sprintf("%d of %d files transcribed", len(results)-failed, len(mediaPaths)),
	}
	if err != nil {
		done.Err = err
		done.Message += "; stopped early: " + err.Error()
	}
	w.bus.Publish(done)
}

// runBatch keeps a panic in one item from taking the worker down.
func (w *Worker) runBatch(ctx context.Context, itemID string, mediaPaths []string) (results []pipeline.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("work item panicked", zap.String("item", itemID), zap.Any("panic", r))
			err = fmt.Errorf("work item panicked: %v", r)
		}
	}()

	return w.batch.ProcessAll(ctx, mediaPaths, pipeline.Options{
		IgnoreErrors: w.opts.IgnoreErrors,
		OnStart: func(index, total int, mediaPath string) {
			w.bus.Publish(Event{Type: EventFileStarted, ItemID: itemID, Media: mediaPath, Index: index + 1, Total: total})
		},
		OnResult: func(index, total int, result pipeline.Result) {
			event := Event{ItemID: itemID, Media: result.Media, Index: index + 1, Total: total}
			if result.Failed() {
				event.Type = EventFileFailed
				event.Err = result.Err
				event.Message = result.Err.Error()
			} else {
				event.Type = EventFileDone
				event.Output = result.Output
			}
			w.bus.Publish(event)
		},
	})
}

func (w *Worker) setState(state State) {
	if prev, _ := w.state.Swap(state).(State); prev == state {
		return
	}
	w.bus.Publish(Event{Type: EventStateChanged, State: state})
}
