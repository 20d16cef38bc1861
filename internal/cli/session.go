package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/fmueller/voxsrt/internal/session"
	"go.uber.org/zap"
)

const defaultStopTimeout = 2 * time.Minute

// runSession loads the engine once, starts the worker and hands it to feed.
// When feed returns the worker is stopped; a transcription already running
// is given stopTimeout to finish.
func (a *appState) runSession(ctx context.Context, out io.Writer, stopTimeout time.Duration, feed func(ctx context.Context, w *session.Worker) error) error {
	eng, err := a.loadEngine(ctx)
	if err != nil {
		return err
	}
	defer a.closeEngine(eng)

	processor, err := a.newProcessor(eng)
	if err != nil {
		return err
	}

	worker := session.NewWorker(processor, session.Options{
		Recursive:    a.recursive,
		IgnoreErrors: a.ignoreErrors,
		Logger:       a.log(),
	})

	reported := make(chan struct{})
	go func() {
		defer close(reported)
		for event := range worker.Events() {
			a.logEvent(event)
			if line, ok := formatEvent(event); ok {
				fmt.Fprintln(out, line)
			}
		}
	}()

	if err := worker.Start(); err != nil {
		return err
	}

	feedErr := feed(ctx, worker)

	if stopTimeout <= 0 {
		stopTimeout = defaultStopTimeout
	}
	if err := worker.Stop(stopTimeout); err != nil {
		a.log().Warn("worker did not stop in time; abandoning running transcription", zap.Duration("timeout", stopTimeout))
		return errors.Join(feedErr, err)
	}
	<-reported
	return feedErr
}

func (a *appState) logEvent(event session.Event) {
	fields := []zap.Field{zap.String("event", string(event.Type)), zap.Int64("seq", event.Seq)}
	if event.ItemID != "" {
		fields = append(fields, zap.String("item", event.ItemID))
	}
	if event.State != "" {
		fields = append(fields, zap.String("state", string(event.State)))
	}
	if event.Err != nil {
		fields = append(fields, zap.Error(event.Err))
	}
	a.log().Debug("session event", fields...)
}

// formatEvent renders the events a user watching the terminal cares about.
func formatEvent(event session.Event) (string, bool) {
	switch event.Type {
	case session.EventItemQueued:
		return fmt.Sprintf("queued %d path(s)", event.Total), true
	case session.EventFileStarted:
		return fmt.Sprintf("[%d/%d] transcribing %s", event.Index, event.Total, filepath.Base(event.Media)), true
	case session.EventFileDone:
		return fmt.Sprintf("[%d/%d] wrote %s", event.Index, event.Total, event.Output), true
	case session.EventFileFailed:
		return fmt.Sprintf("[%d/%d] failed %s: %s", event.Index, event.Total, filepath.Base(event.Media), event.Message), true
	case session.EventNothingToDo, session.EventItemDone:
		return event.Message, true
	case session.EventError:
		return "error: " + event.Message, true
	default:
		return "", false
	}
}
