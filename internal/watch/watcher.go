// Package watch turns newly created media files in watched directories into
// work items for a transcription session.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fmueller/voxsrt/internal/media"
	"github.com/fmueller/voxsrt/internal/normalize"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const DefaultDebounce = 500 * time.Millisecond

// Submitter accepts a batch of raw paths without blocking.
type Submitter interface {
	Submit(paths []string) (string, error)
}

type Options struct {
	Recursive bool
	// Debounce coalesces the Create+Write burst of a file being copied in.
	Debounce time.Duration
	// Backfill submits the watched directories once at startup so media
	// already present without subtitles is picked up.
	Backfill bool
	Logger   *zap.Logger
}

type Watcher struct {
	dirs   []string
	opts   Options
	submit Submitter
	logger *zap.Logger

	fs *fsnotify.Watcher

	mu      sync.Mutex
	timers  map[string]*time.Timer
	stopped bool

	submitted atomic.Int64
}

// New validates dirs and registers them with fsnotify. With Recursive set the
// whole subtree is watched and new subdirectories are added as they appear.
func New(dirs []string, submit Submitter, opts Options) (*Watcher, error) {
	if len(dirs) == 0 {
		return nil, errors.New("no directories to watch")
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	for _, dir := range dirs {
		info, err := os.Stat(dir)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, &media.NotFoundError{Path: dir, Err: err}
			}
			return nil, fmt.Errorf("stat watch directory %s: %w", dir, err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("watch target %s is not a directory", dir)
		}
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}

	w := &Watcher{
		dirs:   append([]string(nil), dirs...),
		opts:   opts,
		submit: submit,
		logger: logger.With(zap.String("component", "watcher")),
		fs:     fsw,
		timers: make(map[string]*time.Timer),
	}

	count := 0
	for _, dir := range dirs {
		n, err := w.addTree(dir)
		if err != nil {
			_ = fsw.Close()
			return nil, err
		}
		count += n
	}
	w.logger.Info("watching for new media", zap.Strings("dirs", dirs), zap.Int("directories", count), zap.Bool("recursive", opts.Recursive))
	return w, nil
}

// Submitted returns how many files were handed to the submitter.
func (w *Watcher) Submitted() int64 {
	return w.submitted.Load()
}

// Run processes file system events until ctx is done. Pending debounced
// files are dropped on return.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.shutdown()

	if w.opts.Backfill {
		if _, err := w.submit.Submit(w.dirs); err != nil {
			return fmt.Errorf("submit existing media: %w", err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			w.handle(event)

		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("file watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}

	info, err := os.Stat(event.Name)
	if err != nil {
		return
	}
	if info.IsDir() {
		if event.Has(fsnotify.Create) && w.opts.Recursive {
			if _, err := w.addTree(event.Name); err != nil {
				w.logger.Warn("failed to watch new directory", zap.String("path", event.Name), zap.Error(err))
			}
		}
		return
	}

	if !media.IsMedia(event.Name) || normalize.IsTemporaryName(event.Name) {
		return
	}
	w.schedule(event.Name)
}

func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return
	}
	if t, ok := w.timers[path]; ok {
		t.Reset(w.opts.Debounce)
		return
	}

	w.timers[path] = time.AfterFunc(w.opts.Debounce, func() {
		w.mu.Lock()
		delete(w.timers, path)
		stopped := w.stopped
		w.mu.Unlock()

		if !stopped {
			w.fire(path)
		}
	})
}

func (w *Watcher) fire(path string) {
	if _, err := os.Stat(path); err != nil {
		w.logger.Debug("watched file disappeared", zap.String("path", path))
		return
	}
	if media.HasSubtitle(path) {
		return
	}

	id, err := w.submit.Submit([]string{path})
	if err != nil {
		w.logger.Warn("failed to submit watched file", zap.String("path", path), zap.Error(err))
		return
	}
	w.submitted.Add(1)
	w.logger.Debug("submitted watched file", zap.String("path", path), zap.String("item", id))
}

// addTree watches dir, and with Recursive set every directory below it.
func (w *Watcher) addTree(dir string) (int, error) {
	if !w.opts.Recursive {
		if err := w.fs.Add(dir); err != nil {
			return 0, fmt.Errorf("watch %s: %w", dir, err)
		}
		return 1, nil
	}

	count := 0
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			w.logger.Warn("error walking directory", zap.String("path", path), zap.Error(err))
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.fs.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		count++
		return nil
	})
	return count, err
}

func (w *Watcher) shutdown() {
	w.mu.Lock()
	w.stopped = true
	for path, t := range w.timers {
		t.Stop()
		delete(w.timers, path)
	}
	w.mu.Unlock()

	if err := w.fs.Close(); err != nil {
		w.logger.Warn("failed to close file watcher", zap.Error(err))
	}
	w.logger.Info("file watcher stopped", zap.Int64("submitted", w.submitted.Load()))
}
