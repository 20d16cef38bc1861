package engine

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

var ErrEngineBusy = errors.New("speech engine is already in use by another voxsrt process")

// Lock is an exclusive, process-wide claim on the engine.
type Lock struct {
	fl *flock.Flock
}

// AcquireLock takes the lock file at path without waiting. An empty path
// yields a no-op lock.
func AcquireLock(path string) (*Lock, error) {
	if path == "" {
		return &Lock{}, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}

	fl := flock.New(path)
	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", path, err)
	}
	if !locked {
		return nil, ErrEngineBusy
	}
	return &Lock{fl: fl}, nil
}

func (l *Lock) Release() error {
	if l == nil || l.fl == nil {
		return nil
	}
	return l.fl.Unlock()
}
