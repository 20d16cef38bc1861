package cli

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
)

type stopFunc func()

func startSpinner(enabled bool, description string) stopFunc {
	if !enabled {
		return func() {}
	}

	bar := progressbar.NewOptions(
		-1,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionThrottle(80*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)

	stopCh := make(chan struct{})
	doneCh := make(chan struct{})

	go func() {
		defer close(doneCh)
		ticker := time.NewTicker(120 * time.Millisecond)
		defer ticker.Stop()

		for {
			select {
			case <-stopCh:
				_ = bar.Finish()
				return
			case <-ticker.C:
				_ = bar.Add(1)
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stopCh)
			<-doneCh
		})
	}
}

// batchProgress is a determinate bar over the scheduled files. A disabled
// bar ignores every call.
type batchProgress struct {
	bar *progressbar.ProgressBar
}

func newBatchProgress(enabled bool, total int) *batchProgress {
	if !enabled || total <= 0 {
		return &batchProgress{}
	}

	return &batchProgress{bar: progressbar.NewOptions(
		total,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(20),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)}
}

func (p *batchProgress) describe(mediaPath string) {
	if p.bar == nil {
		return
	}
	p.bar.Describe(filepath.Base(mediaPath))
}

func (p *batchProgress) advance() {
	if p.bar == nil {
		return
	}
	_ = p.bar.Add(1)
}

func (p *batchProgress) finish() {
	if p.bar == nil {
		return
	}
	_ = p.bar.Finish()
}
