package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fmueller/voxsrt/internal/media"
	"github.com/fmueller/voxsrt/internal/pipeline"
	"go.uber.org/zap"
)

var errOutputWithManyFiles = errors.New("--output can only be used when exactly one file is transcribed")

// runBatch discovers media, loads the engine once and transcribes every file
// in order. Discovery errors abort before the engine loads.
func (a *appState) runBatch(ctx context.Context, out io.Writer, inputs []string) error {
	mediaPaths, err := media.Collect(inputs, a.recursive)
	if err != nil {
		return err
	}

	if len(mediaPaths) == 0 {
		fmt.Fprintln(out, "Nothing to do: no media without subtitles found.")
		return nil
	}
	output := strings.TrimSpace(a.output)
	if output != "" && len(mediaPaths) > 1 {
		return fmt.Errorf("%w (%d files scheduled)", errOutputWithManyFiles, len(mediaPaths))
	}

	a.log().Info("files scheduled", zap.Int("count", len(mediaPaths)), zap.Bool("ignore_errors", a.ignoreErrors))

	eng, err := a.loadEngine(ctx)
	if err != nil {
		return err
	}
	defer a.closeEngine(eng)

	processor, err := a.newProcessor(eng)
	if err != nil {
		return err
	}

	bar := newBatchProgress(a.progressEnabled(), len(mediaPaths))
	started := time.Now()
	results, runErr := processor.ProcessAll(ctx, mediaPaths, pipeline.Options{
		IgnoreErrors:   a.ignoreErrors,
		OutputOverride: output,
		OnStart: func(_, _ int, mediaPath string) {
			bar.describe(mediaPath)
		},
		OnResult: func(_, _ int, _ pipeline.Result) {
			bar.advance()
		},
	})
	bar.finish()

	writeSummary(out, results, len(mediaPaths), time.Since(started))

	if runErr != nil {
		return runErr
	}
	if failed := pipeline.Failures(results); len(failed) > 0 {
		return batchFailure(failed, len(mediaPaths))
	}
	return nil
}

func batchFailure(failed []pipeline.Result, total int) error {
	errs := make([]error, 0, len(failed)+1)
	errs = append(errs, fmt.Errorf("%d of %d files failed", len(failed), total))
	for _, r := range failed {
		errs = append(errs, r.Err)
	}
	return errors.Join(errs...)
}
