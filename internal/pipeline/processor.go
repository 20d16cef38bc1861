package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fmueller/voxsrt/internal/audio"
	"github.com/fmueller/voxsrt/internal/engine"
	"github.com/fmueller/voxsrt/internal/media"
	"github.com/fmueller/voxsrt/internal/normalize"
	"github.com/fmueller/voxsrt/internal/subtitle"
	"go.uber.org/zap"
)

// Normalizer brings media into the engine's canonical audio format.
type Normalizer interface {
	Ensure(ctx context.Context, path string) (normalize.Audio, error)
}

// Result is the outcome for one media file: Output is set on success, Err
// on failure, never both.
type Result struct {
	Media    string
	Output   string
	Err      error
	Segments int
	Silent   bool
	Elapsed  time.Duration
}

func (r Result) Failed() bool {
	return r.Err != nil
}

// Processor runs media files through normalize, engine and subtitle writer.
// It calls the engine from one goroutine at a time.
type Processor struct {
	Engine      engine.Engine
	Normalizer  Normalizer
	Params      engine.Params
	Logger      *zap.Logger
	SilenceGate bool
	SilenceDBFS float64

	writeFile func(path string, segments []subtitle.Segment) error
}

func NewProcessor(eng engine.Engine, normalizer Normalizer, params engine.Params, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{
		Engine:      eng,
		Normalizer:  normalizer,
		Params:      params,
		Logger:      logger,
		SilenceDBFS: -65,
		writeFile:   subtitle.WriteFile,
	}
}

// ProcessOne transcribes mediaPath into outputOverride, or into the sibling
// .srt when the override is empty. Temporary audio is removed before it
// returns, whatever the outcome.
func (p *Processor) ProcessOne(ctx context.Context, mediaPath, outputOverride string) (result Result) {
	started := time.Now()
	result = Result{Media: mediaPath}
	defer func() { result.Elapsed = time.Since(started) }()

	// Once a file has started it runs to completion; ProcessAll checks ctx
	// between files.
	normalized, err := p.Normalizer.Ensure(context.WithoutCancel(ctx), mediaPath)
	if err != nil {
		result.Err = &NormalizeError{Media: mediaPath, Err: err}
		return result
	}
	defer func() {
		if err := normalized.Release(); err != nil {
			p.log().Warn("failed to remove temporary audio", zap.String("path", normalized.Path), zap.Error(err))
		}
	}()

	var segments []subtitle.Segment
	if p.silent(normalized.Path) {
		result.Silent = true
	} else {
		segments, err = p.transcribe(ctx, normalized.Path)
		if err != nil {
			result.Err = &EngineError{Media: mediaPath, Err: err}
			return result
		}
	}

	output := outputOverride
	if output == "" {
		output = media.SubtitlePath(mediaPath)
	}

	write := p.writeFile
	if write == nil {
		write = subtitle.WriteFile
	}
	if err := write(output, segments); err != nil {
		result.Err = &WriteError{Media: mediaPath, Output: output, Err: err}
		return result
	}

	result.Output = output
	result.Segments = len(segments)
	return result
}

// transcribe converts an engine panic into an error so the temporary audio
// is still released and a batch can continue past it.
func (p *Processor) transcribe(ctx context.Context, audioPath string) (segments []subtitle.Segment, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("engine panic: %v", r)
		}
	}()
	return p.Engine.TranscribeLongform(context.WithoutCancel(ctx), audioPath, p.Params)
}

func (p *Processor) silent(audioPath string) bool {
	if !p.SilenceGate {
		return false
	}

	analysis, err := audio.AnalyzeWAV(audioPath)
	if err != nil {
		p.log().Warn("silence gate analysis failed; continuing transcription", zap.String("audio", audioPath), zap.Error(err))
		return false
	}
	if !analysis.Silent(p.SilenceDBFS) {
		return false
	}

	p.log().Info(
		"audio considered silent; skipping transcription",
		zap.String("audio", audioPath),
		zap.Duration("duration", analysis.Duration),
		zap.Float64("rms_dbfs", analysis.RMSdBFS),
		zap.Float64("peak_dbfs", analysis.PeakdBFS),
		zap.Float64("threshold_dbfs", p.SilenceDBFS),
	)
	return true
}

// Options controls a ProcessAll run.
type Options struct {
	// IgnoreErrors captures per-file failures and moves on; otherwise the
	// first failure ends the run.
	IgnoreErrors   bool
	OutputOverride string
	OnStart        func(index, total int, mediaPath string)
	OnResult       func(index, total int, result Result)
}

// ErrStopped is returned when ctx is cancelled between two files.
var ErrStopped = errors.New("batch stopped before completion")

// ProcessAll handles mediaPaths strictly in order. It returns the results
// gathered so far and, when the run ended early, the reason.
func (p *Processor) ProcessAll(ctx context.Context, mediaPaths []string, opts Options) ([]Result, error) {
	results := make([]Result, 0, len(mediaPaths))
	total := len(mediaPaths)

	for i, mediaPath := range mediaPaths {
		if err := ctx.Err(); err != nil {
			return results, fmt.Errorf("%w: %w", ErrStopped, err)
		}

		if opts.OnStart != nil {
			opts.OnStart(i, total, mediaPath)
		}
		p.log().Info("transcribing", zap.String("media", mediaPath), zap.Int("index", i+1), zap.Int("total", total))

		result := p.ProcessOne(ctx, mediaPath, opts.OutputOverride)
		results = append(results, result)

		if opts.OnResult != nil {
			opts.OnResult(i, total, result)
		}

		if result.Failed() {
			p.log().Warn("transcription failed", zap.String("media", mediaPath), zap.Duration("elapsed", result.Elapsed), zap.Error(result.Err))
			if !opts.IgnoreErrors {
				return results, result.Err
			}
			continue
		}
		p.log().Info("subtitles written",
			zap.String("output", result.Output),
			zap.Int("segments", result.Segments),
			zap.Duration("elapsed", result.Elapsed),
		)
	}

	return results, nil
}

func (p *Processor) log() *zap.Logger {
	if p.Logger == nil {
		return zap.NewNop()
	}
	return p.Logger
}

// Failures returns the failed results of a run.
func Failures(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if r.Failed() {
			failed = append(failed, r)
		}
	}
	return failed
}
