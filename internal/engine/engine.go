package engine

import (
	"context"

	"github.com/fmueller/voxsrt/internal/subtitle"
)

// Params are the long-form chunking knobs. They are forwarded to the engine
// verbatim.
type Params struct {
	MaxDuration       float64 `json:"max_duration" toml:"max_duration"`
	MinDuration       float64 `json:"min_duration" toml:"min_duration"`
	NewChunkThreshold float64 `json:"new_chunk_threshold" toml:"new_chunk_threshold"`
}

func DefaultParams() Params {
	return Params{MaxDuration: 22.0, MinDuration: 15.0, NewChunkThreshold: 0.2}
}

// Engine turns canonical audio into chronologically ordered segments. It is
// not reentrant: callers must not invoke it concurrently.
type Engine interface {
	TranscribeLongform(ctx context.Context, audioPath string, params Params) ([]subtitle.Segment, error)
}

// Func adapts a plain function to Engine.
type Func func(ctx context.Context, audioPath string, params Params) ([]subtitle.Segment, error)

func (f Func) TranscribeLongform(ctx context.Context, audioPath string, params Params) ([]subtitle.Segment, error) {
	return f(ctx, audioPath, params)
}
