package pipeline

import "fmt"

// NormalizeError wraps a failure to bring media into canonical audio.
type NormalizeError struct {
	Media string
	Err   error
}

func (e *NormalizeError) Error() string {
	return fmt.Sprintf("normalize %s: %v", e.Media, e.Err)
}

func (e *NormalizeError) Unwrap() error { return e.Err }

// EngineError wraps a failure reported by the speech engine.
type EngineError struct {
	Media string
	Err   error
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("transcribe %s: %v", e.Media, e.Err)
}

func (e *EngineError) Unwrap() error { return e.Err }

// WriteError wraps a failure to write the subtitle file.
type WriteError struct {
	Media  string
	Output string
	Err    error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write subtitles for %s to %s: %v", e.Media, e.Output, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }
