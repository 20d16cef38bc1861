package normalize

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"go.uber.org/zap"
)

var ErrTranscoderUnavailable = errors.New("ffmpeg not found; install ffmpeg or set VOXSRT_FFMPEG_PATH")

// TranscodeFailedError reports a transcoder run that exited unsuccessfully.
type TranscodeFailedError struct {
	Input    string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *TranscodeFailedError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("transcode %s failed (exit %d): %v", e.Input, e.ExitCode, e.Err)
	}
	return fmt.Sprintf("transcode %s failed (exit %d): %v (%s)", e.Input, e.ExitCode, e.Err, e.Stderr)
}

func (e *TranscodeFailedError) Unwrap() error {
	return e.Err
}

// FFmpeg transcodes through an ffmpeg executable into 16 kHz mono PCM WAV.
type FFmpeg struct {
	Executable string
	Logger     *zap.Logger
}

// NewFFmpeg locates ffmpeg via VOXSRT_FFMPEG_PATH or PATH.
func NewFFmpeg(logger *zap.Logger) (*FFmpeg, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	if override := strings.TrimSpace(os.Getenv("VOXSRT_FFMPEG_PATH")); override != "" {
		if err := ensureExecutable(override); err != nil {
			return nil, fmt.Errorf("%w: VOXSRT_FFMPEG_PATH: %v", ErrTranscoderUnavailable, err)
		}
		return &FFmpeg{Executable: override, Logger: logger}, nil
	}

	path, err := exec.LookPath("ffmpeg")
	if err != nil {
		return nil, ErrTranscoderUnavailable
	}
	return &FFmpeg{Executable: path, Logger: logger}, nil
}

func (f *FFmpeg) Transcode(ctx context.Context, in, out string) error {
	if err := ensureExecutable(f.Executable); err != nil {
		return fmt.Errorf("%w: %v", ErrTranscoderUnavailable, err)
	}

	args := buildArgs(in, out)
	cmd := exec.CommandContext(ctx, f.Executable, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	f.log().Debug("running ffmpeg", zap.String("ffmpeg", f.Executable), zap.Strings("args", args))
	if err := cmd.Run(); err != nil {
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		return &TranscodeFailedError{
			Input:    in,
			ExitCode: exitCode,
			Stderr:   lastLine(stderr.String()),
			Err:      err,
		}
	}
	return nil
}

func (f *FFmpeg) log() *zap.Logger {
	if f.Logger == nil {
		return zap.NewNop()
	}
	return f.Logger
}

func buildArgs(in, out string) []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-loglevel", "error",
		"-y",
		"-i", in,
		"-vn",
		"-ac", "1",
		"-ar", "16000",
		"-c:a", "pcm_s16le",
		out,
	}
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}

func ensureExecutable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}
	if runtime.GOOS != "windows" && info.Mode()&0o111 == 0 {
		return fmt.Errorf("%s is not executable", path)
	}
	return nil
}
