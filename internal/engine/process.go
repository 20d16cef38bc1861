package engine

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fmueller/voxsrt/internal/subtitle"
	"go.uber.org/zap"
)

var (
	ErrEngineNotFound = errors.New("speech engine helper not found")
	ErrEngineClosed   = errors.New("speech engine is closed")
)

// Config selects and configures the engine helper process.
type Config struct {
	// Executable overrides helper discovery when set.
	Executable string
	Model      string
	Device     string
	// HFToken is handed to the helper as HF_TOKEN for its VAD pipeline.
	HFToken      string
	LockPath     string
	StartTimeout time.Duration
	Logger       *zap.Logger
}

// Process is a long-lived helper that keeps the model loaded between calls.
// Requests and responses are single JSON lines on stdin/stdout.
type Process struct {
	Executable string
	Model      string

	mu      sync.Mutex
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	stdout  *bufio.Reader
	stderr  *tailBuffer
	waitErr chan error
	lock    *Lock
	logger  *zap.Logger

	nextID uint64
	broken error

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

type request struct {
	ID        uint64 `json:"id"`
	AudioPath string `json:"audio_path"`
	Params
}

type wireSegment struct {
	Boundaries    []float64 `json:"boundaries"`
	Transcription string    `json:"transcription"`
}

type response struct {
	ID       uint64        `json:"id,omitempty"`
	Ready    bool          `json:"ready,omitempty"`
	Segments []wireSegment `json:"segments"`
	Error    string        `json:"error,omitempty"`
}

// Load resolves the helper, takes the engine lock and starts the helper,
// waiting until it reports the model as loaded.
func Load(ctx context.Context, cfg Config) (*Process, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	model, err := ResolveModel(cfg.Model)
	if err != nil {
		return nil, err
	}

	executable := strings.TrimSpace(cfg.Executable)
	if executable == "" {
		executable, err = ResolveExecutable()
		if err != nil {
			return nil, err
		}
	} else if err := ensureExecutable(executable); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEngineNotFound, err)
	}

	lock, err := AcquireLock(cfg.LockPath)
	if err != nil {
		return nil, err
	}

	args := []string{"--serve", "--model", model.Name}
	if device := strings.TrimSpace(cfg.Device); device != "" {
		args = append(args, "--device", device)
	}

	cmd := exec.Command(executable, args...)
	cmd.Env = os.Environ()
	if token := strings.TrimSpace(cfg.HFToken); token != "" {
		cmd.Env = append(cmd.Env, "HF_TOKEN="+token)
	}

	p := &Process{
		Executable: executable,
		Model:      model.Name,
		cmd:        cmd,
		stderr:     newTailBuffer(4096),
		waitErr:    make(chan error, 1),
		lock:       lock,
		logger:     logger,
	}
	cmd.Stderr = p.stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		_ = lock.Release()
		return nil, fmt.Errorf("engine stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		_ = lock.Release()
		return nil, fmt.Errorf("engine stdout: %w", err)
	}
	p.stdin = stdin
	p.stdout = bufio.NewReader(stdout)

	logger.Debug("starting speech engine", zap.String("engine", executable), zap.Strings("args", args))
	if err := cmd.Start(); err != nil {
		_ = lock.Release()
		return nil, fmt.Errorf("start speech engine: %w", err)
	}
	go func() { p.waitErr <- cmd.Wait() }()

	timeout := cfg.StartTimeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	startCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := p.awaitReady(startCtx); err != nil {
		_ = p.Close()
		return nil, err
	}

	logger.Info("speech engine loaded", zap.String("model", model.Name), zap.String("device", cfg.Device))
	return p, nil
}

func (p *Process) awaitReady(ctx context.Context) error {
	type result struct {
		resp response
		err  error
	}
	done := make(chan result, 1)
	go func() {
		resp, err := p.readResponse(0)
		done <- result{resp: resp, err: err}
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("waiting for speech engine to load: %w", ctx.Err())
	case r := <-done:
		if r.err != nil {
			return fmt.Errorf("speech engine failed to start: %w", r.err)
		}
		if r.resp.Error != "" {
			return fmt.Errorf("speech engine failed to start: %s", r.resp.Error)
		}
		if !r.resp.Ready {
			return errors.New("speech engine sent an unexpected greeting")
		}
		return nil
	}
}

// TranscribeLongform sends one request and blocks until the helper answers.
// An in-flight request is not interrupted by ctx; Close is the way to abort.
// After a protocol failure every later call fails with ErrEngineClosed.
func (p *Process) TranscribeLongform(_ context.Context, audioPath string, params Params) ([]subtitle.Segment, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed.Load() {
		return nil, ErrEngineClosed
	}
	if p.broken != nil {
		return nil, fmt.Errorf("%w: %v", ErrEngineClosed, p.broken)
	}

	p.nextID++
	id := p.nextID
	payload, err := json.Marshal(request{ID: id, AudioPath: audioPath, Params: params})
	if err != nil {
		return nil, fmt.Errorf("encode engine request: %w", err)
	}
	payload = append(payload, '\n')

	started := time.Now()
	if _, err := p.stdin.Write(payload); err != nil {
		p.broken = fmt.Errorf("send engine request: %w", p.exitCause(err))
		return nil, p.broken
	}

	resp, err := p.readResponse(id)
	if err != nil {
		p.broken = err
		return nil, err
	}
	if resp.Error != "" {
		return nil, errors.New(resp.Error)
	}

	segments, err := convertSegments(resp.Segments)
	if err != nil {
		return nil, err
	}
	p.logger.Debug("engine request finished",
		zap.String("audio", audioPath),
		zap.Int("segments", len(segments)),
		zap.Duration("elapsed", time.Since(started)),
	)
	return segments, nil
}

// readResponse returns the next response line for request id, skipping
// anything else the helper prints on stdout. A response that echoes a
// different id is stale and dropped; id 0 accepts any response.
func (p *Process) readResponse(id uint64) (response, error) {
	for {
		line, err := p.stdout.ReadBytes('\n')
		if err != nil {
			return response{}, fmt.Errorf("read engine response: %w", p.exitCause(err))
		}

		resp, ok := decodeResponse(line)
		if !ok {
			if text := strings.TrimSpace(string(line)); text != "" {
				p.logger.Debug("ignoring engine output", zap.String("line", text))
			}
			continue
		}
		if id != 0 && resp.ID != 0 && resp.ID != id {
			p.logger.Warn("dropping stale engine response", zap.Uint64("want", id), zap.Uint64("got", resp.ID))
			continue
		}
		return resp, nil
	}
}

// decodeResponse reports whether line is a JSON object carrying at least one
// of the response fields.
func decodeResponse(line []byte) (response, bool) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 || line[0] != '{' {
		return response{}, false
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(line, &fields); err != nil {
		return response{}, false
	}
	_, ready := fields["ready"]
	_, segments := fields["segments"]
	_, failed := fields["error"]
	if !ready && !segments && !failed {
		return response{}, false
	}

	var resp response
	if err := json.Unmarshal(line, &resp); err != nil {
		return response{}, false
	}
	return resp, true
}

// exitCause enriches pipe errors with the helper's last stderr output.
func (p *Process) exitCause(err error) error {
	if tail := p.stderr.String(); tail != "" {
		if isMissingDependencyError(tail) {
			return fmt.Errorf("speech engine at %s is missing required libraries; reinstall the engine helper: %w (%s)", p.Executable, err, tail)
		}
		return fmt.Errorf("%w (%s)", err, tail)
	}
	return err
}

// Close stops the helper and releases the engine lock. An in-flight call
// fails once the helper is gone.
func (p *Process) Close() error {
	if p == nil {
		return nil
	}
	p.closeOnce.Do(func() {
		p.closeErr = p.shutdown()
	})
	return p.closeErr
}

func (p *Process) shutdown() error {
	p.closed.Store(true)
	_ = p.stdin.Close()

	var waitErr error
	select {
	case waitErr = <-p.waitErr:
	case <-time.After(5 * time.Second):
		_ = p.cmd.Process.Kill()
		waitErr = <-p.waitErr
	}

	if err := p.lock.Release(); err != nil {
		return fmt.Errorf("release engine lock: %w", err)
	}

	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) && !exitErr.Exited() {
		return nil
	}
	return waitErr
}

func convertSegments(in []wireSegment) ([]subtitle.Segment, error) {
	out := make([]subtitle.Segment, 0, len(in))
	for i, seg := range in {
		if len(seg.Boundaries) != 2 {
			return nil, fmt.Errorf("engine segment %d: expected 2 boundaries, got %d", i, len(seg.Boundaries))
		}
		start, end := seg.Boundaries[0], seg.Boundaries[1]
		if start < 0 {
			start = 0
		}
		if end < start {
			end = start
		}
		out = append(out, subtitle.Segment{Start: start, End: end, Text: seg.Transcription})
	}
	return out, nil
}

// ResolveExecutable finds the helper via VOXSRT_ENGINE_PATH, next to the
// voxsrt binary, or on PATH.
func ResolveExecutable() (string, error) {
	if override := strings.TrimSpace(os.Getenv("VOXSRT_ENGINE_PATH")); override != "" {
		if err := ensureExecutable(override); err != nil {
			return "", fmt.Errorf("VOXSRT_ENGINE_PATH is not executable: %w", err)
		}
		return override, nil
	}

	if self, err := os.Executable(); err == nil {
		for _, candidate := range ExecutableCandidates(self) {
			if ensureExecutable(candidate) == nil {
				return candidate, nil
			}
		}
	}

	if path, err := exec.LookPath(helperBinaryName()); err == nil {
		return path, nil
	}

	return "", fmt.Errorf("%w: install %s next to voxsrt (../libexec/voxsrt/) or on PATH, or set VOXSRT_ENGINE_PATH", ErrEngineNotFound, helperBinaryName())
}

func ExecutableCandidates(voxsrtExecutable string) []string {
	binDir := filepath.Dir(voxsrtExecutable)
	name := helperBinaryName()

	return []string{
		filepath.Join(binDir, "..", "libexec", "voxsrt", name),
		filepath.Join(binDir, "libexec", "voxsrt", name),
		filepath.Join(binDir, name),
	}
}

func helperBinaryName() string {
	if runtime.GOOS == "windows" {
		return "gigaam-engine.exe"
	}
	return "gigaam-engine"
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

func isMissingDependencyError(stderr string) bool {
	value := strings.ToLower(strings.TrimSpace(stderr))
	if value == "" {
		return false
	}

	patterns := []string{
		"error while loading shared libraries",
		"cannot open shared object file",
		"dyld: library not loaded",
		"no module named",
	}

	for _, pattern := range patterns {
		if strings.Contains(value, pattern) {
			return true
		}
	}

	return false
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	max int
	buf []byte
}

func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{max: max}
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.buf = append(t.buf, p...)
	if len(t.buf) > t.max {
		t.buf = append([]byte(nil), t.buf[len(t.buf)-t.max:]...)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.TrimSpace(string(t.buf))
}
