package cli

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/fmueller/voxsrt/internal/engine"
	"github.com/fmueller/voxsrt/internal/normalize"
	"github.com/fmueller/voxsrt/internal/subtitle"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeEngine fails for audio whose content contains "fail".
type fakeEngine struct {
	mu     sync.Mutex
	calls  []string
	params []engine.Params
	closed int
}

func (e *fakeEngine) TranscribeLongform(_ context.Context, audioPath string, params engine.Params) ([]subtitle.Segment, error) {
	e.mu.Lock()
	e.calls = append(e.calls, filepath.Base(audioPath))
	e.params = append(e.params, params)
	e.mu.Unlock()

	data, err := os.ReadFile(audioPath)
	if err != nil {
		return nil, err
	}
	if strings.Contains(string(data), "fail") {
		return nil, errors.New("engine rejected audio")
	}
	return []subtitle.Segment{
		{Start: 0, End: 1.5, Text: "hello"},
		{Start: 1.5, End: 3, Text: "world"},
	}, nil
}

func (e *fakeEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed++
	return nil
}

func (e *fakeEngine) Calls() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.calls...)
}

func (e *fakeEngine) Closed() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

type copyTranscoder struct{}

func (copyTranscoder) Transcode(_ context.Context, in, out string) error {
	data, err := os.ReadFile(in)
	if err != nil {
		return err
	}
	return os.WriteFile(out, data, 0o644)
}

type harness struct {
	eng       *fakeEngine
	loads     []engine.Config
	loadErr   error
	configDir string
}

// newHarness returns an app whose engine and transcoder are fakes and whose
// config file is an empty file inside the test's temp dir.
func newHarness(t *testing.T) (*harness, *appState) {
	t.Helper()

	h := &harness{eng: &fakeEngine{}, configDir: t.TempDir()}
	require.NoError(t, os.WriteFile(h.configPath(), nil, 0o644))

	app := newAppState()
	app.loadEngineFn = func(_ context.Context, cfg engine.Config) (speechEngine, error) {
		h.loads = append(h.loads, cfg)
		if h.loadErr != nil {
			return nil, h.loadErr
		}
		return h.eng, nil
	}
	app.newTranscoderFn = func(*zap.Logger) (normalize.Transcoder, error) {
		return copyTranscoder{}, nil
	}
	return h, app
}

func (h *harness) configPath() string {
	return filepath.Join(h.configDir, "config.toml")
}

func (h *harness) writeConfig(t *testing.T, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(h.configPath(), []byte(body), 0o644))
}

// run executes the root command with --config and --no-progress prepended.
func (h *harness) run(t *testing.T, app *appState, args ...string) (stdout string, stderr string, err error) {
	t.Helper()
	return h.runContext(context.Background(), app, args...)
}

func (h *harness) runContext(ctx context.Context, app *appState, args ...string) (stdout string, stderr string, err error) {
	cmd := newRootCmd(app)
	outBuf := new(bytes.Buffer)
	errBuf := new(bytes.Buffer)

	cmd.SetOut(outBuf)
	cmd.SetErr(errBuf)
	cmd.SetArgs(append([]string{"--config", h.configPath(), "--no-progress"}, args...))

	err = cmd.ExecuteContext(ctx)
	return outBuf.String(), errBuf.String(), err
}

func runCommand(t *testing.T, args []string) (stdout string, stderr string, err error) {
	t.Helper()

	cmd := NewRootCmd()
	outBuf := new(bytes.Buffer)
	errBuf := new(bytes.Buffer)

	cmd.SetOut(outBuf)
	cmd.SetErr(errBuf)
	cmd.SetArgs(args)

	err = cmd.Execute()
	return outBuf.String(), errBuf.String(), err
}

func writeMedia(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
