package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fmueller/voxsrt/internal/media"
	"github.com/stretchr/testify/require"
)

type recordingSubmitter struct {
	mu    sync.Mutex
	items [][]string
	err   error
}

func (s *recordingSubmitter) Submit(paths []string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	s.items = append(s.items, append([]string(nil), paths...))
	return "item", nil
}

func (s *recordingSubmitter) Items() [][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]string(nil), s.items...)
}

func startWatcher(t *testing.T, dirs []string, sub Submitter, opts Options) *Watcher {
	t.Helper()
	if opts.Debounce == 0 {
		opts.Debounce = 50 * time.Millisecond
	}
	w, err := New(dirs, sub, opts)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})
	return w
}

func TestWatcherSubmitsNewMediaFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	sub := &recordingSubmitter{}
	w := startWatcher(t, []string{dir}, sub, Options{})

	clip := filepath.Join(dir, "clip.mp3")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(clip, []byte("x"), 0o644))

	require.Eventually(t, func() bool { return len(sub.Items()) == 1 }, 5*time.Second, 10*time.Millisecond)
	require.Equal(t, [][]string{{clip}}, sub.Items())
	require.EqualValues(t, 1, w.Submitted())
}

func TestWatcherCoalescesRapidWrites(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	sub := &recordingSubmitter{}
	startWatcher(t, []string{dir}, sub, Options{Debounce: 200 * time.Millisecond})

	clip := filepath.Join(dir, "clip.wav")
	f, err := os.Create(clip)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		_, err := f.Write([]byte("chunk"))
		require.NoError(t, err)
		time.Sleep(10 * time.Millisecond)
	}
	require.NoError(t, f.Close())

	require.Eventually(t, func() bool { return len(sub.Items()) >= 1 }, 5*time.Second, 10*time.Millisecond)
	time.Sleep(400 * time.Millisecond)
	require.Len(t, sub.Items(), 1)
}

func TestWatcherIgnoresScratchAudioAndSubtitledMedia(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	sub := &recordingSubmitter{}
	startWatcher(t, []string{dir}, sub, Options{})

	done := filepath.Join(dir, "done.mp4")
	require.NoError(t, os.WriteFile(media.SubtitlePath(done), nil, 0o644))
	require.NoError(t, os.WriteFile(done, []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "voxsrt-0b6f1d2c.wav"), []byte("x"), 0o644))

	marker := filepath.Join(dir, "marker.ogg")
	require.NoError(t, os.WriteFile(marker, []byte("x"), 0o644))

	require.Eventually(t, func() bool { return len(sub.Items()) == 1 }, 5*time.Second, 10*time.Millisecond)
	time.Sleep(150 * time.Millisecond)
	require.Equal(t, [][]string{{marker}}, sub.Items())
}

func TestWatcherFollowsNewSubdirectoriesWhenRecursive(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	sub := &recordingSubmitter{}
	startWatcher(t, []string{dir}, sub, Options{Recursive: true})

	nested := filepath.Join(dir, "season1")
	require.NoError(t, os.Mkdir(nested, 0o755))
	time.Sleep(200 * time.Millisecond)

	clip := filepath.Join(nested, "e01.mkv")
	require.NoError(t, os.WriteFile(clip, []byte("x"), 0o644))

	require.Eventually(t, func() bool { return len(sub.Items()) == 1 }, 5*time.Second, 10*time.Millisecond)
	require.Equal(t, [][]string{{clip}}, sub.Items())
}

func TestWatcherBackfillSubmitsDirectories(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	sub := &recordingSubmitter{}
	startWatcher(t, []string{dir}, sub, Options{Backfill: true})

	require.Eventually(t, func() bool { return len(sub.Items()) == 1 }, 5*time.Second, 10*time.Millisecond)
	require.Equal(t, [][]string{{dir}}, sub.Items())
}

func TestWatcherBackfillFailureEndsRun(t *testing.T) {
	t.Parallel()

	sub := &recordingSubmitter{err: errors.New("session is stopped")}
	w, err := New([]string{t.TempDir()}, sub, Options{Backfill: true})
	require.NoError(t, err)
	require.ErrorContains(t, w.Run(context.Background()), "session is stopped")
}

func TestNewRejectsBadTargets(t *testing.T) {
	t.Parallel()

	_, err := New(nil, &recordingSubmitter{}, Options{})
	require.Error(t, err)

	_, err = New([]string{filepath.Join(t.TempDir(), "missing")}, &recordingSubmitter{}, Options{})
	require.ErrorIs(t, err, media.ErrNotFound)

	file := filepath.Join(t.TempDir(), "a.wav")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	_, err = New([]string{file}, &recordingSubmitter{}, Options{})
	require.ErrorContains(t, err, "not a directory")
}
