package media

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, path string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	return path
}

func TestCollectSkipsMediaWithSiblingSubtitle(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	touch(t, filepath.Join(dir, "a.mp3"))
	touch(t, filepath.Join(dir, "a.srt"))
	b := touch(t, filepath.Join(dir, "b.wav"))

	got, err := Collect([]string{dir}, true)
	require.NoError(t, err)
	require.Equal(t, []string{b}, got)
}

func TestCollectIsDeterministic(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	touch(t, filepath.Join(dir, "z.mkv"))
	touch(t, filepath.Join(dir, "nested", "m.flac"))
	touch(t, filepath.Join(dir, "a.MP3"))
	touch(t, filepath.Join(dir, "notes.txt"))

	first, err := Collect([]string{dir}, true)
	require.NoError(t, err)
	second, err := Collect([]string{dir}, true)
	require.NoError(t, err)

	require.Equal(t, first, second)
	require.Equal(t, []string{
		filepath.Join(dir, "a.MP3"),
		filepath.Join(dir, "nested", "m.flac"),
		filepath.Join(dir, "z.mkv"),
	}, first)
}

func TestCollectNonRecursiveListsDirectChildrenOnly(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	top := touch(t, filepath.Join(dir, "top.ogg"))
	touch(t, filepath.Join(dir, "sub", "deep.ogg"))

	got, err := Collect([]string{dir}, false)
	require.NoError(t, err)
	require.Equal(t, []string{top}, got)
}

func TestCollectDeduplicatesAcrossInputs(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	a := touch(t, filepath.Join(dir, "a.wav"))
	b := touch(t, filepath.Join(dir, "b.wav"))

	got, err := Collect([]string{b, dir, a, b}, false)
	require.NoError(t, err)
	require.Equal(t, []string{b, a}, got)
}

func TestCollectRejectsUnsupportedFile(t *testing.T) {
	t.Parallel()

	notes := touch(t, filepath.Join(t.TempDir(), "notes.txt"))

	_, err := Collect([]string{notes}, false)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrUnsupportedMedia))

	var unsupported *UnsupportedMediaError
	require.True(t, errors.As(err, &unsupported))
	require.Equal(t, ".txt", unsupported.Ext)
}

func TestCollectMissingInput(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	ok := touch(t, filepath.Join(dir, "ok.wav"))

	_, err := Collect([]string{ok, filepath.Join(dir, "missing.wav")}, false)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrNotFound))
	require.True(t, errors.Is(err, fs.ErrNotExist))
}

func TestCollectExplicitFileWithSubtitleIsSkipped(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	clip := touch(t, filepath.Join(dir, "clip.mp4"))
	touch(t, filepath.Join(dir, "clip.srt"))

	got, err := Collect([]string{clip}, false)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestCollectEmptyDirectoryIsNotAnError(t *testing.T) {
	t.Parallel()

	got, err := Collect([]string{t.TempDir()}, true)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestSubtitlePath(t *testing.T) {
	t.Parallel()

	require.Equal(t, "/data/show.s01e01.srt", SubtitlePath("/data/show.s01e01.mkv"))
	require.Equal(t, "talk.srt", SubtitlePath("talk.WAV"))
	require.Equal(t, "noext.srt", SubtitlePath("noext"))
}

func TestIsMediaIsCaseInsensitive(t *testing.T) {
	t.Parallel()

	require.True(t, IsMedia("a.WAV"))
	require.True(t, IsMedia("b.Mp4"))
	require.False(t, IsMedia("c.srt"))
	require.False(t, IsMedia("d"))
}
