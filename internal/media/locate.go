package media

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

var (
	ErrNotFound         = errors.New("input path not found")
	ErrUnsupportedMedia = errors.New("unsupported media type")
)

// SubtitleExt is the extension of the subtitle files produced next to media.
const SubtitleExt = ".srt"

var extensions = map[string]struct{}{
	".wav":  {},
	".mp3":  {},
	".flac": {},
	".ogg":  {},
	".opus": {},
	".m4a":  {},
	".aac":  {},
	".wma":  {},
	".mp4":  {},
	".mkv":  {},
	".mov":  {},
	".avi":  {},
	".webm": {},
}

type NotFoundError struct {
	Path string
	Err  error
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("input not found: %s", e.Path)
}

func (e *NotFoundError) Unwrap() []error {
	return []error{ErrNotFound, e.Err}
}

type UnsupportedMediaError struct {
	Path string
	Ext  string
}

func (e *UnsupportedMediaError) Error() string {
	if e.Ext == "" {
		return fmt.Sprintf("unsupported media file %s: no extension", e.Path)
	}
	return fmt.Sprintf("unsupported media file %s: extension %q is not recognized", e.Path, e.Ext)
}

func (e *UnsupportedMediaError) Unwrap() error {
	return ErrUnsupportedMedia
}

// IsMedia reports whether path carries a recognized media extension.
func IsMedia(path string) bool {
	_, ok := extensions[strings.ToLower(filepath.Ext(path))]
	return ok
}

// Extensions returns the recognized media extensions in lower case.
func Extensions() []string {
	out := make([]string, 0, len(extensions))
	for ext := range extensions {
		out = append(out, ext)
	}
	return out
}

// SubtitlePath returns the sibling subtitle path: the media path with its
// extension replaced by .srt.
func SubtitlePath(mediaPath string) string {
	return strings.TrimSuffix(mediaPath, filepath.Ext(mediaPath)) + SubtitleExt
}

// HasSubtitle checks, at call time, whether the sibling subtitle exists.
func HasSubtitle(mediaPath string) bool {
	_, err := os.Stat(SubtitlePath(mediaPath))
	return err == nil
}

// Collect expands inputs into an ordered, de-duplicated list of media files
// that do not have a sibling subtitle yet. Directories are listed in lexical
// order; with recursive set the whole subtree is walked.
func Collect(inputs []string, recursive bool) ([]string, error) {
	c := collector{seen: make(map[string]struct{})}

	for _, input := range inputs {
		info, err := os.Stat(input)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, &NotFoundError{Path: input, Err: err}
			}
			return nil, fmt.Errorf("stat input %s: %w", input, err)
		}

		if info.IsDir() {
			if err := c.addDir(input, recursive); err != nil {
				return nil, err
			}
			continue
		}

		if !IsMedia(input) {
			return nil, &UnsupportedMediaError{Path: input, Ext: filepath.Ext(input)}
		}
		c.add(input)
	}

	return c.out, nil
}

type collector struct {
	seen map[string]struct{}
	out  []string
}

func (c *collector) add(path string) {
	if HasSubtitle(path) {
		return
	}
	if _, ok := c.seen[path]; ok {
		return
	}
	c.seen[path] = struct{}{}
	c.out = append(c.out, path)
}

func (c *collector) addDir(dir string, recursive bool) error {
	if !recursive {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return fmt.Errorf("read directory %s: %w", dir, err)
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			path := filepath.Join(dir, entry.Name())
			if IsMedia(path) && isRegular(entry, path) {
				c.add(path)
			}
		}
		return nil
	}

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if IsMedia(path) && isRegular(d, path) {
			c.add(path)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("walk directory %s: %w", dir, err)
	}
	return nil
}

// isRegular follows symlinks so linked media files are still picked up.
func isRegular(d fs.DirEntry, path string) bool {
	if d.Type().IsRegular() {
		return true
	}
	if d.Type()&fs.ModeSymlink == 0 {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
