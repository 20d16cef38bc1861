package normalize

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CanonicalExt is the container the engine reads without further decoding.
const CanonicalExt = ".wav"

// TempPrefix starts the base name of every transcoded scratch file.
const TempPrefix = "voxsrt-"

// IsTemporaryName reports whether path looks like a scratch file produced by
// Ensure.
func IsTemporaryName(path string) bool {
	base := filepath.Base(path)
	return strings.HasPrefix(base, TempPrefix) && strings.EqualFold(filepath.Ext(base), CanonicalExt)
}

// Transcoder converts arbitrary media at in to canonical audio at out.
type Transcoder interface {
	Transcode(ctx context.Context, in, out string) error
}

// Audio is audio in the canonical container. When Temporary is set the holder
// owns the file and must call Release.
type Audio struct {
	Path      string
	Temporary bool

	once   *sync.Once
	remove func(string) error
}

// Release deletes a temporary file. Calling it more than once, or on
// non-temporary audio, does nothing.
func (a Audio) Release() error {
	if !a.Temporary || a.once == nil {
		return nil
	}

	var err error
	a.once.Do(func() {
		err = a.remove(a.Path)
		if errors.Is(err, os.ErrNotExist) {
			err = nil
		}
	})
	return err
}

type Normalizer struct {
	Transcoder Transcoder
	ScratchDir string
	Logger     *zap.Logger
}

func New(transcoder Transcoder, scratchDir string, logger *zap.Logger) *Normalizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Normalizer{Transcoder: transcoder, ScratchDir: scratchDir, Logger: logger}
}

// Ensure returns path unchanged when it is already canonical, otherwise
// transcodes it into a uniquely named file in the scratch directory.
func (n *Normalizer) Ensure(ctx context.Context, path string) (Audio, error) {
	if strings.EqualFold(filepath.Ext(path), CanonicalExt) {
		return Audio{Path: path}, nil
	}

	if n.Transcoder == nil {
		return Audio{}, ErrTranscoderUnavailable
	}

	scratch := n.ScratchDir
	if strings.TrimSpace(scratch) == "" {
		scratch = os.TempDir()
	}
	if err := os.MkdirAll(scratch, 0o755); err != nil {
		return Audio{}, fmt.Errorf("create scratch directory %s: %w", scratch, err)
	}

	out := filepath.Join(scratch, TempPrefix+uuid.NewString()+CanonicalExt)
	n.log().Debug("transcoding to canonical audio", zap.String("input", path), zap.String("output", out))

	if err := n.Transcoder.Transcode(ctx, path, out); err != nil {
		if rmErr := os.Remove(out); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			n.log().Warn("failed to remove partial audio", zap.String("path", out), zap.Error(rmErr))
		}
		return Audio{}, err
	}

	return Audio{Path: out, Temporary: true, once: &sync.Once{}, remove: os.Remove}, nil
}

func (n *Normalizer) log() *zap.Logger {
	if n.Logger == nil {
		return zap.NewNop()
	}
	return n.Logger
}
