package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/fmueller/voxsrt/internal/session"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"
)

func newInteractiveCmd(app *appState) *cobra.Command {
	var stopTimeout time.Duration

	cmd := &cobra.Command{
		Use:   "interactive",
		Short: "Keep the model loaded and transcribe paths dropped into the terminal",
		Long: "Keep the model loaded and transcribe paths dropped into the terminal.\n\n" +
			"Each line read from stdin is one batch of files or directories. Quote paths that contain spaces, " +
			"or drop them from a file manager. Ctrl-D finishes queued work and exits; Ctrl-C stops after the current file.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if isTerminal(os.Stdin) {
				fmt.Fprintln(cmd.ErrOrStderr(), "Drop media files or folders here and press Enter. Ctrl-D to finish.")
			}
			return app.runSession(cmd.Context(), cmd.OutOrStdout(), stopTimeout, func(ctx context.Context, w *session.Worker) error {
				return app.feedLines(ctx, w)
			})
		},
	}

	cmd.Flags().DurationVar(&stopTimeout, "stop-timeout", defaultStopTimeout, "How long to wait for a running transcription on shutdown")
	return cmd
}

// feedLines submits every non-empty stdin line as one work item. EOF drains
// the queue; cancellation stops right away.
func (a *appState) feedLines(ctx context.Context, w *session.Worker) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(a.inReader())
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				var err error
				select {
				case err = <-scanErr:
				default:
				}
				w.Finish()
				select {
				case <-w.Done():
				case <-ctx.Done():
				}
				if err != nil {
					return fmt.Errorf("read stdin: %w", err)
				}
				return nil
			}

			paths, err := splitLine(line)
			if err != nil {
				a.log().Warn("ignoring input line", zap.String("line", line), zap.Error(err))
				continue
			}
			if len(paths) == 0 {
				continue
			}
			if _, err := w.Submit(paths); err != nil {
				return err
			}
		}
	}
}

var errUnterminatedQuote = errors.New("unterminated quote")

// splitLine splits a line the way a POSIX shell splits words: whitespace
// separates, single quotes are literal, double quotes and backslashes escape.
// Dropped file:// URIs are turned back into paths.
func splitLine(line string) ([]string, error) {
	var (
		words   []string
		current strings.Builder
		inWord  bool
		quote   rune
		escaped bool
	)

	for _, r := range line {
		switch {
		case escaped:
			current.WriteRune(r)
			escaped = false
		case quote == '\'':
			if r == '\'' {
				quote = 0
			} else {
				current.WriteRune(r)
			}
		case quote == '"':
			switch r {
			case '"':
				quote = 0
			case '\\':
				escaped = true
			default:
				current.WriteRune(r)
			}
		case r == '\\':
			escaped, inWord = true, true
		case r == '\'' || r == '"':
			quote, inWord = r, true
		case r == ' ' || r == '\t' || r == '\r' || r == '\n':
			if inWord {
				words = append(words, current.String())
				current.Reset()
				inWord = false
			}
		default:
			current.WriteRune(r)
			inWord = true
		}
	}

	if quote != 0 || escaped {
		return nil, errUnterminatedQuote
	}
	if inWord {
		words = append(words, current.String())
	}

	for i, word := range words {
		words[i] = fromFileURI(word)
	}
	return words, nil
}

func fromFileURI(word string) string {
	if !strings.HasPrefix(word, "file://") {
		return word
	}
	u, err := url.Parse(word)
	if err != nil || u.Path == "" {
		return word
	}
	return u.Path
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
