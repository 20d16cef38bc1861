package cli

import (
	"context"
	"time"

	"github.com/fmueller/voxsrt/internal/session"
	"github.com/fmueller/voxsrt/internal/watch"
	"github.com/spf13/cobra"
)

func newWatchCmd(app *appState) *cobra.Command {
	var (
		stopTimeout time.Duration
		debounce    time.Duration
		backfill    bool
	)

	cmd := &cobra.Command{
		Use:   "watch <dir>...",
		Short: "Transcribe media files as they appear in directories",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("debounce") {
				debounce = time.Duration(app.cfg.Watch.DebounceMillis) * time.Millisecond
			}

			return app.runSession(cmd.Context(), cmd.OutOrStdout(), stopTimeout, func(ctx context.Context, w *session.Worker) error {
				watcher, err := watch.New(args, w, watch.Options{
					Recursive: app.recursive,
					Debounce:  debounce,
					Backfill:  backfill,
					Logger:    app.log(),
				})
				if err != nil {
					return err
				}
				return watcher.Run(ctx)
			})
		},
	}

	cmd.Flags().DurationVar(&stopTimeout, "stop-timeout", defaultStopTimeout, "How long to wait for a running transcription on shutdown")
	cmd.Flags().DurationVar(&debounce, "debounce", watch.DefaultDebounce, "Quiet period before a new file is picked up")
	cmd.Flags().BoolVar(&backfill, "backfill", true, "Transcribe media already in the directories at startup")
	return cmd
}
