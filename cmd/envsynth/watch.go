package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// newWatchCmd creates the "watch" subcommand for re-synthesizing on change.
func newWatchCmd(g *globals) *cobra.Command {
	var debounce time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Re-synthesize when the configuration record changes",
		Long: `Watch synthesizes once, then monitors the configuration record and
synthesizes again on every change. Rapid changes are debounced. A failing
synthesis is reported and the previous output is left in place.

Examples:
    envsynth watch --env dev
    envsynth watch --debounce 1s`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runWatch(ctx, g, cmd.OutOrStdout(), debounce)
		},
	}

	cmd.Flags().DurationVar(&debounce, "debounce", 500*time.Millisecond, "Debounce duration for rapid changes")

	return cmd
}

// runWatch watches the directory of the configuration record, since editors
// often replace the file instead of writing it in place.
func runWatch(ctx context.Context, g *globals, w io.Writer, debounce time.Duration) error {
	target, err := filepath.Abs(g.settings.Config)
	if err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() {
		_ = watcher.Close()
	}()

	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", target, err)
	}
	fmt.Fprintf(w, "Watching: %s\n", target)

	fmt.Fprintln(w, "Running initial synth...")
	synthOnce(g, w)

	var debounceTimer *time.Timer
	rebuild := make(chan struct{}, 1)

	fmt.Fprintln(w, "\nWatching for changes... (Ctrl+C to stop)")

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !isConfigChange(event, target) {
				continue
			}

			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(debounce, func() {
				select {
				case rebuild <- struct{}{}:
				default:
				}
			})

		case <-rebuild:
			fmt.Fprintf(w, "\n[%s] Change detected, synthesizing...\n", time.Now().Format("15:04:05"))
			synthOnce(g, w)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			g.log.Warn("watch error", zap.Error(err))

		case <-ctx.Done():
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			fmt.Fprintln(w, "\nStopping watch...")
			return nil
		}
	}
}

// isConfigChange reports whether event writes or recreates the record.
func isConfigChange(event fsnotify.Event, target string) bool {
	if filepath.Clean(event.Name) != target {
		return false
	}
	return event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename)
}

func synthOnce(g *globals, w io.Writer) {
	result, err := synthToDir(g)
	if err != nil {
		g.log.Error("synth failed", zap.Error(err))
		printError(os.Stderr, err)
		return
	}
	fmt.Fprintf(w, "Synth successful, wrote %d files to %s\n", len(result.Files), g.settings.Output)
}
