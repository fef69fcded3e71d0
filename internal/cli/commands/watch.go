package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/conduit-lang/rsrcpack/internal/bundle"
	"github.com/conduit-lang/rsrcpack/internal/cli/ui"
	"github.com/conduit-lang/rsrcpack/internal/watch"
)

// NewWatchCommand creates the watch command
func NewWatchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "watch <inputDirectory> <bundlePath>",
		Short: "Re-pack the bundle whenever the input directory changes",
		Long: `Pack the input directory once, then watch it and run a full pack again
after every burst of changes, until interrupted.

Each re-pack behaves exactly like 'rsrcpack <inputDirectory> <bundlePath>':
changed files are updated, removed files keep their records. Writes to the
bundle and its journal files never trigger a re-pack.`,
		Example: `  rsrcpack watch resources/ build/default.rsrc`,
		Args:    exactArgs("input directory", "bundle path"),
		RunE:    runWatch,
	}
}

func runWatch(cmd *cobra.Command, args []string) error {
	s, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	defer s.logger.Sync()

	inputDir, bundlePath := args[0], args[1]

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var mu sync.Mutex
	pack := func(ctx context.Context) error {
		mu.Lock()
		defer mu.Unlock()
		_, err := bundle.Pack(ctx, inputDir, bundlePath, bundle.Options{
			Progress:  cmd.OutOrStdout(),
			Logger:    s.logger,
			BatchSize: s.cfg.Pack.BatchSize,
		})
		return err
	}

	if err := pack(ctx); err != nil {
		return &packError{err: err}
	}

	watcher, err := watch.NewTreeWatcher(inputDir, watch.Options{
		Debounce:    s.cfg.Watch.Debounce,
		Ignore:      s.cfg.Watch.Ignore,
		IgnorePaths: bundleFiles(bundlePath),
		Logger:      s.logger,
	}, func(changed []string) error {
		if ctx.Err() != nil {
			return nil
		}
		s.logger.Info("re-packing", zap.Int("changed", len(changed)))
		if err := pack(ctx); err != nil {
			fmt.Fprint(cmd.ErrOrStderr(), ui.Warning("re-pack failed, still watching: "+err.Error(), s.noColor))
		}
		return nil
	})
	if err != nil {
		return err
	}
	if err := watcher.Start(); err != nil {
		watcher.Stop()
		return err
	}

	s.logger.Info("watching for changes", zap.String("input", inputDir), zap.String("bundle", bundlePath))
	<-ctx.Done()

	if err := watcher.Stop(); err != nil {
		return err
	}
	// Let an in-flight re-pack finish before returning.
	mu.Lock()
	mu.Unlock()
	return nil
}

// bundleFiles lists the bundle and the side files SQLite writes next to it.
func bundleFiles(bundlePath string) []string {
	return []string{
		bundlePath,
		bundlePath + "-journal",
		bundlePath + "-wal",
		bundlePath + "-shm",
	}
}
