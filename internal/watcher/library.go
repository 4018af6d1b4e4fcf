package watcher

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/conneroisu/livecanvas/internal/logging"
)

// LibraryLoader reloads component entries from a file.
type LibraryLoader interface {
	LoadFile(path string) (int, error)
}

// WatchLibrary reloads the component library file whenever it is written,
// until ctx is done. The parent directory is watched so that editors which
// replace the file on save are followed too. A failed reload keeps the
// entries already registered.
func WatchLibrary(ctx context.Context, path string, loader LibraryLoader, debounce time.Duration, logger logging.Logger) error {
	if logger == nil {
		logger = logging.Nop()
	}
	logger = logger.WithComponent("library")

	target, err := cleanPath(path)
	if err != nil {
		return fmt.Errorf("invalid library path: %w", err)
	}

	fw, err := NewFileWatcher(debounce, logger)
	if err != nil {
		return err
	}
	fw.AddFilter(func(p string) bool { return filepath.Clean(p) == target })
	fw.AddHandler(func(ctx context.Context, events []ChangeEvent) error {
		for _, event := range events {
			if event.Type.Gone() {
				logger.Info(ctx, "Component library removed; keeping loaded entries", "path", target)
				continue
			}
			n, err := loader.LoadFile(target)
			if err != nil {
				logger.Warn(ctx, err, "Cannot reload component library", "path", target)
				continue
			}
			logger.Info(ctx, "Component library reloaded", "path", target, "entries", n)
		}
		return nil
	})

	if err := fw.AddPath(filepath.Dir(target)); err != nil {
		_ = fw.watcher.Close()
		return fmt.Errorf("watch %s: %w", target, err)
	}
	if err := fw.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	return fw.Stop()
}
