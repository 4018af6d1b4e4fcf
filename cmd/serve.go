package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/conneroisu/livecanvas/internal/config"
	"github.com/conneroisu/livecanvas/internal/logging"
	"github.com/conneroisu/livecanvas/internal/registry"
	"github.com/conneroisu/livecanvas/internal/server"
	"github.com/conneroisu/livecanvas/internal/session"
	"github.com/conneroisu/livecanvas/internal/watcher"
	"github.com/conneroisu/livecanvas/internal/websocket"
)

func newServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "serve [paths...]",
		Aliases: []string{"s"},
		Short:   "Run the editing API and the live preview server",
		Long: `Start the HTTP API, the patch stream and the live preview.

Files under the given paths (or watch.paths) are opened as sessions named
by their relative path and reloaded whenever they change on disk.

Examples:
  livecanvas serve                    # API and preview on localhost:8080
  livecanvas serve -p 3000 src/pages  # follow every page under src/pages`,
		RunE: runServe,
	}

	cmd.Flags().IntP("port", "p", 8080, "Port to serve on")
	cmd.Flags().String("host", "localhost", "Host to bind to")
	_ = viper.BindPFlag("server.port", cmd.Flags().Lookup("port"))
	_ = viper.BindPFlag("server.host", cmd.Flags().Lookup("host"))

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	if len(args) > 0 {
		viper.Set("watch.paths", args)
	}

	cfg, logger, err := loadRuntime(cmd)
	if err != nil {
		return err
	}

	components, err := buildRegistry(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return serve(ctx, cfg, components, logger)
}

// serve runs every long-lived part until ctx is done or one of them fails.
func serve(ctx context.Context, cfg *config.Config, components *registry.ComponentRegistry, logger logging.Logger) error {
	manager := session.NewManager(nil, components, logger, cfg.SessionOptions())
	hub := websocket.NewHub(logger, cfg.HubOptions())
	srv := server.New(cfg, manager, components, hub, logger)
	source := watcher.NewSource(manager, logger, cfg.SourceOptions())

	events := manager.Watch()
	defer manager.UnWatch(events)
	libraryEvents := components.Watch()
	defer components.UnWatch(libraryEvents)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.ListenAndServe(ctx) })
	g.Go(func() error { return manager.RunJanitor(ctx) })
	g.Go(func() error { return hub.Forward(ctx, events) })
	g.Go(func() error { return source.Run(ctx) })
	g.Go(func() error { return logLibraryEvents(ctx, libraryEvents, logger) })
	if path := cfg.Components.LibraryFile; path != "" {
		g.Go(func() error {
			return watcher.WatchLibrary(ctx, path, components, cfg.Watch.Debounce, logger)
		})
	}

	logger.Info(ctx, "livecanvas started",
		"address", cfg.Address(),
		"components", components.Count(),
		"watch_paths", len(cfg.Watch.Paths))

	err := g.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if shutdownErr := hub.Shutdown(shutdownCtx); shutdownErr != nil {
		logger.Warn(shutdownCtx, shutdownErr, "Preview hub did not shut down cleanly")
	}

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func logLibraryEvents(ctx context.Context, events <-chan registry.ComponentEvent, logger logging.Logger) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-events:
			if !ok {
				return nil
			}
			logger.Debug(ctx, "Component kind registered",
				"component", event.Component.Name,
				"event", event.Type.String())
		}
	}
}

// buildRegistry loads the builtin library plus the configured library file.
func buildRegistry(cfg *config.Config) (*registry.ComponentRegistry, error) {
	components := registry.NewDefaultRegistry()
	if cfg.Components.LibraryFile == "" {
		return components, nil
	}

	if _, err := components.LoadFile(cfg.Components.LibraryFile); err != nil {
		return nil, err
	}
	return components, nil
}
