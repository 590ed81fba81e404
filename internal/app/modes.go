package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"arbwatch/internal/agent"
	"arbwatch/internal/detector"
	"arbwatch/internal/domain"
	"arbwatch/internal/feed"
	"arbwatch/internal/server"
	"arbwatch/internal/server/handler"
	"arbwatch/internal/service"
)

// archiveInterval is how often the archiver checks for signals past the
// retention window.
const archiveInterval = 6 * time.Hour

// shutdownTimeout bounds graceful HTTP server shutdown.
const shutdownTimeout = 10 * time.Second

// WatchMode runs the full detection pipeline: both venue feeds, the agent,
// the archiver loop, and (when enabled) the HTTP API.
func (a *App) WatchMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting watch mode")

	g, ctx := errgroup.WithContext(ctx)

	var store domain.SignalStore
	if deps.SignalStore != nil {
		store = deps.SignalStore
	}
	sink := service.NewSignalService(store, deps.SignalBus, deps.Notifier, a.logger)

	cexFeed := feed.NewKrakenFeed(a.cfg.Cex, a.logger)
	dexFeed := feed.NewWhirlpoolFeed(a.cfg.Dex, a.logger)

	g.Go(func() error {
		return a.runFeed(ctx, "kraken", deps, cexFeed.Run)
	})
	g.Go(func() error {
		return a.runFeed(ctx, "whirlpool", deps, dexFeed.Run)
	})

	ag := agent.New(
		detector.Config{
			MinGainMarginPPM: a.cfg.Detector.MinGainMarginPPM,
			MaxTradeVolume:   a.cfg.Detector.MaxTradeVolume,
		},
		cexFeed.Updates(),
		dexFeed.Updates(),
		sink,
		deps.PriceCache,
		a.logger,
	)
	g.Go(func() error {
		return ag.Run(ctx)
	})

	if deps.Archiver != nil {
		g.Go(func() error {
			return deps.Archiver.RunLoop(ctx, archiveInterval)
		})
	}

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps)
	}

	return g.Wait()
}

// MonitorMode consumes the live signal channel and serves the HTTP API. It
// runs no feeds and performs no detection of its own.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode")

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		ch, err := deps.SignalBus.Subscribe(ctx, service.SignalChannel)
		if err != nil {
			return fmt.Errorf("monitor mode: subscribe %s: %w", service.SignalChannel, err)
		}
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case payload, ok := <-ch:
				if !ok {
					return nil
				}
				a.logger.InfoContext(ctx, "signal received",
					slog.String("payload", string(payload)),
				)
			}
		}
	})

	a.startHTTPServer(ctx, g, deps)

	return g.Wait()
}

// ServerMode serves the HTTP API only.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps)
	return g.Wait()
}

// runFeed runs a feed loop and alerts operators if it stops for any reason
// other than shutdown.
func (a *App) runFeed(ctx context.Context, name string, deps *Dependencies, run func(context.Context) error) error {
	err := run(ctx)
	if err != nil && ctx.Err() == nil {
		if notifyErr := deps.Notifier.Notify(ctx, "feed_error",
			fmt.Sprintf("Feed stopped: %s", name), err.Error(),
		); notifyErr != nil {
			a.logger.WarnContext(ctx, "feed error notification failed",
				slog.String("feed", name),
				slog.String("error", notifyErr.Error()),
			)
		}
	}
	return err
}

func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	handlers := server.Handlers{
		Health: handler.NewHealthHandler(),
		Status: handler.NewStatusHandler(a.cfg.Mode, a.cfg.Cex.Pair, deps.PriceCache, a.logger),
	}
	if deps.SignalStore != nil {
		handlers.Signals = handler.NewSignalHandler(deps.SignalStore, a.logger)
	}

	srv := server.New(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
	}, handlers, a.logger)

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}
