package app

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/calebward/chainarb/internal/monitor"
	"github.com/calebward/chainarb/internal/notify"
	"github.com/calebward/chainarb/internal/server"
	"github.com/calebward/chainarb/internal/server/handler"
	"github.com/calebward/chainarb/internal/server/ws"
)

// MonitorMode runs the price-monitoring pipeline alone: polling, detection,
// and whatever forwarding collaborators are configured.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.Info("monitor mode starting")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return deps.Runner.Run(ctx)
	})

	return waitGroup(g)
}

// FullMode runs the pipeline plus every configured surface: the status API,
// the WebSocket hub, the alert bridge, and the archive sweep.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.Info("full mode starting")

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return deps.Runner.Run(ctx)
	})

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps)
	}

	if deps.SignalBus != nil && deps.Notifier != nil {
		bridge := notify.NewBridge(deps.SignalBus, monitor.ChannelOpportunities, deps.Notifier, a.logger)
		g.Go(func() error {
			return bridge.Run(ctx)
		})
	}

	if a.cfg.Archive.Enabled && deps.Archiver != nil {
		g.Go(func() error {
			return deps.Archiver.RunLoop(ctx, a.cfg.Archive.Interval.Duration)
		})
	}

	return waitGroup(g)
}

// startHTTPServer adds the HTTP server and, when a bus is available, the
// WebSocket hub to the errgroup. The server is shut down gracefully when the
// context ends.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	var hub *ws.Hub
	if deps.SignalBus != nil {
		hub = ws.NewHub(deps.SignalBus, a.cfg.Mode, a.logger)
		g.Go(func() error {
			return hub.Run(ctx)
		})
	}

	handlers := server.Handlers{
		Health:  handler.NewHealthHandler(time.Now().UTC()),
		Status:  handler.NewStatusHandler(deps.Manager, deps.Cache, a.cfg.Mode),
		Metrics: handler.NewMetricsHandler(deps.Metrics),
	}
	if deps.OpportunityStore != nil {
		handlers.Opportunities = handler.NewOpportunityHandler(deps.OpportunityStore, a.logger)
	}

	srv := server.New(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
	}, handlers, hub, a.logger)

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("server shutdown failed", slog.String("error", err.Error()))
		}
		return ctx.Err()
	})
}

// waitGroup waits for all goroutines and treats context cancellation as a
// clean exit.
func waitGroup(g *errgroup.Group) error {
	err := g.Wait()
	if err == context.Canceled {
		return nil
	}
	return err
}
