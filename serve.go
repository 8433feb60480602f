package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/moham7dreza/structured-docs-engine/pkg/database"
	"github.com/moham7dreza/structured-docs-engine/pkg/handlers"
	"github.com/moham7dreza/structured-docs-engine/pkg/logging"
	"github.com/moham7dreza/structured-docs-engine/pkg/mcp"
	"github.com/moham7dreza/structured-docs-engine/pkg/mcp/tools"
	"github.com/moham7dreza/structured-docs-engine/pkg/middleware"
	"github.com/moham7dreza/structured-docs-engine/pkg/services"
	"github.com/moham7dreza/structured-docs-engine/pkg/services/workqueue"
)

const shutdownTimeout = 30 * time.Second

var noScheduler bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, the MCP endpoint and the maintenance scheduler",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&noScheduler, "no-scheduler", false, "Do not run scheduled sweeps and recomputes")
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	checks := map[string]handlers.PingFunc{
		"database": a.db.Ping,
	}
	if a.redis != nil {
		checks["redis"] = func(ctx context.Context) error { return a.redis.Ping(ctx).Err() }
	}

	srv := &http.Server{
		Addr:              net.JoinHostPort(cfg.BindAddr, cfg.Port),
		Handler:           a.routes(checks),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Starting docs engine",
			zap.String("addr", srv.Addr),
			zap.String("version", cfg.Version),
			zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if !noScheduler {
		queue := workqueue.New(logger, workqueue.WithStrategy(workqueue.NewSerializedStrategy()))
		scheduler := services.NewScheduler(queue, &services.MaintenancePipeline{
			Penalties:   a.penalties,
			Scores:      a.scores,
			Leaderboard: a.leaderboard,
			Scopes:      a.scopes,
			Logger:      logger.Named("maintenance"),
		}, logger)

		g.Go(func() error {
			scheduler.Run(gctx, cfg.Penalties.SweepInterval)
			return nil
		})
		g.Go(func() error {
			a.refreshLeaderboard(gctx, cfg.Leaderboard.RecomputeInterval)
			return nil
		})
	}

	return g.Wait()
}

// routes builds the HTTP handler tree.
func (a *app) routes(checks map[string]handlers.PingFunc) http.Handler {
	mux := http.NewServeMux()
	scope := database.WithScope(a.db, a.logger)

	handlers.NewHealthHandler(a.cfg, checks, a.logger).RegisterRoutes(mux)
	handlers.NewDocumentHandler(a.documents, a.completion, a.logger).RegisterRoutes(mux, scope)
	handlers.NewPenaltyHandler(a.penalties, a.logger).RegisterRoutes(mux, scope)
	handlers.NewRuleHandler(a.rules, a.logger).RegisterRoutes(mux, scope)
	handlers.NewScoreHandler(a.scores, a.logger).RegisterRoutes(mux, scope)
	handlers.NewLeaderboardHandler(a.leaderboard, a.logger).RegisterRoutes(mux, scope)
	handlers.NewActivityHandler(a.activity, a.logger).RegisterRoutes(mux, scope)

	if a.cfg.MCP.Enabled {
		mcpChecks := make(map[string]tools.PingFunc, len(checks))
		for name, check := range checks {
			mcpChecks[name] = tools.PingFunc(check)
		}

		mcpServer := mcp.NewServer("structured-docs-engine", a.cfg.Version, a.logger)
		mcpServer.RegisterEngineTools(a.cfg.Version, mcpChecks, &tools.ToolDeps{
			Scopes:      a.scopes,
			Completion:  a.completion,
			Penalties:   a.penalties,
			Scores:      a.scores,
			Leaderboard: a.leaderboard,
			Logger:      a.logger.Named("mcp-tools"),
		})
		mux.Handle("/mcp", mcpServer.Handler())
		a.logger.Info("MCP endpoint enabled", zap.String("path", "/mcp"))
	}

	var h http.Handler = mux
	h = middleware.Recoverer(a.logger)(h)
	h = middleware.RequestLogger(a.logger)(h)
	return h
}

// refreshLeaderboard republishes the leaderboard every interval until ctx ends.
func (a *app) refreshLeaderboard(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := a.withScope(ctx, func(ctx context.Context) error {
				_, err := a.leaderboard.RecomputeLeaderboard(ctx)
				return err
			})
			if err != nil && ctx.Err() == nil {
				a.logger.Error("Leaderboard refresh failed", logging.Error(err))
			}
		}
	}
}
