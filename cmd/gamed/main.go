package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MitchForest/settlers-sub000/internal/ai"
	"github.com/MitchForest/settlers-sub000/internal/clock"
	"github.com/MitchForest/settlers-sub000/internal/config"
	"github.com/MitchForest/settlers-sub000/internal/game"
	"github.com/MitchForest/settlers-sub000/internal/health"
	"github.com/MitchForest/settlers-sub000/internal/leader"
	"github.com/MitchForest/settlers-sub000/internal/rules"
	"github.com/MitchForest/settlers-sub000/internal/store"
	"github.com/MitchForest/settlers-sub000/internal/telemetry"
	"github.com/MitchForest/settlers-sub000/internal/turn"

	// Register store drivers so they are available via store.Open.
	_ "github.com/MitchForest/settlers-sub000/internal/store/entstore"
	_ "github.com/MitchForest/settlers-sub000/internal/store/postgres"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	if err := run(*configPath); err != nil {
		slog.Error("fatal error", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(configPath string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Load configuration.
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Setup telemetry.
	tp, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		slog.Warn("telemetry setup failed, continuing without OTEL export", slog.Any("error", err))
		tp = telemetry.NewNopProvider()
	}
	defer func() {
		if shutdownErr := tp.Shutdown(context.Background()); shutdownErr != nil {
			slog.Error("telemetry shutdown error", slog.Any("error", shutdownErr))
		}
	}()

	logger := tp.Logger
	clk := clock.Real{}

	// Open store using the configured driver (sqlx or sql).
	repos, err := store.Open(ctx, cfg.Database, clk)
	if err != nil {
		return fmt.Errorf("opening store (driver=%s): %w", cfg.Database.Driver, err)
	}
	defer repos.Closer.Close()

	logger.InfoContext(ctx, "connected to database", slog.String("driver", cfg.Database.Driver))

	// Wire up the game stack. The turn manager and orchestrator reference
	// each other, so the scheduler is bound after both exist.
	engine := rules.NewBaseline(repos.Events, nil)

	notify := func(n turn.Notification) {
		logger.Info("turn started",
			slog.String("game_id", n.GameID),
			slog.String("player_id", n.PlayerID),
			slog.String("phase", n.Phase),
			slog.Time("deadline", n.Deadline),
		)
	}
	turnMgr := turn.NewManager(engine, nil, repos.Events, repos.Players, turn.Config{
		PhaseTimeouts: cfg.Game.PhaseTimeouts,
		Default:       cfg.Game.DefaultTurnTimeout,
	}, notify, logger, tp.TracerProvider, clk)

	orchestrator := ai.NewOrchestrator(cfg.AI, rules.PassProvider{}, engine, repos.Events, turnMgr, nil, logger, tp.TracerProvider, clk)
	turnMgr.SetScheduler(orchestrator)

	registry := game.NewRegistry(cfg.Game.MaxCachedGames, func(gameID string) {
		turnMgr.Forget(gameID)
		orchestrator.Forget(gameID)
	})
	coordinator := game.NewCoordinator(registry, repos.Events, repos.Games, repos.Players,
		engine, turnMgr, orchestrator, logger, tp.TracerProvider, clk)
	turnMgr.SetApplier(coordinator.ApplyEvent)

	// Setup health checks.
	healthHandler := health.NewHandler(clk,
		health.Checker{
			Name:  "database",
			Check: repos.Ping,
		},
	)
	healthHandler.SetGamesGauge(registry.Len)

	// Start HTTP server for health checks (runs on all replicas).
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", healthHandler.LivenessHandler())
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler())

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.InfoContext(ctx, "starting health server", slog.Int("port", cfg.Server.Port))
		if listenErr := httpServer.ListenAndServe(); listenErr != nil && listenErr != http.ErrServerClosed {
			logger.ErrorContext(ctx, "health server error", slog.Any("error", listenErr))
		}
	}()

	// startCoordinator is the core work that only the leader should run:
	// replaying live games and driving turn timers and AI scheduling.
	startCoordinator := func(ctx context.Context) {
		if n, recoverErr := coordinator.RecoverActiveGames(ctx); recoverErr != nil {
			logger.ErrorContext(ctx, "game recovery failed", slog.Any("error", recoverErr))
		} else if n > 0 {
			logger.InfoContext(ctx, "recovered live games", slog.Int("count", n))
		}

		healthHandler.SetReady(true)
		logger.InfoContext(ctx, "gamed is running (leader)", slog.String("version", version))

		// Block until leadership is lost or process is shutting down.
		<-ctx.Done()

		healthHandler.SetReady(false)
	}

	if leaderErr := leader.Run(ctx, cfg.LeaderElection, logger, startCoordinator, func() {
		logger.Info("lost leadership, shutting down...")
		cancel()
	}); leaderErr != nil {
		return fmt.Errorf("leader election: %w", leaderErr)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", slog.Any("error", err))
	}

	logger.Info("shutdown complete")
	return nil
}
