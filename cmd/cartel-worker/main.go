package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cartel/internal/clock"
	"cartel/internal/config"
	"cartel/internal/db"
	"cartel/internal/game"
)

// The worker runs storage hygiene only: it sweeps battle records past their
// retention window. Gameplay state settles lazily on read and never needs a
// background pass.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadWorkerFromEnv()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("db connect failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	svc := game.NewService(pool, logger, clock.Real{}, nil)

	if cfg.RunOnce {
		pruned, err := svc.PruneBattles(ctx)
		if err != nil {
			logger.Error("battle sweep failed", "err", err)
			os.Exit(1)
		}
		logger.Info("battle sweep complete", "pruned", pruned)
		return
	}

	ticker := time.NewTicker(cfg.SweepEvery)
	defer ticker.Stop()

	logger.Info("worker started", "sweep_every", cfg.SweepEvery.String())
	for {
		select {
		case <-ctx.Done():
			logger.Info("worker shutdown")
			return
		case <-ticker.C:
			pruned, err := svc.PruneBattles(ctx)
			if err != nil {
				logger.Error("battle sweep failed", "err", err)
				continue
			}
			if pruned > 0 {
				logger.Info("battle sweep complete", "pruned", pruned)
			}
		}
	}
}
