package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/DenTeeth/PDCMS-BE-sub001/internal/appointment"
	"github.com/DenTeeth/PDCMS-BE-sub001/internal/config"
	"github.com/DenTeeth/PDCMS-BE-sub001/internal/db"
	"github.com/DenTeeth/PDCMS-BE-sub001/internal/logging"
	redisclient "github.com/DenTeeth/PDCMS-BE-sub001/internal/redis"
)

const batchSize = 200

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallback := logging.Bootstrap("noshow-worker")
		fallback.Fatal().Err(err).Msg("config load error")
	}

	logger := logging.New(cfg, "noshow-worker")
	logger.Info().Dur("interval", cfg.WorkerInterval).Dur("grace", cfg.NoShowGrace).Msg("no-show worker starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, 4)
	cancelPg()
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()

	// Status changes lock the appointment row in Postgres and never take the
	// booking gate, so the worker runs without Redis.
	svc := appointment.NewService(
		appointment.NewPgStore(pgPool),
		redisclient.NewLocalLocker(cfg.LockWait),
		cfg,
		appointment.WithLogger(logger),
	)

	// Run once at startup
	runOnce(rootCtx, logger, svc, cfg.NoShowGrace)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			logger.Info().Msg("shutdown signal received, stopping no-show worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, logger, svc, cfg.NoShowGrace)
		}
	}
}

func runOnce(ctx context.Context, logger zerolog.Logger, svc *appointment.Service, grace time.Duration) {
	runCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	start := time.Now()
	marked, err := svc.MarkNoShows(runCtx, grace, batchSize)
	if err != nil {
		logger.Error().Err(err).Msg("no-show run error")
		return
	}
	logger.Info().Int("marked", marked).Dur("took", time.Since(start)).Msg("no-show run complete")
}
