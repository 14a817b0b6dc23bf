package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/DenTeeth/PDCMS-BE-sub001/internal/api"
	"github.com/DenTeeth/PDCMS-BE-sub001/internal/appointment"
	"github.com/DenTeeth/PDCMS-BE-sub001/internal/config"
	"github.com/DenTeeth/PDCMS-BE-sub001/internal/db"
	"github.com/DenTeeth/PDCMS-BE-sub001/internal/logging"
	"github.com/DenTeeth/PDCMS-BE-sub001/internal/metrics"
	redisclient "github.com/DenTeeth/PDCMS-BE-sub001/internal/redis"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "api-server",
		Short: "Clinic appointment booking API",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the booking API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := logging.New(cfg, "migrate")

			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()

			pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, 2)
			if err != nil {
				return err
			}
			defer pool.Close()

			applied, err := db.MigrateUp(ctx, pool)
			if err != nil {
				return err
			}
			logger.Info().Int("applied", applied).Msg("migrations complete")
			return nil
		},
	})

	return cmd
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.New(cfg, "api-server")
	logger.Info().Str("http_port", cfg.HTTPPort).Str("timezone", cfg.ClinicTimezone).Msg("api-server starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, cfg.DBMaxConns)
	cancelPg()
	if err != nil {
		return err
	}
	defer pgPool.Close()
	logger.Info().Msg("connected to Postgres")

	rdb, err := redisclient.NewRedisClient(rootCtx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Error().Err(err).Msg("error closing redis")
		}
	}()
	logger.Info().Str("addr", cfg.RedisAddr).Msg("connected to Redis")

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	svc := appointment.NewService(
		appointment.NewPgStore(pgPool),
		redisclient.NewRedisLocker(rdb, cfg.LockTTL, cfg.LockWait),
		cfg,
		appointment.WithLogger(logger),
		appointment.WithMetrics(metrics.New(reg)),
	)

	handler := api.NewRouter(api.RouterConfig{
		Service:   svc,
		Postgres:  pgPool,
		Redis:     api.PingerFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() }),
		Gatherer:  reg,
		Logger:    logger,
		JWTSecret: []byte(cfg.JWTSecret),
		Env:       cfg.Env,
		Version:   version,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-rootCtx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	logger.Info().Msg("shutting down api-server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
