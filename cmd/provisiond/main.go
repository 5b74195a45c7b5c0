package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/edvin/provisioning/internal/archive"
	"github.com/edvin/provisioning/internal/clients"
	"github.com/edvin/provisioning/internal/config"
	"github.com/edvin/provisioning/internal/core"
	"github.com/edvin/provisioning/internal/db"
	"github.com/edvin/provisioning/internal/logging"
	"github.com/edvin/provisioning/internal/metrics"
	"github.com/edvin/provisioning/internal/remediation"
	"github.com/edvin/provisioning/internal/saga"
	"github.com/edvin/provisioning/internal/steps"
	"github.com/edvin/provisioning/internal/store"
)

func main() {
	migrateFlag := flag.Bool("migrate", false, "Run database migrations before starting")
	migrateDirFlag := flag.String("migrate-dir", "migrations", "Migration files directory")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg)

	if *migrateFlag {
		logger.Info().Str("dir", *migrateDirFlag).Msg("running database migrations")
		if err := db.RunMigrations(cfg.DatabaseURL, *migrateDirFlag); err != nil {
			logger.Fatal().Err(err).Msg("migration failed")
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()

	metrics.RegisterWorkflowMetrics()
	metrics.RegisterPgxPoolMetrics(pool)

	st := store.NewPostgresStore(pool)

	ipam := clients.NewIPAMClient(cfg.Collaborators.IPAM.BaseURL, cfg.Collaborators.IPAM.APIKey, logger)
	aaa := clients.NewAAAClient(cfg.Collaborators.AAA.BaseURL, cfg.Collaborators.AAA.APIKey, logger)
	pon := clients.NewPONClient(cfg.Collaborators.PON.BaseURL, cfg.Collaborators.PON.APIKey, logger)
	cpe := clients.NewCPEClient(cfg.Collaborators.CPE.BaseURL, cfg.Collaborators.CPE.APIKey, logger)

	var archiver steps.Archiver
	if cfg.ArchiveBucket != "" {
		archiver = archive.NewExporter(cfg.ArchiveEndpoint, cfg.ArchiveAccessKey, cfg.ArchiveSecretKey, cfg.ArchiveBucket, logger)
		logger.Info().Str("bucket", cfg.ArchiveBucket).Msg("audit archive enabled")
	}

	registry := saga.NewRegistry()
	steps.Register(registry, steps.Dependencies{
		Store:    st,
		IPAM:     ipam,
		AAA:      aaa,
		PON:      pon,
		CPE:      cpe,
		Archiver: archiver,
		Logger:   logger,
	})

	coordinator := saga.NewCoordinator(st, registry, logger, int64(cfg.MaxConcurrentWorkflows))
	remediator := remediation.NewRemediator(st, ipam, pon, cpe, logger)
	workflows := core.NewWorkflowService(st, registry, coordinator, remediator, logger, cfg.DefaultMaxRetries)

	go func() {
		if err := workflows.ResumePending(ctx); err != nil {
			logger.Error().Err(err).Msg("resume pending workflows")
		}
	}()

	metricsServer := metrics.NewServer(cfg.HTTPListenAddr)
	go func() {
		logger.Info().Str("addr", cfg.HTTPListenAddr).Msg("starting metrics server")
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("metrics server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	metricsServer.Shutdown(shutdownCtx)
}
