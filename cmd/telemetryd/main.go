package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/skilldeck/telemetry/pkg/api"
	"github.com/skilldeck/telemetry/pkg/config"
	"github.com/skilldeck/telemetry/pkg/observability"
	"github.com/skilldeck/telemetry/pkg/telemetry"
)

var (
	listenAddr    = flag.String("listen", "", "Ingest API listen address (overrides TELEMETRY_LISTEN_ADDR)")
	dbPath        = flag.String("db", "", "SQLite database path (overrides TELEMETRY_DB_PATH)")
	aggregateOnce = flag.Bool("aggregate-once", false, "Run the daily rollup once and exit (for backfilling)")
	aggregateDate = flag.String("date", "", "Date to aggregate (YYYY-MM-DD). If empty, aggregates yesterday. Only used with --aggregate-once")
)

func main() {
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *listenAddr != "" {
		cfg.Server.ListenAddr = *listenAddr
	}
	if *dbPath != "" {
		cfg.Storage.DBPath = *dbPath
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	store, err := telemetry.Open(cfg.Storage.DBPath)
	if err != nil {
		log.Fatalf("Failed to open event store: %v", err)
	}
	defer store.Close()
	log.WithField("path", cfg.Storage.DBPath).Info("Event store opened")

	aggregator := telemetry.NewAggregator(store)

	// Backfill mode: aggregate one day and exit.
	if *aggregateOnce {
		day := time.Now().UTC().AddDate(0, 0, -1)
		if *aggregateDate != "" {
			day, err = time.Parse("2006-01-02", *aggregateDate)
			if err != nil {
				log.Fatalf("Invalid date format: %v", err)
			}
		}

		log.WithField("date", day.Format("2006-01-02")).Info("Running daily rollup")
		if err := aggregator.AggregateDay(context.Background(), day); err != nil {
			log.Fatalf("Daily rollup failed: %v", err)
		}
		log.Info("Daily rollup completed successfully")
		return
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)

	var metrics *observability.Metrics
	registry := prometheus.NewRegistry()
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(registry)
	}

	server := api.NewServer(store, logger, metrics)

	apiServer := &http.Server{
		Addr:         cfg.Server.ListenAddr,
		Handler:      server.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Health probes and the Prometheus endpoint live on a second loopback
	// port so the ingest surface stays minimal.
	opsMux := http.NewServeMux()
	checker := observability.NewHealthChecker(store.DB())
	observability.RegisterHealthRoutes(opsMux, checker)
	if cfg.Observability.MetricsEnabled {
		observability.RegisterMetricsEndpoint(opsMux, registry)
	}
	opsServer := &http.Server{
		Addr:         cfg.Server.OpsAddr,
		Handler:      opsMux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Daily rollup runs on a cron schedule, aggregating yesterday.
	scheduler := cron.New()
	_, err = scheduler.AddFunc(cfg.Aggregation.Schedule, func() {
		yesterday := time.Now().UTC().AddDate(0, 0, -1)
		log.WithField("date", yesterday.Format("2006-01-02")).Info("Starting daily rollup")

		start := time.Now()
		runErr := aggregator.AggregateDay(context.Background(), yesterday)
		if metrics != nil {
			metrics.AggregationDuration.Observe(time.Since(start).Seconds())
		}
		if runErr != nil {
			log.WithError(runErr).Error("Daily rollup failed")
			if metrics != nil {
				metrics.AggregationRunsTotal.WithLabelValues("error").Inc()
			}
			return
		}
		log.Info("Daily rollup completed successfully")
		if metrics != nil {
			metrics.AggregationRunsTotal.WithLabelValues("success").Inc()
		}
	})
	if err != nil {
		log.Fatalf("Failed to schedule daily rollup: %v", err)
	}
	scheduler.Start()
	log.WithField("schedule", cfg.Aggregation.Schedule).Info("Daily rollup scheduled")

	go func() {
		log.WithField("addr", cfg.Server.ListenAddr).Info("Starting telemetry API server")
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("API server failed: %v", err)
		}
	}()
	go func() {
		log.WithField("addr", cfg.Server.OpsAddr).Info("Starting ops server")
		if err := opsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Ops server failed: %v", err)
		}
	}()

	sm := observability.NewShutdownManager(logger, cfg.Server.ShutdownTimeout, apiServer, opsServer)
	sm.RegisterShutdownFunc(func(ctx context.Context) error {
		stopped := scheduler.Stop()
		select {
		case <-stopped.Done():
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	sm.RegisterShutdownFunc(func(ctx context.Context) error {
		return store.Close()
	})

	if err := sm.WaitForShutdown(); err != nil {
		log.WithError(err).Error("Shutdown finished with errors")
		os.Exit(1)
	}
	log.Info("Telemetry daemon stopped")
}
