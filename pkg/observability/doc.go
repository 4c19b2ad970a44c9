// Package observability provides structured logging, Prometheus metrics,
// health checks, and graceful shutdown for the telemetry daemon.
//
// # Structured Logging
//
// Create logger:
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("skill_id", skillID).Info("alert raised")
//
// # Prometheus Metrics
//
// Initialize metrics:
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	metrics.EventsIngestedTotal.Add(float64(n))
//
// # Health Checks
//
// Configure health checker:
//
//	checker := observability.NewHealthChecker(store.DB())
//	observability.RegisterHealthRoutes(mux, checker)
//
// # Graceful Shutdown
//
//	sm := observability.NewShutdownManager(logger, 30*time.Second, apiServer, opsServer)
//	sm.RegisterShutdownFunc(func(ctx context.Context) error { return store.Close() })
//	err := sm.WaitForShutdown()
package observability
