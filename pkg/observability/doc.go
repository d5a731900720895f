// Package observability provides structured logging, Prometheus metrics,
// OpenTelemetry tracing, health checks and graceful shutdown.
//
// # Structured Logging
//
// Logger wraps logrus:
//
//	logger := observability.NewLogger(observability.ParseLevel("debug"), os.Stderr)
//	logger.Component("session").WithField("state", "authenticated").Info("session resolved")
//
// # Prometheus Metrics
//
//	metrics := observability.NewMetrics(prometheus.NewRegistry())
//	metrics.ObserveAuthRequest("sign_in", 200, elapsed)
//
// A nil *Metrics records nothing, so SDK components accept it optionally.
//
// # OpenTelemetry
//
//	providers, err := observability.InitOTel(ctx, cfg.OTelConfig(), logger)
//	defer observability.ShutdownOTel(ctx, providers, logger)
//
// Spans and metrics carry idp.product_id and idp.auth.host. SDK components
// trace and count under the "idp/<component>" scope:
//
//	ctx, span := observability.Tracer("dataapi").Start(ctx, "dataapi.query")
//	calls := observability.Counter("dataapi", "idp.dataapi.calls", "Data calls")
//
// # Related Packages
//
//   - pkg/config: Observability configuration
//   - pkg/api: Request metrics middleware and health routes
package observability
