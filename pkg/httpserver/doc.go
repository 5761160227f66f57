// Package httpserver runs the tenant router's HTTP listener.
//
// Server wraps net/http with functional options, graceful shutdown on
// context cancellation or SIGINT/SIGTERM, and ordered stop hooks that
// release the process's shared resources (tenant pools, the registry pool,
// caches, telemetry exporters) after in-flight requests have drained.
//
//	srv := httpserver.NewFromConfig(cfg,
//		httpserver.WithLogger(log),
//		httpserver.WithStopHook("tenant pools", pools.Shutdown),
//	)
//	if err := srv.Run(ctx, router); err != nil {
//		log.Error("server stopped", logger.Error(err))
//	}
//
// LivenessHandler and ReadinessHandler implement the probe endpoints. Once
// shutdown begins Draining reports true so readiness can fail before the
// listener closes.
//
// Run wraps listen errors with ErrStart; Shutdown wraps http.Server and stop
// hook failures with ErrShutdown.
package httpserver
