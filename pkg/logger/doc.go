// Package logger builds *slog.Logger instances for the tenant router.
//
// New applies functional options on top of production-safe defaults (JSON,
// info level, stdout) and wraps the chosen handler in a decorator that pulls
// request-scoped attributes out of context.Context on every record. Request
// ids, the resolved tenant and the deployment environment are attached this
// way, so call sites only pass the context:
//
//	log := logger.New(
//		logger.WithEnvironment(env, "tenantrouter"),
//		logger.WithContextExtractors(
//			logger.RequestIDExtractor(),
//			tenant.LoggerExtractor(),
//		),
//	)
//	log.WarnContext(ctx, "registry unavailable, using fallback", logger.Error(err))
//
// The attribute helpers in attr.go keep key names consistent across packages.
package logger
