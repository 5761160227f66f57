package ratelimiter

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/weeklype/tenantrouter/pkg/logger"
	"github.com/weeklype/tenantrouter/pkg/tenant"
)

type middlewareConfig struct {
	logger       *slog.Logger
	errorHandler tenant.ErrorHandler
	now          func() time.Time
}

// MiddlewareOption configures Middleware.
type MiddlewareOption func(*middlewareConfig)

// WithLogger sets the logger used when the store fails.
func WithLogger(l *slog.Logger) MiddlewareOption {
	return func(c *middlewareConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithErrorHandler sets how 429 responses are rendered.
func WithErrorHandler(h tenant.ErrorHandler) MiddlewareOption {
	return func(c *middlewareConfig) {
		if h != nil {
			c.errorHandler = h
		}
	}
}

// Middleware limits requests per key. Requests with an empty key are not
// limited. Store failures let the request through and are logged.
func Middleware(limiter *Bucket, keyFunc KeyFunc, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	cfg := &middlewareConfig{
		logger:       slog.Default(),
		errorHandler: tenant.WriteError,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyFunc(r)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			result, err := limiter.Allow(r.Context(), key)
			if err != nil {
				cfg.logger.WarnContext(r.Context(), "rate limiter unavailable, allowing request",
					logger.Component("ratelimiter"), logger.Error(err))
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(max(0, result.Remaining)))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))

			if !result.Allowed() {
				retry := int(result.RetryAfter(cfg.now()).Round(time.Second).Seconds())
				w.Header().Set("Retry-After", strconv.Itoa(max(1, retry)))
				cfg.errorHandler(w, r, ErrRateLimited)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
