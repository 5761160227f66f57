package ratelimiter

import (
	"errors"
	"net/http"

	"github.com/weeklype/tenantrouter/pkg/tenant"
)

var (
	// ErrInvalidConfig indicates that the provided configuration is invalid.
	ErrInvalidConfig = errors.New("ratelimiter: invalid configuration")

	// ErrInvalidTokenCount indicates that the requested token count is invalid.
	ErrInvalidTokenCount = errors.New("ratelimiter: invalid token count")

	// ErrStoreUnavailable indicates that the store backend is unavailable.
	ErrStoreUnavailable = errors.New("ratelimiter: store unavailable")

	// ErrRateLimited is rendered for denied requests.
	ErrRateLimited = tenant.NewError(tenant.KindRateLimited, http.StatusTooManyRequests, "too many requests")
)
