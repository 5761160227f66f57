package ratelimiter

import (
	"context"
	"time"
)

// Store persists bucket state.
type Store interface {
	// ConsumeTokens takes tokens from the bucket of key if enough are
	// available and returns the tokens left, or -1 when the request is denied.
	// Zero tokens only reports the current state.
	ConsumeTokens(ctx context.Context, key string, tokens int, config Config) (remaining int, resetAt time.Time, err error)

	// Reset clears the state of key.
	Reset(ctx context.Context, key string) error
}
