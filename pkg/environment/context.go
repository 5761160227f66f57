package environment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// ErrUnknown is returned by Lookup for names that match no environment.
var ErrUnknown = errors.New("environment: unknown environment name")

// Environment represents application environment.
type Environment string

const (
	// Development for development environment.
	Development Environment = "development"
	// Production for production environment.
	Production Environment = "production"
	// Staging for staging environment.
	Staging Environment = "staging"
	// Test for automated test runs.
	Test Environment = "test"
)

// Lookup normalises a raw environment name (NODE_ENV, APP_ENV). An empty
// value is Development. Unknown values return ErrUnknown together with
// Production, so a typo such as "prd" never enables development behaviour.
func Lookup(raw string) (Environment, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "production", "prod":
		return Production, nil
	case "staging", "stage":
		return Staging, nil
	case "test", "testing":
		return Test, nil
	case "development", "dev", "":
		return Development, nil
	default:
		return Production, fmt.Errorf("%w: %q", ErrUnknown, raw)
	}
}

// Parse is Lookup without the error: unknown names map to Production.
func Parse(raw string) Environment {
	env, _ := Lookup(raw)
	return env
}

// IsProduction reports whether e is the production environment.
func (e Environment) IsProduction() bool {
	return e == Production
}

// String implements fmt.Stringer.
func (e Environment) String() string {
	return string(e)
}

type contextKey struct{}

// WithContext adds environment to context
func WithContext(ctx context.Context, env Environment) context.Context {
	return context.WithValue(ctx, contextKey{}, env)
}

// FromContext retrieves environment from context.
// Returns an empty Environment when none is set.
func FromContext(ctx context.Context) Environment {
	if ctx == nil {
		return ""
	}
	env, _ := ctx.Value(contextKey{}).(Environment)
	return env
}

// IsProduction checks if the environment from context is production
func IsProduction(ctx context.Context) bool {
	return FromContext(ctx).IsProduction()
}

// LoggerExtractor returns a ContextExtractor for the logger
func LoggerExtractor() func(ctx context.Context) (slog.Attr, bool) {
	return func(ctx context.Context) (slog.Attr, bool) {
		if env := FromContext(ctx); env != "" {
			return slog.String("env", env.String()), true
		}
		return slog.Attr{}, false
	}
}
