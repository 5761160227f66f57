package tenant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/weeklype/tenantrouter/pkg/environment"
	"github.com/weeklype/tenantrouter/pkg/logger"
)

var slugPattern = regexp.MustCompile(`^[A-Za-z0-9-]{2,50}$`)

// reservedSlugs name the non-tenant contexts and their hosts. A tenant with
// one of these slugs would share its Slug with Global or Public and could be
// bound by their tokens.
var reservedSlugs = map[string]struct{}{
	string(TypeGlobal): {},
	string(TypePublic): {},
	"api":              {},
	"panel":            {},
	"www":              {},
}

// IsReservedSlug reports whether s names a reserved context, ignoring case.
func IsReservedSlug(s string) bool {
	_, ok := reservedSlugs[strings.ToLower(s)]
	return ok
}

// ValidSlug reports whether s passes the format gate. Reserved words never
// pass.
func ValidSlug(s string) bool {
	return slugPattern.MatchString(s) && !IsReservedSlug(s)
}

// Validator runs a candidate slug through the format, existence and status
// gates.
type Validator struct {
	catalog   Catalog
	env       environment.Environment
	allowList map[string]struct{}
	dbPrefix  string
	logger    *slog.Logger
}

// ValidatorOption configures a Validator.
type ValidatorOption func(*Validator)

// WithAllowList sets the slugs admitted while the registry is unreachable
// outside production. An empty list admits every well-formed slug.
func WithAllowList(slugs []string) ValidatorOption {
	return func(v *Validator) {
		v.allowList = make(map[string]struct{}, len(slugs))
		for _, s := range slugs {
			if s != "" {
				v.allowList[s] = struct{}{}
			}
		}
	}
}

// WithDatabasePrefix sets the prefix used to derive database names.
func WithDatabasePrefix(prefix string) ValidatorOption {
	return func(v *Validator) { v.dbPrefix = prefix }
}

// WithValidatorLogger sets the logger for fallback and outage events.
func WithValidatorLogger(l *slog.Logger) ValidatorOption {
	return func(v *Validator) {
		if l != nil {
			v.logger = l
		}
	}
}

// NewValidator creates a validator backed by catalog.
func NewValidator(catalog Catalog, env environment.Environment, opts ...ValidatorOption) *Validator {
	v := &Validator{
		catalog:  catalog,
		env:      env,
		dbPrefix: "weekly",
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Environment returns the environment the validator enforces.
func (v *Validator) Environment() environment.Environment {
	return v.env
}

// Validate applies the gates in order and stops at the first failure.
func (v *Validator) Validate(ctx context.Context, slug string) (Validated, error) {
	if !ValidSlug(slug) {
		return Validated{}, fmt.Errorf("%w: %q", ErrInvalidFormat, slug)
	}

	rec, err := v.catalog.Lookup(ctx, slug)
	switch {
	case err == nil:
	case errors.Is(err, ErrNotFound):
		return Validated{}, err
	case errors.Is(err, ErrRegistryUnavailable):
		return v.fallback(ctx, slug, err)
	default:
		// Unclassified catalog failures are treated as an outage.
		return v.fallback(ctx, slug, fmt.Errorf("%w: %w", ErrRegistryUnavailable, err))
	}

	if rec.Slug != slug {
		return Validated{}, fmt.Errorf("%w: catalog returned %q", ErrNotFound, rec.Slug)
	}

	switch rec.Status {
	case StatusActive:
	case StatusSuspended:
		return Validated{}, ErrTenantSuspended
	case StatusCancelled:
		return Validated{}, ErrTenantCancelled
	default:
		return Validated{}, fmt.Errorf("%w: unknown status %q", ErrTenantSuspended, rec.Status)
	}

	dbName := rec.DatabaseName
	if dbName == "" {
		dbName = DatabaseName(v.dbPrefix, slug)
	}
	return Validated{
		Slug:         slug,
		Status:       rec.Status,
		DatabaseName: dbName,
		Source:       SourceRegistry,
	}, nil
}

func (v *Validator) fallback(ctx context.Context, slug string, cause error) (Validated, error) {
	if v.env.IsProduction() {
		v.logger.ErrorContext(ctx, "tenant registry unavailable",
			logger.Tenant(slug), logger.Event("registry_unavailable"), logger.Error(cause))
		return Validated{}, cause
	}

	if len(v.allowList) > 0 {
		if _, ok := v.allowList[slug]; !ok {
			v.logger.WarnContext(ctx, "tenant registry unavailable, slug not in allow-list",
				logger.Tenant(slug), logger.Event("registry_fallback_rejected"), logger.Error(cause))
			return Validated{}, fmt.Errorf("%w: not in allow-list", ErrNotFound)
		}
	}

	v.logger.WarnContext(ctx, "tenant registry unavailable, admitting via fallback",
		logger.Tenant(slug), logger.Event("registry_fallback"), logger.Error(cause))
	return Validated{
		Slug:         slug,
		Status:       StatusActive,
		DatabaseName: DatabaseName(v.dbPrefix, slug),
		Source:       SourceFallback,
	}, nil
}
