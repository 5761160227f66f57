package authctx

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/weeklype/tenantrouter/pkg/jwt"
	"github.com/weeklype/tenantrouter/pkg/logger"
	"github.com/weeklype/tenantrouter/pkg/tenant"
)

var (
	ErrTokenInvalid   = tenant.NewError(tenant.KindTokenInvalid, http.StatusUnauthorized, "invalid or missing access token")
	ErrTokenExpired   = tenant.NewError(tenant.KindTokenExpired, http.StatusUnauthorized, "access token has expired")
	ErrTenantMismatch = tenant.NewError(tenant.KindTenantMismatch, http.StatusUnauthorized, "access token was issued for another tenant")
)

// AuthContext is the identity bound to a request.
type AuthContext struct {
	UserID     string `json:"user_id"`
	Email      string `json:"email,omitempty"`
	Role       string `json:"role,omitempty"`
	TenantSlug string `json:"tenant"`
}

// Verifier parses and verifies raw tokens. *jwt.Service implements it.
type Verifier interface {
	Parse(token string) (*jwt.Claims, error)
}

// Binder verifies bearer tokens against the tenant context.
type Binder struct {
	verifier     Verifier
	extractor    jwt.TokenExtractorFunc
	errorHandler tenant.ErrorHandler
	logger       *slog.Logger
}

// Option configures a Binder.
type Option func(*Binder)

// WithExtractor sets how tokens are read from requests.
func WithExtractor(fn jwt.TokenExtractorFunc) Option {
	return func(b *Binder) {
		if fn != nil {
			b.extractor = fn
		}
	}
}

// WithErrorHandler sets how rejections are rendered.
func WithErrorHandler(h tenant.ErrorHandler) Option {
	return func(b *Binder) {
		if h != nil {
			b.errorHandler = h
		}
	}
}

// WithLogger sets the audit logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Binder) {
		if l != nil {
			b.logger = l
		}
	}
}

// New creates a binder.
func New(verifier Verifier, opts ...Option) *Binder {
	b := &Binder{
		verifier:     verifier,
		extractor:    jwt.BearerTokenExtractor,
		errorHandler: tenant.WriteError,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Bind verifies the request token and checks its tenant claim.
func (b *Binder) Bind(r *http.Request) (AuthContext, error) {
	ctx := r.Context()

	tc := tenant.FromContext(ctx)
	if tc == nil {
		return AuthContext{}, fmt.Errorf("%w: request has no tenant context", ErrTenantMismatch)
	}

	raw, err := b.extractor(r)
	if err != nil {
		return AuthContext{}, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}

	claims, err := b.verifier.Parse(raw)
	if err != nil {
		if errors.Is(err, jwt.ErrExpiredToken) {
			return AuthContext{}, fmt.Errorf("%w: %w", ErrTokenExpired, err)
		}
		return AuthContext{}, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}

	if !bindable(tc, claims.Tenant) {
		b.logger.WarnContext(ctx, "token tenant does not match resolved tenant",
			logger.Event("tenant_mismatch"),
			slog.String("token_tenant", claims.Tenant),
			slog.String("resolved_tenant", tc.Slug()),
			logger.UserID(claims.UserID),
		)
		return AuthContext{}, fmt.Errorf("%w: token tenant %q, resolved %q", ErrTenantMismatch, claims.Tenant, tc.Slug())
	}

	return AuthContext{
		UserID:     claims.UserID,
		Email:      claims.Email,
		Role:       claims.Role,
		TenantSlug: claims.Tenant,
	}, nil
}

// bindable reports whether a token issued for claimed may act in tc. The
// slug must match and the token must target the same kind of context: a
// bound tenant never accepts the global or public token, even if its slug
// collides with them.
func bindable(tc tenant.Context, claimed string) bool {
	if claimed != tc.Slug() {
		return false
	}
	if tc.Type() == tenant.TypeTenant {
		return !tenant.IsReservedSlug(claimed)
	}
	return claimed == string(tc.Type())
}

// Require rejects requests without a valid token for the resolved tenant.
func (b *Binder) Require() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ac, err := b.Bind(r)
			if err != nil {
				b.logFailure(r.Context(), err)
				b.errorHandler(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithContext(r.Context(), ac)))
		})
	}
}

// Optional binds an identity when possible and otherwise continues
// anonymously.
func (b *Binder) Optional() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ac, err := b.Bind(r)
			if err != nil {
				if !errors.Is(err, jwt.ErrMissingToken) {
					b.logFailure(r.Context(), err)
				}
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithContext(r.Context(), ac)))
		})
	}
}

func (b *Binder) logFailure(ctx context.Context, err error) {
	kind, _ := tenant.ErrorKindOf(err)
	b.logger.DebugContext(ctx, "authentication failed", logger.ErrorKind(string(kind)), logger.Error(err))
}

// RequireRole rejects bound identities whose role is not listed and requests
// without an identity.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ac, ok := FromContext(r.Context())
			if !ok {
				tenant.WriteError(w, r, ErrTokenInvalid)
				return
			}
			if _, ok := allowed[ac.Role]; !ok {
				tenant.WriteError(w, r, fmt.Errorf("%w: role %q", tenant.ErrForbidden, ac.Role))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type contextKey struct{}

// WithContext stores ac on ctx.
func WithContext(ctx context.Context, ac AuthContext) context.Context {
	return context.WithValue(ctx, contextKey{}, ac)
}

// FromContext returns the bound identity, if any.
func FromContext(ctx context.Context) (AuthContext, bool) {
	ac, ok := ctx.Value(contextKey{}).(AuthContext)
	return ac, ok
}

// LoggerExtractor adds the bound user id to log records.
func LoggerExtractor() logger.ContextExtractor {
	return func(ctx context.Context) (slog.Attr, bool) {
		if ac, ok := FromContext(ctx); ok {
			return logger.UserID(ac.UserID), true
		}
		return slog.Attr{}, false
	}
}
