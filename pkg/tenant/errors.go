package tenant

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/weeklype/tenantrouter/pkg/environment"
)

// Kind is the stable, client-facing classification of a rejection.
type Kind string

const (
	KindInvalidFormat       Kind = "InvalidFormat"
	KindNotFound            Kind = "NotFound"
	KindTenantSuspended     Kind = "TenantSuspended"
	KindTenantCancelled     Kind = "TenantCancelled"
	KindRegistryUnavailable Kind = "RegistryUnavailable"
	KindDatabaseUnavailable Kind = "DatabaseUnavailable"
	KindTenantMismatch      Kind = "TenantMismatch"
	KindTokenInvalid        Kind = "TokenInvalid"
	KindTokenExpired        Kind = "TokenExpired"
	KindForbidden           Kind = "Forbidden"
	KindRateLimited         Kind = "RateLimited"
	KindInternal            Kind = "Internal"
)

// Error is a classified rejection. Sentinels are compared by identity, so
// wrapping them with fmt.Errorf("%w") keeps errors.Is working.
type Error struct {
	Kind    Kind
	Status  int
	Message string
}

// NewError declares a classified sentinel. Other packages use it to plug
// their errors into WriteError.
func NewError(kind Kind, status int, message string) *Error {
	return &Error{Kind: kind, Status: status, Message: message}
}

func (e *Error) Error() string { return e.Message }

var (
	ErrInvalidFormat       = NewError(KindInvalidFormat, http.StatusBadRequest, "tenant identifier has an invalid format")
	ErrNotFound            = NewError(KindNotFound, http.StatusForbidden, "tenant not found")
	ErrTenantSuspended     = NewError(KindTenantSuspended, http.StatusForbidden, "tenant is suspended")
	ErrTenantCancelled     = NewError(KindTenantCancelled, http.StatusForbidden, "tenant is cancelled")
	ErrRegistryUnavailable = NewError(KindRegistryUnavailable, http.StatusInternalServerError, "tenant registry unavailable")
	ErrDatabaseUnavailable = NewError(KindDatabaseUnavailable, http.StatusServiceUnavailable, "tenant database unavailable")
	ErrForbidden           = NewError(KindForbidden, http.StatusForbidden, "access denied")
	ErrNoTenantInContext   = NewError(KindInternal, http.StatusInternalServerError, "no tenant bound to context")
)

// ErrorKindOf returns the kind and HTTP status of err. Unclassified errors
// map to Internal/500.
func ErrorKindOf(err error) (Kind, int) {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind, te.Status
	}
	return KindInternal, http.StatusInternalServerError
}

// ErrorResponse is the JSON body of every rejection.
type ErrorResponse struct {
	Error   Kind   `json:"error"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// ErrorHandler renders a rejection.
type ErrorHandler func(w http.ResponseWriter, r *http.Request, err error)

// WriteError renders err as a JSON rejection. The underlying cause is
// included as details only when the request carries a non-production
// environment.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	resp := ErrorResponse{Error: KindInternal, Message: "internal error"}
	status := http.StatusInternalServerError

	var te *Error
	if errors.As(err, &te) {
		resp.Error, resp.Message, status = te.Kind, te.Message, te.Status
	}

	if env := environment.FromContext(r.Context()); env != "" && !env.IsProduction() && err.Error() != resp.Message {
		resp.Details = err.Error()
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

// ConcealNotFound wraps next so unknown tenants are indistinguishable from
// other access denials.
func ConcealNotFound(next ErrorHandler) ErrorHandler {
	return func(w http.ResponseWriter, r *http.Request, err error) {
		if errors.Is(err, ErrNotFound) {
			err = ErrForbidden
		}
		next(w, r, err)
	}
}
