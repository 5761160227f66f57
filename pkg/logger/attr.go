package logger

import (
	"log/slog"
	"time"
)

// Error creates an attribute for a single error under the key "error".
// If err is nil, it returns an empty Attr.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// RequestID records the request identifier under the key "request_id".
func RequestID(id string) slog.Attr {
	return slog.String("request_id", id)
}

// Tenant records a tenant slug under the key "tenant".
func Tenant(slug string) slog.Attr {
	return slog.String("tenant", slug)
}

// TenantType records the resolved tenant context type.
func TenantType(t string) slog.Attr {
	return slog.String("tenant_type", t)
}

// ErrorKind records the stable client-facing error kind.
func ErrorKind(kind string) slog.Attr {
	return slog.String("error_kind", kind)
}

// UserID records the user identifier under the key "user_id".
func UserID(id string) slog.Attr {
	return slog.String("user_id", id)
}

// Component records the component name under the key "component".
func Component(name string) slog.Attr {
	return slog.String("component", name)
}

// Event records the event name under the key "event".
func Event(name string) slog.Attr {
	return slog.String("event", name)
}

// Duration records a duration under the key "duration".
func Duration(d time.Duration) slog.Attr {
	return slog.Duration("duration", d)
}
