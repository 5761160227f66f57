package environment

import "net/http"

// Middleware stores env on every request context so that request-path code
// (validation fallbacks, error detail rendering) can branch on it without
// holding a reference to the process configuration.
func Middleware(env Environment) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(WithContext(r.Context(), env)))
		})
	}
}
