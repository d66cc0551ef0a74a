package httpapi

import (
	"net/http"
	"strings"

	"github.com/thaddeuskkr/whatsapp/internal/observability"
	"go.uber.org/zap"
)

// RequireAuth checks the Authorization header against the configured API
// token set. With no tokens configured, requests without a header pass; a
// header that is present is always validated.
func RequireAuth(tokens []string) func(http.Handler) http.Handler {
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authorization := r.Header.Get("Authorization")
			if authorization == "" {
				if len(set) > 0 {
					WriteError(w, http.StatusUnauthorized, "No token provided")
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			if after, ok := strings.CutPrefix(authorization, "Bearer "); ok {
				authorization = after
			}
			if _, ok := set[authorization]; !ok {
				WriteError(w, http.StatusUnauthorized, "Invalid token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func Recovery() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					observability.GetLogger(r.Context()).Error("panic_recovered",
						zap.Any("error", rec),
						zap.String("path", r.URL.Path),
					)
					WriteError(w, http.StatusInternalServerError, "internal server error")
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
