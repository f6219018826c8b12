package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/avms/gatepass/internal/domain"
	"github.com/avms/gatepass/internal/http/response"
	"github.com/avms/gatepass/internal/platform/auth"
	"github.com/avms/gatepass/pkg/logger"
)

type ctxKey string

const ctxPrincipal ctxKey = "principal"

// RequireRole authenticates the bearer token and enforces the caller's
// role before the request reaches any store.
func RequireRole(role domain.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authz := r.Header.Get("Authorization")
			if !strings.HasPrefix(authz, "Bearer ") {
				response.Unauthorized(w, "missing bearer token")
				return
			}
			claims, err := auth.Parse(strings.TrimPrefix(authz, "Bearer "))
			if err != nil {
				response.Unauthorized(w, "invalid authorization token")
				return
			}
			p, ok := auth.PrincipalFromClaims(claims)
			if !ok {
				response.Unauthorized(w, "invalid authorization token")
				return
			}
			if p.Role != role {
				response.Forbidden(w, "insufficient role")
				return
			}

			ctx := context.WithValue(r.Context(), ctxPrincipal, p)
			ctx = context.WithValue(ctx, logger.ActorIDKey, p.UserID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Principal returns the authenticated caller, or false outside RequireRole.
func Principal(r *http.Request) (auth.Principal, bool) {
	p, ok := r.Context().Value(ctxPrincipal).(auth.Principal)
	return p, ok
}
