package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/martagiraldo/promptstash-backend/api/responses"
	pkgerrors "github.com/martagiraldo/promptstash-backend/pkg/errors"
	"github.com/martagiraldo/promptstash-backend/pkg/logger"
)

const (
	userIDHeader = "X-User-Id"
	roleHeader   = "X-Actor-Role"
)

// Identity reads the caller identity set by the upstream auth proxy. The
// engine itself never authenticates; it trusts these headers on the private
// network and rejects requests that arrive without them.
func Identity(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			raw := r.Header.Get(userIDHeader)
			if raw == "" {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing caller identity"))
				return
			}
			userID, err := uuid.Parse(raw)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid caller identity"))
				return
			}

			ctx = WithUserID(ctx, userID)
			role := r.Header.Get(roleHeader)
			if role != "" {
				ctx = WithRole(ctx, role)
			}
			if logg != nil {
				ctx = logg.WithUserID(ctx, userID.String())
				if role != "" {
					ctx = logg.WithActorRole(ctx, role)
				}
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin gates staff-only routes on the proxy-asserted role.
func RequireAdmin(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if RoleFromContext(ctx) != RoleAdmin {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "admin role required"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
