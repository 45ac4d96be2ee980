package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/mscno/safereport/pkg/session"
	"github.com/mscno/safereport/server/model"
)

type actorKey struct{}

// WithActor returns a copy of ctx carrying actor.
func WithActor(ctx context.Context, actor model.Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFromContext returns the authenticated actor, if any.
func ActorFromContext(ctx context.Context) (model.Actor, bool) {
	actor, ok := ctx.Value(actorKey{}).(model.Actor)
	return actor, ok
}

// TokenValidator resolves a bearer token to an actor.
type TokenValidator func(ctx context.Context, token string) (model.Actor, bool)

// SessionValidator validates tokens minted by signer.
func SessionValidator(signer *session.Signer) TokenValidator {
	return func(ctx context.Context, token string) (model.Actor, bool) {
		claims, err := signer.ValidateToken(token)
		if err != nil {
			slog.DebugContext(ctx, "session token validation failed", "error", err)
			return model.Actor{}, false
		}
		role := model.Role(claims.Role)
		if !role.Issuable() {
			slog.WarnContext(ctx, "session token carries a role that cannot be issued", "role", claims.Role)
			return model.Actor{}, false
		}
		return model.Actor{ID: claims.Subject, Role: role}, true
	}
}

// WithAuth resolves the bearer token, when present, and stores the actor in
// the request context. Requests without a token pass through anonymously so
// that public routes keep working; a token that fails validation is rejected.
func WithAuth(validate TokenValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := ExtractBearerToken(r.Header.Get("Authorization"))
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}
			actor, valid := validate(r.Context(), token)
			if !valid {
				logger.WarnContext(r.Context(), "invalid session token presented", "path", r.URL.Path)
				writeError(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}
			logger.DebugContext(r.Context(), "session authenticated", "actor", actor.ID, "role", actor.Role)
			next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
		})
	}
}

// RequireRole rejects anonymous requests with 401 and callers outside roles
// with 403.
func RequireRole(roles ...model.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := ActorFromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "missing or invalid Authorization header")
				return
			}
			if !slices.Contains(roles, actor.Role) {
				writeError(w, http.StatusForbidden, "role "+string(actor.Role)+" may not access this resource")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func ExtractBearerToken(header string) string {
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}
