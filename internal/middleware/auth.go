package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/storefront/ecommerce-go-app/internal/apperr"
	"github.com/storefront/ecommerce-go-app/internal/auth"
	"github.com/storefront/ecommerce-go-app/internal/metrics"
)

// TokenCookie carries the credential for browser clients
const TokenCookie = "token"

// IdentityResolver loads the current role of a token's user.
type IdentityResolver interface {
	ResolveActor(ctx context.Context, userID int64) (auth.Actor, error)
}

// Authenticator is the gate in front of every private route. The role is
// read from the store on each request, never from the token.
type Authenticator struct {
	tokens  *auth.TokenManager
	users   IdentityResolver
	metrics *metrics.AppMetrics
}

func NewAuthenticator(tokens *auth.TokenManager, users IdentityResolver, m *metrics.AppMetrics) *Authenticator {
	return &Authenticator{tokens: tokens, users: users, metrics: m}
}

// WithActor stores the authenticated caller in ctx.
func WithActor(ctx context.Context, actor auth.Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// ActorFrom returns the caller stored by the Authenticator.
func ActorFrom(ctx context.Context) (auth.Actor, bool) {
	actor, ok := ctx.Value(actorKey).(auth.Actor)
	return actor, ok
}

// Require wraps next so it only runs for an authenticated caller.
func (a *Authenticator) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		raw := tokenFrom(r)
		if raw == "" {
			writeMessage(w, http.StatusUnauthorized, "Authentication required")
			return
		}
		userID, err := a.tokens.Verify(raw)
		if err != nil {
			slog.DebugContext(ctx, "rejected credential", "error", err, "request_id", RequestIDFrom(ctx))
			writeMessage(w, http.StatusUnauthorized, "Invalid or expired token")
			return
		}

		actor, err := a.users.ResolveActor(ctx, userID)
		if err != nil {
			status := apperr.HTTPStatus(err)
			if status >= http.StatusInternalServerError {
				slog.ErrorContext(ctx, "failed to resolve caller", "user_id", userID, "error", err)
			}
			writeMessage(w, status, apperr.PublicMessage(err))
			return
		}

		a.metrics.ActiveUsersCount.Record(ctx, 1, metric.WithAttributes(a.metrics.WithServiceName([]attribute.KeyValue{
			attribute.String("session_type", "active"),
			attribute.Int64("user_id", actor.UserID),
		})...))

		next.ServeHTTP(w, r.WithContext(WithActor(ctx, actor)))
	})
}

// tokenFrom prefers the Authorization header over the cookie.
func tokenFrom(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	if c, err := r.Cookie(TokenCookie); err == nil {
		return c.Value
	}
	return ""
}
