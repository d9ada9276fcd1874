package actorcontext

import (
	"context"
	"strings"
)

// ActorContextKey is the request context key for the acting admin identity.
type ActorContextKey struct{}

// WithActor stores the actor identifier in the context.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, ActorContextKey{}, strings.TrimSpace(actor))
}

// ActorFromContext returns the actor identifier from context, if set.
func ActorFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	value := ctx.Value(ActorContextKey{})
	if value == nil {
		return "", false
	}
	actor, ok := value.(string)
	if !ok || strings.TrimSpace(actor) == "" {
		return "", false
	}
	return actor, true
}
