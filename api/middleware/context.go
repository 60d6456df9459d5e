package middleware

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

const ctxActorID contextKey = "actor_id"

// ActorIDFromContext returns the acting user's id, or uuid.Nil when the
// request carried none.
func ActorIDFromContext(ctx context.Context) uuid.UUID {
	if ctx == nil {
		return uuid.Nil
	}
	if v, ok := ctx.Value(ctxActorID).(uuid.UUID); ok {
		return v
	}
	return uuid.Nil
}

// WithActorID injects the acting user's id into the context.
func WithActorID(ctx context.Context, actorID uuid.UUID) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxActorID, actorID)
}
