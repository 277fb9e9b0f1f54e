package auth

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

const userIDKey contextKey = "auth.user_id"

func WithUserID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, userIDKey, id)
}

// UserIDFromContext returns the authenticated user, or nil for anonymous
// requests.
func UserIDFromContext(ctx context.Context) *uuid.UUID {
	if id, ok := ctx.Value(userIDKey).(uuid.UUID); ok {
		return &id
	}
	return nil
}
