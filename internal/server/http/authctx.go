package httpserver

import (
	"context"

	"github.com/walkiger/storyforge/internal/model"
)

type ctxKey string

const userKey ctxKey = "sf.user"

// WithUser stores the authenticated identity in the request context.
func WithUser(ctx context.Context, u *model.User) context.Context {
	return context.WithValue(ctx, userKey, u)
}

// UserFromCtx fetches the authenticated identity from the context.
func UserFromCtx(ctx context.Context) (*model.User, bool) {
	u, ok := ctx.Value(userKey).(*model.User)
	return u, ok && u != nil
}
