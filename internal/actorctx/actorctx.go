package actorctx

import "context"

type ctxKey string

const keyUserID ctxKey = "user_id"

// WithUserID threads the acting user through plain context.Context
// boundaries (worker, repos) where gin's context is not available.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, keyUserID, userID)
}

func UserIDFrom(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyUserID).(string)

	return v, ok && v != ""
}
