package contextkey

import "context"

// ctxKey keeps these keys distinct from any string key set by other packages.
type ctxKey string

const (
	TraceID   ctxKey = "trace_id"
	RequestID ctxKey = "request_id"
	UserID    ctxKey = "user_id"
)

// WithUserID stores the authenticated user id.
func WithUserID(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, UserID, userID)
}

// UserIDFrom returns the user id stored by WithUserID.
func UserIDFrom(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(UserID).(int64)
	return id, ok
}
