package middlewares

// ctxKey is a distinct key type for values stored on a context.Context
// (actorctx keys the acting user by KeyUserID), so they never collide
// with plain string keys. The gin.Context values RequireAuth and
// RequestID set use plain string keys ("auth.userID", "request_id").
type ctxKey string

const (
	CtxUserID    ctxKey = "userID"
	CtxRole      ctxKey = "role"
	CtxEmail     ctxKey = "email"
	CtxJobID     ctxKey = "job_id"
	CtxRequestID ctxKey = "request_id"
	KeyUserID    ctxKey = "user_id"
)
