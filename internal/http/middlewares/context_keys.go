package middlewares

// gin context keys; the principal itself travels on the request context via actorctx.
const (
	CtxRequestID = "request_id"
	CtxUserID    = "auth.userID"
	CtxUsername  = "auth.username"
)
