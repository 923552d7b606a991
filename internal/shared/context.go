package shared

import (
	"context"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

// RequestMeta captures the client context attached to audit records.
type RequestMeta struct {
	IP        string
	UserAgent string
	SessionID string
}

// MetaFromRequest extracts client address, user agent and a session
// identifier from the request. The chi request id doubles as the session
// identifier for bearer-token clients; when absent a fresh UUID is used.
func MetaFromRequest(r *http.Request) RequestMeta {
	sessionID := chimw.GetReqID(r.Context())
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	return RequestMeta{
		IP:        r.RemoteAddr,
		UserAgent: r.UserAgent(),
		SessionID: sessionID,
	}
}

type requestMetaContextKey struct{}

// ContextWithMeta stores request metadata in context.
func ContextWithMeta(ctx context.Context, meta RequestMeta) context.Context {
	return context.WithValue(ctx, requestMetaContextKey{}, meta)
}

// MetaFromContext extracts request metadata from context.
func MetaFromContext(ctx context.Context) RequestMeta {
	meta, _ := ctx.Value(requestMetaContextKey{}).(RequestMeta)
	return meta
}
