// Package requestcontext carries request-scoped values through services
// without importing net/http.
//
// Middleware sets them; services read them:
//
//	caller := requestcontext.Identity(ctx)
//	now := requestcontext.Now(ctx)
//
// Service tests inject them directly:
//
//	ctx = requestcontext.WithIdentity(ctx, "0xalice")
//	ctx = requestcontext.WithTime(ctx, fixedTime)
package requestcontext

import (
	"context"
	"time"

	id "crowdfund/pkg/domain"
)

type key int

const (
	identityKey key = iota
	clientIPKey
	userAgentKey
	requestIDKey
	requestTimeKey
)

func value[T any](ctx context.Context, k key) (T, bool) {
	v, ok := ctx.Value(k).(T)
	return v, ok
}

// Identity returns the authenticated caller, or the zero Identity.
func Identity(ctx context.Context) id.Identity {
	caller, _ := value[id.Identity](ctx, identityKey)
	return caller
}

func WithIdentity(ctx context.Context, caller id.Identity) context.Context {
	return context.WithValue(ctx, identityKey, caller)
}

func ClientIP(ctx context.Context) string {
	ip, _ := value[string](ctx, clientIPKey)
	return ip
}

func UserAgent(ctx context.Context) string {
	ua, _ := value[string](ctx, userAgentKey)
	return ua
}

// WithClientMetadata records where the request came from for access logs.
func WithClientMetadata(ctx context.Context, clientIP, userAgent string) context.Context {
	ctx = context.WithValue(ctx, clientIPKey, clientIP)
	return context.WithValue(ctx, userAgentKey, userAgent)
}

// RequestID is copied onto every emitted notification.
func RequestID(ctx context.Context) string {
	requestID, _ := value[string](ctx, requestIDKey)
	return requestID
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// Now returns the time pinned for this request, or the wall clock outside a
// request (outbox worker, consumers, CLI).
func Now(ctx context.Context) time.Time {
	if t, ok := value[time.Time](ctx, requestTimeKey); ok {
		return t
	}
	return time.Now()
}

func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, requestTimeKey, t)
}
