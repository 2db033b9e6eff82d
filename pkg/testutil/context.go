package testutil

import (
	"context"
	"net/http"

	"pulse/internal/platform/middleware"
	"pulse/pkg/domain"
)

// WithUserID adds an authenticated user ID to the request context, simulating
// what the auth middleware does for bearer-authenticated requests. Invalid
// UUIDs are silently ignored.
func WithUserID(req *http.Request, userID string) *http.Request {
	if _, err := domain.ParseUserID(userID); err != nil {
		return req
	}
	ctx := context.WithValue(req.Context(), middleware.ContextKeyUserID, userID)
	return req.WithContext(ctx)
}

// WithClientID adds the calling client ID to the request context.
func WithClientID(req *http.Request, clientID string) *http.Request {
	ctx := context.WithValue(req.Context(), middleware.ContextKeyClientID, clientID)
	return req.WithContext(ctx)
}

// WithContextValue adds an arbitrary key-value pair to the request context.
func WithContextValue(req *http.Request, key, value any) *http.Request {
	ctx := context.WithValue(req.Context(), key, value)
	return req.WithContext(ctx)
}
