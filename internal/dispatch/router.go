// Package dispatch routes inbound client frames to their handlers. Frames
// are JSON envelopes discriminated by an exact-match "type" field; an
// unrecognized type is logged and ignored without affecting the connection.
package dispatch

import (
	"context"
	"encoding/json"
	"log/slog"

	"pulse/pkg/domain"
)

// HandlerFunc processes one inbound frame from an authenticated user. A
// handler must not block the gateway's receive loop beyond the duration of
// its own outbound Send calls.
type HandlerFunc func(ctx context.Context, from domain.UserID, raw json.RawMessage) error

// Router is the dispatch table.
type Router struct {
	logger   *slog.Logger
	handlers map[string]HandlerFunc
}

func NewRouter(logger *slog.Logger) *Router {
	return &Router{
		logger:   logger,
		handlers: make(map[string]HandlerFunc),
	}
}

// Handle registers a handler for a frame type. Last registration wins.
func (r *Router) Handle(frameType string, h HandlerFunc) {
	r.handlers[frameType] = h
}

// Dispatch parses the envelope and invokes the matching handler. Malformed
// frames, unknown types, and handler errors are logged; none of them close
// the connection.
func (r *Router) Dispatch(ctx context.Context, from domain.UserID, frame []byte) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(frame, &envelope); err != nil || envelope.Type == "" {
		r.logger.WarnContext(ctx, "malformed frame",
			"user_id", from.String(),
			"error", err,
		)
		return
	}

	handler, ok := r.handlers[envelope.Type]
	if !ok {
		r.logger.WarnContext(ctx, "unknown message type",
			"user_id", from.String(),
			"type", envelope.Type,
		)
		return
	}

	if err := handler(ctx, from, frame); err != nil {
		r.logger.ErrorContext(ctx, "frame handler failed",
			"user_id", from.String(),
			"type", envelope.Type,
			"error", err,
		)
	}
}
