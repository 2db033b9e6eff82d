// Package handler exposes ticket issuance over HTTP. The REST layer calls
// this on behalf of an authenticated user who wants to open a WebSocket; the
// returned ticket is opaque, single-use, and valid for 60 seconds.
package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"pulse/internal/platform/middleware"
	"pulse/internal/ticket"
	"pulse/internal/transport/http/shared"
	"pulse/pkg/domain"
	dErrors "pulse/pkg/domain-errors"
)

type Handler struct {
	logger       *slog.Logger
	store        ticket.Store
	jwtValidator middleware.JWTValidator
}

func New(store ticket.Store, logger *slog.Logger, jwtValidator middleware.JWTValidator) *Handler {
	return &Handler{
		logger:       logger,
		store:        store,
		jwtValidator: jwtValidator,
	}
}

// Register registers the ticket routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	ticketRouter := chi.NewRouter()
	ticketRouter.Use(middleware.Recovery(h.logger))
	ticketRouter.Use(middleware.RequestID)
	ticketRouter.Use(middleware.Logger(h.logger))
	ticketRouter.Use(middleware.Timeout(10 * time.Second))
	ticketRouter.Use(middleware.ContentTypeJSON)
	ticketRouter.Use(middleware.RequireAuth(h.jwtValidator, h.logger))
	ticketRouter.Post("/internal/ws/ticket", h.handleIssue)

	r.Mount("/", ticketRouter)
}

type issueResponse struct {
	Ticket    string `json:"ticket"`
	ExpiresIn int    `json:"expires_in"`
}

func (h *Handler) handleIssue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	userID, err := domain.ParseUserID(middleware.GetUserID(ctx))
	if err != nil {
		// Should never happen behind RequireAuth.
		h.logger.ErrorContext(ctx, "userID missing from context despite auth middleware",
			"request_id", requestID,
		)
		shared.WriteError(w, dErrors.New(dErrors.CodeInternal, "authentication context error"))
		return
	}

	issued, err := h.store.Issue(ctx, userID)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to issue ticket",
			"request_id", requestID,
			"error", err.Error(),
		)
		shared.WriteError(w, dErrors.New(dErrors.CodeUnavailable, "ticket store unavailable"))
		return
	}

	shared.WriteJSON(w, http.StatusCreated, issueResponse{
		Ticket:    issued.ID.String(),
		ExpiresIn: int(ticket.TTL.Seconds()),
	})
}
