package push

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"pulse/internal/platform/middleware"
	"pulse/internal/transport/http/shared"
	"pulse/pkg/domain"
	dErrors "pulse/pkg/domain-errors"
)

// Handler exposes the internal push endpoint for the stateless REST layer.
type Handler struct {
	logger       *slog.Logger
	service      *Service
	jwtValidator middleware.JWTValidator
}

func NewHandler(service *Service, logger *slog.Logger, jwtValidator middleware.JWTValidator) *Handler {
	return &Handler{
		logger:       logger,
		service:      service,
		jwtValidator: jwtValidator,
	}
}

// Register registers the push routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	pushRouter := chi.NewRouter()
	pushRouter.Use(middleware.Recovery(h.logger))
	pushRouter.Use(middleware.RequestID)
	pushRouter.Use(middleware.Logger(h.logger))
	pushRouter.Use(middleware.Timeout(10 * time.Second))
	pushRouter.Use(middleware.ContentTypeJSON)
	pushRouter.Use(middleware.RequireAuth(h.jwtValidator, h.logger))
	pushRouter.Post("/internal/push/booking", h.handleBookingStatus)

	r.Mount("/", pushRouter)
}

type bookingStatusRequest struct {
	UserID    string `json:"user_id"`
	BookingID string `json:"booking_id"`
	Status    string `json:"status"`
}

func (h *Handler) handleBookingStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	var req bookingStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.WarnContext(ctx, "invalid booking push request",
			"request_id", requestID,
			"error", err.Error(),
		)
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	userID, err := domain.ParseUserID(req.UserID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	bookingID, err := domain.ParseBookingID(req.BookingID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	if err := h.service.BookingStatus(ctx, userID, bookingID, req.Status); err != nil {
		if dErrors.Is(err, dErrors.CodeValidation) {
			shared.WriteError(w, err)
			return
		}
		h.logger.ErrorContext(ctx, "failed to push booking status",
			"request_id", requestID,
			"error", err.Error(),
		)
		shared.WriteError(w, dErrors.New(dErrors.CodeInternal, "failed to push booking status"))
		return
	}

	w.WriteHeader(http.StatusAccepted)
}
