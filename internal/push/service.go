// Package push carries server-originated events into the delivery fabric.
// The REST business layer calls Service directly (same process) or through
// the internal HTTP endpoint (other processes); either way the only coupling
// to the fabric is the bridge's Send.
package push

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"pulse/internal/event"
	"pulse/pkg/domain"
	dErrors "pulse/pkg/domain-errors"
)

// Sender delivers one payload to one user anywhere in the fleet.
type Sender interface {
	Send(ctx context.Context, userID domain.UserID, payload []byte) error
}

// Service builds and sends server-originated frames.
type Service struct {
	sender Sender
	logger *slog.Logger
	now    func() time.Time
}

func NewService(sender Sender, logger *slog.Logger) *Service {
	return &Service{sender: sender, logger: logger, now: time.Now}
}

// BookingStatus pushes a booking state change to the affected user. Delivery
// is fire-and-forget: the booking transition has already been persisted by
// the business layer, and a delivery failure must never roll it back.
func (s *Service) BookingStatus(ctx context.Context, userID domain.UserID, bookingID domain.BookingID, status string) error {
	if status == "" {
		return dErrors.New(dErrors.CodeValidation, "status is required")
	}

	payload, err := json.Marshal(event.BookingStatus{
		Type:      event.TypeBookingStatus,
		MessageID: domain.NewMessageID().String(),
		BookingID: bookingID.String(),
		Status:    status,
		Timestamp: event.Stamp(s.now()),
	})
	if err != nil {
		return err
	}
	return s.sender.Send(ctx, userID, payload)
}
