package domain

import (
	"github.com/google/uuid"

	dErrors "pulse/pkg/domain-errors"
)

// Typed UUID wrappers keep the compiler between us and mixed-up identifiers.
// IDs must be valid, non-empty, non-nil UUIDs; parsing enforces that at trust
// boundaries (URL paths, JSON frames) so interior code can assume validity.
type (
	UserID    uuid.UUID
	TicketID  uuid.UUID
	MessageID uuid.UUID
	BookingID uuid.UUID
)

// RoomID is an opaque room key. Rooms are addressed by the business layer's
// conversation identifiers, which are not UUIDs.
type RoomID string

func (id UserID) String() string    { return uuid.UUID(id).String() }
func (id TicketID) String() string  { return uuid.UUID(id).String() }
func (id MessageID) String() string { return uuid.UUID(id).String() }
func (id BookingID) String() string { return uuid.UUID(id).String() }

func (id UserID) IsZero() bool { return uuid.UUID(id) == uuid.Nil }

// NewTicketID mints a random ticket identifier.
func NewTicketID() TicketID { return TicketID(uuid.New()) }

// NewMessageID mints a random message identifier (client idempotency key for
// server-originated frames).
func NewMessageID() MessageID { return MessageID(uuid.New()) }

func parseUUID(raw string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id is required")
	}
	parsed, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id must be a valid UUID")
	}
	if parsed == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id must not be the nil UUID")
	}
	return parsed, nil
}

// ParseUserID parses a user id from its string form.
func ParseUserID(raw string) (UserID, error) {
	parsed, err := parseUUID(raw)
	if err != nil {
		return UserID(uuid.Nil), err
	}
	return UserID(parsed), nil
}

// ParseTicketID parses a ticket id from its string form.
func ParseTicketID(raw string) (TicketID, error) {
	parsed, err := parseUUID(raw)
	if err != nil {
		return TicketID(uuid.Nil), err
	}
	return TicketID(parsed), nil
}

// ParseBookingID parses a booking id from its string form.
func ParseBookingID(raw string) (BookingID, error) {
	parsed, err := parseUUID(raw)
	if err != nil {
		return BookingID(uuid.Nil), err
	}
	return BookingID(parsed), nil
}
