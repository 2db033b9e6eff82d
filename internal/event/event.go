// Package event defines the outbound frame envelopes written to client
// sockets. Every frame carries a "type" discriminator and an ISO-8601
// timestamp; payloads are serialized once at the sender and travel opaque
// through the fanout bridge and offline queue.
package event

import (
	"encoding/json"
	"time"

	"pulse/pkg/domain"
)

// Outbound frame types.
const (
	TypeConnectionEstablished = "connection_established"
	TypeNewMessage            = "new_message"
	TypeTyping                = "typing"
	TypeRoomMessage           = "room_message"
	TypeBookingStatus         = "booking_status"
)

// Stamp returns the wire timestamp for outbound frames.
func Stamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// ConnectionEstablished is emitted to a socket right after registration.
type ConnectionEstablished struct {
	Type      string `json:"type"`
	UserID    string `json:"user_id"`
	Timestamp string `json:"timestamp"`
}

func NewConnectionEstablished(userID domain.UserID, now time.Time) ([]byte, error) {
	return json.Marshal(ConnectionEstablished{
		Type:      TypeConnectionEstablished,
		UserID:    userID.String(),
		Timestamp: Stamp(now),
	})
}

// NewMessage is the delivery frame for a direct chat message.
type NewMessage struct {
	Type           string `json:"type"`
	MessageID      string `json:"message_id"`
	ConversationID string `json:"conversation_id"`
	From           string `json:"from"`
	Body           string `json:"body"`
	Timestamp      string `json:"timestamp"`
}

// Typing is the delivery frame for a typing indicator.
type Typing struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversation_id"`
	From           string `json:"from"`
	Started        bool   `json:"started"`
	Timestamp      string `json:"timestamp"`
}

// RoomMessage is the delivery frame for a group-room broadcast.
type RoomMessage struct {
	Type      string `json:"type"`
	Room      string `json:"room"`
	MessageID string `json:"message_id"`
	From      string `json:"from"`
	Body      string `json:"body"`
	Timestamp string `json:"timestamp"`
}

// BookingStatus is the server-originated frame pushed when the business layer
// changes a booking's state. Clients dedupe on MessageID.
type BookingStatus struct {
	Type      string `json:"type"`
	MessageID string `json:"message_id"`
	BookingID string `json:"booking_id"`
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}
