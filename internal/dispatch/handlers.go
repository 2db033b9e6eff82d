package dispatch

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"pulse/internal/event"
	"pulse/internal/room"
	"pulse/pkg/domain"
	dErrors "pulse/pkg/domain-errors"
)

// Inbound frame types.
const (
	TypeChatMessage = "chat_message"
	TypeTyping      = "typing"
	TypeJoinRoom    = "join_room"
	TypeLeaveRoom   = "leave_room"
	TypeRoomMessage = "room_message"
)

// Sender delivers one payload to one user anywhere in the fleet. The fanout
// bridge satisfies this.
type Sender interface {
	Send(ctx context.Context, userID domain.UserID, payload []byte) error
}

// Handlers hold the client-originated frame handlers: direct chat relay,
// typing indicators, and room membership/broadcast.
type Handlers struct {
	sender Sender
	rooms  *room.Directory
	logger *slog.Logger
	now    func() time.Time
}

func NewHandlers(sender Sender, rooms *room.Directory, logger *slog.Logger) *Handlers {
	return &Handlers{
		sender: sender,
		rooms:  rooms,
		logger: logger,
		now:    time.Now,
	}
}

// Register wires every client frame type into the router. Server-originated
// frames (booking_status) are produced by internal/push, never parsed here.
func (h *Handlers) Register(r *Router) {
	r.Handle(TypeChatMessage, h.ChatMessage)
	r.Handle(TypeTyping, h.Typing)
	r.Handle(TypeJoinRoom, h.JoinRoom)
	r.Handle(TypeLeaveRoom, h.LeaveRoom)
	r.Handle(TypeRoomMessage, h.RoomMessage)
}

type chatMessageFrame struct {
	To             string `json:"to"`
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
	Body           string `json:"body"`
}

// ChatMessage relays a direct message to its recipient. Delivery goes through
// the bridge only; history persistence happens elsewhere and never gates this
// path.
func (h *Handlers) ChatMessage(ctx context.Context, from domain.UserID, raw json.RawMessage) error {
	var frame chatMessageFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid chat_message frame")
	}
	to, err := domain.ParseUserID(frame.To)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid recipient")
	}
	if frame.Body == "" {
		return dErrors.New(dErrors.CodeValidation, "body is required")
	}
	if frame.MessageID == "" {
		// The client's idempotency key; mint one when an old client omits it
		// so offline re-delivery stays dedupable.
		frame.MessageID = domain.NewMessageID().String()
	}

	payload, err := json.Marshal(event.NewMessage{
		Type:           event.TypeNewMessage,
		MessageID:      frame.MessageID,
		ConversationID: frame.ConversationID,
		From:           from.String(),
		Body:           frame.Body,
		Timestamp:      event.Stamp(h.now()),
	})
	if err != nil {
		return err
	}
	return h.sender.Send(ctx, to, payload)
}

type typingFrame struct {
	To             string `json:"to"`
	ConversationID string `json:"conversation_id"`
	Started        bool   `json:"started"`
}

// Typing relays a typing indicator to the peer of a conversation.
func (h *Handlers) Typing(ctx context.Context, from domain.UserID, raw json.RawMessage) error {
	var frame typingFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid typing frame")
	}
	to, err := domain.ParseUserID(frame.To)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid recipient")
	}

	payload, err := json.Marshal(event.Typing{
		Type:           event.TypeTyping,
		ConversationID: frame.ConversationID,
		From:           from.String(),
		Started:        frame.Started,
		Timestamp:      event.Stamp(h.now()),
	})
	if err != nil {
		return err
	}
	return h.sender.Send(ctx, to, payload)
}

type roomFrame struct {
	Room string `json:"room"`
}

func (h *Handlers) JoinRoom(ctx context.Context, from domain.UserID, raw json.RawMessage) error {
	var frame roomFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid join_room frame")
	}
	if frame.Room == "" {
		return dErrors.New(dErrors.CodeValidation, "room is required")
	}
	h.rooms.Join(domain.RoomID(frame.Room), from)
	return nil
}

func (h *Handlers) LeaveRoom(ctx context.Context, from domain.UserID, raw json.RawMessage) error {
	var frame roomFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid leave_room frame")
	}
	if frame.Room == "" {
		return dErrors.New(dErrors.CodeValidation, "room is required")
	}
	h.rooms.Leave(domain.RoomID(frame.Room), from)
	return nil
}

type roomMessageFrame struct {
	Room      string `json:"room"`
	MessageID string `json:"message_id"`
	Body      string `json:"body"`
}

// RoomMessage broadcasts to the room's current local membership, excluding
// the sender. Members connected to other processes are reached through the
// bridge only if this process knows about them (membership is process-local).
func (h *Handlers) RoomMessage(ctx context.Context, from domain.UserID, raw json.RawMessage) error {
	var frame roomMessageFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid room_message frame")
	}
	if frame.Room == "" {
		return dErrors.New(dErrors.CodeValidation, "room is required")
	}
	if frame.Body == "" {
		return dErrors.New(dErrors.CodeValidation, "body is required")
	}
	if frame.MessageID == "" {
		frame.MessageID = domain.NewMessageID().String()
	}

	payload, err := json.Marshal(event.RoomMessage{
		Type:      event.TypeRoomMessage,
		Room:      frame.Room,
		MessageID: frame.MessageID,
		From:      from.String(),
		Body:      frame.Body,
		Timestamp: event.Stamp(h.now()),
	})
	if err != nil {
		return err
	}
	return h.rooms.Broadcast(ctx, domain.RoomID(frame.Room), payload, map[domain.UserID]struct{}{from: {}})
}
