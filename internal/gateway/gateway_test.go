package gateway_test

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"pulse/internal/dispatch"
	"pulse/internal/fanout"
	"pulse/internal/gateway"
	jwttoken "pulse/internal/jwt_token"
	"pulse/internal/offline"
	"pulse/internal/registry"
	"pulse/internal/room"
	"pulse/internal/ticket"
	"pulse/pkg/domain"
)

const allowedOrigin = "https://app.example.com"

func newUserID() domain.UserID { return domain.UserID(uuid.New()) }

type GatewayTestSuite struct {
	suite.Suite

	tickets *ticket.MemoryStore
	queue   *offline.MemoryQueue
	reg     *registry.Registry
	jwt     *jwttoken.JWTService
	server  *httptest.Server
}

func TestGatewayTestSuite(t *testing.T) {
	suite.Run(t, new(GatewayTestSuite))
}

func (s *GatewayTestSuite) SetupTest() {
	s.server = s.newServer(false)
}

func (s *GatewayTestSuite) TearDownTest() {
	s.server.Close()
}

// newServer wires a full single-process stack: local bridge, in-memory ticket
// store and offline queue, and the real router behind an httptest server.
func (s *GatewayTestSuite) newServer(production bool) *httptest.Server {
	logger := slog.New(slog.DiscardHandler)

	s.tickets = ticket.NewMemoryStore()
	s.queue = offline.NewMemoryQueue()

	bridge := fanout.NewLocalBridge(s.queue, logger, nil)
	rooms := room.NewDirectory(bridge)
	s.reg = registry.New(bridge, s.queue, rooms, logger, nil)
	bridge.Bind(s.reg)

	router := dispatch.NewRouter(logger)
	dispatch.NewHandlers(bridge, rooms, logger).Register(router)

	s.jwt = jwttoken.NewJWTService("test-signing-key", "pulse", "pulse-ws")

	gw := gateway.New(gateway.Config{
		AllowedOrigins: []string{allowedOrigin},
		Production:     production,
	}, s.reg, router, s.tickets, s.jwt, logger, nil)

	r := chi.NewRouter()
	gw.Register(r)
	return httptest.NewServer(r)
}

func (s *GatewayTestSuite) dial(userID domain.UserID, query string, header http.Header) (*websocket.Conn, error) {
	url := "ws" + strings.TrimPrefix(s.server.URL, "http") + "/ws/" + userID.String()
	if query != "" {
		url += "?" + query
	}
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if conn != nil {
		s.Require().NoError(conn.SetReadDeadline(time.Now().Add(2 * time.Second)))
	}
	return conn, err
}

func (s *GatewayTestSuite) readFrame(conn *websocket.Conn) map[string]any {
	_, raw, err := conn.ReadMessage()
	s.Require().NoError(err)
	var frame map[string]any
	s.Require().NoError(json.Unmarshal(raw, &frame))
	return frame
}

func (s *GatewayTestSuite) requireClosedWith(conn *websocket.Conn, code int) {
	_, _, err := conn.ReadMessage()
	s.Require().Error(err)
	s.Require().True(websocket.IsCloseError(err, code), "expected close code %d, got: %v", code, err)
}

func (s *GatewayTestSuite) issueTicket(userID domain.UserID) string {
	t, err := s.tickets.Issue(context.Background(), userID)
	s.Require().NoError(err)
	return t.ID.String()
}

func (s *GatewayTestSuite) Test_ValidTicket_ConnectionEstablished() {
	userID := newUserID()

	conn, err := s.dial(userID, "ticket="+s.issueTicket(userID), nil)
	s.Require().NoError(err)
	defer conn.Close()

	frame := s.readFrame(conn)
	s.Require().Equal("connection_established", frame["type"])
	s.Require().Equal(userID.String(), frame["user_id"])
	s.Require().True(s.reg.IsLocallyOnline(userID))
}

func (s *GatewayTestSuite) Test_ReplayedTicket_Rejected() {
	userID := newUserID()
	tkt := s.issueTicket(userID)

	first, err := s.dial(userID, "ticket="+tkt, nil)
	s.Require().NoError(err)
	defer first.Close()
	s.readFrame(first)

	// The ticket was consumed by the first handshake; replaying it must
	// fail the second handshake without touching the first connection.
	second, err := s.dial(userID, "ticket="+tkt, nil)
	s.Require().NoError(err)
	defer second.Close()
	s.requireClosedWith(second, websocket.ClosePolicyViolation)
}

func (s *GatewayTestSuite) Test_TicketForDifferentUser_Rejected() {
	ownerID := newUserID()
	otherID := newUserID()
	tkt := s.issueTicket(ownerID)

	conn, err := s.dial(otherID, "ticket="+tkt, nil)
	s.Require().NoError(err)
	defer conn.Close()

	s.requireClosedWith(conn, websocket.ClosePolicyViolation)
	s.Require().False(s.reg.IsLocallyOnline(otherID))
}

func (s *GatewayTestSuite) Test_MissingCredentials_Rejected() {
	conn, err := s.dial(newUserID(), "", nil)
	s.Require().NoError(err)
	defer conn.Close()

	s.requireClosedWith(conn, websocket.ClosePolicyViolation)
}

func (s *GatewayTestSuite) Test_InvalidUserID_BadRequest() {
	url := "ws" + strings.TrimPrefix(s.server.URL, "http") + "/ws/not-a-uuid"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	s.Require().Error(err)
	s.Require().Nil(conn)
	s.Require().Equal(http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func (s *GatewayTestSuite) Test_DisallowedOrigin_Rejected() {
	userID := newUserID()
	header := http.Header{"Origin": []string{"https://evil.example.com"}}

	conn, err := s.dial(userID, "ticket="+s.issueTicket(userID), header)
	s.Require().NoError(err)
	defer conn.Close()

	s.requireClosedWith(conn, websocket.ClosePolicyViolation)
}

func (s *GatewayTestSuite) Test_AllowedOrigin_Accepted() {
	userID := newUserID()
	header := http.Header{"Origin": []string{allowedOrigin}}

	conn, err := s.dial(userID, "ticket="+s.issueTicket(userID), header)
	s.Require().NoError(err)
	defer conn.Close()

	frame := s.readFrame(conn)
	s.Require().Equal("connection_established", frame["type"])
}

func (s *GatewayTestSuite) Test_TokenFallback_AcceptedOutsideProduction() {
	userID := newUserID()
	token, err := s.jwt.GenerateAccessToken(uuid.UUID(userID), uuid.New(), "web", time.Minute)
	s.Require().NoError(err)

	conn, err := s.dial(userID, "token="+token, nil)
	s.Require().NoError(err)
	defer conn.Close()

	frame := s.readFrame(conn)
	s.Require().Equal("connection_established", frame["type"])
}

func (s *GatewayTestSuite) Test_TokenFallback_RejectedInProduction() {
	s.server.Close()
	s.server = s.newServer(true)

	userID := newUserID()
	token, err := s.jwt.GenerateAccessToken(uuid.UUID(userID), uuid.New(), "web", time.Minute)
	s.Require().NoError(err)

	conn, err := s.dial(userID, "token="+token, nil)
	s.Require().NoError(err)
	defer conn.Close()

	s.requireClosedWith(conn, websocket.ClosePolicyViolation)
	s.Require().False(s.reg.IsLocallyOnline(userID))
}

func (s *GatewayTestSuite) Test_OfflineBacklog_DrainedBeforeEstablished() {
	userID := newUserID()
	ctx := context.Background()

	s.Require().NoError(s.queue.Enqueue(ctx, userID, []byte(`{"type":"new_message","body":"first"}`)))
	s.Require().NoError(s.queue.Enqueue(ctx, userID, []byte(`{"type":"new_message","body":"second"}`)))

	conn, err := s.dial(userID, "ticket="+s.issueTicket(userID), nil)
	s.Require().NoError(err)
	defer conn.Close()

	// Backlog arrives in enqueue order, then the established event.
	s.Require().Equal("first", s.readFrame(conn)["body"])
	s.Require().Equal("second", s.readFrame(conn)["body"])
	s.Require().Equal("connection_established", s.readFrame(conn)["type"])
	s.Require().Equal(0, s.queue.Len(userID))
}

func (s *GatewayTestSuite) Test_OfflineBacklog_LargerThanSendBuffer() {
	userID := newUserID()
	ctx := context.Background()

	// More queued messages than the per-connection send buffer holds; the
	// whole backlog must still come through on a single connect.
	const backlog = 300
	for i := 0; i < backlog; i++ {
		payload := fmt.Sprintf(`{"type":"new_message","body":"msg-%d"}`, i)
		s.Require().NoError(s.queue.Enqueue(ctx, userID, []byte(payload)))
	}

	conn, err := s.dial(userID, "ticket="+s.issueTicket(userID), nil)
	s.Require().NoError(err)
	defer conn.Close()
	s.Require().NoError(conn.SetReadDeadline(time.Now().Add(10 * time.Second)))

	for i := 0; i < backlog; i++ {
		s.Require().Equal(fmt.Sprintf("msg-%d", i), s.readFrame(conn)["body"])
	}
	s.Require().Equal("connection_established", s.readFrame(conn)["type"])
	s.Require().Equal(0, s.queue.Len(userID))
	s.Require().True(s.reg.IsLocallyOnline(userID))
}

func (s *GatewayTestSuite) Test_ChatMessage_RelayedToRecipient() {
	aliceID := newUserID()
	bobID := newUserID()

	alice, err := s.dial(aliceID, "ticket="+s.issueTicket(aliceID), nil)
	s.Require().NoError(err)
	defer alice.Close()
	s.readFrame(alice)

	bob, err := s.dial(bobID, "ticket="+s.issueTicket(bobID), nil)
	s.Require().NoError(err)
	defer bob.Close()
	s.readFrame(bob)

	send := map[string]string{
		"type":            "chat_message",
		"to":              bobID.String(),
		"conversation_id": uuid.NewString(),
		"message_id":      uuid.NewString(),
		"body":            "hello bob",
	}
	s.Require().NoError(alice.WriteJSON(send))

	frame := s.readFrame(bob)
	s.Require().Equal("new_message", frame["type"])
	s.Require().Equal(aliceID.String(), frame["from"])
	s.Require().Equal("hello bob", frame["body"])
	s.Require().Equal(send["message_id"], frame["message_id"])
}

func (s *GatewayTestSuite) Test_ChatMessage_OfflineRecipientQueued() {
	aliceID := newUserID()
	bobID := newUserID()

	alice, err := s.dial(aliceID, "ticket="+s.issueTicket(aliceID), nil)
	s.Require().NoError(err)
	defer alice.Close()
	s.readFrame(alice)

	s.Require().NoError(alice.WriteJSON(map[string]string{
		"type": "chat_message",
		"to":   bobID.String(),
		"body": "catch up later",
	}))

	s.Require().Eventually(func() bool {
		return s.queue.Len(bobID) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func (s *GatewayTestSuite) Test_RoomMessage_BroadcastExcludesSender() {
	aliceID := newUserID()
	bobID := newUserID()

	alice, err := s.dial(aliceID, "ticket="+s.issueTicket(aliceID), nil)
	s.Require().NoError(err)
	defer alice.Close()
	s.readFrame(alice)

	bob, err := s.dial(bobID, "ticket="+s.issueTicket(bobID), nil)
	s.Require().NoError(err)
	defer bob.Close()
	s.readFrame(bob)

	s.Require().NoError(alice.WriteJSON(map[string]string{"type": "join_room", "room": "trip-42"}))
	s.Require().NoError(bob.WriteJSON(map[string]string{"type": "join_room", "room": "trip-42"}))

	// join_room has no acknowledgement; give the reads a moment to land.
	time.Sleep(50 * time.Millisecond)

	s.Require().NoError(alice.WriteJSON(map[string]string{
		"type": "room_message",
		"room": "trip-42",
		"body": "anyone here?",
	}))

	frame := s.readFrame(bob)
	s.Require().Equal("room_message", frame["type"])
	s.Require().Equal("trip-42", frame["room"])
	s.Require().Equal(aliceID.String(), frame["from"])

	// The sender must not receive their own broadcast.
	s.Require().NoError(alice.SetReadDeadline(time.Now().Add(200 * time.Millisecond)))
	_, _, err = alice.ReadMessage()
	s.Require().Error(err)
}

func (s *GatewayTestSuite) Test_SecondConnection_ReplacesFirst() {
	userID := newUserID()

	first, err := s.dial(userID, "ticket="+s.issueTicket(userID), nil)
	s.Require().NoError(err)
	defer first.Close()
	s.readFrame(first)

	second, err := s.dial(userID, "ticket="+s.issueTicket(userID), nil)
	s.Require().NoError(err)
	defer second.Close()
	s.readFrame(second)

	// The replaced socket is force-closed by the registry.
	s.Require().NoError(first.SetReadDeadline(time.Now().Add(2 * time.Second)))
	_, _, err = first.ReadMessage()
	s.Require().Error(err)
	s.Require().Equal(1, s.reg.Count())
}

func TestGateway_UnknownFrameIgnored(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)
	queue := offline.NewMemoryQueue()
	bridge := fanout.NewLocalBridge(queue, logger, nil)
	rooms := room.NewDirectory(bridge)
	reg := registry.New(bridge, queue, rooms, logger, nil)
	bridge.Bind(reg)
	router := dispatch.NewRouter(logger)
	dispatch.NewHandlers(bridge, rooms, logger).Register(router)
	tickets := ticket.NewMemoryStore()

	gw := gateway.New(gateway.Config{}, reg, router, tickets,
		jwttoken.NewJWTService("k", "pulse", "pulse-ws"), logger, nil)
	r := chi.NewRouter()
	gw.Register(r)
	server := httptest.NewServer(r)
	defer server.Close()

	userID := newUserID()
	tkt, err := tickets.Issue(context.Background(), userID)
	require.NoError(t, err)

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/" + userID.String() + "?ticket=" + tkt.ID.String()
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	resp.Body.Close()
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = conn.ReadMessage() // connection_established
	require.NoError(t, err)

	// Garbage and unknown types are ignored; the connection stays open.
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	require.NoError(t, conn.WriteJSON(map[string]string{"type": "no_such_frame"}))
	require.NoError(t, conn.WriteJSON(map[string]string{
		"type": "typing",
		"to":   userID.String(),
	}))

	frame := struct {
		Type string `json:"type"`
	}{}
	require.NoError(t, conn.ReadJSON(&frame))
	require.Equal(t, "typing", frame.Type)
}
