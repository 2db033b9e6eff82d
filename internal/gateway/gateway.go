// Package gateway runs the WebSocket endpoint: the ticket handshake, the
// per-connection lifecycle, and the receive loop feeding the message router.
//
// A connection moves CONNECTING → AUTHENTICATING → OPEN → CLOSING → CLOSED.
// Every handshake failure closes the socket with a WebSocket close code and
// never retries on the same socket; once OPEN, teardown runs the registry
// Disconnect exactly once regardless of which side closed first.
package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"pulse/internal/dispatch"
	"pulse/internal/platform/metrics"
	"pulse/internal/registry"
	"pulse/internal/ticket"
	"pulse/pkg/domain"
	"pulse/pkg/platform/sentinel"
)

// TokenValidator is the legacy signed-token fallback, accepted only outside
// production deployments.
type TokenValidator interface {
	ExtractUserIDFromToken(tokenString string) (uuid.UUID, error)
}

// Config is the handshake policy.
type Config struct {
	// AllowedOrigins is the browser origin allow-list. An absent Origin
	// header (non-browser client) always passes.
	AllowedOrigins []string

	// Production rejects the legacy ?token= fallback outright.
	Production bool
}

// Gateway serves GET /ws/{user_id}.
type Gateway struct {
	cfg      Config
	logger   *slog.Logger
	registry *registry.Registry
	router   *dispatch.Router
	tickets  ticket.Store
	tokens   TokenValidator
	metrics  *metrics.Metrics
	upgrader websocket.Upgrader
}

func New(cfg Config, reg *registry.Registry, router *dispatch.Router, tickets ticket.Store, tokens TokenValidator, logger *slog.Logger, m *metrics.Metrics) *Gateway {
	return &Gateway{
		cfg:      cfg,
		logger:   logger,
		registry: reg,
		router:   router,
		tickets:  tickets,
		tokens:   tokens,
		metrics:  m,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Origin policy is enforced after the upgrade so rejections
			// carry a proper policy-violation close code.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Register registers the WebSocket route with the chi router. No timeout
// middleware here: the connection is a persistent stream.
func (g *Gateway) Register(r chi.Router) {
	r.Get("/ws/{user_id}", g.serveWS)
}

func (g *Gateway) serveWS(w http.ResponseWriter, r *http.Request) {
	// CONNECTING: the claimed identity must at least parse before we spend
	// an upgrade on it.
	claimedID, err := domain.ParseUserID(chi.URLParam(r, "user_id"))
	if err != nil {
		g.metrics.HandshakeFailed("bad_user_id")
		http.Error(w, "invalid user id", http.StatusBadRequest)
		return
	}

	origin := r.Header.Get("Origin")
	ticketParam := r.URL.Query().Get("ticket")
	tokenParam := r.URL.Query().Get("token")

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.metrics.HandshakeFailed("upgrade")
		return
	}

	// AUTHENTICATING. Origin policy first, then the credential; any failure
	// transitions straight to CLOSING with a close code.
	if !g.originAllowed(origin) {
		g.metrics.HandshakeFailed("origin")
		g.logger.WarnContext(r.Context(), "handshake rejected: origin not allowed",
			"user_id", claimedID.String(),
			"origin", origin,
		)
		g.closeWith(conn, websocket.ClosePolicyViolation, "origin not allowed")
		return
	}

	authedID, code, reason := g.authenticate(r.Context(), claimedID, ticketParam, tokenParam)
	if code != 0 {
		g.metrics.HandshakeFailed(reason)
		g.logger.WarnContext(r.Context(), "handshake rejected",
			"user_id", claimedID.String(),
			"reason", reason,
		)
		g.closeWith(conn, code, reason)
		return
	}

	// OPEN: register, then pump frames into the router until disconnect.
	c := newClient(authedID, conn, g.logger)
	ctx, cancel := context.WithCancel(context.Background())

	// The write pump must already be consuming before Connect: the offline
	// drain pushes the whole backlog through the send channel, and a backlog
	// larger than the channel buffer would otherwise wedge the handshake.
	go c.writePump()

	if err := g.registry.Connect(ctx, authedID, c); err != nil {
		g.logger.ErrorContext(ctx, "connection registration failed",
			"user_id", authedID.String(),
			"error", err,
		)
		cancel()
		g.closeWith(conn, websocket.CloseInternalServerErr, "registration failed")
		_ = c.Close()
		return
	}

	g.logger.InfoContext(ctx, "connection established", "user_id", authedID.String())

	c.readPump(func(frame []byte) {
		g.router.Dispatch(ctx, authedID, frame)
	})

	// CLOSING → CLOSED. readPump returned, so the socket is gone; cancel
	// the connection's context and run Disconnect exactly once (the
	// identity guard makes a late teardown after replacement a no-op).
	cancel()
	g.registry.Disconnect(context.Background(), authedID, c)
	g.logger.InfoContext(context.Background(), "connection closed", "user_id", authedID.String())
}

// authenticate resolves the supplied credential to a user id. A non-zero
// close code means the handshake failed for the accompanying reason.
func (g *Gateway) authenticate(ctx context.Context, claimedID domain.UserID, ticketParam, tokenParam string) (domain.UserID, int, string) {
	switch {
	case ticketParam != "":
		ticketID, err := domain.ParseTicketID(ticketParam)
		if err != nil {
			return domain.UserID{}, websocket.ClosePolicyViolation, "invalid_ticket"
		}
		userID, err := g.tickets.Consume(ctx, ticketID)
		if errors.Is(err, sentinel.ErrNotFound) || errors.Is(err, sentinel.ErrExpired) {
			return domain.UserID{}, websocket.ClosePolicyViolation, "invalid_ticket"
		}
		if err != nil {
			return domain.UserID{}, websocket.CloseInternalServerErr, "ticket_store_unavailable"
		}
		if userID != claimedID {
			return domain.UserID{}, websocket.ClosePolicyViolation, "ticket_user_mismatch"
		}
		return userID, 0, ""

	case tokenParam != "":
		if g.cfg.Production {
			// The legacy long-lived token handshake is never accepted in
			// production configuration.
			return domain.UserID{}, websocket.ClosePolicyViolation, "token_auth_disabled"
		}
		raw, err := g.tokens.ExtractUserIDFromToken(tokenParam)
		if err != nil {
			return domain.UserID{}, websocket.ClosePolicyViolation, "invalid_token"
		}
		if domain.UserID(raw) != claimedID {
			return domain.UserID{}, websocket.ClosePolicyViolation, "token_user_mismatch"
		}
		return claimedID, 0, ""

	default:
		return domain.UserID{}, websocket.ClosePolicyViolation, "missing_credentials"
	}
}

func (g *Gateway) originAllowed(origin string) bool {
	if origin == "" {
		return true
	}
	for _, allowed := range g.cfg.AllowedOrigins {
		if origin == allowed {
			return true
		}
	}
	return false
}

func (g *Gateway) closeWith(conn *websocket.Conn, code int, reason string) {
	deadline := time.Now().Add(writeWait)
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
	_ = conn.Close()
}
