// Package health reports the process's delivery posture: how many sockets it
// holds and whether the fanout broker is reachable. A degraded broker is not
// an unhealthy process — delivery continues local-only — so the endpoint
// stays 200 and surfaces the state in the body for alerting.
package health

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"pulse/internal/fanout"
	"pulse/internal/transport/http/shared"
)

// Connections is the local connection count surface (the registry).
type Connections interface {
	Count() int
}

// Broker is the fanout reachability surface (the bridge).
type Broker interface {
	State() fanout.State
}

type Handler struct {
	conns  Connections
	broker Broker
}

func New(conns Connections, broker Broker) *Handler {
	return &Handler{conns: conns, broker: broker}
}

// Register registers the health route with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/healthz", h.handleHealth)
}

type healthResponse struct {
	Status            string `json:"status"`
	ActiveConnections int    `json:"active_connections"`
	Broker            string `json:"broker"`
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	shared.WriteJSON(w, http.StatusOK, healthResponse{
		Status:            "ok",
		ActiveConnections: h.conns.Count(),
		Broker:            string(h.broker.State()),
	})
}
