package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler reports store reachability.
type HealthHandler struct {
	store     Pinger
	timeout   time.Duration
	responder responder
}

// NewHealthHandler constructs a HealthHandler that pings store.
func NewHealthHandler(store Pinger, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{store: store, timeout: 2 * time.Second, responder: newResponder(defaultLogger(logger))}
}

type healthDTO struct {
	Status string `json:"status"`
}

// Check reports whether the booking store answers a ping.
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		h.responder.writeError(r.Context(), w, http.StatusServiceUnavailable, "UNAVAILABLE", errors.New("store not configured"))
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	if err := h.store.Ping(ctx); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusServiceUnavailable, "UNAVAILABLE", err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, healthDTO{Status: "ok"})
}
