package handler

import (
	"encoding/json"
	"net/http"

	"github.com/lessonloop/chat-service/internal/hub"
)

type healthResponse struct {
	Status            string   `json:"status"`
	ActiveConnections int      `json:"active_connections"`
	Users             []string `json:"users"`
}

// HealthHandler reports liveness plus the current reachable-user set.
type HealthHandler struct {
	hub *hub.Hub
}

func NewHealthHandler(h *hub.Hub) *HealthHandler {
	return &HealthHandler{hub: h}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:            "ok",
		ActiveConnections: h.hub.ActiveConnections(),
		Users:             h.hub.Snapshot(),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(resp)
}

func (h *HealthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.Handle("/health", h)
}
