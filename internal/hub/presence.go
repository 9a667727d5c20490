package hub

import (
	"encoding/json"
	"sort"

	"github.com/lessonloop/chat-service/internal/domain"
	"github.com/lessonloop/chat-service/pkg/log"
)

// Snapshot returns the identifiers currently reachable, sorted for
// stable output.
func (h *Hub) Snapshot() []string {
	h.mu.RLock()
	users := make([]string, 0, len(h.records))
	for id, rec := range h.records {
		if rec.online {
			users = append(users, id)
		}
	}
	h.mu.RUnlock()

	sort.Strings(users)
	return users
}

// ActiveConnections reports the number of live transports.
func (h *Hub) ActiveConnections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := 0
	for _, rec := range h.records {
		if rec.online {
			n++
		}
	}
	return n
}

// BroadcastRoster pushes the current reachable-user set to every live
// connection. Broadcasts may coalesce across rapid mutations; every
// client eventually observes a roster consistent with the registry.
func (h *Hub) BroadcastRoster() {
	users := h.Snapshot()
	data, err := json.Marshal(&domain.UsersListMessage{
		Type:  domain.MsgTypeUsersList,
		Users: users,
	})
	if err != nil {
		return
	}

	h.mu.RLock()
	for _, rec := range h.records {
		if !rec.online || rec.client == nil {
			continue
		}
		select {
		case rec.client.Send <- data:
		default:
			l := log.L()
			l.Warn().Str(log.FieldUserID, rec.identifier).Msg("roster broadcast dropped, send buffer full")
		}
	}
	h.mu.RUnlock()
}
