package hub

import (
	"context"
	"sync"
	"time"

	"github.com/lessonloop/chat-service/internal/config"
	"github.com/lessonloop/chat-service/internal/domain"
	"github.com/lessonloop/chat-service/pkg/log"
)

// record is the per-identifier connection record. At most one exists
// per identifier; it survives transport loss for the grace period so a
// fast reconnect keeps its logical identity.
type record struct {
	identifier string
	client     *Client
	lastSeenAt time.Time
	online     bool
	typingTo   map[string]struct{}
	roomHint   string

	// epoch increments on every lifecycle transition; a scheduled
	// grace-expiry callback only acts if its captured epoch still
	// matches, so a reconnect invalidates stale timers outright.
	epoch      uint64
	graceTimer *time.Timer
}

// Hub owns the connection registry and the room table. All lifecycle
// transitions go through it; the message pipeline and typing
// coordinator only read connections and never mutate lifecycle state.
type Hub struct {
	mu      sync.RWMutex
	records map[string]*record
	rooms   map[string]*domain.Room
	cfg     config.LifecycleConfig

	// onDeparture fires after a record is confirmed gone (grace expiry
	// or sweep), outside the hub lock.
	onDeparture func(identifier string)
}

func New(cfg config.LifecycleConfig) *Hub {
	return &Hub{
		records: make(map[string]*record),
		rooms:   make(map[string]*domain.Room),
		cfg:     cfg,
	}
}

// SetDepartureHook installs the callback invoked once per confirmed
// departure. Must be set before clients connect.
func (h *Hub) SetDepartureHook(fn func(identifier string)) {
	h.onDeparture = fn
}

// Register installs c as the live transport for its identifier.
// An existing live connection for the same identifier is force-closed
// and fully replaced (last writer wins); a record still in its grace
// window is resumed without ever having announced a departure.
func (h *Hub) Register(c *Client) (displaced bool) {
	var old *Client

	h.mu.Lock()
	rec, ok := h.records[c.Identifier]
	if ok {
		if rec.online && rec.client != nil && rec.client != c {
			old = rec.client
			displaced = true
		}
		if rec.graceTimer != nil {
			rec.graceTimer.Stop()
			rec.graceTimer = nil
		}
		rec.client = c
		rec.online = true
		rec.lastSeenAt = time.Now()
		rec.epoch++
	} else {
		h.records[c.Identifier] = &record{
			identifier: c.Identifier,
			client:     c,
			lastSeenAt: time.Now(),
			online:     true,
			typingTo:   make(map[string]struct{}),
			epoch:      1,
		}
	}
	h.mu.Unlock()

	if old != nil {
		old.Close()
		l := log.L()
		l.Info().Str(log.FieldUserID, c.Identifier).Str(log.FieldConnID, old.ID).Msg("displaced stale connection")
	}

	h.BroadcastRoster()
	return displaced
}

// Unregister handles transport loss for c. The record stays in the
// registry, marked offline, until the grace timer confirms departure.
// A close on a transport that is no longer the record's current handle
// (it was displaced) is a no-op.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	rec, ok := h.records[c.Identifier]
	if !ok || rec.client != c {
		h.mu.Unlock()
		return
	}

	rec.online = false
	rec.lastSeenAt = time.Now()
	rec.epoch++
	epoch := rec.epoch
	roomHint := rec.roomHint
	rec.graceTimer = time.AfterFunc(h.cfg.GracePeriod, func() {
		h.expireGrace(c.Identifier, epoch, c)
	})
	h.mu.Unlock()

	l := log.L()
	l.Debug().Str(log.FieldUserID, c.Identifier).Str(log.FieldConnID, c.ID).Str(log.FieldRoomKey, roomHint).Dur("grace", h.cfg.GracePeriod).Msg("connection lost, grace timer armed")
}

// expireGrace removes a record whose grace window lapsed with no
// reconnect. The epoch and transport-handle checks make sure a newer
// connection has not silently taken over the record.
func (h *Hub) expireGrace(identifier string, epoch uint64, c *Client) {
	h.mu.Lock()
	rec, ok := h.records[identifier]
	if !ok || rec.epoch != epoch || rec.online || rec.client != c {
		h.mu.Unlock()
		return
	}
	delete(h.records, identifier)
	typingTo := typingTargets(rec)
	h.mu.Unlock()

	l := log.L()
	l.Info().Str(log.FieldUserID, identifier).Msg("grace period expired, user departed")

	h.clearTypingFor(identifier, typingTo)
	h.BroadcastRoster()
	if h.onDeparture != nil {
		h.onDeparture(identifier)
	}
}

// Touch refreshes liveness from transport keepalive activity.
func (h *Hub) Touch(identifier string) {
	h.mu.Lock()
	if rec, ok := h.records[identifier]; ok {
		rec.lastSeenAt = time.Now()
	}
	h.mu.Unlock()
}

// Run drives the periodic stale-record sweep until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.Sweep()
		}
	}
}

// Sweep removes every record whose lastSeenAt is older than the
// staleness threshold. It is the safety net for grace timers that never
// fired. Removals coalesce into a single roster broadcast.
func (h *Hub) Sweep() {
	now := time.Now()
	type removed struct {
		identifier string
		typingTo   []string
	}
	var gone []removed
	var closing []*Client

	h.mu.Lock()
	for id, rec := range h.records {
		if now.Sub(rec.lastSeenAt) > h.cfg.StaleThreshold {
			if rec.graceTimer != nil {
				rec.graceTimer.Stop()
			}
			if rec.client != nil {
				closing = append(closing, rec.client)
			}
			gone = append(gone, removed{identifier: id, typingTo: typingTargets(rec)})
			delete(h.records, id)
		}
	}
	h.mu.Unlock()

	for _, c := range closing {
		c.Close()
	}

	if len(gone) == 0 {
		return
	}

	l := log.L()
	l.Info().Int("removed", len(gone)).Msg("sweep removed stale connection records")

	for _, r := range gone {
		h.clearTypingFor(r.identifier, r.typingTo)
	}
	h.BroadcastRoster()
	if h.onDeparture != nil {
		for _, r := range gone {
			h.onDeparture(r.identifier)
		}
	}
}

// Get returns the live transport for identifier, or nil if the user is
// not currently reachable.
func (h *Hub) Get(identifier string) *Client {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if rec, ok := h.records[identifier]; ok && rec.online {
		return rec.client
	}
	return nil
}

// SetTyping records the ephemeral typing relation on the sender's
// record. The relation dies with the record.
func (h *Hub) SetTyping(from, to string, isTyping bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	rec, ok := h.records[from]
	if !ok {
		return
	}
	if isTyping {
		rec.typingTo[to] = struct{}{}
	} else {
		delete(rec.typingTo, to)
	}
}

// RoomFor lazily creates the metadata record for a participant pair and
// refreshes its activity stamp. Booking context is attached on first
// sight and never overwritten with blanks.
func (h *Hub) RoomFor(u1, u2, bookingRef, subjectTitle string) (*domain.Room, error) {
	key, err := domain.RoomKey(u1, u2)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.rooms[key]
	if !ok {
		room = domain.NewRoom(key, u1, u2)
		h.rooms[key] = room
	}
	room.LastActivityAt = time.Now().UTC()
	if bookingRef != "" {
		room.BookingRef = bookingRef
	}
	if subjectTitle != "" {
		room.SubjectTitle = subjectTitle
	}
	if rec, ok := h.records[u1]; ok {
		rec.roomHint = key
	}
	if rec, ok := h.records[u2]; ok {
		rec.roomHint = key
	}
	return room, nil
}

// Room returns the metadata record for key, or nil.
func (h *Hub) Room(key string) *domain.Room {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.rooms[key]
}

// RoomCount reports the number of rooms created so far.
func (h *Hub) RoomCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}

// clearTypingFor tells every recipient the departed sender was typing
// to that the indicator is stale. An abrupt disconnect never sends an
// explicit stop, so the server synthesizes one on confirmed departure.
func (h *Hub) clearTypingFor(identifier string, targets []string) {
	if len(targets) == 0 {
		return
	}
	ev := &domain.TypingIndicatorMessage{
		Type:      domain.MsgTypeTypingIndicator,
		From:      identifier,
		IsTyping:  false,
		Timestamp: time.Now().UnixMilli(),
	}
	for _, to := range targets {
		if rc := h.Get(to); rc != nil {
			rc.SendMessage(ev)
		}
	}
}

func typingTargets(rec *record) []string {
	if len(rec.typingTo) == 0 {
		return nil
	}
	out := make([]string, 0, len(rec.typingTo))
	for to := range rec.typingTo {
		out = append(out, to)
	}
	return out
}
