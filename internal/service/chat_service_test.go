package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/lessonloop/chat-service/internal/archive"
	"github.com/lessonloop/chat-service/internal/config"
	"github.com/lessonloop/chat-service/internal/domain"
	"github.com/lessonloop/chat-service/internal/hub"
	"github.com/lessonloop/chat-service/internal/registry"
	"github.com/lessonloop/chat-service/internal/service"
	"github.com/lessonloop/chat-service/internal/store"
)

type fakeStore struct {
	mu          sync.Mutex
	saveCalls   int
	saveErr     error
	typingCalls int
	history     []domain.PrivateMessage
	historyErr  error
}

func (f *fakeStore) SaveMessage(ctx context.Context, msg *domain.PrivateMessage) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saveCalls++
	if f.saveErr != nil {
		return "", f.saveErr
	}
	return msg.ID, nil
}

func (f *fakeStore) GetHistory(ctx context.Context, user, contact string, limit, offset int) ([]domain.PrivateMessage, error) {
	if f.historyErr != nil {
		return nil, f.historyErr
	}
	return f.history, nil
}

func (f *fakeStore) SetPresence(ctx context.Context, user string, online bool) error { return nil }

func (f *fakeStore) SetTyping(ctx context.Context, from, to string, isTyping bool, roomKey string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.typingCalls++
	return nil
}

func (f *fakeStore) Close() {}

func (f *fakeStore) saves() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.saveCalls
}

func newFixture(t *testing.T, st *fakeStore) (*hub.Hub, service.ChatService) {
	t.Helper()
	h := hub.New(config.LifecycleConfig{
		GracePeriod:    time.Second,
		SweepInterval:  time.Hour,
		StaleThreshold: time.Hour,
	})
	svc := service.NewChatService(h, st, archive.NewNoop(), registry.NewDisabled(), 100*time.Millisecond)
	h.SetDepartureHook(svc.HandleDeparture)
	return h, svc
}

func connect(t *testing.T, h *hub.Hub, svc service.ChatService, identifier string) *hub.Client {
	t.Helper()
	c := hub.NewClient(uuid.New().String(), identifier, h, nil, config.WebSocketConfig{})
	if err := svc.HandleConnect(context.Background(), c); err != nil {
		t.Fatalf("HandleConnect err: %v", err)
	}
	drain(c)
	return c
}

func drain(c *hub.Client) {
	for {
		select {
		case <-c.Send:
		default:
			return
		}
	}
}

func nextEvent(t *testing.T, c *hub.Client) map[string]interface{} {
	t.Helper()
	select {
	case data := <-c.Send:
		var m map[string]interface{}
		if err := json.Unmarshal(data, &m); err != nil {
			t.Fatalf("bad event payload: %v", err)
		}
		return m
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func eventOfType(t *testing.T, c *hub.Client, want string) map[string]interface{} {
	t.Helper()
	for i := 0; i < 8; i++ {
		ev := nextEvent(t, c)
		if ev["type"] == want {
			return ev
		}
	}
	t.Fatalf("no %s event received", want)
	return nil
}

func TestPrivateMessageDeliveredWhenReachable(t *testing.T) {
	st := &fakeStore{}
	h, svc := newFixture(t, st)

	alice := connect(t, h, svc, "alice@example.com")
	bob := connect(t, h, svc, "bob@example.com")
	drain(alice)

	err := svc.HandlePrivateMessage(context.Background(), alice, &domain.PrivateMessagePayload{
		To:   "bob@example.com",
		Text: "Hello",
	})
	if err != nil {
		t.Fatalf("HandlePrivateMessage err: %v", err)
	}

	ev := eventOfType(t, bob, "private_message")
	if ev["from"] != "alice@example.com" || ev["text"] != "Hello" {
		t.Fatalf("unexpected relay payload: %v", ev)
	}

	receipt := eventOfType(t, alice, "message_receipt")
	if receipt["success"] != true {
		t.Fatalf("expected success receipt, got %v", receipt)
	}
	if receipt["persisted"] != true {
		t.Fatalf("expected persisted=true, got %v", receipt)
	}
}

func TestOfflineSendNeverFails(t *testing.T) {
	st := &fakeStore{}
	h, svc := newFixture(t, st)

	alice := connect(t, h, svc, "alice@example.com")

	err := svc.HandlePrivateMessage(context.Background(), alice, &domain.PrivateMessagePayload{
		To:   "carol@example.com",
		Text: "hi",
	})
	if err != nil {
		t.Fatalf("HandlePrivateMessage err: %v", err)
	}

	receipt := eventOfType(t, alice, "message_receipt")
	if receipt["success"] != true {
		t.Fatalf("offline send must still succeed, got %v", receipt)
	}
	if st.saves() != 1 {
		t.Fatalf("store saves: got %d, want 1", st.saves())
	}
}

func TestValidationRejection(t *testing.T) {
	st := &fakeStore{}
	h, svc := newFixture(t, st)

	alice := connect(t, h, svc, "alice@example.com")

	for _, p := range []*domain.PrivateMessagePayload{
		{To: "", Text: "hi"},
		{To: "bob@example.com", Text: ""},
		{To: "bob@example.com", Text: "   "},
	} {
		if err := svc.HandlePrivateMessage(context.Background(), alice, p); err != nil {
			t.Fatalf("HandlePrivateMessage err: %v", err)
		}
		receipt := eventOfType(t, alice, "message_receipt")
		if receipt["error"] != "Invalid message format" {
			t.Fatalf("expected validation error receipt, got %v", receipt)
		}
	}

	if st.saves() != 0 {
		t.Fatalf("validation failure must not reach the store, saves=%d", st.saves())
	}
	if h.RoomCount() != 0 {
		t.Fatalf("validation failure must not create rooms, rooms=%d", h.RoomCount())
	}
}

func TestPersistenceDegradedDelivery(t *testing.T) {
	st := &fakeStore{saveErr: errors.New("store down")}
	h, svc := newFixture(t, st)

	alice := connect(t, h, svc, "alice@example.com")
	bob := connect(t, h, svc, "bob@example.com")
	drain(alice)

	err := svc.HandlePrivateMessage(context.Background(), alice, &domain.PrivateMessagePayload{
		To:   "bob@example.com",
		Text: "still delivered",
	})
	if err != nil {
		t.Fatalf("HandlePrivateMessage err: %v", err)
	}

	ev := eventOfType(t, bob, "private_message")
	if ev["text"] != "still delivered" {
		t.Fatalf("relay should survive a store outage: %v", ev)
	}

	receipt := eventOfType(t, alice, "message_receipt")
	if receipt["success"] != true || receipt["persisted"] != false {
		t.Fatalf("expected success with persisted=false, got %v", receipt)
	}
}

func TestRelayOnlyModeWithDisabledStore(t *testing.T) {
	h := hub.New(config.LifecycleConfig{
		GracePeriod:    time.Second,
		SweepInterval:  time.Hour,
		StaleThreshold: time.Hour,
	})
	svc := service.NewChatService(h, store.NewDisabled(), archive.NewNoop(), registry.NewDisabled(), 100*time.Millisecond)

	alice := connect(t, h, svc, "alice@example.com")
	bob := connect(t, h, svc, "bob@example.com")
	drain(alice)

	err := svc.HandlePrivateMessage(context.Background(), alice, &domain.PrivateMessagePayload{
		To:   "bob@example.com",
		Text: "no store at all",
	})
	if err != nil {
		t.Fatalf("HandlePrivateMessage err: %v", err)
	}

	eventOfType(t, bob, "private_message")
	receipt := eventOfType(t, alice, "message_receipt")
	if receipt["success"] != true || receipt["persisted"] != false {
		t.Fatalf("expected degraded receipt in relay-only mode, got %v", receipt)
	}
}

func TestTypingRelayedToRecipient(t *testing.T) {
	st := &fakeStore{}
	h, svc := newFixture(t, st)

	alice := connect(t, h, svc, "alice@example.com")
	bob := connect(t, h, svc, "bob@example.com")
	drain(alice)

	if err := svc.HandleTyping(context.Background(), alice, "bob@example.com", true); err != nil {
		t.Fatalf("HandleTyping err: %v", err)
	}

	ev := eventOfType(t, bob, "typing_indicator")
	if ev["from"] != "alice@example.com" || ev["is_typing"] != true {
		t.Fatalf("unexpected typing indicator: %v", ev)
	}

	if err := svc.HandleTyping(context.Background(), alice, "bob@example.com", false); err != nil {
		t.Fatalf("HandleTyping err: %v", err)
	}
	ev = eventOfType(t, bob, "typing_indicator")
	if ev["is_typing"] != false {
		t.Fatalf("expected stop-typing indicator: %v", ev)
	}
}

func TestMarkAsReadNotifiesSender(t *testing.T) {
	st := &fakeStore{}
	h, svc := newFixture(t, st)

	alice := connect(t, h, svc, "alice@example.com")
	bob := connect(t, h, svc, "bob@example.com")
	drain(alice)

	err := svc.HandleMarkAsRead(context.Background(), bob, "msg-1", "alice@example.com")
	if err != nil {
		t.Fatalf("HandleMarkAsRead err: %v", err)
	}

	ev := eventOfType(t, alice, "message_read")
	if ev["message_id"] != "msg-1" || ev["by"] != "bob@example.com" {
		t.Fatalf("unexpected read event: %v", ev)
	}
}

func TestChatHistoryPassThrough(t *testing.T) {
	st := &fakeStore{history: []domain.PrivateMessage{
		{ID: "m1", From: "bob@example.com", To: "alice@example.com", Text: "earlier"},
	}}
	h, svc := newFixture(t, st)

	alice := connect(t, h, svc, "alice@example.com")

	err := svc.HandleChatHistory(context.Background(), alice, "bob@example.com", 0, 0)
	if err != nil {
		t.Fatalf("HandleChatHistory err: %v", err)
	}

	ev := eventOfType(t, alice, "chat_history")
	msgs, _ := ev["messages"].([]interface{})
	if len(msgs) != 1 {
		t.Fatalf("history messages: got %d, want 1", len(msgs))
	}
}

func TestChatHistoryUnavailable(t *testing.T) {
	st := &fakeStore{historyErr: errors.New("store down")}
	h, svc := newFixture(t, st)

	alice := connect(t, h, svc, "alice@example.com")

	if err := svc.HandleChatHistory(context.Background(), alice, "bob@example.com", 10, 0); err != nil {
		t.Fatalf("HandleChatHistory err: %v", err)
	}

	ev := eventOfType(t, alice, "error")
	if ev["code"] != "INTERNAL_ERROR" {
		t.Fatalf("expected internal error event, got %v", ev)
	}
}
