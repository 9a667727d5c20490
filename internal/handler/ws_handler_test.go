package handler_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lessonloop/chat-service/internal/archive"
	"github.com/lessonloop/chat-service/internal/config"
	"github.com/lessonloop/chat-service/internal/handler"
	"github.com/lessonloop/chat-service/internal/hub"
	"github.com/lessonloop/chat-service/internal/registry"
	"github.com/lessonloop/chat-service/internal/service"
	"github.com/lessonloop/chat-service/internal/store"
)

func newTestServer(t *testing.T) (*httptest.Server, *hub.Hub) {
	t.Helper()

	wsCfg := config.WebSocketConfig{
		PingInterval:   30 * time.Second,
		PongWait:       60 * time.Second,
		WriteWait:      5 * time.Second,
		MaxMessageSize: 8192,
	}
	h := hub.New(config.LifecycleConfig{
		GracePeriod:    time.Second,
		SweepInterval:  time.Hour,
		StaleThreshold: time.Hour,
	})
	svc := service.NewChatService(h, store.NewDisabled(), archive.NewNoop(), registry.NewDisabled(), 100*time.Millisecond)
	h.SetDepartureHook(svc.HandleDeparture)

	mux := http.NewServeMux()
	handler.NewWSHandler(h, svc, wsCfg).RegisterRoutes(mux)
	handler.NewHealthHandler(h).RegisterRoutes(mux)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, h
}

func dial(t *testing.T, srv *httptest.Server, email string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/chat/ws?email=" + email
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial err: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read err: %v", err)
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("bad event payload: %v", err)
	}
	return m
}

func readEventOfType(t *testing.T, conn *websocket.Conn, want string) map[string]interface{} {
	t.Helper()
	for i := 0; i < 8; i++ {
		ev := readEvent(t, conn)
		if ev["type"] == want {
			return ev
		}
	}
	t.Fatalf("no %s event received", want)
	return nil
}

func TestHandshakeRejectedWithoutIdentifier(t *testing.T) {
	srv, h := newTestServer(t)

	resp, err := http.Get(srv.URL + "/chat/ws")
	if err != nil {
		t.Fatalf("request err: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status: got %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
	if h.ActiveConnections() != 0 {
		t.Fatal("rejected handshake must not create registry state")
	}
}

func TestHandshakeConfirmsIdentity(t *testing.T) {
	srv, _ := newTestServer(t)

	conn := dial(t, srv, "alice@example.com")

	ev := readEventOfType(t, conn, "authenticated")
	if ev["email"] != "alice@example.com" {
		t.Fatalf("unexpected identity confirmation: %v", ev)
	}

	roster := readEventOfType(t, conn, "users_list")
	users, _ := roster["users"].([]interface{})
	if len(users) != 1 || users[0] != "alice@example.com" {
		t.Fatalf("unexpected roster: %v", roster)
	}
}

func TestPingPong(t *testing.T) {
	srv, _ := newTestServer(t)

	conn := dial(t, srv, "alice@example.com")
	readEventOfType(t, conn, "users_list")

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`)); err != nil {
		t.Fatalf("write err: %v", err)
	}
	readEventOfType(t, conn, "pong")
}

func TestEndToEndPrivateMessage(t *testing.T) {
	srv, _ := newTestServer(t)

	alice := dial(t, srv, "alice@example.com")
	readEventOfType(t, alice, "users_list")

	bob := dial(t, srv, "bob@example.com")
	readEventOfType(t, bob, "users_list")

	payload := `{"type":"private_message","to":"bob@example.com","text":"Hello"}`
	if err := alice.WriteMessage(websocket.TextMessage, []byte(payload)); err != nil {
		t.Fatalf("write err: %v", err)
	}

	ev := readEventOfType(t, bob, "private_message")
	if ev["from"] != "alice@example.com" || ev["text"] != "Hello" {
		t.Fatalf("unexpected relay: %v", ev)
	}

	receipt := readEventOfType(t, alice, "message_receipt")
	if receipt["success"] != true {
		t.Fatalf("expected success receipt: %v", receipt)
	}
}

func TestHealthProbe(t *testing.T) {
	srv, _ := newTestServer(t)

	conn := dial(t, srv, "alice@example.com")
	readEventOfType(t, conn, "users_list")

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("request err: %v", err)
	}
	defer resp.Body.Close()

	var body struct {
		Status            string   `json:"status"`
		ActiveConnections int      `json:"active_connections"`
		Users             []string `json:"users"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode err: %v", err)
	}
	if body.Status != "ok" || body.ActiveConnections != 1 {
		t.Fatalf("unexpected health payload: %+v", body)
	}
	if len(body.Users) != 1 || body.Users[0] != "alice@example.com" {
		t.Fatalf("unexpected health users: %+v", body.Users)
	}
}
