package http

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dkeye/Huddle/internal/domain"
)

func dial(t *testing.T, srv *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", path, err)
	}
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func readJSON(t *testing.T, ws *websocket.Conn, v any) {
	t.Helper()
	_ = ws.SetReadDeadline(time.Now().Add(3 * time.Second))
	if err := ws.ReadJSON(v); err != nil {
		t.Fatalf("read: %v", err)
	}
}

// readType skips frames until one of type typ arrives.
func readType(t *testing.T, ws *websocket.Conn, typ string) map[string]any {
	t.Helper()
	for range 10 {
		var m map[string]any
		readJSON(t, ws, &m)
		if m["type"] == typ {
			return m
		}
	}
	t.Fatalf("no %q frame", typ)
	return nil
}

func userToken(t *testing.T, deps Deps, id domain.UserID, name string) string {
	return strings.TrimPrefix(bearer(t, deps.Issuer, id, name), "Bearer ")
}

func TestChatSocketFanOut(t *testing.T) {
	r, deps := newTestRouter(t)
	srv := httptest.NewServer(r)
	defer srv.Close()

	ann := dial(t, srv, "/api/ws/chat/42?token="+userToken(t, deps, 1, "ann"))
	bob := dial(t, srv, "/api/ws/chat/42?token="+userToken(t, deps, 2, "bob"))
	waitHub(t, deps, "42", 2)

	if err := ann.WriteJSON(map[string]string{"content": "hi bob"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	for _, ws := range []*websocket.Conn{ann, bob} {
		var msg domain.ChatMessage
		readJSON(t, ws, &msg)
		if msg.Content != "hi bob" || msg.SenderID != 1 || msg.SenderName != "ann" || msg.ID == "" {
			t.Fatalf("unexpected message %+v", msg)
		}
	}
	if h := deps.Store.History("42", 2); len(h) != 1 {
		t.Fatalf("message should be stored, got %d", len(h))
	}
}

func TestChatSocketRequiresToken(t *testing.T) {
	r, _ := newTestRouter(t)
	srv := httptest.NewServer(r)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws/chat/42"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("expected handshake failure")
	}
	if resp == nil || resp.StatusCode != 401 {
		t.Fatalf("expected 401, got %+v", resp)
	}
}

func waitHub(t *testing.T, deps Deps, id domain.ConversationID, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if deps.Chat.Hubs.GetOrCreate(id).MemberCount() == n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("hub %s never reached %d members", id, n)
}

func callToken(t *testing.T, deps Deps, room domain.RoomID, user domain.UserID) string {
	t.Helper()
	tok, _, err := deps.Issuer.MintCall(room, user, time.Hour)
	if err != nil {
		t.Fatalf("mint call: %v", err)
	}
	return tok
}

func TestSignalLogin(t *testing.T) {
	r, deps := newTestRouter(t)
	srv := httptest.NewServer(r)
	defer srv.Close()
	ws := dial(t, srv, "/api/ws/signal")

	login := map[string]any{"type": "login", "room_id": "room-a", "user_id": 7, "token": callToken(t, deps, "room-a", 7)}
	if err := ws.WriteJSON(login); err != nil {
		t.Fatalf("write: %v", err)
	}
	ok := readType(t, ws, "login_ok")
	if ok["room_id"] != "room-a" {
		t.Fatalf("unexpected login_ok %v", ok)
	}

	if err := ws.WriteJSON(login); err != nil {
		t.Fatalf("write: %v", err)
	}
	e := readType(t, ws, "error")
	if e["code"] != "already_logged_in" {
		t.Fatalf("expected already_logged_in, got %v", e)
	}
}

func TestSignalRejectsForeignRoomToken(t *testing.T) {
	r, deps := newTestRouter(t)
	srv := httptest.NewServer(r)
	defer srv.Close()
	ws := dial(t, srv, "/api/ws/signal")

	_ = ws.WriteJSON(map[string]any{"type": "login", "room_id": "room-b", "user_id": 7, "token": callToken(t, deps, "room-a", 7)})
	e := readType(t, ws, "error")
	if e["code"] != "invalid_token" {
		t.Fatalf("expected invalid_token, got %v", e)
	}
}

func TestSignalPlayRequiresLoginAndStream(t *testing.T) {
	r, deps := newTestRouter(t)
	srv := httptest.NewServer(r)
	defer srv.Close()
	ws := dial(t, srv, "/api/ws/signal")

	_ = ws.WriteJSON(map[string]any{"type": "play", "stream_id": "x", "sdp": "v=0"})
	if e := readType(t, ws, "error"); e["code"] != "not_logged_in" {
		t.Fatalf("expected not_logged_in, got %v", e)
	}

	_ = ws.WriteJSON(map[string]any{"type": "login", "room_id": "room-a", "user_id": 7, "token": callToken(t, deps, "room-a", 7)})
	readType(t, ws, "login_ok")
	_ = ws.WriteJSON(map[string]any{"type": "play", "stream_id": "x", "sdp": "v=0"})
	if e := readType(t, ws, "error"); e["code"] != "stream_not_found" {
		t.Fatalf("expected stream_not_found, got %v", e)
	}
}

func TestSignalPing(t *testing.T) {
	r, _ := newTestRouter(t)
	srv := httptest.NewServer(r)
	defer srv.Close()
	ws := dial(t, srv, "/api/ws/signal")
	_ = ws.WriteJSON(map[string]string{"type": "ping"})
	readType(t, ws, "pong")
}

func TestChatRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.Rate.Limit = 1
	cfg.Rate.Interval = time.Hour
	deps := NewDeps(cfg)
	srv := httptest.NewServer(SetupRouter(context.Background(), cfg, deps))
	defer srv.Close()

	ws := dial(t, srv, "/api/ws/chat/9?token="+userToken(t, deps, 1, "ann"))
	waitHub(t, deps, "9", 1)
	_ = ws.WriteJSON(map[string]string{"content": "one"})
	_ = ws.WriteJSON(map[string]string{"content": "two"})

	var first domain.ChatMessage
	readJSON(t, ws, &first)
	if first.Content != "one" {
		t.Fatalf("unexpected first frame %+v", first)
	}
	var second map[string]any
	readJSON(t, ws, &second)
	if second["error"] != "rate_limited" {
		t.Fatalf("expected rate_limited frame, got %v", second)
	}
}
