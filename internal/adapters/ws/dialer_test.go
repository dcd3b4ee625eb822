package ws

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dkeye/Huddle/internal/adapters/api"
	"github.com/dkeye/Huddle/internal/chat"
	"github.com/dkeye/Huddle/internal/config"
	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/retry"
	serverhttp "github.com/dkeye/Huddle/internal/server/http"
)

func newBackend(t *testing.T) (*httptest.Server, serverhttp.Deps) {
	t.Helper()
	cfg := &config.Config{
		Mode:       "test",
		Secret:     "test-secret",
		ReadLimit:  32768,
		PingPeriod: time.Minute,
		Rate:       config.RateConfig{Limit: 100, Interval: time.Second},
	}
	deps := serverhttp.NewDeps(cfg)
	srv := httptest.NewServer(serverhttp.SetupRouter(context.Background(), cfg, deps))
	t.Cleanup(srv.Close)
	return srv, deps
}

func wsBase(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func mint(t *testing.T, deps serverhttp.Deps, id domain.UserID) string {
	t.Helper()
	tok, err := deps.Issuer.MintUser(id, "user", time.Hour)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	return tok
}

func TestURLEscapesConversation(t *testing.T) {
	d := &Dialer{BaseURL: "wss://chat.example.com/"}
	got, err := d.URL("a b", "t&k")
	if err != nil {
		t.Fatalf("url: %v", err)
	}
	want := "wss://chat.example.com/api/ws/chat/a%20b?token=t%26k"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestDialWriteRead(t *testing.T) {
	srv, deps := newBackend(t)
	d := &Dialer{BaseURL: wsBase(srv)}
	conn, err := d.Dial(context.Background(), "42", mint(t, deps, 1))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(core.CloseNormalClosure)

	if err := conn.Write([]byte(`{"content":"ping"}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	data, err := conn.Read()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(data), `"content":"ping"`) {
		t.Fatalf("unexpected frame %s", data)
	}
}

func TestDialRejectedWithoutValidToken(t *testing.T) {
	srv, _ := newBackend(t)
	d := &Dialer{BaseURL: wsBase(srv)}
	if _, err := d.Dial(context.Background(), "42", "bogus"); err == nil {
		t.Fatal("expected dial error")
	}
}

func TestServerCloseCodeSurfaces(t *testing.T) {
	srv, deps := newBackend(t)
	d := &Dialer{BaseURL: wsBase(srv)}
	conn, err := d.Dial(context.Background(), "42", mint(t, deps, 1))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(core.CloseNormalClosure)

	deadline := time.Now().Add(2 * time.Second)
	for deps.Chat.Hubs.GetOrCreate("42").MemberCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	deps.Chat.Hubs.CloseAll(websocket.CloseGoingAway, "bye")

	_, err = conn.Read()
	var ce *core.CloseError
	if !errors.As(err, &ce) || ce.Code != core.CloseGoingAway || !ce.Clean() {
		t.Fatalf("expected clean going-away close, got %v", err)
	}
}

func TestWriteAfterCloseFails(t *testing.T) {
	srv, deps := newBackend(t)
	d := &Dialer{BaseURL: wsBase(srv)}
	conn, err := d.Dial(context.Background(), "42", mint(t, deps, 1))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	_ = conn.Close(core.CloseNormalClosure)
	if err := conn.Write([]byte("x")); !errors.Is(err, core.ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

// TestTransportEndToEnd runs the chat transport against the backend: history,
// live delivery from another user and mark-read.
func TestTransportEndToEnd(t *testing.T) {
	srv, deps := newBackend(t)
	deps.Store.Append("42", &domain.User{ID: 2, Username: "bob"}, "backlog")

	token := mint(t, deps, 1)
	client, err := api.NewClient(srv.URL, api.StaticCredentials(token), 5*time.Second)
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	got := make(chan domain.ChatMessage, 4)
	tr := chat.NewTransport(chat.Options{
		Dialer:      &Dialer{BaseURL: wsBase(srv)},
		History:     client,
		Receipts:    client,
		Credentials: api.StaticCredentials(token),
		Retry:       retry.Policy{Delay: 50 * time.Millisecond},
		OnMessage:   func(m domain.ChatMessage) { got <- m },
	})
	defer tr.Close()

	history := tr.Bind(context.Background(), "42")
	if len(history) != 1 || history[0].Content != "backlog" {
		t.Fatalf("unexpected history %+v", history)
	}
	waitState(t, tr, chat.Connected)
	waitMembers(t, deps, "42", 1)

	bob, err := (&Dialer{BaseURL: wsBase(srv)}).Dial(context.Background(), "42", mint(t, deps, 2))
	if err != nil {
		t.Fatalf("dial bob: %v", err)
	}
	defer bob.Close(core.CloseNormalClosure)
	waitMembers(t, deps, "42", 2)
	if err := bob.Write([]byte(`{"content":"live"}`)); err != nil {
		t.Fatalf("bob write: %v", err)
	}

	select {
	case m := <-got:
		if m.Content != "live" || m.SenderID != 2 || m.IsFrom(1) {
			t.Fatalf("unexpected live message %+v", m)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no live message")
	}
	if n := len(tr.Messages()); n != 2 {
		t.Fatalf("expected 2 messages, got %d", n)
	}

	if !tr.Send("mine") {
		t.Fatal("send should succeed while connected")
	}
	select {
	case m := <-got:
		if !m.IsFrom(1) {
			t.Fatalf("echoed message should be ours, got %+v", m)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no echo")
	}

	tr.MarkAsRead(context.Background(), "42")
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if h := deps.Store.History("42", 1); h[0].IsRead {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("conversation never marked read")
}

func TestTransportReconnectsAfterKick(t *testing.T) {
	srv, deps := newBackend(t)
	token := mint(t, deps, 1)
	var states []chat.State
	stateCh := make(chan chat.State, 16)
	tr := chat.NewTransport(chat.Options{
		Dialer:      &Dialer{BaseURL: wsBase(srv)},
		Credentials: api.StaticCredentials(token),
		Retry:       retry.Policy{Delay: 50 * time.Millisecond},
		OnState:     func(_ domain.ConversationID, s chat.State) { stateCh <- s },
	})
	defer tr.Close()

	tr.Connect(context.Background(), "7")
	waitState(t, tr, chat.Connected)
	waitMembers(t, deps, "7", 1)

	// A policy-violation close is abnormal for the client and must be retried.
	deps.Chat.Hubs.CloseAll(websocket.ClosePolicyViolation, "kicked")

	timeout := time.After(3 * time.Second)
	for {
		select {
		case s := <-stateCh:
			states = append(states, s)
			if len(states) >= 5 && states[len(states)-1] == chat.Connected {
				want := []chat.State{chat.Connecting, chat.Connected, chat.Disconnected, chat.Connecting, chat.Connected}
				for i, w := range want {
					if states[i] != w {
						t.Fatalf("states %v, want prefix %v", states, want)
					}
				}
				return
			}
		case <-timeout:
			t.Fatalf("no reconnect, states %v", states)
		}
	}
}

func waitState(t *testing.T, tr *chat.Transport, want chat.State) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if tr.State() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("state never reached %v, at %v", want, tr.State())
}

func waitMembers(t *testing.T, deps serverhttp.Deps, id domain.ConversationID, n int) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if deps.Chat.Hubs.GetOrCreate(id).MemberCount() == n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("conversation %s never reached %d members", id, n)
}
