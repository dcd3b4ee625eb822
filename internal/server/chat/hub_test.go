package chat

import (
	"testing"
	"time"

	"github.com/dkeye/Huddle/internal/domain"
)

func testClient(id string, buf int) *Client {
	return &Client{ID: id, User: &domain.User{ID: 1, Username: id}, send: make(chan []byte, buf)}
}

func TestBroadcastReportsSlowMembers(t *testing.T) {
	h := NewHub("c")
	fast := testClient("fast", 4)
	slow := testClient("slow", 1)
	h.AddMember(fast)
	h.AddMember(slow)

	if res := h.Broadcast([]byte("a")); res.SendTo != 2 || len(res.Dropped) != 0 {
		t.Fatalf("unexpected result %+v", res)
	}
	res := h.Broadcast([]byte("b"))
	if res.SendTo != 1 || len(res.Dropped) != 1 || res.Dropped[0] != slow {
		t.Fatalf("expected slow member dropped, got %+v", res)
	}
	if len(fast.send) != 2 {
		t.Fatalf("fast member should hold 2 frames, got %d", len(fast.send))
	}
}

func TestRemoveMemberIgnoresStaleClient(t *testing.T) {
	h := NewHub("c")
	a := testClient("a", 1)
	h.AddMember(a)
	h.RemoveMember(&Client{ID: "a"})
	if h.MemberCount() != 1 {
		t.Fatal("a different client with the same id must not remove the member")
	}
	h.RemoveMember(a)
	if h.MemberCount() != 0 {
		t.Fatal("member should be removed")
	}
}

func TestRateLimiterSlidingWindow(t *testing.T) {
	rl := NewRateLimiter(2, time.Second)
	now := time.Unix(1000, 0)
	rl.now = func() time.Time { return now }

	if !rl.Allow(1) || !rl.Allow(1) {
		t.Fatal("first two attempts must pass")
	}
	if rl.Allow(1) {
		t.Fatal("third attempt in the window must be blocked")
	}
	if !rl.Allow(2) {
		t.Fatal("limits are per user")
	}
	now = now.Add(1100 * time.Millisecond)
	if !rl.Allow(1) {
		t.Fatal("window should have slid")
	}
}

func TestHubManagerList(t *testing.T) {
	m := NewHubManager()
	m.GetOrCreate("a").AddMember(testClient("x", 1))
	if m.GetOrCreate("a") != m.GetOrCreate("a") {
		t.Fatal("same id must return the same hub")
	}
	list := m.List()
	if len(list) != 1 || list[0].ID != "a" || list[0].MemberCount != 1 {
		t.Fatalf("unexpected list %+v", list)
	}
}
