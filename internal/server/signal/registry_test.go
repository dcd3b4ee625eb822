package signal

import (
	"errors"
	"testing"
)

func TestRegistryLoginOncePerSession(t *testing.T) {
	r := NewRegistry()
	r.Bind(newSession("s1", nil))
	if _, err := r.Join("s1", "room-a", 7); err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, err := r.Join("s1", "room-a", 7); !errors.Is(err, ErrAlreadyLoggedIn) {
		t.Fatalf("expected ErrAlreadyLoggedIn, got %v", err)
	}
}

func TestRegistryStreamsFollowOwner(t *testing.T) {
	r := NewRegistry()
	r.Bind(newSession("s1", nil))
	r.Bind(newSession("s2", nil))
	_, _ = r.Join("s1", "room-a", 7)
	_, _ = r.Join("s2", "room-a", 8)

	if _, err := r.AddStream("s1", "room-a_7_main", "camera"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := r.AddStream("s2", "room-a_7_main", "camera"); !errors.Is(err, ErrStreamTaken) {
		t.Fatalf("expected ErrStreamTaken, got %v", err)
	}
	if _, ok := r.RemoveStream("s2", "room-a_7_main"); ok {
		t.Fatal("only the owner may remove a stream")
	}

	existing, err := r.Join("s3", "room-a", 9)
	if err != nil || len(existing) != 1 || existing[0].UserID != 7 {
		t.Fatalf("late joiner should see one stream, got %+v, %v", existing, err)
	}

	room, owned, ok := r.Leave("s1")
	if !ok || room != "room-a" || len(owned) != 1 {
		t.Fatalf("unexpected leave result %v %+v %v", room, owned, ok)
	}
	if _, ok := r.Stream("room-a", "room-a_7_main"); ok {
		t.Fatal("stream should be gone with its owner")
	}
	if n := len(r.MembersOfRoom("room-a")); n != 1 {
		t.Fatalf("expected 1 bound member left, got %d", n)
	}
}
