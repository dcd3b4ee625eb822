package signal

import (
	"errors"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/server/sfu"
)

var (
	ErrAlreadyLoggedIn = errors.New("already logged in")
	ErrNotLoggedIn     = errors.New("not logged in")
	ErrStreamTaken     = errors.New("stream id owned by another session")
)

type SessionID string

// StreamInfo describes a stream published in a room.
type StreamInfo struct {
	StreamID domain.StreamID   `json:"stream_id"`
	UserID   domain.UserID     `json:"user_id"`
	Kind     domain.StreamKind `json:"kind"`

	owner SessionID
}

// Session is one signaling socket. At most one room login per socket.
type Session struct {
	SID  SessionID
	conn *Conn

	mu        sync.Mutex
	published map[domain.StreamID]*sfu.Peer
	playing   map[domain.StreamID]*sfu.Peer
}

func newSession(sid SessionID, conn *Conn) *Session {
	return &Session{
		SID:       sid,
		conn:      conn,
		published: make(map[domain.StreamID]*sfu.Peer),
		playing:   make(map[domain.StreamID]*sfu.Peer),
	}
}

type membership struct {
	room domain.RoomID
	user domain.UserID
}

type Registry struct {
	mu       sync.RWMutex
	sessions map[SessionID]*Session
	members  map[SessionID]membership
	streams  map[domain.RoomID]map[domain.StreamID]StreamInfo
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[SessionID]*Session),
		members:  make(map[SessionID]membership),
		streams:  make(map[domain.RoomID]map[domain.StreamID]StreamInfo),
	}
}

func (r *Registry) Bind(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.SID] = s
	log.Info().Str("module", "server.registry").Str("sid", string(s.SID)).Msg("bound signal")
}

func (r *Registry) Unbind(sid SessionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, sid)
	delete(r.members, sid)
	log.Info().Str("module", "server.registry").Str("sid", string(sid)).Msg("unbind session")
}

// Join logs sid into room as user and returns the streams already published
// there.
func (r *Registry) Join(sid SessionID, room domain.RoomID, user domain.UserID) ([]StreamInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.members[sid]; ok {
		return nil, ErrAlreadyLoggedIn
	}
	r.members[sid] = membership{room: room, user: user}
	out := make([]StreamInfo, 0, len(r.streams[room]))
	for _, st := range r.streams[room] {
		out = append(out, st)
	}
	log.Info().Str("module", "server.registry").Str("sid", string(sid)).Str("room", string(room)).Str("user", user.String()).Msg("joined room")
	return out, nil
}

// Leave removes sid from its room and returns the streams it owned.
func (r *Registry) Leave(sid SessionID) (domain.RoomID, []StreamInfo, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.members[sid]
	if !ok {
		return "", nil, false
	}
	delete(r.members, sid)
	var owned []StreamInfo
	for id, st := range r.streams[m.room] {
		if st.owner == sid {
			owned = append(owned, st)
			delete(r.streams[m.room], id)
		}
	}
	if len(r.streams[m.room]) == 0 {
		delete(r.streams, m.room)
	}
	log.Info().Str("module", "server.registry").Str("sid", string(sid)).Str("room", string(m.room)).Int("streams", len(owned)).Msg("left room")
	return m.room, owned, true
}

func (r *Registry) RoomOf(sid SessionID) (domain.RoomID, domain.UserID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.members[sid]
	return m.room, m.user, ok
}

// MembersOfRoom returns the sessions logged into room.
func (r *Registry) MembersOfRoom(room domain.RoomID) []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, 0)
	for sid, m := range r.members {
		if m.room != room {
			continue
		}
		if s, ok := r.sessions[sid]; ok {
			out = append(out, s)
		}
	}
	return out
}

func (r *Registry) AddStream(sid SessionID, id domain.StreamID, kind domain.StreamKind) (StreamInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.members[sid]
	if !ok {
		return StreamInfo{}, ErrNotLoggedIn
	}
	if cur, ok := r.streams[m.room][id]; ok && cur.owner != sid {
		return StreamInfo{}, ErrStreamTaken
	}
	if r.streams[m.room] == nil {
		r.streams[m.room] = make(map[domain.StreamID]StreamInfo)
	}
	st := StreamInfo{StreamID: id, UserID: m.user, Kind: kind, owner: sid}
	r.streams[m.room][id] = st
	return st, nil
}

// RemoveStream drops id if sid owns it.
func (r *Registry) RemoveStream(sid SessionID, id domain.StreamID) (StreamInfo, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.members[sid]
	if !ok {
		return StreamInfo{}, false
	}
	st, ok := r.streams[m.room][id]
	if !ok || st.owner != sid {
		return StreamInfo{}, false
	}
	delete(r.streams[m.room], id)
	return st, true
}

func (r *Registry) Stream(room domain.RoomID, id domain.StreamID) (StreamInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.streams[room][id]
	return st, ok
}
