package chat

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Huddle/internal/domain"
)

// PublishResult reports delivery stats and backpressure to the server.
type PublishResult struct {
	SendTo  int
	Dropped []*Client
}

// Hub is the set of live sockets of one conversation.
type Hub struct {
	ID domain.ConversationID

	mu      sync.RWMutex
	clients map[string]*Client
}

func NewHub(id domain.ConversationID) *Hub {
	return &Hub{ID: id, clients: make(map[string]*Client)}
}

func (h *Hub) MemberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) AddMember(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.ID] = c
	log.Info().Str("module", "server.chat").Str("conversation", string(h.ID)).Str("client", c.ID).Str("user", c.User.ID.String()).Msg("member added")
}

func (h *Hub) RemoveMember(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if cur, ok := h.clients[c.ID]; ok && cur == c {
		delete(h.clients, c.ID)
		log.Info().Str("module", "server.chat").Str("conversation", string(h.ID)).Str("client", c.ID).Msg("member removed")
	}
}

// Broadcast queues data on every member, the author included.
func (h *Hub) Broadcast(data []byte) PublishResult {
	h.mu.RLock()
	defer h.mu.RUnlock()
	res := PublishResult{}
	for _, c := range h.clients {
		if err := c.TrySend(data); err != nil {
			res.Dropped = append(res.Dropped, c)
			continue
		}
		res.SendTo++
	}
	log.Debug().Str("module", "server.chat").Str("conversation", string(h.ID)).Int("sent_to", res.SendTo).Int("dropped", len(res.Dropped)).Msg("broadcast result")
	return res
}

func (h *Hub) snapshot() []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		out = append(out, c)
	}
	return out
}

type HubInfo struct {
	ID          domain.ConversationID `json:"id"`
	MemberCount int                   `json:"client_count"`
}

type HubManager struct {
	mu   sync.RWMutex
	hubs map[domain.ConversationID]*Hub
}

func NewHubManager() *HubManager {
	return &HubManager{hubs: make(map[domain.ConversationID]*Hub)}
}

func (m *HubManager) GetOrCreate(id domain.ConversationID) *Hub {
	m.mu.RLock()
	hub, ok := m.hubs[id]
	m.mu.RUnlock()
	if ok {
		return hub
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if hub, ok = m.hubs[id]; ok {
		return hub
	}
	hub = NewHub(id)
	m.hubs[id] = hub
	return hub
}

func (m *HubManager) List() []HubInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]HubInfo, 0, len(m.hubs))
	for id, h := range m.hubs {
		out = append(out, HubInfo{ID: id, MemberCount: h.MemberCount()})
	}
	return out
}

// CloseAll closes every socket of every conversation with code.
func (m *HubManager) CloseAll(code int, reason string) {
	m.mu.Lock()
	hubs := m.hubs
	m.hubs = make(map[domain.ConversationID]*Hub)
	m.mu.Unlock()
	for _, h := range hubs {
		for _, c := range h.snapshot() {
			c.Close(code, reason)
		}
	}
}
