// Package store keeps conversation history of the dev backend in memory.
package store

import (
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Huddle/internal/domain"
)

type conversation struct {
	messages []domain.ChatMessage
	// readUpTo is the count of messages each user has seen.
	readUpTo map[domain.UserID]int
}

type Store struct {
	mu     sync.RWMutex
	convs  map[domain.ConversationID]*conversation
	nextID int64
	now    func() time.Time
}

func New() *Store {
	return &Store{
		convs: make(map[domain.ConversationID]*conversation),
		now:   time.Now,
	}
}

func (s *Store) getOrCreate(id domain.ConversationID) *conversation {
	c, ok := s.convs[id]
	if !ok {
		c = &conversation{readUpTo: make(map[domain.UserID]int)}
		s.convs[id] = c
	}
	return c
}

// Append stores content as a new message authored by sender and returns it.
func (s *Store) Append(id domain.ConversationID, sender *domain.User, content string) domain.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	msg := domain.ChatMessage{
		ID:         domain.MessageID(strconv.FormatInt(s.nextID, 10)),
		Content:    content,
		SenderID:   sender.ID,
		SenderName: sender.Username,
		Timestamp:  s.now().UTC(),
	}
	c := s.getOrCreate(id)
	c.messages = append(c.messages, msg)
	return msg
}

// History returns the backlog as seen by viewer, oldest first.
func (s *Store) History(id domain.ConversationID, viewer domain.UserID) []domain.ChatMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.convs[id]
	if !ok {
		return []domain.ChatMessage{}
	}
	seen := c.readUpTo[viewer]
	out := make([]domain.ChatMessage, len(c.messages))
	for i, m := range c.messages {
		m.IsRead = i < seen || m.SenderID == viewer
		out[i] = m
	}
	return out
}

// MarkRead marks every current message as read for viewer.
func (s *Store) MarkRead(id domain.ConversationID, viewer domain.UserID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.getOrCreate(id)
	marked := len(c.messages) - c.readUpTo[viewer]
	c.readUpTo[viewer] = len(c.messages)
	log.Debug().Str("module", "server.store").Str("conversation", string(id)).Str("user", viewer.String()).Int("marked", marked).Msg("mark read")
	return marked
}
