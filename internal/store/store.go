package store

import (
	"errors"
	"sync"
	"time"

	"murmur/companion/internal/types"
)

var ErrConversationExists = errors.New("conversation already exists")

// DefaultMaxEvents caps the event log of one conversation.
const DefaultMaxEvents = 200

type Store struct {
	mu            sync.RWMutex
	conversations map[string]*types.Conversation
	events        map[string][]types.Event
	maxEvents     int
}

// New returns an empty store. maxEvents <= 0 selects DefaultMaxEvents.
func New(maxEvents int) *Store {
	if maxEvents <= 0 {
		maxEvents = DefaultMaxEvents
	}
	return &Store{
		conversations: make(map[string]*types.Conversation),
		events:        make(map[string][]types.Event),
		maxEvents:     maxEvents,
	}
}

func (s *Store) CreateConversation(c *types.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conversations[c.ID]; ok {
		return ErrConversationExists
	}
	s.conversations[c.ID] = c
	s.events[c.ID] = []types.Event{}
	return nil
}

// GetConversation returns a copy of the conversation, or nil.
func (s *Store) GetConversation(id string) *types.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.conversations[id]
	if !ok {
		return nil
	}
	cp := *c
	return &cp
}

// Update applies fn to the stored conversation under the write lock.
func (s *Store) Update(id string, fn func(c *types.Conversation)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[id]
	if !ok {
		return false
	}
	fn(c)
	return true
}

func (s *Store) AppendEvent(conversationID, typ string, payload map[string]any) types.Event {
	evt := types.Event{Type: typ, Ts: time.Now().UTC(), Payload: payload}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[conversationID] = append(s.events[conversationID], evt)
	if l := len(s.events[conversationID]); l > s.maxEvents {
		// Keep space for a single truncation warning so the total stays at maxEvents
		keep := s.maxEvents - 1
		dropped := l - keep
		kept := make([]types.Event, 0, s.maxEvents)
		kept = append(kept, s.events[conversationID][l-keep:]...)
		warn := types.Event{Type: "events_truncated", Ts: time.Now().UTC(), Payload: map[string]any{"conversation_id": conversationID, "dropped": dropped, "kept": keep}}
		s.events[conversationID] = append(kept, warn)
	}
	return evt
}

func (s *Store) ListEvents(conversationID string) []types.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src := s.events[conversationID]
	out := make([]types.Event, len(src))
	copy(out, src)
	return out
}
