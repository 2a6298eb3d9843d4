// Package memory provides an in-memory storage.HistoryStore for tests and
// single-process deployments. Turns are lost when the process restarts.
// The number of conversations kept is bounded with LRU eviction, and each
// conversation keeps at most a fixed number of recent turns.
package memory

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/rhuss/steward/pkg/api"
	"github.com/rhuss/steward/pkg/storage"
)

// DefaultMaxTurns is the per-conversation turn cap used when none is given.
const DefaultMaxTurns = 1000

type conversationKey struct {
	tenant string
	id     string
}

// conversation holds the turns of one conversation and its LRU position.
type conversation struct {
	turns   []api.Turn
	lruElem *list.Element
}

// Store is an in-memory HistoryStore.
type Store struct {
	mu               sync.Mutex
	conversations    map[conversationKey]*conversation
	lruList          *list.List // front = most recently used
	maxConversations int        // 0 = unlimited
	maxTurns         int
	now              func() time.Time
}

var _ storage.HistoryStore = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithMaxTurns caps the turns kept per conversation. Older turns are
// discarded first.
func WithMaxTurns(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxTurns = n
		}
	}
}

// WithClock sets the time source for turn timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates an in-memory store. If maxConversations is 0 the store grows
// without limit; otherwise the least recently used conversation is evicted
// when the limit is reached.
func New(maxConversations int, opts ...Option) *Store {
	s := &Store{
		conversations:    make(map[conversationKey]*conversation),
		lruList:          list.New(),
		maxConversations: maxConversations,
		maxTurns:         DefaultMaxTurns,
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetMessages returns the most recent turns of a conversation, oldest first.
func (s *Store) GetMessages(ctx context.Context, conversationID string, limit int) ([]api.Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.conversations[conversationKey{storage.GetTenant(ctx), conversationID}]
	if !ok {
		return nil, nil
	}
	s.lruList.MoveToFront(c.lruElem)

	turns := c.turns
	if limit > 0 && len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}
	out := make([]api.Turn, len(turns))
	copy(out, turns)
	return out, nil
}

// AddMessage appends a turn to a conversation, creating it if needed.
func (s *Store) AddMessage(ctx context.Context, conversationID string, role api.Role, content string) error {
	if err := storage.ValidateTurn(conversationID, role); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := conversationKey{storage.GetTenant(ctx), conversationID}
	c, ok := s.conversations[key]
	if !ok {
		if s.maxConversations > 0 && len(s.conversations) >= s.maxConversations {
			s.evictOldest()
		}
		c = &conversation{lruElem: s.lruList.PushFront(key)}
		s.conversations[key] = c
	} else {
		s.lruList.MoveToFront(c.lruElem)
	}

	c.turns = append(c.turns, api.Turn{Role: role, Content: content, CreatedAt: s.now()})
	if len(c.turns) > s.maxTurns {
		c.turns = append([]api.Turn(nil), c.turns[len(c.turns)-s.maxTurns:]...)
	}
	return nil
}

// Len returns the number of conversations held.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conversations)
}

// HealthCheck always returns nil for the in-memory store.
func (s *Store) HealthCheck(_ context.Context) error {
	return nil
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error {
	return nil
}

// evictOldest removes the least recently used conversation. Callers hold s.mu.
func (s *Store) evictOldest() {
	back := s.lruList.Back()
	if back == nil {
		return
	}
	key := back.Value.(conversationKey)
	s.lruList.Remove(back)
	delete(s.conversations, key)
}
