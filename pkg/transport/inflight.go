package transport

import (
	"context"
	"sync"
)

// InFlightRegistry tracks running turns by conversation id so they can be
// cancelled from another request. A conversation may have several turns in
// flight at once; Cancel stops all of them.
type InFlightRegistry struct {
	mu      sync.Mutex
	nextID  uint64
	entries map[string]map[uint64]context.CancelFunc
}

// NewInFlightRegistry creates an empty registry.
func NewInFlightRegistry() *InFlightRegistry {
	return &InFlightRegistry{entries: make(map[string]map[uint64]context.CancelFunc)}
}

// Register records a running turn. The returned release func must be called
// when the turn ends; it does not cancel the turn.
func (r *InFlightRegistry) Register(conversationID string, cancel context.CancelFunc) (release func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	id := r.nextID
	turns := r.entries[conversationID]
	if turns == nil {
		turns = make(map[uint64]context.CancelFunc)
		r.entries[conversationID] = turns
	}
	turns[id] = cancel

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if turns, ok := r.entries[conversationID]; ok {
			delete(turns, id)
			if len(turns) == 0 {
				delete(r.entries, conversationID)
			}
		}
	}
}

// Cancel cancels every running turn of the conversation and returns how
// many were cancelled.
func (r *InFlightRegistry) Cancel(conversationID string) int {
	r.mu.Lock()
	turns := r.entries[conversationID]
	delete(r.entries, conversationID)
	r.mu.Unlock()

	for _, cancel := range turns {
		cancel()
	}
	return len(turns)
}

// Len returns the number of running turns.
func (r *InFlightRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, turns := range r.entries {
		n += len(turns)
	}
	return n
}
