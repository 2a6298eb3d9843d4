// Package confirm holds pending destructive-action confirmations, at most one
// per conversation, and resolves them into execution or cancellation.
package confirm

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/rhuss/steward/pkg/api"
)

// ErrAlreadyPending is returned by Store.Set under PolicyReject when the
// conversation already has a pending confirmation.
var ErrAlreadyPending = errors.New("a confirmation is already pending for this conversation")

// ErrInvalidConfirmation is returned for confirmations without a
// conversation id or tool name.
var ErrInvalidConfirmation = errors.New("invalid confirmation")

// Policy decides what Set does when a confirmation is already pending.
type Policy string

const (
	// PolicyOverwrite replaces the pending confirmation and logs a warning.
	PolicyOverwrite Policy = "overwrite"

	// PolicyReject keeps the pending confirmation and returns ErrAlreadyPending.
	PolicyReject Policy = "reject"
)

// Store maps conversation ids to their pending confirmation. Distinct
// conversations never contend.
type Store struct {
	pending sync.Map // conversation id -> *api.PendingConfirmation
	policy  Policy
	logger  *slog.Logger
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithPolicy sets the behavior for a second Set on the same conversation.
func WithPolicy(p Policy) StoreOption {
	return func(s *Store) {
		if p == PolicyReject || p == PolicyOverwrite {
			s.policy = p
		}
	}
}

// WithStoreLogger sets the logger.
func WithStoreLogger(l *slog.Logger) StoreOption {
	return func(s *Store) { s.logger = l }
}

// NewStore creates an empty store with PolicyOverwrite.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{policy: PolicyOverwrite, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Set records p as the pending confirmation of the conversation.
func (s *Store) Set(conversationID string, p api.PendingConfirmation) error {
	if conversationID == "" {
		return errors.Join(ErrInvalidConfirmation, errors.New("conversation id is empty"))
	}
	if p.ToolName == "" {
		return errors.Join(ErrInvalidConfirmation, errors.New("tool name is empty"))
	}

	entry := &p
	if s.policy == PolicyReject {
		if _, loaded := s.pending.LoadOrStore(conversationID, entry); loaded {
			return ErrAlreadyPending
		}
		return nil
	}

	if prev, loaded := s.pending.Swap(conversationID, entry); loaded {
		s.logger.Warn("replacing pending confirmation",
			"conversation_id", conversationID,
			"previous_tool", prev.(*api.PendingConfirmation).ToolName,
			"tool", p.ToolName,
		)
	}
	return nil
}

// Take removes and returns the pending confirmation. A second Take for the
// same conversation reports false.
func (s *Store) Take(conversationID string) (api.PendingConfirmation, bool) {
	v, ok := s.pending.LoadAndDelete(conversationID)
	if !ok {
		return api.PendingConfirmation{}, false
	}
	return *v.(*api.PendingConfirmation), true
}

// TakeIf removes and returns the pending confirmation when allow accepts
// it. found reports whether anything was pending; an entry allow refuses
// stays pending and taken is false. An entry replaced concurrently is
// checked again.
func (s *Store) TakeIf(conversationID string, allow func(api.PendingConfirmation) bool) (p api.PendingConfirmation, found, taken bool) {
	for {
		v, ok := s.pending.Load(conversationID)
		if !ok {
			return api.PendingConfirmation{}, false, false
		}
		p = *v.(*api.PendingConfirmation)
		if !allow(p) {
			return p, true, false
		}
		if s.pending.CompareAndDelete(conversationID, v) {
			return p, true, true
		}
	}
}

// Peek returns the pending confirmation without consuming it.
func (s *Store) Peek(conversationID string) (api.PendingConfirmation, bool) {
	v, ok := s.pending.Load(conversationID)
	if !ok {
		return api.PendingConfirmation{}, false
	}
	return *v.(*api.PendingConfirmation), true
}
