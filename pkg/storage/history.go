package storage

import (
	"context"
	"fmt"

	"github.com/rhuss/steward/pkg/api"
)

// HistoryStore persists conversation turns.
type HistoryStore interface {
	// GetMessages returns at most limit of the most recent turns of the
	// conversation, oldest first. An unknown conversation yields no turns.
	// A limit of zero or less returns the whole conversation.
	GetMessages(ctx context.Context, conversationID string, limit int) ([]api.Turn, error)

	// AddMessage appends one turn to the conversation.
	AddMessage(ctx context.Context, conversationID string, role api.Role, content string) error

	// HealthCheck verifies the store is usable.
	HealthCheck(ctx context.Context) error

	// Close releases resources held by the store.
	Close() error
}

// ValidateTurn checks the arguments of AddMessage.
func ValidateTurn(conversationID string, role api.Role) error {
	if conversationID == "" {
		return ErrEmptyConversationID
	}
	if !role.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}
	return nil
}
