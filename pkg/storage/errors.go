package storage

import "errors"

// Sentinel errors for storage operations.
var (
	// ErrInvalidRole is returned when a turn has a role other than user or
	// assistant.
	ErrInvalidRole = errors.New("invalid turn role")

	// ErrEmptyConversationID is returned when a conversation id is empty.
	ErrEmptyConversationID = errors.New("conversation id is empty")
)
