package api

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
)

const conversationIDPrefix = "conv_"

// Conversation ids are chosen by transports (chat room ids, session ids),
// so only length and charset are constrained.
var conversationIDPattern = regexp.MustCompile(`^[A-Za-z0-9._:@!#+=-]{1,128}$`)

// NewConversationID generates a conversation ID with the "conv_" prefix
// followed by a random UUID without dashes.
func NewConversationID() string {
	return conversationIDPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// ValidateConversationID reports whether id is usable as a conversation key.
func ValidateConversationID(id string) bool {
	return conversationIDPattern.MatchString(id)
}
