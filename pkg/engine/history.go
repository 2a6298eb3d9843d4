package engine

import (
	"github.com/rhuss/steward/pkg/api"
	"github.com/rhuss/steward/pkg/provider"
)

// turnsToMessages converts stored turns into provider messages, preceded by
// the system instructions. Turns with unknown roles are skipped.
func turnsToMessages(instructions string, turns []api.Turn) []provider.ProviderMessage {
	messages := make([]provider.ProviderMessage, 0, len(turns)+1)
	if instructions != "" {
		messages = append(messages, provider.ProviderMessage{
			Role:    provider.RoleSystem,
			Content: instructions,
		})
	}
	for _, t := range turns {
		switch t.Role {
		case api.RoleUser:
			messages = append(messages, provider.ProviderMessage{Role: provider.RoleUser, Content: t.Content})
		case api.RoleAssistant:
			messages = append(messages, provider.ProviderMessage{Role: provider.RoleAssistant, Content: t.Content})
		}
	}
	return messages
}
