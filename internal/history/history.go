// Package history turns a ledger window into the role-tagged prompt sequence
// sent to the completion backend.
package history

import (
	"github.com/coralward/threadrelay/db/models"
	"github.com/coralward/threadrelay/llm"
)

const systemPrompt = "You are a helpful assistant in a Slack channel. " +
	"Respond concisely and professionally while maintaining context from the conversation history. " +
	"When your answer draws on earlier messages in the thread, say that you are recalling them."

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Format maps each message to a user or assistant turn, preserving order, with
// the fixed system instruction prepended. Total over any input, including nil.
func Format(messages []models.Message) []llm.Message {
	out := make([]llm.Message, 0, len(messages)+1)
	out = append(out, llm.Message{Role: RoleSystem, Content: systemPrompt})
	for _, m := range messages {
		role := RoleUser
		if m.IsBot {
			role = RoleAssistant
		}
		out = append(out, llm.Message{Role: role, Content: m.Content})
	}
	return out
}
