package processor

import (
	"strings"

	"github.com/google/uuid"
)

// MentionEvent is one decoded app_mention delivery.
type MentionEvent struct {
	TeamID    string
	ChannelID string
	UserID    string
	Text      string
	EventTS   string
	ThreadTS  string
}

// Thread returns the thread the reply belongs to. A mention that starts a
// thread has no thread_ts; its own ts becomes the thread root.
func (e MentionEvent) Thread() string {
	if ts := strings.TrimSpace(e.ThreadTS); ts != "" {
		return ts
	}
	return strings.TrimSpace(e.EventTS)
}

// EventKey derives the admission idempotency key from the platform-assigned
// event timestamp, so a redelivery maps to the same key.
func EventKey(eventTS string) string {
	return "slack_" + strings.TrimSpace(eventTS)
}

// NewBotMessageID generates a fresh unique ledger id for an outbound message.
func NewBotMessageID() string {
	return "msg_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}
