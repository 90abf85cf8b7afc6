package models

import "time"

// Credential holds the bot token for one Slack workspace installation.
// One row per team, replaced in place on reinstall or token rotation.
type Credential struct {
	ID        uint   `gorm:"primaryKey"`
	TeamID    string `gorm:"size:100;uniqueIndex;not null"`
	BotToken  string `gorm:"size:255;not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Conversation groups messages by Slack channel and thread. The composite
// unique index is what keeps concurrent get-or-create calls on one row.
type Conversation struct {
	ID        uint   `gorm:"primaryKey"`
	ChannelID string `gorm:"size:100;uniqueIndex:idx_conversations_channel_thread;not null"`
	ThreadTS  string `gorm:"size:100;uniqueIndex:idx_conversations_channel_thread;not null"`
	CreatedAt time.Time
}

// Message is one ledger entry. MessageID doubles as the admission idempotency
// key for inbound messages ("slack_<event_ts>") and is globally unique.
type Message struct {
	ID             uint `gorm:"primaryKey"`
	ConversationID uint `gorm:"index:idx_messages_conversation_created;not null"`
	Content        string
	UserID         string `gorm:"size:100"`
	IsBot          bool
	MessageID      string `gorm:"size:100;uniqueIndex;not null"`
	Processed      bool
	CreatedAt      time.Time `gorm:"index:idx_messages_conversation_created"`
}
