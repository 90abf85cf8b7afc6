package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/coralward/threadrelay/db/models"
	"gorm.io/gorm"
)

// DefaultWindow bounds how much conversation history goes into the prompt.
const DefaultWindow = 5

type Messages struct {
	db *gorm.DB
}

func NewMessages(gdb *gorm.DB) *Messages {
	return &Messages{db: gdb}
}

// Exists reports whether a message with messageID was ever admitted, across
// all conversations. It is a pre-check only; Append's unique constraint is the
// actual admission guard under concurrent delivery.
func (s *Messages) Exists(ctx context.Context, messageID string) (bool, error) {
	messageID = strings.TrimSpace(messageID)
	if messageID == "" {
		return false, fmt.Errorf("message_id is required")
	}
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("message_id = ?", messageID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Append inserts a ledger entry for conv. A unique-key violation on messageID
// comes back as ErrDuplicateMessage so callers can short-circuit redeliveries.
func (s *Messages) Append(ctx context.Context, conv models.Conversation, content, userID string, isBot bool, messageID string, processed bool) (models.Message, error) {
	messageID = strings.TrimSpace(messageID)
	if conv.ID == 0 {
		return models.Message{}, fmt.Errorf("conversation is required")
	}
	if messageID == "" {
		return models.Message{}, fmt.Errorf("message_id is required")
	}
	msg := models.Message{
		ConversationID: conv.ID,
		Content:        content,
		UserID:         userID,
		IsBot:          isBot,
		MessageID:      messageID,
		Processed:      processed,
	}
	err := s.db.WithContext(ctx).Create(&msg).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return models.Message{}, fmt.Errorf("%w: %s", ErrDuplicateMessage, messageID)
	}
	if err != nil {
		return models.Message{}, err
	}
	return msg, nil
}

// RecentWindow returns up to limit newest messages of conv in chronological
// (oldest-first) order. The secondary id ordering keeps messages created in
// the same timestamp tick in insertion order.
func (s *Messages) RecentWindow(ctx context.Context, conv models.Conversation, limit int) ([]models.Message, error) {
	if conv.ID == 0 {
		return nil, fmt.Errorf("conversation is required")
	}
	if limit <= 0 {
		limit = DefaultWindow
	}
	var msgs []models.Message
	err := s.db.WithContext(ctx).
		Where("conversation_id = ?", conv.ID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&msgs).Error
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// MarkProcessed flips the processed flag for the matching message. Idempotent;
// the predicate is scoped to conv as defense in depth even though message ids
// are globally unique.
func (s *Messages) MarkProcessed(ctx context.Context, conv models.Conversation, messageID string) error {
	messageID = strings.TrimSpace(messageID)
	if conv.ID == 0 {
		return fmt.Errorf("conversation is required")
	}
	if messageID == "" {
		return fmt.Errorf("message_id is required")
	}
	return s.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("conversation_id = ? AND message_id = ?", conv.ID, messageID).
		Update("processed", true).Error
}
