package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/coralward/threadrelay/db/models"
	"gorm.io/gorm"
)

type Conversations struct {
	db *gorm.DB
}

func NewConversations(gdb *gorm.DB) *Conversations {
	return &Conversations{db: gdb}
}

// GetOrCreate returns the single conversation for (channelID, threadTS),
// creating it on first reference. Concurrent callers for the same pair may
// race on the insert; the composite unique index decides the winner and the
// loser re-reads the canonical row.
func (s *Conversations) GetOrCreate(ctx context.Context, channelID, threadTS string) (models.Conversation, error) {
	channelID = strings.TrimSpace(channelID)
	threadTS = strings.TrimSpace(threadTS)
	if channelID == "" {
		return models.Conversation{}, fmt.Errorf("channel_id is required")
	}
	if threadTS == "" {
		return models.Conversation{}, fmt.Errorf("thread_ts is required")
	}

	conv, err := s.find(ctx, channelID, threadTS)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Conversation{}, err
	}

	conv = models.Conversation{ChannelID: channelID, ThreadTS: threadTS}
	createErr := s.db.WithContext(ctx).Create(&conv).Error
	if createErr == nil {
		return conv, nil
	}
	if errors.Is(createErr, gorm.ErrDuplicatedKey) {
		return s.find(ctx, channelID, threadTS)
	}
	return models.Conversation{}, createErr
}

func (s *Conversations) find(ctx context.Context, channelID, threadTS string) (models.Conversation, error) {
	var conv models.Conversation
	err := s.db.WithContext(ctx).
		Where("channel_id = ? AND thread_ts = ?", channelID, threadTS).
		First(&conv).Error
	return conv, err
}
