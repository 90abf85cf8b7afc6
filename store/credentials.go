package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/coralward/threadrelay/db/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Credentials struct {
	db *gorm.DB
}

func NewCredentials(gdb *gorm.DB) *Credentials {
	return &Credentials{db: gdb}
}

// Upsert inserts or replaces the bot token for teamID. Last write wins.
func (s *Credentials) Upsert(ctx context.Context, teamID, botToken string) error {
	teamID = strings.TrimSpace(teamID)
	botToken = strings.TrimSpace(botToken)
	if teamID == "" {
		return fmt.Errorf("team_id is required")
	}
	if botToken == "" {
		return fmt.Errorf("bot_token is required")
	}
	cred := models.Credential{TeamID: teamID, BotToken: botToken}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "team_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"bot_token", "updated_at"}),
	}).Create(&cred).Error
}

// Lookup returns the current bot token for teamID, or ErrCredentialNotFound.
func (s *Credentials) Lookup(ctx context.Context, teamID string) (string, error) {
	teamID = strings.TrimSpace(teamID)
	if teamID == "" {
		return "", fmt.Errorf("team_id is required")
	}
	var cred models.Credential
	err := s.db.WithContext(ctx).Where("team_id = ?", teamID).First(&cred).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", fmt.Errorf("%w: team %s", ErrCredentialNotFound, teamID)
	}
	if err != nil {
		return "", err
	}
	return cred.BotToken, nil
}
