package repository

import (
	"fmt"

	"gorm.io/gorm"

	"docchat/internal/model"
)

const (
	defaultHistoryLimit = 100
	maxHistoryLimit     = 200
)

type TranscriptRepository struct {
	db *gorm.DB
}

func NewTranscriptRepository(db *gorm.DB) *TranscriptRepository {
	return &TranscriptRepository{db: db}
}

func (r *TranscriptRepository) Create(msg *model.TranscriptMessage) error {
	if err := r.db.Create(msg).Error; err != nil {
		return fmt.Errorf("create transcript message failed: %w", err)
	}
	return nil
}

// ListByConversation returns the newest limit messages of one conversation in
// chronological order.
func (r *TranscriptRepository) ListByConversation(subject, conversationKey string, limit int) ([]model.TranscriptMessage, error) {
	if limit <= 0 || limit > maxHistoryLimit {
		limit = defaultHistoryLimit
	}

	var messages []model.TranscriptMessage
	err := r.db.
		Where("subject = ? AND conversation_key = ?", subject, conversationKey).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&messages).Error
	if err != nil {
		return nil, fmt.Errorf("list transcript messages failed: %w", err)
	}

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

func (r *TranscriptRepository) DeleteConversation(subject, conversationKey string) error {
	err := r.db.
		Where("subject = ? AND conversation_key = ?", subject, conversationKey).
		Delete(&model.TranscriptMessage{}).Error
	if err != nil {
		return fmt.Errorf("delete transcript messages failed: %w", err)
	}
	return nil
}
