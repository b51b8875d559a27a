package repository

import (
	"time"

	"fightzone/backend/internal/models"

	"gorm.io/gorm"
)

// MessageRepository is the persistence boundary for chat messages
type MessageRepository interface {
	Create(message *models.ChatMessage) error
	Recent(room string, limit int) ([]models.ChatMessage, error)
	Since(room string, after time.Time, limit int) ([]models.ChatMessage, error)
}

type GormMessageRepository struct {
	db *gorm.DB
}

func NewGormMessageRepository(db *gorm.DB) *GormMessageRepository {
	return &GormMessageRepository{db: db}
}

func (r *GormMessageRepository) Create(message *models.ChatMessage) error {
	return r.db.Create(message).Error
}

// Recent returns the latest messages of a room in ascending order, ready
// to render top to bottom
func (r *GormMessageRepository) Recent(room string, limit int) ([]models.ChatMessage, error) {
	var messages []models.ChatMessage
	err := r.db.Where("room = ?", models.NormalizeRoom(room)).
		Order("created_at DESC").
		Limit(limit).
		Find(&messages).Error
	if err != nil {
		return nil, err
	}

	// Flip newest-first into chronological order
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// Since returns messages created strictly after the given watermark,
// oldest first. Strictly-greater keeps pollers from re-reading the row
// the watermark came from.
func (r *GormMessageRepository) Since(room string, after time.Time, limit int) ([]models.ChatMessage, error) {
	var messages []models.ChatMessage
	err := r.db.Where("room = ? AND created_at > ?", models.NormalizeRoom(room), after).
		Order("created_at ASC").
		Limit(limit).
		Find(&messages).Error
	return messages, err
}
