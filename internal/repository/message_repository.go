package repository

import (
	"context"

	"companion-chat/backend/internal/models"

	"gorm.io/gorm"
)

type MessageRepository interface {
	// Append stores the message. Its timestamp is clamped so a character's
	// timeline never goes backwards.
	Append(ctx context.Context, message *models.Message) error
	// ListByCharacter returns the last limit messages in chronological order,
	// or all of them when limit <= 0.
	ListByCharacter(ctx context.Context, characterID uint, limit int) ([]models.Message, error)
	Count(ctx context.Context, characterID uint) (int64, error)
	// First returns the character's earliest message
	First(ctx context.Context, characterID uint) (*models.Message, error)
}

type GormMessageRepository struct {
	db *gorm.DB
}

func NewGormMessageRepository(db *gorm.DB) *GormMessageRepository {
	return &GormMessageRepository{db: db}
}

func (r *GormMessageRepository) Append(ctx context.Context, message *models.Message) error {
	message.Timestamp = message.Timestamp.UTC()

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var last models.Message
		err := tx.Where("character_id = ?", message.CharacterID).
			Order("timestamp DESC").
			Order("id DESC").
			Limit(1).
			Find(&last).Error
		if err != nil {
			return err
		}
		if last.ID != 0 && message.Timestamp.Before(last.Timestamp) {
			message.Timestamp = last.Timestamp.UTC()
		}
		return tx.Create(message).Error
	})
}

func (r *GormMessageRepository) ListByCharacter(ctx context.Context, characterID uint, limit int) ([]models.Message, error) {
	var messages []models.Message

	if limit <= 0 {
		err := r.db.WithContext(ctx).
			Where("character_id = ?", characterID).
			Order("timestamp ASC").
			Order("id ASC").
			Find(&messages).Error
		return messages, err
	}

	err := r.db.WithContext(ctx).
		Where("character_id = ?", characterID).
		Order("timestamp DESC").
		Order("id DESC").
		Limit(limit).
		Find(&messages).Error
	if err != nil {
		return nil, err
	}

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

func (r *GormMessageRepository) Count(ctx context.Context, characterID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("character_id = ?", characterID).
		Count(&count).Error
	return count, err
}

func (r *GormMessageRepository) First(ctx context.Context, characterID uint) (*models.Message, error) {
	var message models.Message
	err := r.db.WithContext(ctx).
		Where("character_id = ?", characterID).
		Order("timestamp ASC").
		Order("id ASC").
		First(&message).Error
	if err != nil {
		return nil, mapErr(err)
	}
	return &message, nil
}
