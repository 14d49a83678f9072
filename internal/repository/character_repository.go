package repository

import (
	"context"
	"time"

	"companion-chat/backend/internal/models"

	"gorm.io/gorm"
)

type CharacterRepository interface {
	// Create stores the character and its level 1 tracker in one transaction
	Create(ctx context.Context, character *models.Character) error
	Get(ctx context.Context, id uint) (*models.Character, error)
	// ListByUser returns the user's characters newest first
	ListByUser(ctx context.Context, userID uint) ([]models.Character, error)
	// Delete removes the character, its messages and its tracker
	Delete(ctx context.Context, id uint) error
}

type GormCharacterRepository struct {
	db *gorm.DB
}

func NewGormCharacterRepository(db *gorm.DB) *GormCharacterRepository {
	return &GormCharacterRepository{db: db}
}

func (r *GormCharacterRepository) Create(ctx context.Context, character *models.Character) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(character).Error; err != nil {
			return err
		}
		tracker := models.FavorabilityTracker{
			UserID:       character.UserID,
			CharacterID:  character.ID,
			CurrentLevel: 1,
			MessageCount: 0,
			LastUpdated:  time.Now().UTC(),
		}
		return tx.Create(&tracker).Error
	})
}

func (r *GormCharacterRepository) Get(ctx context.Context, id uint) (*models.Character, error) {
	var character models.Character
	if err := r.db.WithContext(ctx).First(&character, id).Error; err != nil {
		return nil, mapErr(err)
	}
	return &character, nil
}

func (r *GormCharacterRepository) ListByUser(ctx context.Context, userID uint) ([]models.Character, error) {
	var characters []models.Character
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Order("id DESC").
		Find(&characters).Error
	return characters, err
}

func (r *GormCharacterRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var character models.Character
		if err := tx.First(&character, id).Error; err != nil {
			return mapErr(err)
		}
		return deleteCharacterRows(tx, id)
	})
}

// deleteCharacterRows removes everything hanging off a character, then the
// character itself. It must run inside a transaction.
func deleteCharacterRows(tx *gorm.DB, characterID uint) error {
	if err := tx.Where("character_id = ?", characterID).Delete(&models.Message{}).Error; err != nil {
		return err
	}
	if err := tx.Where("character_id = ?", characterID).Delete(&models.FavorabilityTracker{}).Error; err != nil {
		return err
	}
	return tx.Delete(&models.Character{}, characterID).Error
}
