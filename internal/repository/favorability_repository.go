package repository

import (
	"context"
	"time"

	"companion-chat/backend/internal/favorability"
	"companion-chat/backend/internal/models"

	"gorm.io/gorm"
)

type FavorabilityRepository interface {
	Create(ctx context.Context, tracker *models.FavorabilityTracker) error
	GetByCharacter(ctx context.Context, characterID uint) (*models.FavorabilityTracker, error)
	// Increment counts one completed turn and recomputes the level. It reports
	// whether the level went up. A missing tracker is created at count 1 as
	// long as its character still exists; otherwise ErrNotFound.
	Increment(ctx context.Context, userID, characterID uint, at time.Time) (*models.FavorabilityTracker, bool, error)
}

type GormFavorabilityRepository struct {
	db *gorm.DB
}

func NewGormFavorabilityRepository(db *gorm.DB) *GormFavorabilityRepository {
	return &GormFavorabilityRepository{db: db}
}

func (r *GormFavorabilityRepository) Create(ctx context.Context, tracker *models.FavorabilityTracker) error {
	if tracker.CurrentLevel == 0 {
		tracker.CurrentLevel = int(favorability.LevelFor(tracker.MessageCount))
	}
	return r.db.WithContext(ctx).Create(tracker).Error
}

func (r *GormFavorabilityRepository) GetByCharacter(ctx context.Context, characterID uint) (*models.FavorabilityTracker, error) {
	var tracker models.FavorabilityTracker
	if err := r.db.WithContext(ctx).Where("character_id = ?", characterID).First(&tracker).Error; err != nil {
		return nil, mapErr(err)
	}
	return &tracker, nil
}

func (r *GormFavorabilityRepository) Increment(ctx context.Context, userID, characterID uint, at time.Time) (*models.FavorabilityTracker, bool, error) {
	var (
		result    models.FavorabilityTracker
		increased bool
	)
	at = at.UTC()

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.FavorabilityTracker{}).
			Where("character_id = ?", characterID).
			UpdateColumn("message_count", gorm.Expr("message_count + ?", 1))
		if res.Error != nil {
			return res.Error
		}

		if res.RowsAffected == 0 {
			if err := tx.Select("id").First(&models.Character{}, characterID).Error; err != nil {
				return mapErr(err)
			}
			fresh := models.FavorabilityTracker{
				UserID:       userID,
				CharacterID:  characterID,
				CurrentLevel: int(favorability.Level1),
			}
			fresh, _, increased = favorability.Advance(fresh)
			fresh.LastUpdated = at
			if err := tx.Create(&fresh).Error; err != nil {
				return err
			}
			result = fresh
			return nil
		}

		var row models.FavorabilityTracker
		if err := tx.Where("character_id = ?", characterID).First(&row).Error; err != nil {
			return err
		}
		// row carries the new count and the level stored before this turn
		row, increased = favorability.Recompute(row)
		row.LastUpdated = at

		err := tx.Model(&models.FavorabilityTracker{}).
			Where("id = ?", row.ID).
			UpdateColumns(map[string]any{
				"current_level": row.CurrentLevel,
				"last_updated":  row.LastUpdated,
			}).Error
		if err != nil {
			return err
		}
		result = row
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return &result, increased, nil
}
