package repository

import (
	"context"
	"time"

	"companion-chat/backend/internal/models"

	"gorm.io/gorm"
)

type UserRepository interface {
	GetOrCreate(ctx context.Context, username string) (*models.User, error)
	Get(ctx context.Context, id uint) (*models.User, error)
	TouchLastActive(ctx context.Context, id uint, at time.Time) error
	// Delete removes the user together with every character it owns
	Delete(ctx context.Context, id uint) error
}

type GormUserRepository struct {
	db *gorm.DB
}

func NewGormUserRepository(db *gorm.DB) *GormUserRepository {
	return &GormUserRepository{db: db}
}

func (r *GormUserRepository) GetOrCreate(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).
		Where(models.User{Username: username}).
		FirstOrCreate(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *GormUserRepository) Get(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, mapErr(err)
	}
	return &user, nil
}

func (r *GormUserRepository) TouchLastActive(ctx context.Context, id uint, at time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", id).
		UpdateColumn("last_active", at.UTC())
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *GormUserRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.First(&user, id).Error; err != nil {
			return mapErr(err)
		}

		var characterIDs []uint
		if err := tx.Model(&models.Character{}).Where("user_id = ?", id).Pluck("id", &characterIDs).Error; err != nil {
			return err
		}
		for _, cid := range characterIDs {
			if err := deleteCharacterRows(tx, cid); err != nil {
				return err
			}
		}

		return tx.Delete(&models.User{}, id).Error
	})
}
