// Package repository persists users, characters, messages and favorability
// trackers through gorm. Every method takes a context and acquires its
// connection from the pool for the duration of the call only.
package repository

import (
	"errors"

	"companion-chat/backend/internal/models"

	"gorm.io/gorm"
)

// ErrNotFound is returned when a requested row does not exist
var ErrNotFound = errors.New("record not found")

// Migrate creates or updates the tables for every model
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Character{},
		&models.Message{},
		&models.FavorabilityTracker{},
	)
}

func mapErr(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
