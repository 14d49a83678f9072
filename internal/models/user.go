package models

import (
	"time"

	"gorm.io/gorm"
)

// User is the identity anchor for generated characters. Users are created the
// first time a character is generated for a name and only LastActive changes.
type User struct {
	ID         uint      `gorm:"primaryKey" json:"user_id"`
	Username   string    `gorm:"size:50;not null;uniqueIndex" json:"username"`
	CreatedAt  time.Time `json:"created_at"`
	LastActive time.Time `json:"last_active"`
}

// BeforeCreate is a GORM hook that stamps LastActive on insert
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.LastActive.IsZero() {
		u.LastActive = time.Now().UTC()
	}
	return nil
}
