package models

import (
	"time"
)

// FavorabilityTracker holds the relationship metric for one character.
// CurrentLevel is always derived from MessageCount and never set on its own.
type FavorabilityTracker struct {
	ID           uint      `json:"tracking_id" gorm:"primaryKey"`
	UserID       uint      `json:"user_id" gorm:"not null;index"`
	CharacterID  uint      `json:"character_id" gorm:"not null;uniqueIndex"`
	CurrentLevel int       `json:"current_level" gorm:"not null;default:1"`
	MessageCount int       `json:"message_count" gorm:"not null;default:0"`
	LastUpdated  time.Time `json:"last_updated"`
}

// TableName overrides the table name
func (FavorabilityTracker) TableName() string {
	return "favorability_tracking"
}
