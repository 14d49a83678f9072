package models

import (
	"time"
)

// Field limits for generated characters
const (
	MaxIdentityLength      = 200
	MaxDetailSettingLength = 500
)

// Character is one generated persona owned by exactly one user. It is
// immutable after creation; deletion cascades to messages and the tracker.
type Character struct {
	ID            uint              `json:"character_id" gorm:"primaryKey"`
	UserID        uint              `json:"user_id" gorm:"not null;index"`
	Name          string            `json:"name" gorm:"size:50;not null"`
	Gender        string            `json:"gender" gorm:"size:50;not null"`
	Identity      string            `json:"identity" gorm:"size:200"`
	Nickname      string            `json:"nickname" gorm:"size:50"`
	DetailSetting string            `json:"detail_setting" gorm:"type:text"`
	Settings      CharacterSettings `json:"other_setting" gorm:"type:text;serializer:json"`
	CreatedAt     time.Time         `json:"created_at"`
}

// DreamType describes the partner the user would like to talk to
type DreamType struct {
	TalkingStyle        string   `json:"talking_style" binding:"required"`
	AgeRange            string   `json:"age_range,omitempty"`
	Occupation          string   `json:"occupation,omitempty"`
	PhysicalDescription string   `json:"physical_description,omitempty"`
	Interests           []string `json:"interests,omitempty"`
}

// CustomMemory is what the user tells the character about themselves
type CustomMemory struct {
	Likes    map[string][]string `json:"likes,omitempty"`
	Dislikes map[string][]string `json:"dislikes,omitempty"`
	Habits   map[string][]string `json:"habits,omitempty"`
}

// UserProfile is the request body for character generation
type UserProfile struct {
	UserName     string       `json:"user_name" binding:"required"`
	DreamType    DreamType    `json:"dream_type" binding:"required"`
	CustomMemory CustomMemory `json:"custom_memory"`
}

// CharacterSummary is the list view of a character
type CharacterSummary struct {
	ID           uint      `json:"character_id"`
	Name         string    `json:"name"`
	Nickname     string    `json:"nickname"`
	CreatedAt    time.Time `json:"created_at"`
	Favorability int       `json:"favorability"`
}
