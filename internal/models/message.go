package models

import (
	"time"
)

// Message is one utterance in a character's timeline. SpeakerName is either
// the user's name or the character's name. FavorabilityLevel is the level in
// effect when the message was recorded.
type Message struct {
	ID                uint      `json:"message_id" gorm:"primaryKey"`
	UserID            uint      `json:"user_id" gorm:"not null;index"`
	CharacterID       uint      `json:"character_id" gorm:"not null;index:idx_messages_character_ts,priority:1"`
	SpeakerName       string    `json:"speaker_name" gorm:"size:50;not null"`
	Content           string    `json:"content" gorm:"type:text;not null"`
	Timestamp         time.Time `json:"timestamp" gorm:"not null;index:idx_messages_character_ts,priority:2"`
	FavorabilityLevel int       `json:"favorability_level" gorm:"not null;default:1"`
}

// SendMessageRequest is the request body for a conversation turn
type SendMessageRequest struct {
	UserID      uint   `json:"user_id" binding:"required"`
	CharacterID uint   `json:"character_id" binding:"required"`
	Message     string `json:"message" binding:"required"`
}
