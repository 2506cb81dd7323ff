package models

import (
	"gorm.io/gorm"
)

// Notification is one fan-out record per staff member, created when a
// proactive action needs human attention.
type Notification struct {
	gorm.Model

	UserID uint `gorm:"not null;index" json:"user_id"`

	Kind  string `gorm:"default:'pipeline'" json:"kind"`
	Title string `gorm:"not null" json:"title"`
	Body  string `gorm:"type:text" json:"body"`

	ConversationID *uint `gorm:"index" json:"conversation_id,omitempty"`
	Read           bool  `gorm:"default:false;index" json:"read"`
}
