package models

import (
	"gorm.io/gorm"
)

// Channel types supported by the inbound pipeline
const (
	ChannelTypeWhatsApp  = "whatsapp"
	ChannelTypeInstagram = "instagram"
)

// Channel represents a configured messaging integration (WhatsApp Cloud API
// or Instagram Messaging). Channels are created by operators and are
// read-only to the webhook pipeline.
type Channel struct {
	gorm.Model

	Name string `gorm:"not null" json:"name"`
	Type string `gorm:"not null;index" json:"type"` // whatsapp, instagram

	// Provider credentials
	PhoneNumberID      string `gorm:"index" json:"phone_number_id"`      // WhatsApp only
	InstagramAccountID string `gorm:"index" json:"instagram_account_id"` // Instagram only
	AccessToken        string `json:"-"`
	VerifyToken        string `json:"-"`

	// Behavior
	WelcomeMessage string `gorm:"type:text" json:"welcome_message"`
	AIEnabled      bool   `gorm:"default:true" json:"ai_enabled"`
	IsActive       bool   `gorm:"default:true" json:"is_active"`

	// Relations
	Conversations []Conversation `gorm:"foreignKey:ChannelID" json:"conversations,omitempty"`
}
