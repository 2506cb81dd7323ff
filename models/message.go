package models

import (
	"time"

	"gorm.io/gorm"
)

// Message sender kinds
const (
	SenderContact    = "contact"
	SenderSystem     = "system"
	SenderAI         = "ai"
	SenderHumanAgent = "human_agent"
)

// Delivery statuses for recorded messages
const (
	DeliveryReceived = "received"
	DeliveryPending  = "pending"
	DeliverySent     = "sent"
	DeliveryFailed   = "failed"
)

// Message is an immutable record of one message inside a conversation.
// Ordering is by SentAt (provider timestamp), not by insertion order.
type Message struct {
	gorm.Model

	ConversationID uint `gorm:"not null;index" json:"conversation_id"`

	SenderKind string `gorm:"not null" json:"sender_kind"` // contact, system, ai, human_agent
	SenderID   string `json:"sender_id"`
	SenderName string `json:"sender_name"`

	Content     string `gorm:"type:text" json:"content"`
	ContentType string `gorm:"default:'text'" json:"content_type"`

	// ExternalMessageID is the provider-assigned id, used for re-delivery
	// dedup and traceability. Empty for messages originated by the system.
	ExternalMessageID string `gorm:"index" json:"external_message_id"`

	DeliveryStatus string    `gorm:"default:'received'" json:"delivery_status"`
	SentAt         time.Time `gorm:"not null;index" json:"sent_at"`
}
