package models

import (
	"time"

	"gorm.io/gorm"
)

// Scheduled message statuses
const (
	ScheduledPending   = "pending"
	ScheduledSent      = "sent"
	ScheduledSkipped   = "skipped"
	ScheduledCancelled = "cancelled"
)

// ScheduledMessage is a durable delayed follow-up (e.g. the financing
// simulation pacing message). Rows survive process restarts and are
// delivered by the scheduler worker; a row whose conversation has left the
// open set is skipped instead of delivered.
type ScheduledMessage struct {
	gorm.Model

	ConversationID uint   `gorm:"not null;index" json:"conversation_id"`
	Content        string `gorm:"type:text;not null" json:"content"`

	DeliverAt time.Time `gorm:"not null;index" json:"deliver_at"`
	Status    string    `gorm:"default:'pending';index" json:"status"` // pending, sent, skipped, cancelled
}
