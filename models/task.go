package models

import (
	"time"

	"gorm.io/gorm"
)

// Follow-up task types created by the action dispatcher
const (
	TaskTypeVisit    = "visit"
	TaskTypeProposal = "proposal"
	TaskTypeFollowUp = "follow_up"
)

// Task priorities
const (
	PriorityLow    = "low"
	PriorityNormal = "normal"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

// FollowUpTask is a scheduled human action (visit, proposal) surfaced on the
// operator dashboard.
type FollowUpTask struct {
	gorm.Model

	Type        string `gorm:"not null;index" json:"type"` // visit, proposal, follow_up
	Title       string `gorm:"not null" json:"title"`
	Description string `gorm:"type:text" json:"description"`

	DueDate  time.Time `gorm:"not null;index" json:"due_date"`
	Priority string    `gorm:"default:'normal'" json:"priority"`
	Status   string    `gorm:"default:'pending';index" json:"status"` // pending, done, cancelled

	ConversationID *uint `gorm:"index" json:"conversation_id,omitempty"`
	LeadID         *uint `gorm:"index" json:"lead_id,omitempty"`
	CustomerID     *uint `gorm:"index" json:"customer_id,omitempty"`
	AssignedToID   *uint `gorm:"index" json:"assigned_to_id,omitempty"`
}
