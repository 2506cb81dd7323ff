package models

import (
	"gorm.io/gorm"
)

// Automation rule triggers evaluated after each processed message
const (
	TriggerMessageReceived     = "message_received"
	TriggerNewLead             = "new_lead"
	TriggerConversationStarted = "conversation_started"
)

// AutomationRule binds a trigger to an externally executed function. Rules
// are operator configuration; the pipeline evaluates them but does not own
// their execution.
type AutomationRule struct {
	gorm.Model

	Name           string `gorm:"not null" json:"name"`
	Trigger        string `gorm:"not null;index" json:"trigger"` // message_received, new_lead, conversation_started
	TargetFunction string `gorm:"not null" json:"target_function"`
	Active         bool   `gorm:"default:true;index" json:"active"`
}
