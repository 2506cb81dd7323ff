package models

import (
	"time"

	"gorm.io/gorm"
)

// Lead represents a prospect captured before becoming a customer. The
// pipeline creates leads when the classifier recommends it; everything else
// about the lead lifecycle belongs to the CRM.
type Lead struct {
	gorm.Model

	Name  string `gorm:"not null" json:"name"`
	Phone string `gorm:"index" json:"phone"`
	Email string `gorm:"index" json:"email"`

	Source   string  `gorm:"default:'manual'" json:"source"` // manual, whatsapp, instagram
	Interest string  `json:"interest"`
	Budget   float64 `json:"budget"`
	City     string  `json:"city"`

	Status string `gorm:"default:'new';index" json:"status"` // new, contacted, qualified, converted, lost

	Activities []LeadActivity `gorm:"foreignKey:LeadID" json:"activities,omitempty"`
}

// LeadActivity is an append-only provenance/history entry for a lead.
type LeadActivity struct {
	gorm.Model

	LeadID uint `gorm:"not null;index" json:"lead_id"`

	ActivityType string    `gorm:"not null" json:"activity_type"` // created, note, ai_capture, status_change
	ActivityAt   time.Time `gorm:"not null" json:"activity_at"`
	Details      string    `gorm:"type:text" json:"details"`
}
