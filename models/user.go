package models

import (
	"gorm.io/gorm"
)

// User represents a staff account (operators and admins). Admins receive
// notification fan-out from the action dispatcher.
type User struct {
	gorm.Model

	Email        string `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string `gorm:"not null" json:"-"`
	Name         string `json:"name"`

	IsActive bool `gorm:"default:true" json:"is_active"`
	IsAdmin  bool `gorm:"default:false" json:"is_admin"`

	Notifications []Notification `gorm:"foreignKey:UserID" json:"notifications,omitempty"`
}
