package models

import (
	"time"

	"gorm.io/gorm"
)

// Customer is an established CRM contact, usually someone with at least one
// signed contract. The pipeline links conversations to customers by phone
// match but never creates or deletes them.
type Customer struct {
	gorm.Model

	Name  string `gorm:"not null" json:"name"`
	Phone string `gorm:"index" json:"phone"`
	Email string `gorm:"index" json:"email"`

	Document string `json:"document"`
	City     string `json:"city"`

	Negotiations   []Negotiation     `gorm:"foreignKey:CustomerID" json:"negotiations,omitempty"`
	Payments       []CustomerPayment `gorm:"foreignKey:CustomerID" json:"payments,omitempty"`
	Units          []Unit            `gorm:"foreignKey:CustomerID" json:"units,omitempty"`
	PortalMessages []PortalMessage   `gorm:"foreignKey:CustomerID" json:"portal_messages,omitempty"`
}

// Negotiation tracks an ongoing or past deal for a customer.
type Negotiation struct {
	gorm.Model

	CustomerID uint    `gorm:"not null;index" json:"customer_id"`
	ListingID  *uint   `json:"listing_id,omitempty"`
	Status     string  `gorm:"default:'open'" json:"status"` // open, won, lost
	Value      float64 `json:"value"`
	Notes      string  `gorm:"type:text" json:"notes"`
}

// Payment statuses used when summarizing a customer's financial situation.
const (
	PaymentPending = "pending"
	PaymentOverdue = "overdue"
	PaymentPaid    = "paid"
)

// CustomerPayment is an installment owed or paid by a customer.
type CustomerPayment struct {
	gorm.Model

	CustomerID uint       `gorm:"not null;index" json:"customer_id"`
	Amount     float64    `gorm:"not null" json:"amount"`
	DueDate    time.Time  `gorm:"index" json:"due_date"`
	Status     string     `gorm:"default:'pending';index" json:"status"` // pending, overdue, paid
	PaidAt     *time.Time `json:"paid_at,omitempty"`
}

// Unit is a lot owned by (or reserved for) a customer.
type Unit struct {
	gorm.Model

	CustomerID uint   `gorm:"not null;index" json:"customer_id"`
	ListingID  *uint  `json:"listing_id,omitempty"`
	Identifier string `gorm:"not null" json:"identifier"` // block/lot code
	Status     string `gorm:"default:'reserved'" json:"status"`
}

// PortalMessage is a message the customer sent through the self-service
// portal, surfaced to the classifier as CRM history.
type PortalMessage struct {
	gorm.Model

	CustomerID uint   `gorm:"not null;index" json:"customer_id"`
	Subject    string `json:"subject"`
	Content    string `gorm:"type:text" json:"content"`
}
