package models

import (
	"gorm.io/gorm"
)

// Listing is an active land-development product offered for sale. The
// pipeline reads listings to build the catalog snapshot and proposal
// suggestions; listings are managed by operators.
type Listing struct {
	gorm.Model

	Name     string `gorm:"not null" json:"name"`
	Location string `json:"location"`

	MinLotSize float64 `json:"min_lot_size"` // m²
	MaxLotSize float64 `json:"max_lot_size"` // m²

	StartingPrice float64 `gorm:"not null" json:"starting_price"`

	TotalLots     int `json:"total_lots"`
	AvailableLots int `json:"available_lots"`

	Active bool `gorm:"default:true;index" json:"active"`
}
