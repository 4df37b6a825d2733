package models

import (
	"time"
)

// Balance is the paper-trading wallet for one asset.
type Balance struct {
	ID      uint    `gorm:"primaryKey"`
	Asset   string  `gorm:"uniqueIndex;not null"`
	Balance float64 `gorm:"type:decimal(28,12);not null"`

	LastUpdated time.Time `gorm:"index;not null"`
}
