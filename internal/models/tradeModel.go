package models

import (
	"time"
)

// Trade journals every action the executor carried out against a position.
type Trade struct {
	ID         uint    `gorm:"primaryKey"`
	PositionID uint    `gorm:"index;not null"`
	CycleID    string  `gorm:"index"`
	Symbol     string  `gorm:"index;not null"`
	Type       string  `gorm:"not null"`
	Price      float64 `gorm:"type:decimal(28,12);not null"`
	Quantity   float64 `gorm:"type:decimal(28,12)"`
	StopLoss   float64 `gorm:"type:decimal(28,12)"`
	TakeProfit float64 `gorm:"type:decimal(28,12)"`
	PnL        float64 `gorm:"column:pnl;type:decimal(28,12)"`
	OrderID    string
	Reason     string

	CreatedAt time.Time `gorm:"autoCreateTime"`
}

const (
	TradeTypeOpen       = "open"
	TradeTypeClose      = "close"
	TradeTypeAdjustStop = "adjust_stop"
)
