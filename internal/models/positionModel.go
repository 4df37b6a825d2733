package models

import "time"

type Position struct {
	ID         uint    `gorm:"primaryKey"`
	Symbol     string  `gorm:"index;not null"`
	Side       string  `gorm:"not null"`
	Quantity   float64 `gorm:"type:decimal(28,12);not null"`
	EntryPrice float64 `gorm:"type:decimal(28,12);not null"`

	StopLossPrice   float64 `gorm:"type:decimal(28,12);not null"`
	TakeProfitPrice float64 `gorm:"type:decimal(28,12);not null"`
	// HighWaterMark is the most favorable price seen since entry: highest for longs, lowest for shorts
	HighWaterMark float64 `gorm:"type:decimal(28,12);not null"`

	ExitPrice   float64 `gorm:"type:decimal(28,12)"`
	PnL         float64 `gorm:"column:pnl;type:decimal(28,12)"`
	CloseReason string

	OrderID       string
	ClientOrderID string `gorm:"index"`
	SheetRow      int

	OpenTime  time.Time `gorm:"index;not null"`
	CloseTime time.Time `gorm:"index"`
	Status    string    `gorm:"index;not null"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

const (
	PositionStatusOpen   = "open"
	PositionStatusClosed = "closed"

	PositionSideLong  = "long"
	PositionSideShort = "short"
)

func (p *Position) IsLong() bool {
	return p.Side != PositionSideShort
}

// UnrealizedPnL is the quote-currency profit of the position at price.
func (p *Position) UnrealizedPnL(price float64) float64 {
	if p.IsLong() {
		return (price - p.EntryPrice) * p.Quantity
	}
	return (p.EntryPrice - price) * p.Quantity
}
