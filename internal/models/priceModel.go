package models

import (
	"fmt"
	"time"
)

// Price is one candle of a symbol's price series.
type Price struct {
	ID         uint      `gorm:"primaryKey"`
	Symbol     string    `gorm:"uniqueIndex:idx_price_candle;not null"`
	TimeFrame  string    `gorm:"uniqueIndex:idx_price_candle;not null"`
	OpenTime   time.Time `gorm:"uniqueIndex:idx_price_candle;not null"`
	CloseTime  time.Time `gorm:"index"`
	Open       float64   `gorm:"type:decimal(28,12)"`
	Close      float64   `gorm:"type:decimal(28,12)"`
	High       float64   `gorm:"type:decimal(28,12)"`
	Low        float64   `gorm:"type:decimal(28,12)"`
	Volume     float64   `gorm:"type:decimal(28,12)"`
	TradeCount int64
}

const (
	PriceTimeFrame5m  = "5m"
	PriceTimeFrame15m = "15m"
	PriceTimeFrame1h  = "1h"
	PriceTimeFrame4h  = "4h"
)

// TableName sets the table name for Price model
func (Price) TableName() string {
	return "prices"
}

var timeFrames = map[string]time.Duration{
	"1m":  time.Minute,
	"3m":  3 * time.Minute,
	"5m":  5 * time.Minute,
	"15m": 15 * time.Minute,
	"30m": 30 * time.Minute,
	"1h":  time.Hour,
	"2h":  2 * time.Hour,
	"4h":  4 * time.Hour,
	"6h":  6 * time.Hour,
	"8h":  8 * time.Hour,
	"12h": 12 * time.Hour,
	"1d":  24 * time.Hour,
}

// TimeFrameDuration maps an exchange kline interval to its length
func TimeFrameDuration(timeFrame string) (time.Duration, error) {
	d, ok := timeFrames[timeFrame]
	if !ok {
		return 0, fmt.Errorf("unsupported interval %q", timeFrame)
	}
	return d, nil
}
