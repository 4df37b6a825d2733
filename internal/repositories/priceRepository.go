package repositories

import (
	"SheetTradeBot/internal/models"
	"errors"
	"log"
	"sort"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PriceRepository struct {
	db *gorm.DB
}

// NewPriceRepository creates a new instance of PriceRepository
func NewPriceRepository(db *gorm.DB) *PriceRepository {
	return &PriceRepository{db: db}
}

// SaveCandles stores candles, skipping ones already recorded for the same symbol, timeframe and open time
func (r *PriceRepository) SaveCandles(prices []models.Price) error {
	if len(prices) == 0 {
		return nil
	}
	return r.db.Clauses(clause.OnConflict{DoNothing: true}).CreateInBatches(prices, 200).Error
}

// GetPricesByTimeFrame gets price data for a specific symbol and timeframe
func (r *PriceRepository) GetPricesByTimeFrame(symbol string, timeFrame string, start, end time.Time) ([]models.Price, error) {
	if symbol == "" || timeFrame == "" {
		return nil, errors.New("invalid symbol or timeframe")
	}

	var prices []models.Price
	err := r.db.Where("symbol = ? AND time_frame = ? AND open_time BETWEEN ? AND ?",
		symbol, timeFrame, start, end).
		Order("open_time ASC").
		Find(&prices).Error

	log.Printf("Got %d prices for %s from %s to %s",
		len(prices),
		symbol,
		start.Format("2006-01-02 15:04:05"),
		end.Format("2006-01-02 15:04:05"))

	return prices, err
}

// GetRecentPrices returns the latest limit candles in ascending time order
func (r *PriceRepository) GetRecentPrices(symbol, timeFrame string, limit int) ([]models.Price, error) {
	if symbol == "" || timeFrame == "" {
		return nil, errors.New("invalid symbol or timeframe")
	}
	if limit <= 0 {
		return nil, errors.New("invalid limit")
	}

	var prices []models.Price
	err := r.db.Where("symbol = ? AND time_frame = ?", symbol, timeFrame).
		Order("open_time DESC").
		Limit(limit).
		Find(&prices).Error
	if err != nil {
		return nil, err
	}

	sort.Slice(prices, func(i, j int) bool {
		return prices[i].OpenTime.Before(prices[j].OpenTime)
	})
	return prices, nil
}

// GetLatestPriceByTimeFrame gets the most recent candle for a symbol and timeframe
func (r *PriceRepository) GetLatestPriceByTimeFrame(symbol, timeFrame string) (*models.Price, error) {
	if symbol == "" || timeFrame == "" {
		return nil, errors.New("invalid symbol or timeframe")
	}

	var price models.Price
	err := r.db.Where("symbol = ? AND time_frame = ?", symbol, timeFrame).
		Order("open_time DESC").
		First(&price).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &price, err
}
