package repositories

import (
	"SheetTradeBot/internal/models"
	"errors"

	"gorm.io/gorm"
)

type TradeRepository struct {
	db *gorm.DB
}

// NewTradeRepository creates a new instance of TradeRepository
func NewTradeRepository(db *gorm.DB) *TradeRepository {
	return &TradeRepository{db: db}
}

// Create adds a new Trade record to the journal
func (r *TradeRepository) Create(trade *models.Trade) error {
	if trade == nil {
		return errors.New("trade cannot be nil")
	}
	return r.db.Create(trade).Error
}

// FindByPosition returns the journal of one position in execution order
func (r *TradeRepository) FindByPosition(positionID uint) ([]models.Trade, error) {
	if positionID == 0 {
		return nil, errors.New("invalid position id")
	}
	var trades []models.Trade
	err := r.db.Where("position_id = ?", positionID).Order("id ASC").Find(&trades).Error
	return trades, err
}

// FindByCycle returns every trade executed during one polling cycle
func (r *TradeRepository) FindByCycle(cycleID string) ([]models.Trade, error) {
	var trades []models.Trade
	err := r.db.Where("cycle_id = ?", cycleID).Order("id ASC").Find(&trades).Error
	return trades, err
}
