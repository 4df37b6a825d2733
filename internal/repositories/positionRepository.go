package repositories

import (
	"SheetTradeBot/internal/models"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// ErrPositionExists is returned when a second open position is created for a symbol.
var ErrPositionExists = errors.New("open position already exists")

type PositionRepository struct {
	db *gorm.DB
}

// NewPositionRepository creates a new instance of PositionRepository
func NewPositionRepository(db *gorm.DB) *PositionRepository {
	return &PositionRepository{db: db}
}

// Create adds a new open Position, refusing a second open position for the same symbol
func (r *PositionRepository) Create(position *models.Position) error {
	if position == nil {
		return errors.New("position cannot be nil")
	}
	return r.db.Transaction(func(tx *gorm.DB) error {
		var count int64
		err := tx.Model(&models.Position{}).
			Where("symbol = ? AND status = ?", position.Symbol, models.PositionStatusOpen).
			Count(&count).Error
		if err != nil {
			return err
		}
		if count > 0 {
			return fmt.Errorf("%w for %s", ErrPositionExists, position.Symbol)
		}
		return tx.Create(position).Error
	})
}

// FindByID retrieves a Position record by its ID
func (r *PositionRepository) FindByID(id uint) (*models.Position, error) {
	if id == 0 {
		return nil, errors.New("invalid id")
	}
	var position models.Position
	err := r.db.First(&position, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &position, err
}

// Update modifies an existing Position record
func (r *PositionRepository) Update(position *models.Position) error {
	if position == nil {
		return errors.New("position cannot be nil")
	}
	return r.db.Save(position).Error
}

// FindOpenPositions retrieves all open Position records
func (r *PositionRepository) FindOpenPositions() ([]models.Position, error) {
	var positions []models.Position
	err := r.db.Where("status = ?", models.PositionStatusOpen).Order("open_time ASC").Find(&positions).Error
	return positions, err
}

// FindOpenPositionBySymbol returns the open position for symbol, or nil when flat
func (r *PositionRepository) FindOpenPositionBySymbol(symbol string) (*models.Position, error) {
	if symbol == "" {
		return nil, errors.New("invalid symbol")
	}
	var position models.Position
	err := r.db.Where("symbol = ? AND status = ?", symbol, models.PositionStatusOpen).
		First(&position).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &position, err
}

// FindPositionsBySymbol retrieves every Position record of a symbol
func (r *PositionRepository) FindPositionsBySymbol(symbol string) ([]models.Position, error) {
	if symbol == "" {
		return nil, errors.New("invalid symbol")
	}
	var positions []models.Position
	err := r.db.Where("symbol = ?", symbol).Order("open_time ASC").Find(&positions).Error
	return positions, err
}

// ClosePosition saves the closed position together with its closing trade
func (r *PositionRepository) ClosePosition(position *models.Position, trade *models.Trade) error {
	if position == nil {
		return errors.New("position cannot be nil")
	}
	return r.db.Transaction(func(tx *gorm.DB) error {
		position.Status = models.PositionStatusClosed
		if err := tx.Save(position).Error; err != nil {
			return err
		}
		if trade == nil {
			return nil
		}
		trade.PositionID = position.ID
		return tx.Create(trade).Error
	})
}

// GetTotalPnL calculates the total profit and loss for all closed positions within a time range
func (r *PositionRepository) GetTotalPnL(start, end time.Time) (float64, error) {
	var totalPnL float64
	err := r.db.Model(&models.Position{}).
		Where("close_time BETWEEN ? AND ? AND status = ?", start, end, models.PositionStatusClosed).
		Select("COALESCE(SUM(pnl), 0)").
		Scan(&totalPnL).Error
	return totalPnL, err
}
