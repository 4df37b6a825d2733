package repositories

import (
	"SheetTradeBot/internal/models"
	"errors"
	"time"

	"gorm.io/gorm"
)

type BalanceRepository struct {
	db *gorm.DB
}

// NewBalanceRepository creates a new instance of BalanceRepository
func NewBalanceRepository(db *gorm.DB) *BalanceRepository {
	return &BalanceRepository{db: db}
}

// FindByAsset retrieves the balance of an asset, nil when none was recorded
func (r *BalanceRepository) FindByAsset(asset string) (*models.Balance, error) {
	if asset == "" {
		return nil, errors.New("invalid asset")
	}
	var balance models.Balance
	err := r.db.Where("asset = ?", asset).First(&balance).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &balance, err
}

// Ensure returns the balance of an asset, seeding it with initial when missing
func (r *BalanceRepository) Ensure(asset string, initial float64) (*models.Balance, error) {
	balance, err := r.FindByAsset(asset)
	if err != nil || balance != nil {
		return balance, err
	}
	balance = &models.Balance{
		Asset:       asset,
		Balance:     initial,
		LastUpdated: time.Now(),
	}
	return balance, r.db.Create(balance).Error
}

// Adjust adds delta to an asset balance, creating the row when missing
func (r *BalanceRepository) Adjust(asset string, delta float64) (*models.Balance, error) {
	var result *models.Balance
	err := r.db.Transaction(func(tx *gorm.DB) error {
		var balance models.Balance
		err := tx.Where("asset = ?", asset).First(&balance).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			balance = models.Balance{Asset: asset}
		} else if err != nil {
			return err
		}
		balance.Balance += delta
		balance.LastUpdated = time.Now()
		result = &balance
		return tx.Save(&balance).Error
	})
	return result, err
}

// FindAll retrieves all Balance records
func (r *BalanceRepository) FindAll() ([]models.Balance, error) {
	var balances []models.Balance
	err := r.db.Order("asset ASC").Find(&balances).Error
	return balances, err
}
