package repositories

import (
	"SheetTradeBot/config"
	"SheetTradeBot/internal/models"
	"fmt"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// OpenDatabase connects to postgres or sqlite and migrates every model.
func OpenDatabase(dbConfig config.DatabaseConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch dbConfig.Driver {
	case config.DriverSQLite:
		dialector = sqlite.Open(dbConfig.Path)
	default:
		dialector = postgres.Open(dbConfig.DSN())
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Error),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if dbConfig.Driver == config.DriverSQLite {
		if err := singleWriter(db); err != nil {
			return nil, err
		}
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// singleWriter limits sqlite to one connection; concurrent writers would fail with SQLITE_BUSY
func singleWriter(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	return nil
}

// Migrate creates or updates the tables of every model
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.Position{},
		&models.Trade{},
		&models.Price{},
		&models.Balance{},
	)
	if err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

// OpenInMemory opens a private in-memory sqlite database, used for backtests and tests.
func OpenInMemory() (*gorm.DB, error) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory database: %w", err)
	}
	if err := singleWriter(db); err != nil {
		return nil, err
	}
	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}
