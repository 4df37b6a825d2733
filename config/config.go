package config

import (
	"SheetTradeBot/internal/models"
	"errors"
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	ATRMethodSMA = "sma"
	ATRMethodEMA = "ema"

	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Load reads the configuration for the trading loop and validates all of it.
func Load() (*Config, error) {
	cfg, err := Read()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Read reads an optional .env file and maps the environment onto Config without validating it.
func Read() (*Config, error) {
	// a missing .env is fine, the environment may already be populated
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("error processing environment: %w", err)
	}

	cfg.Log.Level = strings.ToUpper(cfg.Log.Level)
	cfg.Trading.ATRMethod = strings.ToLower(cfg.Trading.ATRMethod)
	cfg.Database.Driver = strings.ToLower(cfg.Database.Driver)
	return &cfg, nil
}

// Validate rejects values the trading loop cannot run with.
func (c *Config) Validate() error {
	errs := c.strategyErrors()

	t := c.Trading
	if t.CheckInterval <= 0 {
		errs = append(errs, fmt.Errorf("TRADE_CHECK_INTERVAL must be positive, got %v", t.CheckInterval))
	}
	if t.BatchSize < 1 {
		errs = append(errs, fmt.Errorf("BATCH_SIZE must be at least 1, got %d", t.BatchSize))
	}
	if c.Exchange.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("MAX_RETRIES must not be negative, got %d", c.Exchange.MaxRetries))
	}
	if c.Sheet.SignalFile == "" && c.Sheet.SheetID == "" {
		errs = append(errs, errors.New("either GOOGLE_SHEET_ID or SIGNAL_FILE must be set"))
	}
	if !t.DryRun && (c.Exchange.APIKey == "" || c.Exchange.SecretKey == "") {
		errs = append(errs, errors.New("BINANCE_API_KEY and BINANCE_SECRET_KEY are required unless DRY_RUN is set"))
	}

	return errors.Join(errs...)
}

// ValidateStrategy checks only what a backtest needs: ATR, band and storage settings.
func (c *Config) ValidateStrategy() error {
	return errors.Join(c.strategyErrors()...)
}

func (c *Config) strategyErrors() []error {
	var errs []error

	t := c.Trading
	if t.ATRPeriod < 2 {
		errs = append(errs, fmt.Errorf("ATR_PERIOD must be at least 2, got %d", t.ATRPeriod))
	}
	if t.ATRMultiplier < 0 {
		errs = append(errs, fmt.Errorf("ATR_MULTIPLIER must not be negative, got %v", t.ATRMultiplier))
	}
	if t.ATRMethod != ATRMethodSMA && t.ATRMethod != ATRMethodEMA {
		errs = append(errs, fmt.Errorf("ATR_METHOD must be %q or %q, got %q", ATRMethodSMA, ATRMethodEMA, t.ATRMethod))
	}
	if _, err := models.TimeFrameDuration(t.ATRInterval); err != nil {
		errs = append(errs, fmt.Errorf("ATR_INTERVAL: %w", err))
	}
	if t.TakeProfitCap < 0 {
		errs = append(errs, fmt.Errorf("TAKE_PROFIT_CAP must not be negative, got %v", t.TakeProfitCap))
	}
	if t.TradeAmount <= 0 {
		errs = append(errs, fmt.Errorf("TRADE_AMOUNT must be positive, got %v", t.TradeAmount))
	}

	switch c.Database.Driver {
	case DriverPostgres, DriverSQLite:
	default:
		errs = append(errs, fmt.Errorf("DB_DRIVER must be %q or %q, got %q", DriverPostgres, DriverSQLite, c.Database.Driver))
	}
	return errs
}

// TelegramEnabled reports whether both bot token and chat id are configured.
func (c *Config) TelegramEnabled() bool {
	return c.Telegram.BotToken != "" && c.Telegram.ChatID != 0
}

// DSN builds the postgres connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		d.Host,
		d.Port,
		d.User,
		d.Password,
		d.DBName)
}
