package config

import "time"

type Config struct {
	Exchange ExchangeConfig
	Database DatabaseConfig
	Telegram TelegramConfig
	Sheet    SheetConfig
	Trading  TradingConfig
	Log      LogConfig

	// Symbols is only consulted by the backtest command; live symbols come from the signal sheet.
	Symbols []string `envconfig:"TRADING_SYMBOLS" default:"BTCUSDT,ETHUSDT"`
}

type ExchangeConfig struct {
	APIKey     string        `envconfig:"BINANCE_API_KEY"`
	SecretKey  string        `envconfig:"BINANCE_SECRET_KEY"`
	Testnet    bool          `envconfig:"BINANCE_TESTNET" default:"false"`
	QuoteAsset string        `envconfig:"QUOTE_ASSET" default:"USDT"`
	MaxRetries int           `envconfig:"MAX_RETRIES" default:"3"`
	RetryDelay time.Duration `envconfig:"RETRY_DELAY" default:"1s"`
}

type DatabaseConfig struct {
	Driver   string `envconfig:"DB_DRIVER" default:"postgres"`
	Host     string `envconfig:"DB_HOST" default:"localhost"`
	Port     int    `envconfig:"DB_PORT" default:"5432"`
	User     string `envconfig:"DB_USER"`
	Password string `envconfig:"DB_PASSWORD"`
	DBName   string `envconfig:"DB_NAME" default:"sheettradebot"`
	// Path is the sqlite database file, used when Driver is "sqlite"
	Path string `envconfig:"DB_PATH" default:"sheettradebot.db"`
}

type TelegramConfig struct {
	BotToken string `envconfig:"TELEGRAM_BOT_TOKEN"`
	ChatID   int64  `envconfig:"TELEGRAM_CHAT_ID"`
}

type SheetConfig struct {
	SheetID         string `envconfig:"GOOGLE_SHEET_ID"`
	CredentialsFile string `envconfig:"GOOGLE_CREDENTIALS_FILE" default:"credentials.json"`
	WorksheetName   string `envconfig:"GOOGLE_WORKSHEET_NAME" default:"Trading"`
	// SignalFile replaces the spreadsheet with a local YAML file when set
	SignalFile string `envconfig:"SIGNAL_FILE"`
}

type TradingConfig struct {
	TradeAmount   float64       `envconfig:"TRADE_AMOUNT" default:"10"`
	CheckInterval time.Duration `envconfig:"TRADE_CHECK_INTERVAL" default:"5s"`
	BatchSize     int           `envconfig:"BATCH_SIZE" default:"5"`
	ATRPeriod     int           `envconfig:"ATR_PERIOD" default:"14"`
	ATRMultiplier float64       `envconfig:"ATR_MULTIPLIER" default:"2.0"`
	ATRMethod     string        `envconfig:"ATR_METHOD" default:"sma"`
	ATRInterval   string        `envconfig:"ATR_INTERVAL" default:"1h"`
	TakeProfitCap float64       `envconfig:"TAKE_PROFIT_CAP" default:"0.10"`
	DryRun        bool          `envconfig:"DRY_RUN" default:"false"`
	PaperBalance  float64       `envconfig:"PAPER_BALANCE" default:"1000"`
}

type LogConfig struct {
	Level string `envconfig:"LOG_LEVEL" default:"INFO"`
	File  string `envconfig:"LOG_FILE" default:"sheettradebot.log"`
}
