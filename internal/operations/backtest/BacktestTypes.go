package backtest

import (
	"SheetTradeBot/internal/services/strategy"
	"time"
)

// Trade is one completed round trip of the replay
type Trade struct {
	Symbol     string
	EntryTime  time.Time
	ExitTime   time.Time
	Side       string
	EntryPrice float64
	ExitPrice  float64
	Size       float64
	StopLoss   float64 // final stop, after trailing
	TakeProfit float64
	PnL        float64 // net of fees
	Reason     string  // take_profit, stop_loss, trailing exit or end_of_data
}

type EquityPoint struct {
	Timestamp time.Time
	Balance   float64
}

type BacktestResults struct {
	// Trade metrics
	TotalTrades   int
	WinningTrades int
	LosingTrades  int
	WinRate       float64
	AveragePnL    float64
	TotalPnL      float64

	// Performance metrics
	MaxDrawdown  float64
	FinalBalance float64
	SharpeRatio  float64

	// Decision counts
	StopAdjustments int
	SkippedBands    int

	Trades      []Trade
	EquityCurve []EquityPoint
}

const (
	InitialBalance = 1000.0 // USDT
	TradeAmount    = 10.0   // USDT per entry

	ReasonEndOfData = "end_of_data"
)

type Config struct {
	InitialBalance float64
	TradeAmount    float64

	Interval      string
	ATRPeriod     int
	ATRMethod     string
	ATRMultiplier float64
	TakeProfitCap float64

	// Signal is replayed on every candle
	Signal     strategy.SignalAction
	AllowShort bool

	Symbols   []string
	StartTime time.Time
	EndTime   time.Time
}

// NewConfig creates default config
func NewConfig() Config {
	return Config{
		InitialBalance: InitialBalance,
		TradeAmount:    TradeAmount,
		Interval:       "1h",
		ATRPeriod:      14,
		ATRMethod:      "sma",
		ATRMultiplier:  2.0,
		TakeProfitCap:  0.10,
		Signal:         strategy.SignalBuy,
	}
}
