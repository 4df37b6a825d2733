package strategy

import (
	"SheetTradeBot/internal/models"
	"SheetTradeBot/internal/services/risk"
	"errors"
)

var ErrSymbolMismatch = errors.New("symbol mismatch")

// SignalAction is the per-cycle instruction read from the signal sheet
type SignalAction string

const (
	SignalBuy  SignalAction = "BUY"
	SignalSell SignalAction = "SELL"
	SignalWait SignalAction = "WAIT"
)

// Action is what the executor has to carry out for an asset
type Action string

const (
	ActionNone       Action = "NONE"
	ActionOpenLong   Action = "OPEN_LONG"
	ActionOpenShort  Action = "OPEN_SHORT"
	ActionClose      Action = "CLOSE"
	ActionAdjustStop Action = "ADJUST_STOP"
)

// Decision reasons
const (
	ReasonDisabled   = "trading disabled"
	ReasonNoSignal   = "no actionable signal"
	ReasonEntry      = "entry"
	ReasonStopLoss   = "stop_loss"
	ReasonTakeProfit = "take_profit"
	ReasonSignal     = "signal"
	ReasonTrailing   = "trailing_stop"
	ReasonHold       = "hold"
)

// AssetConfig holds the per-asset switches maintained outside the bot
type AssetConfig struct {
	Symbol         string
	TradingEnabled bool
	Tradable       bool
	AllowShort     bool
}

// Signal is one validated signal row
type Signal struct {
	Symbol string
	Action SignalAction
	Levels risk.Levels
}

// Input is everything the engine needs to decide for one asset in one cycle
type Input struct {
	Asset    AssetConfig
	Signal   Signal
	Position *models.Position
	Price    float64
	ATR      float64
}

// Decision is the outcome for one asset. Position is the updated copy, or nil
// when the asset stays flat.
type Decision struct {
	Symbol   string
	Action   Action
	Reason   string
	Position *models.Position
	Band     *risk.Band
	Price    float64
	ATR      float64
	// MarkMoved is set when the high-water mark advanced, whether or not the stop followed
	MarkMoved bool
}

// StopChanged reports whether the decision moved the protective stop
func (d *Decision) StopChanged(previous *models.Position) bool {
	if d.Position == nil || previous == nil {
		return false
	}
	return d.Position.StopLossPrice != previous.StopLossPrice
}
