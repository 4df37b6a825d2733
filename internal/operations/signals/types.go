package signals

import (
	"SheetTradeBot/internal/services/strategy"
	"context"
	"errors"
	"fmt"
)

var (
	// ErrConfigurationConflict marks flag cells that cannot be read as yes/no; the asset is treated as disabled
	ErrConfigurationConflict = errors.New("configuration conflict")
	// ErrInvalidSignal marks a row rejected before it reaches the decision engine
	ErrInvalidSignal = errors.New("invalid signal row")
)

// Entry is one validated row of the signal sheet
type Entry struct {
	Row    int
	Asset  strategy.AssetConfig
	Signal strategy.Signal
}

// RowError describes a rejected row
type RowError struct {
	Row    int
	Symbol string
	Err    error
}

func (e *RowError) Error() string {
	if e.Symbol == "" {
		return fmt.Sprintf("row %d: %v", e.Row, e.Err)
	}
	return fmt.Sprintf("row %d (%s): %v", e.Row, e.Symbol, e.Err)
}

func (e *RowError) Unwrap() error {
	return e.Err
}

// Batch is the result of one poll of the signal source
type Batch struct {
	Entries  []Entry
	Rejected []*RowError
}

// Source supplies the per-asset signal rows of a polling cycle
type Source interface {
	FetchSignals(ctx context.Context) (*Batch, error)
}

// Status values written back to the signal sheet
const (
	StatusOrderPlaced = "ORDER_PLACED"
	StatusSold        = "SOLD"
	StatusStopLoss    = "STOP_LOSS"
	StatusTakeProfit  = "TAKE_PROFIT"
	StatusUpdateTPSL  = "UPDATE_TP_SL"
	StatusOrderFailed = "ORDER_FAILED"
)

// StatusUpdate is written back to a signal row after an action; zero values are left untouched
type StatusUpdate struct {
	Status        string
	PurchasePrice float64
	Quantity      float64
	StopLoss      float64
	TakeProfit    float64
	SoldPrice     float64
	OrderID       string
	// DisableTrading sets the row's Tradable flag to NO
	DisableTrading bool
	// ResetSignal sets the row's signal to WAIT and clears its Stop-Loss and Take Profit levels
	ResetSignal bool
}

// Reporter writes execution results back to where the signal came from
type Reporter interface {
	ReportStatus(ctx context.Context, row int, update StatusUpdate) error
}
