package signals

import (
	"SheetTradeBot/internal/services/risk"
	"SheetTradeBot/internal/services/strategy"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Sheet column headers
const (
	ColumnTrade          = "TRADE"
	ColumnTradable       = "Tradable"
	ColumnCoin           = "Coin"
	ColumnSignal         = "Buy Signal"
	ColumnTakeProfit     = "Take Profit"
	ColumnStopLoss       = "Stop-Loss"
	ColumnResistanceUp   = "Resistance Up"
	ColumnResistanceDown = "Resistance Down"
	ColumnShort          = "Short"

	ColumnStatus        = "Order Placed?"
	ColumnPurchasePrice = "Purchase Price"
	ColumnQuantity      = "Quantity"
	ColumnSoldPrice     = "SOLD Price"
	ColumnOrderID       = "order_id"
)

// RawRow is a loosely typed sheet row keyed by column header
type RawRow map[string]string

// Parser validates raw rows into typed entries
type Parser struct {
	quoteAsset string
}

func NewParser(quoteAsset string) *Parser {
	return &Parser{quoteAsset: strings.ToUpper(quoteAsset)}
}

// Parse converts a raw row. Rows with unreadable flags come back disabled together
// with an ErrConfigurationConflict so the caller can report them.
func (p *Parser) Parse(row int, raw RawRow) (*Entry, error) {
	coin := strings.TrimSpace(raw[ColumnCoin])
	if coin == "" {
		return nil, &RowError{Row: row, Err: fmt.Errorf("%w: empty coin", ErrInvalidSignal)}
	}
	symbol := p.Symbol(coin)

	action, err := parseAction(raw[ColumnSignal])
	if err != nil {
		return nil, &RowError{Row: row, Symbol: symbol, Err: err}
	}

	var levels risk.Levels
	numbers := []struct {
		column string
		dst    *float64
	}{
		{ColumnTakeProfit, &levels.TakeProfit},
		{ColumnStopLoss, &levels.StopLoss},
		{ColumnResistanceUp, &levels.ResistanceUp},
		{ColumnResistanceDown, &levels.ResistanceDown},
	}
	for _, n := range numbers {
		v, err := ParseNumber(raw[n.column])
		if err != nil {
			return nil, &RowError{Row: row, Symbol: symbol, Err: fmt.Errorf("%w: %s: %v", ErrInvalidSignal, n.column, err)}
		}
		*n.dst = v
	}

	entry := &Entry{
		Row: row,
		Signal: strategy.Signal{
			Symbol: symbol,
			Action: action,
			Levels: levels,
		},
		Asset: strategy.AssetConfig{Symbol: symbol},
	}

	enabled, errEnabled := parseFlag(raw[ColumnTrade], false)
	tradable, errTradable := parseFlag(raw[ColumnTradable], true)
	allowShort, errShort := parseFlag(raw[ColumnShort], false)
	for _, err := range []error{errEnabled, errTradable, errShort} {
		if err != nil {
			// an unreadable switch never enables trading
			return entry, &RowError{Row: row, Symbol: symbol, Err: err}
		}
	}

	entry.Asset.TradingEnabled = enabled
	entry.Asset.Tradable = tradable
	entry.Asset.AllowShort = allowShort
	return entry, nil
}

// Symbol turns a sheet coin cell into an exchange pair: BTC, BTC/USDT and BTC_USDT all become BTCUSDT
func (p *Parser) Symbol(coin string) string {
	coin = strings.ToUpper(strings.TrimSpace(coin))
	if strings.ContainsAny(coin, "/_-") {
		return strings.NewReplacer("/", "", "_", "", "-", "").Replace(coin)
	}
	if strings.HasSuffix(coin, p.quoteAsset) && len(coin) > len(p.quoteAsset) {
		return coin
	}
	return coin + p.quoteAsset
}

func parseAction(cell string) (strategy.SignalAction, error) {
	switch strings.ToUpper(strings.TrimSpace(cell)) {
	case "BUY":
		return strategy.SignalBuy, nil
	case "SELL":
		return strategy.SignalSell, nil
	case "", "WAIT", "HOLD":
		return strategy.SignalWait, nil
	default:
		return "", fmt.Errorf("%w: unknown signal %q", ErrInvalidSignal, cell)
	}
}

func parseFlag(cell string, empty bool) (bool, error) {
	switch strings.ToUpper(strings.TrimSpace(cell)) {
	case "":
		return empty, nil
	case "YES", "Y", "TRUE", "1":
		return true, nil
	case "NO", "N", "FALSE", "0":
		return false, nil
	default:
		return false, fmt.Errorf("%w: flag %q is neither yes nor no", ErrConfigurationConflict, cell)
	}
}

// ParseNumber reads a sheet number; a comma is the decimal separator when present
// ("1.234,5" is 1234.5). Empty cells are zero. Negative values are rejected.
func ParseNumber(cell string) (float64, error) {
	s := strings.ReplaceAll(strings.TrimSpace(cell), " ", "")
	if s == "" {
		return 0, nil
	}
	if strings.Contains(s, ",") {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("not a number: %q", cell)
	}
	if v < 0 {
		return 0, fmt.Errorf("negative value: %q", cell)
	}
	return v, nil
}
