package signals

import (
	"SheetTradeBot/internal/services/strategy"
	"errors"
	"testing"
)

func TestParseNumber(t *testing.T) {
	tests := []struct {
		name    string
		cell    string
		want    float64
		wantErr bool
	}{
		{"empty", "", 0, false},
		{"plain", "42.5", 42.5, false},
		{"comma decimal", "0,75", 0.75, false},
		{"thousands with comma decimal", "1.234,5", 1234.5, false},
		{"spaces", " 1 000 ", 1000, false},
		{"negative", "-3", 0, true},
		{"text", "abc", 0, true},
		{"nan", "NaN", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseNumber(tt.cell)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseNumber(%q) error = %v, wantErr %v", tt.cell, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseNumber(%q) = %v, want %v", tt.cell, got, tt.want)
			}
		})
	}
}

func TestParserSymbol(t *testing.T) {
	p := NewParser("usdt")
	tests := map[string]string{
		"btc":      "BTCUSDT",
		"BTC/USDT": "BTCUSDT",
		"eth_usdt": "ETHUSDT",
		"SOLUSDT":  "SOLUSDT",
		"USDT":     "USDTUSDT",
	}
	for coin, want := range tests {
		if got := p.Symbol(coin); got != want {
			t.Errorf("Symbol(%q) = %s, want %s", coin, got, want)
		}
	}
}

func TestParseRow(t *testing.T) {
	p := NewParser("USDT")
	entry, err := p.Parse(3, RawRow{
		ColumnCoin:         "BTC",
		ColumnTrade:        "YES",
		ColumnTradable:     "",
		ColumnSignal:       "buy",
		ColumnStopLoss:     "95",
		ColumnTakeProfit:   "110",
		ColumnResistanceUp: "108,5",
	})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if entry.Row != 3 || entry.Signal.Symbol != "BTCUSDT" {
		t.Errorf("unexpected entry %+v", entry)
	}
	if entry.Signal.Action != strategy.SignalBuy {
		t.Errorf("expected BUY, got %s", entry.Signal.Action)
	}
	if !entry.Asset.TradingEnabled || !entry.Asset.Tradable || entry.Asset.AllowShort {
		t.Errorf("unexpected asset flags %+v", entry.Asset)
	}
	if entry.Signal.Levels.StopLoss != 95 || entry.Signal.Levels.TakeProfit != 110 || entry.Signal.Levels.ResistanceUp != 108.5 {
		t.Errorf("unexpected levels %+v", entry.Signal.Levels)
	}
}

func TestParseRowDefaultsToWait(t *testing.T) {
	entry, err := NewParser("USDT").Parse(2, RawRow{ColumnCoin: "ETH", ColumnTrade: "yes"})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if entry.Signal.Action != strategy.SignalWait {
		t.Errorf("expected WAIT, got %s", entry.Signal.Action)
	}
}

func TestParseRowConfigurationConflict(t *testing.T) {
	entry, err := NewParser("USDT").Parse(4, RawRow{
		ColumnCoin:   "BTC",
		ColumnTrade:  "maybe",
		ColumnSignal: "BUY",
	})
	if !errors.Is(err, ErrConfigurationConflict) {
		t.Fatalf("expected ErrConfigurationConflict, got %v", err)
	}
	if entry == nil {
		t.Fatal("expected a disabled entry alongside the conflict")
	}
	if entry.Asset.TradingEnabled || entry.Asset.Tradable {
		t.Errorf("conflicting row must be disabled, got %+v", entry.Asset)
	}
}

func TestParseRowRejects(t *testing.T) {
	tests := []struct {
		name string
		raw  RawRow
	}{
		{"missing coin", RawRow{ColumnSignal: "BUY"}},
		{"unknown signal", RawRow{ColumnCoin: "BTC", ColumnSignal: "MOON"}},
		{"bad stop", RawRow{ColumnCoin: "BTC", ColumnSignal: "BUY", ColumnStopLoss: "low"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry, err := NewParser("USDT").Parse(5, tt.raw)
			if !errors.Is(err, ErrInvalidSignal) {
				t.Fatalf("expected ErrInvalidSignal, got %v", err)
			}
			if entry != nil {
				t.Errorf("expected no entry, got %+v", entry)
			}
			var rowErr *RowError
			if !errors.As(err, &rowErr) || rowErr.Row != 5 {
				t.Errorf("expected RowError for row 5, got %v", err)
			}
		})
	}
}
