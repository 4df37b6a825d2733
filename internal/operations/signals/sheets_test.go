package signals

import (
	"context"
	"errors"
	"testing"
)

type fakeValues struct {
	grid    [][]interface{}
	err     error
	updates map[string]string
}

func (f *fakeValues) Get(ctx context.Context, rng string) ([][]interface{}, error) {
	return f.grid, f.err
}

func (f *fakeValues) BatchUpdate(ctx context.Context, cells map[string]string) error {
	if f.updates == nil {
		f.updates = map[string]string{}
	}
	for k, v := range cells {
		f.updates[k] = v
	}
	return nil
}

func sheetGrid() [][]interface{} {
	return [][]interface{}{
		{"TRADE", "Tradable", "Coin", "Buy Signal", "Take Profit", "Stop-Loss", "Order Placed?", "Purchase Price", "Quantity", "SOLD Price", "order_id"},
		{"YES", "YES", "BTC", "BUY", "110", "95"},
		{},
		{"YES", "YES", "", "BUY"},
		{"perhaps", "YES", "ETH", "BUY"},
		{"NO", "YES", "SOL", "WAIT"},
	}
}

func TestSheetSourceFetch(t *testing.T) {
	src := newSheetSource(&fakeValues{grid: sheetGrid()}, "Trading", NewParser("USDT"))

	batch, err := src.FetchSignals(context.Background())
	if err != nil {
		t.Fatalf("FetchSignals: %v", err)
	}
	if len(batch.Entries) != 3 {
		t.Fatalf("expected 3 entries (BTC, disabled ETH, SOL), got %d", len(batch.Entries))
	}
	if batch.Entries[0].Row != 2 || batch.Entries[0].Signal.Symbol != "BTCUSDT" {
		t.Errorf("unexpected first entry %+v", batch.Entries[0])
	}
	if batch.Entries[1].Asset.TradingEnabled {
		t.Error("ETH row has a conflicting flag and must be disabled")
	}
	if len(batch.Rejected) != 2 {
		t.Fatalf("expected 2 rejected rows, got %d", len(batch.Rejected))
	}
	if batch.Rejected[0].Row != 4 || !errors.Is(batch.Rejected[0], ErrInvalidSignal) {
		t.Errorf("unexpected rejection %v", batch.Rejected[0])
	}
	if !errors.Is(batch.Rejected[1], ErrConfigurationConflict) {
		t.Errorf("expected configuration conflict, got %v", batch.Rejected[1])
	}
}

func TestSheetSourceFetchError(t *testing.T) {
	src := newSheetSource(&fakeValues{err: errors.New("quota")}, "Trading", NewParser("USDT"))
	if _, err := src.FetchSignals(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestSheetSourceReportStatus(t *testing.T) {
	values := &fakeValues{grid: sheetGrid()}
	src := newSheetSource(values, "Trading", NewParser("USDT"))
	if _, err := src.FetchSignals(context.Background()); err != nil {
		t.Fatalf("FetchSignals: %v", err)
	}

	err := src.ReportStatus(context.Background(), 2, StatusUpdate{
		Status:         StatusOrderPlaced,
		PurchasePrice:  100.5,
		Quantity:       0.0995,
		OrderID:        "123",
		DisableTrading: true,
	})
	if err != nil {
		t.Fatalf("ReportStatus: %v", err)
	}

	want := map[string]string{
		"Trading!G2": StatusOrderPlaced,
		"Trading!H2": "100.5",
		"Trading!I2": "0.0995",
		"Trading!K2": "123",
		"Trading!B2": "NO",
	}
	for cell, v := range want {
		if values.updates[cell] != v {
			t.Errorf("cell %s = %q, want %q", cell, values.updates[cell], v)
		}
	}
	if len(values.updates) != len(want) {
		t.Errorf("unexpected extra updates: %v", values.updates)
	}

	if err := src.ReportStatus(context.Background(), 1, StatusUpdate{Status: StatusSold}); err == nil {
		t.Error("expected error for header row")
	}
}

func TestSheetSourceReportCloseResetsRow(t *testing.T) {
	values := &fakeValues{grid: sheetGrid()}
	src := newSheetSource(values, "Trading", NewParser("USDT"))
	if _, err := src.FetchSignals(context.Background()); err != nil {
		t.Fatalf("FetchSignals: %v", err)
	}

	err := src.ReportStatus(context.Background(), 2, StatusUpdate{
		Status:         StatusStopLoss,
		SoldPrice:      96,
		OrderID:        "456",
		DisableTrading: true,
		ResetSignal:    true,
	})
	if err != nil {
		t.Fatalf("ReportStatus: %v", err)
	}

	want := map[string]string{
		"Trading!B2": "NO",
		"Trading!D2": "WAIT",
		"Trading!E2": "",
		"Trading!F2": "",
		"Trading!G2": StatusStopLoss,
		"Trading!J2": "96",
		"Trading!K2": "456",
	}
	for cell, v := range want {
		got, ok := values.updates[cell]
		if !ok || got != v {
			t.Errorf("cell %s = %q (written %v), want %q", cell, got, ok, v)
		}
	}
	if len(values.updates) != len(want) {
		t.Errorf("unexpected extra updates: %v", values.updates)
	}

	// the reset row reads back as a disabled WAIT without levels
	values.grid[1] = []interface{}{"YES", "NO", "BTC", "WAIT", "", ""}
	batch, err := src.FetchSignals(context.Background())
	if err != nil {
		t.Fatalf("FetchSignals: %v", err)
	}
	entry := batch.Entries[0]
	if entry.Asset.Tradable || entry.Signal.Levels.StopLoss != 0 || entry.Signal.Levels.TakeProfit != 0 {
		t.Errorf("expected a disabled row without levels, got %+v", entry)
	}
}

func TestColumnLetter(t *testing.T) {
	tests := map[int]string{0: "A", 25: "Z", 26: "AA", 27: "AB", 51: "AZ", 52: "BA", 701: "ZZ", 702: "AAA"}
	for idx, want := range tests {
		if got := ColumnLetter(idx); got != want {
			t.Errorf("ColumnLetter(%d) = %s, want %s", idx, got, want)
		}
	}
}

func TestFormatNumber(t *testing.T) {
	tests := map[float64]string{100: "100", 0.5: "0.5", 0.00000123: "0.00000123", 1234.56789: "1234.56789"}
	for v, want := range tests {
		if got := FormatNumber(v); got != want {
			t.Errorf("FormatNumber(%v) = %s, want %s", v, got, want)
		}
	}
}
