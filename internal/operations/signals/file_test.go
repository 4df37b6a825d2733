package signals

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

const sampleFile = `
assets:
  - coin: BTC
    trade: "yes"
    signal: BUY
    stop_loss: "95"
    take_profit: "110"
  - coin: ETH
    trade: "no"
    signal: WAIT
  - coin: XRP
    trade: "yes"
    signal: SHOUT
`

func TestFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "signals.yaml")
	if err := os.WriteFile(path, []byte(sampleFile), 0o644); err != nil {
		t.Fatal(err)
	}

	batch, err := NewFileSource(path, NewParser("USDT")).FetchSignals(context.Background())
	if err != nil {
		t.Fatalf("FetchSignals: %v", err)
	}
	if len(batch.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(batch.Entries))
	}
	btc := batch.Entries[0]
	if btc.Row != 1 || btc.Signal.Symbol != "BTCUSDT" || !btc.Asset.TradingEnabled {
		t.Errorf("unexpected BTC entry %+v", btc)
	}
	if btc.Signal.Levels.StopLoss != 95 || btc.Signal.Levels.TakeProfit != 110 {
		t.Errorf("unexpected levels %+v", btc.Signal.Levels)
	}
	if batch.Entries[1].Asset.TradingEnabled {
		t.Error("ETH is switched off")
	}
	if len(batch.Rejected) != 1 || batch.Rejected[0].Row != 3 {
		t.Errorf("expected row 3 rejected, got %v", batch.Rejected)
	}
}

func TestFileSourceMissingFile(t *testing.T) {
	_, err := NewFileSource(filepath.Join(t.TempDir(), "none.yaml"), NewParser("USDT")).FetchSignals(context.Background())
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}
