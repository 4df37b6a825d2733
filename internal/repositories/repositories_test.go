package repositories

import (
	"SheetTradeBot/internal/models"
	"errors"
	"testing"
	"time"

	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory returned error: %v", err)
	}
	return db
}

func openPosition(symbol string) *models.Position {
	return &models.Position{
		Symbol:          symbol,
		Side:            models.PositionSideLong,
		Quantity:        0.5,
		EntryPrice:      100,
		StopLossPrice:   96,
		TakeProfitPrice: 104,
		HighWaterMark:   100,
		OpenTime:        time.Date(2024, 11, 17, 0, 0, 0, 0, time.UTC),
		Status:          models.PositionStatusOpen,
	}
}

func TestPositionRepositoryOnePositionPerSymbol(t *testing.T) {
	repo := NewPositionRepository(newTestDB(t))

	if err := repo.Create(openPosition("BTCUSDT")); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	err := repo.Create(openPosition("BTCUSDT"))
	if !errors.Is(err, ErrPositionExists) {
		t.Fatalf("second Create error=%v, expected ErrPositionExists", err)
	}
	if err := repo.Create(openPosition("ETHUSDT")); err != nil {
		t.Fatalf("Create for another symbol returned error: %v", err)
	}

	open, err := repo.FindOpenPositions()
	if err != nil {
		t.Fatalf("FindOpenPositions returned error: %v", err)
	}
	if len(open) != 2 {
		t.Fatalf("open positions=%d, expected 2", len(open))
	}
}

func TestPositionRepositoryCloseAllowsReopen(t *testing.T) {
	db := newTestDB(t)
	repo := NewPositionRepository(db)
	trades := NewTradeRepository(db)

	position := openPosition("BTCUSDT")
	if err := repo.Create(position); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	position.ExitPrice = 104
	position.PnL = 2
	position.CloseTime = time.Date(2024, 11, 18, 0, 0, 0, 0, time.UTC)
	trade := &models.Trade{Symbol: "BTCUSDT", Type: models.TradeTypeClose, Price: 104, PnL: 2}
	if err := repo.ClosePosition(position, trade); err != nil {
		t.Fatalf("ClosePosition returned error: %v", err)
	}

	found, err := repo.FindOpenPositionBySymbol("BTCUSDT")
	if err != nil {
		t.Fatalf("FindOpenPositionBySymbol returned error: %v", err)
	}
	if found != nil {
		t.Fatalf("expected no open position, got %+v", found)
	}

	journal, err := trades.FindByPosition(position.ID)
	if err != nil {
		t.Fatalf("FindByPosition returned error: %v", err)
	}
	if len(journal) != 1 || journal[0].Type != models.TradeTypeClose {
		t.Fatalf("journal=%+v, expected one close trade", journal)
	}

	total, err := repo.GetTotalPnL(time.Date(2024, 11, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("GetTotalPnL returned error: %v", err)
	}
	if total != 2 {
		t.Fatalf("total PnL=%v, expected 2", total)
	}

	if err := repo.Create(openPosition("BTCUSDT")); err != nil {
		t.Fatalf("reopening after close returned error: %v", err)
	}
}

func TestPriceRepositorySaveCandlesSkipsDuplicates(t *testing.T) {
	repo := NewPriceRepository(newTestDB(t))
	base := time.Date(2024, 11, 17, 0, 0, 0, 0, time.UTC)

	var candles []models.Price
	for i := 0; i < 5; i++ {
		candles = append(candles, models.Price{
			Symbol:    "BTCUSDT",
			TimeFrame: models.PriceTimeFrame1h,
			OpenTime:  base.Add(time.Duration(i) * time.Hour),
			High:      float64(101 + i),
			Low:       float64(99 + i),
			Close:     float64(100 + i),
		})
	}
	if err := repo.SaveCandles(candles); err != nil {
		t.Fatalf("SaveCandles returned error: %v", err)
	}
	if err := repo.SaveCandles(candles[3:]); err != nil {
		t.Fatalf("SaveCandles with duplicates returned error: %v", err)
	}

	recent, err := repo.GetRecentPrices("BTCUSDT", models.PriceTimeFrame1h, 3)
	if err != nil {
		t.Fatalf("GetRecentPrices returned error: %v", err)
	}
	if len(recent) != 3 {
		t.Fatalf("recent=%d, expected 3", len(recent))
	}
	if recent[0].Close != 102 || recent[2].Close != 104 {
		t.Fatalf("recent closes=%v,%v expected ascending 102..104", recent[0].Close, recent[2].Close)
	}

	latest, err := repo.GetLatestPriceByTimeFrame("BTCUSDT", models.PriceTimeFrame1h)
	if err != nil {
		t.Fatalf("GetLatestPriceByTimeFrame returned error: %v", err)
	}
	if latest == nil || latest.Close != 104 {
		t.Fatalf("latest=%+v, expected close 104", latest)
	}
}

func TestBalanceRepositoryAdjust(t *testing.T) {
	repo := NewBalanceRepository(newTestDB(t))

	if _, err := repo.Ensure("USDT", 1000); err != nil {
		t.Fatalf("Ensure returned error: %v", err)
	}
	// a second Ensure keeps the stored value
	if _, err := repo.Ensure("USDT", 5); err != nil {
		t.Fatalf("Ensure returned error: %v", err)
	}

	balance, err := repo.Adjust("USDT", -10)
	if err != nil {
		t.Fatalf("Adjust returned error: %v", err)
	}
	if balance.Balance != 990 {
		t.Fatalf("balance=%v, expected 990", balance.Balance)
	}

	btc, err := repo.Adjust("BTC", 0.1)
	if err != nil {
		t.Fatalf("Adjust on new asset returned error: %v", err)
	}
	if btc.Balance != 0.1 {
		t.Fatalf("BTC balance=%v, expected 0.1", btc.Balance)
	}
}
