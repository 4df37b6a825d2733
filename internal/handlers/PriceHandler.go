package handlers

import (
	"SheetTradeBot/internal/models"
	"SheetTradeBot/internal/repositories"
	"SheetTradeBot/internal/services/indicators"
	"context"
	"fmt"
	"log"
	"sync"
	"time"
)

// MarketData returns the most recent candles of a symbol, oldest first.
// The last candle may still be forming.
type MarketData interface {
	GetKlines(ctx context.Context, symbol, interval string, limit int) ([]models.Price, error)
}

// Snapshot is the market view of one asset for one cycle
type Snapshot struct {
	Symbol string
	// Price is the latest traded price, the close of the newest candle
	Price float64
	// Samples are closed candles only, oldest first
	Samples []models.Price
}

// PriceHandler keeps a bounded window of closed candles per symbol and records them
type PriceHandler struct {
	market    MarketData
	priceRepo *repositories.PriceRepository
	interval  string
	window    int
	now       func() time.Time

	mu     sync.Mutex
	series map[string]*indicators.PriceSeries
}

func NewPriceHandler(market MarketData, priceRepo *repositories.PriceRepository, interval string, window int, now func() time.Time) *PriceHandler {
	if now == nil {
		now = time.Now
	}
	return &PriceHandler{
		market:    market,
		priceRepo: priceRepo,
		interval:  interval,
		window:    window,
		now:       now,
		series:    make(map[string]*indicators.PriceSeries),
	}
}

func (h *PriceHandler) seriesFor(symbol string) *indicators.PriceSeries {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.series[symbol]
	if !ok {
		s = indicators.NewPriceSeries(symbol, h.window)
		h.series[symbol] = s
	}
	return s
}

// Warmup fills a symbol's window from stored candles so a restart does not wait for new ones
func (h *PriceHandler) Warmup(symbol string) (int, error) {
	stored, err := h.priceRepo.GetRecentPrices(symbol, h.interval, h.window)
	if err != nil {
		return 0, fmt.Errorf("failed to load stored candles for %s: %w", symbol, err)
	}
	return h.seriesFor(symbol).Append(stored...), nil
}

// Refresh pulls the latest candles, records the closed ones and returns the asset's snapshot.
// Callers serialize per symbol.
func (h *PriceHandler) Refresh(ctx context.Context, symbol string) (*Snapshot, error) {
	// one extra for the candle still forming
	klines, err := h.market.GetKlines(ctx, symbol, h.interval, h.window+1)
	if err != nil {
		return nil, fmt.Errorf("failed to get klines for %s: %w", symbol, err)
	}
	if len(klines) == 0 {
		return nil, fmt.Errorf("no klines returned for %s", symbol)
	}

	now := h.now()
	closed := make([]models.Price, 0, len(klines))
	for _, k := range klines {
		if k.CloseTime.Before(now) {
			closed = append(closed, k)
		}
	}

	if err := h.priceRepo.SaveCandles(closed); err != nil {
		log.Printf("Error saving candles for %s: %v", symbol, err)
	}

	series := h.seriesFor(symbol)
	series.Append(closed...)

	return &Snapshot{
		Symbol:  symbol,
		Price:   klines[len(klines)-1].Close,
		Samples: series.Samples(),
	}, nil
}
