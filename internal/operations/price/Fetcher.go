package price

import (
	"SheetTradeBot/internal/models"
	"SheetTradeBot/internal/repositories"
	"context"
	"fmt"
	"log"
	"time"
)

// HistoricalSource pages candles out of the exchange
type HistoricalSource interface {
	GetHistoricalKlines(ctx context.Context, symbol, interval string, start, end time.Time) ([]models.Price, error)
}

// PriceFetcher backfills stored candles for a set of symbols
type PriceFetcher struct {
	source    HistoricalSource
	priceRepo *repositories.PriceRepository
	symbols   []string
}

func NewPriceFetcher(source HistoricalSource, priceRepo *repositories.PriceRepository, symbols []string) *PriceFetcher {
	return &PriceFetcher{
		source:    source,
		priceRepo: priceRepo,
		symbols:   symbols,
	}
}

// FetchPrices stores the last days of timeframe candles before end. A failing
// symbol is logged and skipped; the count of stored candles is returned.
func (f *PriceFetcher) FetchPrices(ctx context.Context, timeframe string, days int, end time.Time) (int, error) {
	if days <= 0 {
		return 0, fmt.Errorf("invalid number of days: %d", days)
	}
	start := end.AddDate(0, 0, -days)

	total := 0
	failed := 0
	for _, symbol := range f.symbols {
		prices, err := f.source.GetHistoricalKlines(ctx, symbol, timeframe, start, end)
		if err != nil {
			if ctx.Err() != nil {
				return total, ctx.Err()
			}
			log.Printf("Error fetching prices for %s: %v", symbol, err)
			failed++
			continue
		}

		if err := f.priceRepo.SaveCandles(prices); err != nil {
			log.Printf("Error saving prices for %s: %v", symbol, err)
			failed++
			continue
		}
		total += len(prices)
		log.Printf("Stored %d %s candles for %s from %s to %s",
			len(prices), timeframe, symbol,
			start.Format("2006-01-02 15:04:05"),
			end.Format("2006-01-02 15:04:05"))
	}

	if failed == len(f.symbols) && failed > 0 {
		return 0, fmt.Errorf("failed to fetch prices for every symbol")
	}
	return total, nil
}
