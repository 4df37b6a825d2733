package indicators

import "SheetTradeBot/internal/models"

// PriceSeries is a bounded, append-only window of candles for one symbol.
type PriceSeries struct {
	symbol   string
	capacity int
	samples  []models.Price
}

func NewPriceSeries(symbol string, capacity int) *PriceSeries {
	if capacity < 1 {
		capacity = 1
	}
	return &PriceSeries{
		symbol:   symbol,
		capacity: capacity,
		samples:  make([]models.Price, 0, capacity),
	}
}

func (s *PriceSeries) Symbol() string {
	return s.symbol
}

func (s *PriceSeries) Len() int {
	return len(s.samples)
}

// Append adds candles newer than the last stored one, dropping the oldest
// samples beyond capacity. It returns how many candles were accepted.
func (s *PriceSeries) Append(prices ...models.Price) int {
	added := 0
	for _, p := range prices {
		if p.Symbol != "" && p.Symbol != s.symbol {
			continue
		}
		if n := len(s.samples); n > 0 && !p.OpenTime.After(s.samples[n-1].OpenTime) {
			continue
		}
		s.samples = append(s.samples, p)
		added++
	}
	if over := len(s.samples) - s.capacity; over > 0 {
		s.samples = append(s.samples[:0], s.samples[over:]...)
	}
	return added
}

// Samples returns a copy of the window, oldest first.
func (s *PriceSeries) Samples() []models.Price {
	out := make([]models.Price, len(s.samples))
	copy(out, s.samples)
	return out
}

// Last returns the newest candle.
func (s *PriceSeries) Last() (models.Price, bool) {
	if len(s.samples) == 0 {
		return models.Price{}, false
	}
	return s.samples[len(s.samples)-1], true
}
