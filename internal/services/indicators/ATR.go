package indicators

import (
	"SheetTradeBot/internal/models"
	"errors"
	"fmt"
	"math"

	talib "github.com/markcheno/go-talib"
)

var (
	// ErrInsufficientData means the series holds fewer samples than the ATR period
	ErrInsufficientData = errors.New("insufficient price data")
	ErrInvalidPeriod    = errors.New("invalid ATR period")
)

// Smoothing selects how true ranges are averaged
type Smoothing string

const (
	SmoothingSMA Smoothing = "sma"
	SmoothingEMA Smoothing = "ema"
)

// ATRService provides Average True Range calculations
type ATRService struct {
	period    int
	smoothing Smoothing
}

// NewATRService creates an ATR service; an unknown smoothing falls back to SMA
func NewATRService(period int, smoothing Smoothing) *ATRService {
	if smoothing != SmoothingEMA {
		smoothing = SmoothingSMA
	}
	return &ATRService{
		period:    period,
		smoothing: smoothing,
	}
}

func (s *ATRService) Period() int {
	return s.period
}

// Window is how many samples the service wants to see: the period plus the close before it
func (s *ATRService) Window() int {
	return s.period + 1
}

// Calculate returns the ATR of the most recent period samples of series
func (s *ATRService) Calculate(series []models.Price) (float64, error) {
	if s.period < 1 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidPeriod, s.period)
	}
	if len(series) < s.period {
		return 0, fmt.Errorf("%w: have %d samples, need %d", ErrInsufficientData, len(series), s.period)
	}

	ranges := TrueRanges(series)

	// EMA seeds with the SMA of the first period values, so with exactly period
	// ranges both methods agree
	var smoothed []float64
	switch {
	case s.period == 1:
		return ranges[len(ranges)-1], nil
	case s.smoothing == SmoothingEMA:
		smoothed = talib.Ema(ranges, s.period)
	default:
		smoothed = talib.Sma(ranges, s.period)
	}

	atr := smoothed[len(smoothed)-1]
	if math.IsNaN(atr) || atr < 0 {
		return 0, fmt.Errorf("%w: ATR evaluated to %v", ErrInsufficientData, atr)
	}
	return atr, nil
}

// TrueRanges computes the true range of each sample. The first sample has no
// previous close and uses its high-low range.
func TrueRanges(series []models.Price) []float64 {
	ranges := make([]float64, len(series))
	for i, p := range series {
		if i == 0 {
			ranges[i] = p.High - p.Low
			continue
		}
		ranges[i] = TrueRange(p.High, p.Low, series[i-1].Close)
	}
	return ranges
}

// TrueRange is max(high-low, |high-prevClose|, |low-prevClose|)
func TrueRange(high, low, prevClose float64) float64 {
	return math.Max(high-low, math.Max(math.Abs(high-prevClose), math.Abs(low-prevClose)))
}
