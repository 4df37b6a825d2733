package risk

import (
	"SheetTradeBot/internal/models"
	"errors"
	"fmt"
	"math"
)

// ErrInvalidBand is returned for non-positive or inverted stop-loss / take-profit levels.
var ErrInvalidBand = errors.New("invalid risk band")

// Level sources, recorded on the band for logging and notifications
const (
	SourceATR        = "atr"
	SourceSignal     = "signal"
	SourceResistance = "resistance"
)

// Band is a stop-loss / take-profit pair around an entry price
type Band struct {
	StopLoss         float64
	TakeProfit       float64
	StopSource       string
	TakeProfitSource string
}

// Levels carries optional price levels supplied by a signal; zero means absent
type Levels struct {
	StopLoss       float64
	TakeProfit     float64
	ResistanceUp   float64
	ResistanceDown float64
}

// BandCalculator derives ATR risk bands
type BandCalculator struct {
	multiplier float64
	// takeProfitCap limits computed take-profit distance as a fraction of price, 0 disables it
	takeProfitCap float64
}

func NewBandCalculator(multiplier, takeProfitCap float64) *BandCalculator {
	return &BandCalculator{
		multiplier:    multiplier,
		takeProfitCap: takeProfitCap,
	}
}

func (c *BandCalculator) Multiplier() float64 {
	return c.multiplier
}

// Calculate returns the band for a position of side entered at price.
// Explicit signal levels win over resistance levels, which win over the ATR band.
func (c *BandCalculator) Calculate(side string, price, atr float64, levels Levels) (*Band, error) {
	if price <= 0 || math.IsNaN(price) {
		return nil, fmt.Errorf("%w: price %v", ErrInvalidBand, price)
	}
	if atr < 0 || c.multiplier < 0 || math.IsNaN(atr) {
		return nil, fmt.Errorf("%w: atr %v multiplier %v", ErrInvalidBand, atr, c.multiplier)
	}

	offset := c.multiplier * atr
	long := side != models.PositionSideShort

	band := &Band{StopSource: SourceATR, TakeProfitSource: SourceATR}
	if long {
		band.StopLoss = price - offset
		band.TakeProfit = price + offset
	} else {
		band.StopLoss = price + offset
		band.TakeProfit = price - offset
	}

	// resistance levels only apply on the side of price they protect
	if long {
		if levels.ResistanceDown > 0 && levels.ResistanceDown < price {
			band.StopLoss, band.StopSource = levels.ResistanceDown, SourceResistance
		}
		if levels.ResistanceUp > price {
			band.TakeProfit, band.TakeProfitSource = levels.ResistanceUp, SourceResistance
		}
	} else {
		if levels.ResistanceUp > price {
			band.StopLoss, band.StopSource = levels.ResistanceUp, SourceResistance
		}
		if levels.ResistanceDown > 0 && levels.ResistanceDown < price {
			band.TakeProfit, band.TakeProfitSource = levels.ResistanceDown, SourceResistance
		}
	}

	if c.takeProfitCap > 0 {
		limit := price * c.takeProfitCap
		if long && band.TakeProfit > price+limit {
			band.TakeProfit = price + limit
		}
		if !long && band.TakeProfit < price-limit {
			band.TakeProfit = price - limit
		}
	}

	if levels.StopLoss > 0 {
		band.StopLoss, band.StopSource = levels.StopLoss, SourceSignal
	}
	if levels.TakeProfit > 0 {
		band.TakeProfit, band.TakeProfitSource = levels.TakeProfit, SourceSignal
	}

	if err := validate(long, price, band); err != nil {
		return nil, err
	}
	return band, nil
}

func validate(long bool, price float64, band *Band) error {
	if band.StopLoss <= 0 || band.TakeProfit <= 0 {
		return fmt.Errorf("%w: stop %v take profit %v must be positive", ErrInvalidBand, band.StopLoss, band.TakeProfit)
	}
	if long && (band.StopLoss > price || band.TakeProfit < price) {
		return fmt.Errorf("%w: long band stop %v / take profit %v does not bracket price %v",
			ErrInvalidBand, band.StopLoss, band.TakeProfit, price)
	}
	if !long && (band.StopLoss < price || band.TakeProfit > price) {
		return fmt.Errorf("%w: short band stop %v / take profit %v does not bracket price %v",
			ErrInvalidBand, band.StopLoss, band.TakeProfit, price)
	}
	return nil
}
