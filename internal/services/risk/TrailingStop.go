package risk

import "SheetTradeBot/internal/models"

// TrailingStop ratchets a position's stop behind the best price seen since entry.
type TrailingStop struct {
	multiplier float64
}

func NewTrailingStop(multiplier float64) *TrailingStop {
	return &TrailingStop{multiplier: multiplier}
}

// Update applies price to a copy of position and reports whether the stop moved.
// A long stop only rises and a short stop only falls.
func (t *TrailingStop) Update(position models.Position, price, atr float64) (models.Position, bool) {
	if price <= 0 || atr < 0 {
		return position, false
	}
	offset := t.multiplier * atr

	if position.IsLong() {
		if price <= position.HighWaterMark {
			return position, false
		}
		position.HighWaterMark = price
		candidate := position.HighWaterMark - offset
		if candidate > position.StopLossPrice {
			position.StopLossPrice = candidate
			return position, true
		}
		return position, false
	}

	if position.HighWaterMark > 0 && price >= position.HighWaterMark {
		return position, false
	}
	position.HighWaterMark = price
	candidate := position.HighWaterMark + offset
	if position.StopLossPrice == 0 || candidate < position.StopLossPrice {
		position.StopLossPrice = candidate
		return position, true
	}
	return position, false
}
