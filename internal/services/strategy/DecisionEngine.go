package strategy

import (
	"SheetTradeBot/internal/models"
	"SheetTradeBot/internal/services/risk"
	"fmt"
)

// DecisionEngine turns a signal, the open position and the latest price into an action.
// Decide has no side effects: the input position is never modified.
type DecisionEngine struct {
	bands    *risk.BandCalculator
	trailing *risk.TrailingStop
}

func NewDecisionEngine(multiplier, takeProfitCap float64) *DecisionEngine {
	return &DecisionEngine{
		bands:    risk.NewBandCalculator(multiplier, takeProfitCap),
		trailing: risk.NewTrailingStop(multiplier),
	}
}

func (e *DecisionEngine) Decide(in Input) (*Decision, error) {
	symbol := in.Asset.Symbol
	if in.Signal.Symbol != "" && in.Signal.Symbol != symbol {
		return nil, fmt.Errorf("%w: asset %s, signal %s", ErrSymbolMismatch, symbol, in.Signal.Symbol)
	}
	if in.Position != nil && in.Position.Symbol != symbol {
		return nil, fmt.Errorf("%w: asset %s, position %s", ErrSymbolMismatch, symbol, in.Position.Symbol)
	}

	decision := &Decision{
		Symbol: symbol,
		Action: ActionNone,
		Price:  in.Price,
		ATR:    in.ATR,
	}
	if in.Position != nil {
		current := *in.Position
		decision.Position = &current
	}

	if !in.Asset.TradingEnabled || !in.Asset.Tradable {
		decision.Reason = ReasonDisabled
		return decision, nil
	}

	if in.Position == nil {
		return e.decideEntry(in, decision)
	}
	return e.decideOpenPosition(in, decision)
}

func (e *DecisionEngine) decideEntry(in Input, decision *Decision) (*Decision, error) {
	var side string
	var action Action
	switch {
	case in.Signal.Action == SignalBuy:
		side, action = models.PositionSideLong, ActionOpenLong
	case in.Signal.Action == SignalSell && in.Asset.AllowShort:
		side, action = models.PositionSideShort, ActionOpenShort
	default:
		decision.Reason = ReasonNoSignal
		return decision, nil
	}

	band, err := e.bands.Calculate(side, in.Price, in.ATR, in.Signal.Levels)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", in.Asset.Symbol, err)
	}

	decision.Action = action
	decision.Reason = ReasonEntry
	decision.Band = band
	decision.Position = &models.Position{
		Symbol:          in.Asset.Symbol,
		Side:            side,
		EntryPrice:      in.Price,
		StopLossPrice:   band.StopLoss,
		TakeProfitPrice: band.TakeProfit,
		HighWaterMark:   in.Price,
		Status:          models.PositionStatusOpen,
	}
	return decision, nil
}

func (e *DecisionEngine) decideOpenPosition(in Input, decision *Decision) (*Decision, error) {
	previous := *in.Position
	updated, moved := e.trailing.Update(previous, in.Price, in.ATR)
	decision.Position = &updated
	decision.MarkMoved = updated.HighWaterMark != previous.HighWaterMark

	long := updated.IsLong()
	stopHit := (long && in.Price <= updated.StopLossPrice) || (!long && in.Price >= updated.StopLossPrice)
	targetHit := updated.TakeProfitPrice > 0 &&
		((long && in.Price >= updated.TakeProfitPrice) || (!long && in.Price <= updated.TakeProfitPrice))
	exitSignal := (long && in.Signal.Action == SignalSell) || (!long && in.Signal.Action == SignalBuy)

	switch {
	// stop is checked first when a single update crosses both levels
	case stopHit:
		decision.Action, decision.Reason = ActionClose, ReasonStopLoss
	case targetHit:
		decision.Action, decision.Reason = ActionClose, ReasonTakeProfit
	case exitSignal:
		decision.Action, decision.Reason = ActionClose, ReasonSignal
	case moved:
		decision.Action, decision.Reason = ActionAdjustStop, ReasonTrailing
	default:
		decision.Reason = ReasonHold
	}
	return decision, nil
}

// Describe renders a decision for logs and notifications
func (d *Decision) Describe() string {
	switch d.Action {
	case ActionOpenLong, ActionOpenShort:
		return fmt.Sprintf("%s %s @ %.8g | SL %.8g TP %.8g | ATR %.8g",
			d.Action, d.Symbol, d.Price, d.Position.StopLossPrice, d.Position.TakeProfitPrice, d.ATR)
	case ActionClose:
		return fmt.Sprintf("%s %s @ %.8g (%s)", d.Action, d.Symbol, d.Price, d.Reason)
	case ActionAdjustStop:
		return fmt.Sprintf("%s %s stop -> %.8g (high %.8g)",
			d.Action, d.Symbol, d.Position.StopLossPrice, d.Position.HighWaterMark)
	default:
		return fmt.Sprintf("%s %s (%s)", d.Action, d.Symbol, d.Reason)
	}
}
