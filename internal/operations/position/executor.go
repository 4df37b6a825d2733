package position

import (
	"SheetTradeBot/internal/logging"
	"SheetTradeBot/internal/models"
	"SheetTradeBot/internal/operations/notify"
	"SheetTradeBot/internal/operations/signals"
	"SheetTradeBot/internal/repositories"
	"SheetTradeBot/internal/services/strategy"
	"context"
	"fmt"
	"log"
	"time"
)

// Gateway places market orders. The reference price is the price the decision was made at.
type Gateway interface {
	Open(ctx context.Context, symbol, side string, quoteAmount, price float64) (*models.Fill, error)
	Close(ctx context.Context, position models.Position, price float64) (*models.Fill, error)
}

// PositionExecutor carries out decisions: orders, persistence, sheet status and notifications
type PositionExecutor struct {
	gateway      Gateway
	positionRepo *repositories.PositionRepository
	tradeRepo    *repositories.TradeRepository
	reporter     signals.Reporter
	notifier     notify.Notifier
	tradeAmount  float64
	now          func() time.Time
}

func NewPositionExecutor(
	gateway Gateway,
	positionRepo *repositories.PositionRepository,
	tradeRepo *repositories.TradeRepository,
	reporter signals.Reporter,
	notifier notify.Notifier,
	tradeAmount float64,
	now func() time.Time,
) *PositionExecutor {
	if now == nil {
		now = time.Now
	}
	return &PositionExecutor{
		gateway:      gateway,
		positionRepo: positionRepo,
		tradeRepo:    tradeRepo,
		reporter:     reporter,
		notifier:     notifier,
		tradeAmount:  tradeAmount,
		now:          now,
	}
}

// Execute applies one decision. row is the signal row the asset came from.
// It returns the position as stored after the action, nil when flat.
func (e *PositionExecutor) Execute(ctx context.Context, cycleID string, row int, decision *strategy.Decision) (*models.Position, error) {
	switch decision.Action {
	case strategy.ActionNone:
		return e.hold(decision)
	case strategy.ActionOpenLong, strategy.ActionOpenShort:
		return e.open(ctx, cycleID, row, decision)
	case strategy.ActionAdjustStop:
		return e.adjustStop(ctx, cycleID, row, decision)
	case strategy.ActionClose:
		return nil, e.close(ctx, cycleID, row, decision)
	default:
		return nil, fmt.Errorf("unknown action %s for %s", decision.Action, decision.Symbol)
	}
}

func (e *PositionExecutor) open(ctx context.Context, cycleID string, row int, decision *strategy.Decision) (*models.Position, error) {
	pending := decision.Position
	fill, err := e.gateway.Open(ctx, decision.Symbol, pending.Side, e.tradeAmount, decision.Price)
	if err != nil {
		e.report(ctx, row, signals.StatusUpdate{Status: signals.StatusOrderFailed})
		e.notify(ctx, fmt.Sprintf("❌ <b>%s</b> %s order failed: %s",
			notify.Escape(decision.Symbol), pending.Side, notify.Escape(err)))
		return nil, fmt.Errorf("failed to open %s: %w", decision.Symbol, err)
	}

	position := *pending
	position.Quantity = fill.Quantity
	position.EntryPrice = fill.Price
	position.HighWaterMark = fill.Price
	position.OrderID = fill.OrderID
	position.ClientOrderID = fill.ClientOrderID
	position.SheetRow = row
	position.OpenTime = e.now()
	position.Status = models.PositionStatusOpen

	if err := e.positionRepo.Create(&position); err != nil {
		// the order is live; say so loudly
		e.notify(ctx, fmt.Sprintf("⚠️ <b>%s</b> order %s filled but the position could not be saved: %s",
			notify.Escape(decision.Symbol), notify.Escape(fill.OrderID), notify.Escape(err)))
		return nil, fmt.Errorf("failed to save position %s: %w", decision.Symbol, err)
	}

	e.journal(&models.Trade{
		PositionID: position.ID,
		CycleID:    cycleID,
		Symbol:     position.Symbol,
		Type:       models.TradeTypeOpen,
		Price:      fill.Price,
		Quantity:   fill.Quantity,
		StopLoss:   position.StopLossPrice,
		TakeProfit: position.TakeProfitPrice,
		OrderID:    fill.OrderID,
		Reason:     decision.Reason,
	})

	e.report(ctx, row, signals.StatusUpdate{
		Status:        signals.StatusOrderPlaced,
		PurchasePrice: fill.Price,
		Quantity:      fill.Quantity,
		StopLoss:      position.StopLossPrice,
		TakeProfit:    position.TakeProfitPrice,
		OrderID:       fill.OrderID,
	})

	log.Printf("Opened %s %s: %.8f @ %.8f | SL %.8f TP %.8f | order %s",
		position.Side, position.Symbol, position.Quantity, position.EntryPrice,
		position.StopLossPrice, position.TakeProfitPrice, position.OrderID)
	e.notify(ctx, fmt.Sprintf("🟢 <b>%s</b> %s opened\nPrice: %.8g\nQuantity: %.8g\nStop-Loss: %.8g\nTake Profit: %.8g\nATR: %.8g",
		notify.Escape(position.Symbol), position.Side, position.EntryPrice, position.Quantity,
		position.StopLossPrice, position.TakeProfitPrice, decision.ATR))
	return &position, nil
}

// hold stores a new high-water mark that did not move the stop
func (e *PositionExecutor) hold(decision *strategy.Decision) (*models.Position, error) {
	if decision.Position == nil || !decision.MarkMoved {
		return decision.Position, nil
	}
	position := *decision.Position
	if err := e.positionRepo.Update(&position); err != nil {
		return nil, fmt.Errorf("failed to update high-water mark for %s: %w", position.Symbol, err)
	}
	logging.Debugf("%s high-water mark %.8f, stop stays at %.8f", position.Symbol, position.HighWaterMark, position.StopLossPrice)
	return &position, nil
}

func (e *PositionExecutor) adjustStop(ctx context.Context, cycleID string, row int, decision *strategy.Decision) (*models.Position, error) {
	position := *decision.Position
	if err := e.positionRepo.Update(&position); err != nil {
		return nil, fmt.Errorf("failed to update stop for %s: %w", position.Symbol, err)
	}

	e.journal(&models.Trade{
		PositionID: position.ID,
		CycleID:    cycleID,
		Symbol:     position.Symbol,
		Type:       models.TradeTypeAdjustStop,
		Price:      decision.Price,
		Quantity:   position.Quantity,
		StopLoss:   position.StopLossPrice,
		TakeProfit: position.TakeProfitPrice,
		Reason:     decision.Reason,
	})
	e.report(ctx, sheetRow(row, &position), signals.StatusUpdate{
		Status:     signals.StatusUpdateTPSL,
		StopLoss:   position.StopLossPrice,
		TakeProfit: position.TakeProfitPrice,
	})

	log.Printf("Trailing stop %s -> %.8f (price %.8f, high %.8f)",
		position.Symbol, position.StopLossPrice, decision.Price, position.HighWaterMark)
	return &position, nil
}

func (e *PositionExecutor) close(ctx context.Context, cycleID string, row int, decision *strategy.Decision) error {
	position := *decision.Position
	fill, err := e.gateway.Close(ctx, position, decision.Price)
	if err != nil {
		e.notify(ctx, fmt.Sprintf("❌ <b>%s</b> close (%s) failed: %s",
			notify.Escape(position.Symbol), decision.Reason, notify.Escape(err)))
		return fmt.Errorf("failed to close %s: %w", position.Symbol, err)
	}

	position.ExitPrice = fill.Price
	position.PnL = position.UnrealizedPnL(fill.Price)
	position.CloseReason = decision.Reason
	position.CloseTime = e.now()

	trade := &models.Trade{
		CycleID:    cycleID,
		Symbol:     position.Symbol,
		Type:       models.TradeTypeClose,
		Price:      fill.Price,
		Quantity:   fill.Quantity,
		StopLoss:   position.StopLossPrice,
		TakeProfit: position.TakeProfitPrice,
		PnL:        position.PnL,
		OrderID:    fill.OrderID,
		Reason:     decision.Reason,
	}
	if err := e.positionRepo.ClosePosition(&position, trade); err != nil {
		e.notify(ctx, fmt.Sprintf("⚠️ <b>%s</b> sold (order %s) but the position could not be closed in storage: %s",
			notify.Escape(position.Symbol), notify.Escape(fill.OrderID), notify.Escape(err)))
		return fmt.Errorf("failed to save closed position %s: %w", position.Symbol, err)
	}

	e.report(ctx, sheetRow(row, &position), signals.StatusUpdate{
		Status:    closeStatus(decision.Reason),
		SoldPrice: fill.Price,
		OrderID:   fill.OrderID,
		// a stale BUY or the levels of this position must not carry over; the operator re-arms the row
		DisableTrading: true,
		ResetSignal:    true,
	})

	log.Printf("Closed %s %s (%s): entry %.8f exit %.8f | PnL %.4f",
		position.Side, position.Symbol, decision.Reason, position.EntryPrice, position.ExitPrice, position.PnL)
	icon := "🔴"
	if position.PnL >= 0 {
		icon = "✅"
	}
	e.notify(ctx, fmt.Sprintf("%s <b>%s</b> closed (%s)\nEntry: %.8g\nExit: %.8g\nPnL: %.4f",
		icon, notify.Escape(position.Symbol), decision.Reason, position.EntryPrice, position.ExitPrice, position.PnL))
	return nil
}

func closeStatus(reason string) string {
	switch reason {
	case strategy.ReasonStopLoss:
		return signals.StatusStopLoss
	case strategy.ReasonTakeProfit:
		return signals.StatusTakeProfit
	default:
		return signals.StatusSold
	}
}

// sheetRow prefers the current row; rows can move when the sheet is edited
func sheetRow(row int, position *models.Position) int {
	if row > 0 {
		return row
	}
	return position.SheetRow
}

func (e *PositionExecutor) journal(trade *models.Trade) {
	if err := e.tradeRepo.Create(trade); err != nil {
		log.Printf("Error journaling %s trade for %s: %v", trade.Type, trade.Symbol, err)
	}
}

func (e *PositionExecutor) report(ctx context.Context, row int, update signals.StatusUpdate) {
	if e.reporter == nil || row <= 0 {
		return
	}
	if err := e.reporter.ReportStatus(ctx, row, update); err != nil {
		log.Printf("Error writing status %s to row %d: %v", update.Status, row, err)
	}
}

func (e *PositionExecutor) notify(ctx context.Context, message string) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.Notify(ctx, message); err != nil {
		log.Printf("Error sending notification: %v", err)
	}
}
