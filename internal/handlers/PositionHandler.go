package handlers

import (
	"SheetTradeBot/internal/models"
	"SheetTradeBot/internal/operations/position"
	"SheetTradeBot/internal/repositories"
	"SheetTradeBot/internal/services/strategy"
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrSymbolBusy is returned when an asset is still being processed by another cycle
var ErrSymbolBusy = errors.New("symbol is being processed")

// PositionHandler decides and executes for one asset at a time
type PositionHandler struct {
	engine       *strategy.DecisionEngine
	executor     *position.PositionExecutor
	positionRepo *repositories.PositionRepository

	// per-symbol guard
	activeSymbols sync.Map
}

func NewPositionHandler(
	engine *strategy.DecisionEngine,
	executor *position.PositionExecutor,
	positionRepo *repositories.PositionRepository,
) *PositionHandler {
	return &PositionHandler{
		engine:       engine,
		executor:     executor,
		positionRepo: positionRepo,
	}
}

// Lock claims a symbol; the returned func releases it
func (h *PositionHandler) Lock(symbol string) (func(), error) {
	key := fmt.Sprintf("position_%s", symbol)
	if _, loaded := h.activeSymbols.LoadOrStore(key, true); loaded {
		return nil, fmt.Errorf("%w: %s", ErrSymbolBusy, symbol)
	}
	return func() { h.activeSymbols.Delete(key) }, nil
}

// CurrentPosition returns the stored open position, nil when flat
func (h *PositionHandler) CurrentPosition(symbol string) (*models.Position, error) {
	current, err := h.positionRepo.FindOpenPositionBySymbol(symbol)
	if err != nil {
		return nil, fmt.Errorf("failed to find existing position: %w", err)
	}
	return current, nil
}

// Handle decides on in and carries the decision out. The caller holds the symbol lock.
func (h *PositionHandler) Handle(ctx context.Context, cycleID string, row int, in strategy.Input) (*strategy.Decision, error) {
	decision, err := h.engine.Decide(in)
	if err != nil {
		return nil, err
	}
	if _, err := h.executor.Execute(ctx, cycleID, row, decision); err != nil {
		return decision, err
	}
	return decision, nil
}
