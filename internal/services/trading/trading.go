package trading

import (
	"SheetTradeBot/internal/models"
	"SheetTradeBot/internal/repositories"
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync/atomic"
	"time"
)

// FeeRate is the taker fee charged on both sides of a paper trade
const FeeRate = 0.001

var ErrInsufficientBalance = errors.New("insufficient paper balance")

// PaperTrader fills orders at the reference price and settles them against the stored quote balance
type PaperTrader struct {
	balanceRepo *repositories.BalanceRepository
	quoteAsset  string
	orderSeq    atomic.Int64
}

// NewPaperTrader seeds the quote balance with initialBalance when none is stored yet
func NewPaperTrader(balanceRepo *repositories.BalanceRepository, quoteAsset string, initialBalance float64) (*PaperTrader, error) {
	if _, err := balanceRepo.Ensure(quoteAsset, initialBalance); err != nil {
		return nil, fmt.Errorf("failed to seed paper balance: %w", err)
	}
	return &PaperTrader{
		balanceRepo: balanceRepo,
		quoteAsset:  quoteAsset,
	}, nil
}

// Open spends quoteAmount at price. Shorts reserve the same amount as margin.
func (t *PaperTrader) Open(ctx context.Context, symbol, side string, quoteAmount, price float64) (*models.Fill, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if price <= 0 || quoteAmount <= 0 {
		return nil, fmt.Errorf("invalid paper order %s: amount %.8g price %.8g", symbol, quoteAmount, price)
	}

	balance, err := t.balanceRepo.FindByAsset(t.quoteAsset)
	if err != nil {
		return nil, fmt.Errorf("failed to get balance: %w", err)
	}
	if balance == nil || balance.Balance < quoteAmount {
		return nil, fmt.Errorf("%w: need %.2f %s", ErrInsufficientBalance, quoteAmount, t.quoteAsset)
	}

	fee := quoteAmount * FeeRate
	quantity := (quoteAmount - fee) / price
	if _, err := t.balanceRepo.Adjust(t.quoteAsset, -quoteAmount); err != nil {
		return nil, fmt.Errorf("failed to update balance: %w", err)
	}
	if side == models.PositionSideLong {
		if _, err := t.balanceRepo.Adjust(baseAsset(symbol, t.quoteAsset), quantity); err != nil {
			return nil, fmt.Errorf("failed to update balance: %w", err)
		}
	}

	fill := t.newFill(symbol, side, price, quantity)
	fill.QuoteQuantity = quoteAmount
	fill.Commission = fee
	log.Printf("Paper %s %s: %.8f @ %.8f (fee %.4f %s)", side, symbol, quantity, price, fee, t.quoteAsset)
	return fill, nil
}

// Close settles the whole position at price
func (t *PaperTrader) Close(ctx context.Context, position models.Position, price float64) (*models.Fill, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if price <= 0 {
		return nil, fmt.Errorf("invalid paper close price %.8g for %s", price, position.Symbol)
	}

	gross := position.Quantity * price
	fee := gross * FeeRate

	var credit float64
	if position.IsLong() {
		credit = gross - fee
		if _, err := t.balanceRepo.Adjust(baseAsset(position.Symbol, t.quoteAsset), -position.Quantity); err != nil {
			return nil, fmt.Errorf("failed to update balance: %w", err)
		}
	} else {
		// margin back plus the short's profit
		margin := position.Quantity * position.EntryPrice
		credit = margin + position.UnrealizedPnL(price) - fee
	}
	if _, err := t.balanceRepo.Adjust(t.quoteAsset, credit); err != nil {
		return nil, fmt.Errorf("failed to update balance: %w", err)
	}

	fill := t.newFill(position.Symbol, position.Side, price, position.Quantity)
	fill.QuoteQuantity = gross
	fill.Commission = fee
	log.Printf("Paper close %s %s: %.8f @ %.8f | Entry: %.8f | PnL: %.2f %s",
		position.Symbol, position.Side, position.Quantity, price, position.EntryPrice,
		position.UnrealizedPnL(price)-fee, t.quoteAsset)
	return fill, nil
}

// Balance returns the current quote balance
func (t *PaperTrader) Balance() (float64, error) {
	balance, err := t.balanceRepo.FindByAsset(t.quoteAsset)
	if err != nil {
		return 0, err
	}
	if balance == nil {
		return 0, nil
	}
	return balance.Balance, nil
}

func (t *PaperTrader) newFill(symbol, side string, price, quantity float64) *models.Fill {
	seq := t.orderSeq.Add(1)
	return &models.Fill{
		Symbol:        symbol,
		Side:          side,
		OrderID:       fmt.Sprintf("paper-%d-%d", time.Now().UnixMilli(), seq),
		ClientOrderID: fmt.Sprintf("paper-%d", seq),
		Price:         price,
		Quantity:      quantity,
	}
}

func baseAsset(symbol, quote string) string {
	if strings.HasSuffix(symbol, quote) && len(symbol) > len(quote) {
		return strings.TrimSuffix(symbol, quote)
	}
	return symbol
}
