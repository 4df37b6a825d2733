package backtest

import (
	"SheetTradeBot/internal/models"
	"SheetTradeBot/internal/repositories"
	"SheetTradeBot/internal/services/indicators"
	"SheetTradeBot/internal/services/risk"
	"SheetTradeBot/internal/services/strategy"
	"SheetTradeBot/internal/services/trading"
	"errors"
	"fmt"
	"log"
	"math"
	"sync"
	"time"
)

// Engine replays stored candles through the ATR estimator and the decision engine
type Engine struct {
	priceRepo *repositories.PriceRepository
	decisions *strategy.DecisionEngine
	atr       *indicators.ATRService

	// Backtest state
	currentBalance float64
	maxBalance     float64
	trades         []Trade
	equityCurve    []EquityPoint
	adjustments    int
	skippedBands   int

	config Config

	mu sync.RWMutex
}

func NewEngine(priceRepo *repositories.PriceRepository, config Config) *Engine {
	return &Engine{
		priceRepo:      priceRepo,
		decisions:      strategy.NewDecisionEngine(config.ATRMultiplier, config.TakeProfitCap),
		atr:            indicators.NewATRService(config.ATRPeriod, indicators.Smoothing(config.ATRMethod)),
		config:         config,
		currentBalance: config.InitialBalance,
		maxBalance:     config.InitialBalance,
		trades:         make([]Trade, 0),
		equityCurve:    make([]EquityPoint, 0),
	}
}

func (e *Engine) RunBacktest(startTime, endTime time.Time, symbols []string) (*BacktestResults, error) {
	log.Printf("Running backtest from %s to %s",
		startTime.Format("2006-01-02 15:04:05"),
		endTime.Format("2006-01-02 15:04:05"))

	e.updateEquityCurve(startTime)
	for _, symbol := range symbols {
		if err := e.runSymbol(symbol, startTime, endTime); err != nil {
			return nil, fmt.Errorf("%s: %w", symbol, err)
		}
	}

	return e.calculateResults(), nil
}

func (e *Engine) runSymbol(symbol string, startTime, endTime time.Time) error {
	step, err := models.TimeFrameDuration(e.config.Interval)
	if err != nil {
		return err
	}

	// load enough history before the start to fill the ATR window
	warmup := startTime.Add(-time.Duration(e.atr.Window()) * step)
	prices, err := e.priceRepo.GetPricesByTimeFrame(symbol, e.config.Interval, warmup, endTime)
	if err != nil {
		return err
	}
	if len(prices) == 0 {
		return fmt.Errorf("no %s candles stored between %s and %s", e.config.Interval,
			warmup.Format("2006-01-02"), endTime.Format("2006-01-02"))
	}

	asset := strategy.AssetConfig{Symbol: symbol, TradingEnabled: true, Tradable: true, AllowShort: e.config.AllowShort}
	signal := strategy.Signal{Symbol: symbol, Action: e.config.Signal}
	series := indicators.NewPriceSeries(symbol, e.atr.Window())

	var open *models.Position
	for _, candle := range prices {
		series.Append(candle)
		if candle.OpenTime.Before(startTime) {
			continue
		}

		atr, err := e.atr.Calculate(series.Samples())
		if errors.Is(err, indicators.ErrInsufficientData) {
			continue
		}
		if err != nil {
			return err
		}

		decision, err := e.decisions.Decide(strategy.Input{
			Asset:    asset,
			Signal:   signal,
			Position: open,
			Price:    candle.Close,
			ATR:      atr,
		})
		if errors.Is(err, risk.ErrInvalidBand) {
			e.skippedBands++
			continue
		}
		if err != nil {
			return err
		}

		switch decision.Action {
		case strategy.ActionOpenLong, strategy.ActionOpenShort:
			open = decision.Position
			open.Quantity = e.config.TradeAmount / candle.Close
			open.OpenTime = candle.CloseTime
		case strategy.ActionAdjustStop:
			open = decision.Position
			e.adjustments++
		case strategy.ActionClose:
			e.closePosition(decision.Position, candle, decision.Reason)
			open = nil
		default:
			if open != nil {
				open = decision.Position
			}
		}
	}

	if open != nil {
		e.closePosition(open, prices[len(prices)-1], ReasonEndOfData)
	}
	return nil
}

func (e *Engine) closePosition(position *models.Position, candle models.Price, reason string) {
	exit := candle.Close
	fees := (position.EntryPrice + exit) * position.Quantity * trading.FeeRate

	trade := Trade{
		Symbol:     position.Symbol,
		EntryTime:  position.OpenTime,
		ExitTime:   candle.CloseTime,
		Side:       position.Side,
		EntryPrice: position.EntryPrice,
		ExitPrice:  exit,
		Size:       position.Quantity,
		StopLoss:   position.StopLossPrice,
		TakeProfit: position.TakeProfitPrice,
		PnL:        position.UnrealizedPnL(exit) - fees,
		Reason:     reason,
	}

	e.mu.Lock()
	e.currentBalance += trade.PnL
	if e.currentBalance > e.maxBalance {
		e.maxBalance = e.currentBalance
	}
	e.trades = append(e.trades, trade)
	e.mu.Unlock()

	e.updateEquityCurve(candle.CloseTime)
}

func (e *Engine) updateEquityCurve(timestamp time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.equityCurve = append(e.equityCurve, EquityPoint{
		Timestamp: timestamp,
		Balance:   e.currentBalance,
	})
}

func (e *Engine) calculateResults() *BacktestResults {
	e.mu.RLock()
	defer e.mu.RUnlock()

	results := &BacktestResults{
		FinalBalance:    e.currentBalance,
		StopAdjustments: e.adjustments,
		SkippedBands:    e.skippedBands,
		Trades:          e.trades,
		EquityCurve:     e.equityCurve,
	}
	if len(e.trades) == 0 {
		return results
	}

	for _, trade := range e.trades {
		if trade.PnL > 0 {
			results.WinningTrades++
		} else {
			results.LosingTrades++
		}
		results.TotalPnL += trade.PnL
	}
	results.TotalTrades = len(e.trades)
	results.WinRate = float64(results.WinningTrades) / float64(results.TotalTrades)
	results.AveragePnL = results.TotalPnL / float64(results.TotalTrades)

	peakBalance := e.config.InitialBalance
	for _, point := range e.equityCurve {
		if point.Balance > peakBalance {
			peakBalance = point.Balance
		}
		if peakBalance <= 0 {
			continue
		}
		drawdown := (peakBalance - point.Balance) / peakBalance
		if drawdown > results.MaxDrawdown {
			results.MaxDrawdown = drawdown
		}
	}

	results.SharpeRatio = e.calculateSharpeRatio()
	return results
}

// calculateSharpeRatio uses per-trade equity returns, annualized over 252 periods
func (e *Engine) calculateSharpeRatio() float64 {
	if len(e.equityCurve) < 3 {
		return 0
	}

	returns := make([]float64, 0, len(e.equityCurve)-1)
	for i := 1; i < len(e.equityCurve); i++ {
		prev := e.equityCurve[i-1].Balance
		if prev == 0 {
			continue
		}
		returns = append(returns, (e.equityCurve[i].Balance-prev)/prev)
	}
	if len(returns) < 2 {
		return 0
	}

	avgReturn := 0.0
	for _, r := range returns {
		avgReturn += r
	}
	avgReturn /= float64(len(returns))

	variance := 0.0
	for _, r := range returns {
		variance += math.Pow(r-avgReturn, 2)
	}
	variance /= float64(len(returns) - 1)
	stdDev := math.Sqrt(variance)
	if stdDev == 0 {
		return 0
	}

	return (avgReturn * 252) / (stdDev * math.Sqrt(252))
}
