package handlers

import (
	"SheetTradeBot/internal/logging"
	"SheetTradeBot/internal/operations/notify"
	"SheetTradeBot/internal/operations/signals"
	"SheetTradeBot/internal/repositories"
	"SheetTradeBot/internal/services/indicators"
	"SheetTradeBot/internal/services/risk"
	"SheetTradeBot/internal/services/strategy"
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// StatusInterval is how often the open-position summary is sent
const StatusInterval = 5 * time.Minute

// CycleReport is the outcome of one polling cycle
type CycleReport struct {
	CycleID   string
	Started   time.Time
	Decisions map[string]*strategy.Decision
	Errors    map[string]error
	Rejected  []*signals.RowError
}

// StrategyHandler runs polling cycles over every asset of the signal source
type StrategyHandler struct {
	source       signals.Source
	prices       *PriceHandler
	positions    *PositionHandler
	positionRepo *repositories.PositionRepository
	atr          *indicators.ATRService
	notifier     notify.Notifier
	batchSize    int
	interval     time.Duration
	now          func() time.Time

	mu         sync.Mutex
	symbols    map[string]*symbolProcessor
	lastStatus time.Time
	// problems notified in the previous cycle, keyed by asset or row
	alerts map[string]string
}

type symbolProcessor struct {
	symbol       string
	lastRun      time.Time
	lastDecision *strategy.Decision
}

func NewStrategyHandler(
	source signals.Source,
	prices *PriceHandler,
	positions *PositionHandler,
	positionRepo *repositories.PositionRepository,
	atr *indicators.ATRService,
	notifier notify.Notifier,
	batchSize int,
	interval time.Duration,
	now func() time.Time,
) *StrategyHandler {
	if now == nil {
		now = time.Now
	}
	if batchSize < 1 {
		batchSize = 1
	}
	return &StrategyHandler{
		source:       source,
		prices:       prices,
		positions:    positions,
		positionRepo: positionRepo,
		atr:          atr,
		notifier:     notifier,
		batchSize:    batchSize,
		interval:     interval,
		now:          now,
		symbols:      make(map[string]*symbolProcessor),
		alerts:       make(map[string]string),
	}
}

// Start runs a cycle immediately and then on every tick until ctx is done
func (h *StrategyHandler) Start(ctx context.Context) {
	h.runAndLog(ctx)

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.runAndLog(ctx)
		}
	}
}

func (h *StrategyHandler) runAndLog(ctx context.Context) {
	if _, err := h.RunCycle(ctx); err != nil && ctx.Err() == nil {
		log.Printf("Cycle failed: %v", err)
	}
}

// RunCycle polls the signal source once and processes every asset. Per-asset
// failures are collected in the report; only a failed poll is returned as error.
func (h *StrategyHandler) RunCycle(ctx context.Context) (*CycleReport, error) {
	report := &CycleReport{
		CycleID:   uuid.NewString(),
		Started:   h.now(),
		Decisions: make(map[string]*strategy.Decision),
		Errors:    make(map[string]error),
	}

	batch, err := h.source.FetchSignals(ctx)
	if err != nil {
		return report, fmt.Errorf("failed to fetch signals: %w", err)
	}
	report.Rejected = batch.Rejected
	alerts := make(map[string]string)
	h.reportRejected(ctx, alerts, batch.Rejected)

	var (
		mu   sync.Mutex
		g    errgroup.Group
		seen = make(map[string]bool, len(batch.Entries))
	)
	g.SetLimit(h.batchSize)

	for _, entry := range batch.Entries {
		symbol := entry.Signal.Symbol
		if seen[symbol] {
			log.Printf("Row %d: duplicate entry for %s ignored", entry.Row, symbol)
			continue
		}
		seen[symbol] = true

		entry := entry
		g.Go(func() error {
			decision, err := h.processEntry(ctx, report.CycleID, entry)
			mu.Lock()
			defer mu.Unlock()
			if decision != nil {
				report.Decisions[symbol] = decision
			}
			if err != nil {
				report.Errors[symbol] = err
			}
			return nil
		})
	}
	_ = g.Wait()

	for symbol, err := range report.Errors {
		h.handleAssetError(ctx, alerts, symbol, err)
	}
	h.mu.Lock()
	h.alerts = alerts
	h.mu.Unlock()
	h.checkUnmanaged(seen)
	h.maybeSendStatus(ctx)

	logging.Debugf("Cycle %s: %d assets, %d decisions, %d errors, %d rejected rows",
		report.CycleID, len(seen), len(report.Decisions), len(report.Errors), len(report.Rejected))
	return report, nil
}

func (h *StrategyHandler) processor(symbol string) *symbolProcessor {
	h.mu.Lock()
	defer h.mu.Unlock()
	p, ok := h.symbols[symbol]
	if !ok {
		p = &symbolProcessor{symbol: symbol}
		h.symbols[symbol] = p
	}
	return p
}

func (h *StrategyHandler) processEntry(ctx context.Context, cycleID string, entry signals.Entry) (*strategy.Decision, error) {
	symbol := entry.Signal.Symbol
	unlock, err := h.positions.Lock(symbol)
	if err != nil {
		return nil, err
	}
	defer unlock()

	snapshot, err := h.prices.Refresh(ctx, symbol)
	if err != nil {
		return nil, err
	}

	current, err := h.positions.CurrentPosition(symbol)
	if err != nil {
		return nil, err
	}

	atr, err := h.atr.Calculate(snapshot.Samples)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", symbol, err)
	}

	decision, err := h.positions.Handle(ctx, cycleID, entry.Row, strategy.Input{
		Asset:    entry.Asset,
		Signal:   entry.Signal,
		Position: current,
		Price:    snapshot.Price,
		ATR:      atr,
	})
	if decision != nil {
		p := h.processor(symbol)
		h.mu.Lock()
		p.lastRun = h.now()
		p.lastDecision = decision
		h.mu.Unlock()

		if decision.Action == strategy.ActionNone {
			logging.Debugf("%s", decision.Describe())
		} else {
			log.Printf("Decision: %s", decision.Describe())
		}
	}
	return decision, err
}

func (h *StrategyHandler) handleAssetError(ctx context.Context, alerts map[string]string, symbol string, err error) {
	switch {
	case errors.Is(err, indicators.ErrInsufficientData):
		logging.Debugf("Skipping %s: %v", symbol, err)
	case errors.Is(err, ErrSymbolBusy):
		logging.Warnf("Skipping %s: %v", symbol, err)
	case errors.Is(err, risk.ErrInvalidBand):
		log.Printf("Skipping %s: %v", symbol, err)
		h.alert(ctx, alerts, symbol, fmt.Sprintf("⚠️ <b>%s</b> skipped: %s", notify.Escape(symbol), notify.Escape(err)))
	default:
		logging.Errorf("Error processing %s: %v", symbol, err)
	}
}

func (h *StrategyHandler) reportRejected(ctx context.Context, alerts map[string]string, rejected []*signals.RowError) {
	for _, rowErr := range rejected {
		log.Printf("Signal row rejected: %v", rowErr)
		key := rowErr.Symbol
		if key == "" {
			key = fmt.Sprintf("row %d", rowErr.Row)
		}
		if errors.Is(rowErr, signals.ErrConfigurationConflict) {
			h.alert(ctx, alerts, key, fmt.Sprintf("⚠️ <b>%s</b> disabled: %s", notify.Escape(key), notify.Escape(rowErr)))
		}
	}
}

// alert records a problem for this cycle and notifies unless the previous cycle already had it
func (h *StrategyHandler) alert(ctx context.Context, alerts map[string]string, key, message string) {
	alerts[key] = message
	h.mu.Lock()
	previous := h.alerts[key]
	h.mu.Unlock()
	if previous == message {
		return
	}
	if err := h.notifier.Notify(ctx, message); err != nil {
		log.Printf("Error sending notification: %v", err)
	}
}

// checkUnmanaged warns about open positions whose asset is no longer in the signal source
func (h *StrategyHandler) checkUnmanaged(seen map[string]bool) {
	open, err := h.positionRepo.FindOpenPositions()
	if err != nil {
		log.Printf("Error loading open positions: %v", err)
		return
	}
	for _, p := range open {
		if !seen[p.Symbol] {
			logging.Warnf("Open %s position %d has no signal row and is not managed", p.Symbol, p.ID)
		}
	}
}

func (h *StrategyHandler) maybeSendStatus(ctx context.Context) {
	now := h.now()
	h.mu.Lock()
	if !h.lastStatus.IsZero() && now.Sub(h.lastStatus) < StatusInterval {
		h.mu.Unlock()
		return
	}
	h.lastStatus = now
	h.mu.Unlock()

	message, err := h.StatusMessage(now)
	if err != nil {
		log.Printf("Error building status report: %v", err)
		return
	}
	log.Print(message)
	if err := h.notifier.Notify(ctx, message); err != nil {
		log.Printf("Error sending notification: %v", err)
	}
}

// StatusMessage summarizes open positions and today's realized PnL
func (h *StrategyHandler) StatusMessage(now time.Time) (string, error) {
	open, err := h.positionRepo.FindOpenPositions()
	if err != nil {
		return "", fmt.Errorf("failed to load open positions: %w", err)
	}
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	pnl, err := h.positionRepo.GetTotalPnL(dayStart, now)
	if err != nil {
		return "", fmt.Errorf("failed to sum PnL: %w", err)
	}

	sort.Slice(open, func(i, j int) bool { return open[i].Symbol < open[j].Symbol })
	msg := fmt.Sprintf("📊 Status: %d open position(s), realized PnL today %.4f", len(open), pnl)
	for _, p := range open {
		msg += fmt.Sprintf("\n%s %s @ %.8g | SL %.8g TP %.8g", p.Symbol, p.Side, p.EntryPrice, p.StopLossPrice, p.TakeProfitPrice)
		if d := h.lastDecision(p.Symbol); d != nil && d.Price > 0 {
			msg += fmt.Sprintf(" | now %.8g (%+.4f)", d.Price, p.UnrealizedPnL(d.Price))
		}
	}
	return msg, nil
}

func (h *StrategyHandler) lastDecision(symbol string) *strategy.Decision {
	h.mu.Lock()
	defer h.mu.Unlock()
	if p, ok := h.symbols[symbol]; ok {
		return p.lastDecision
	}
	return nil
}
