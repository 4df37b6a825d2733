package main

import (
	"SheetTradeBot/config"
	"SheetTradeBot/internal/handlers"
	"SheetTradeBot/internal/logging"
	"SheetTradeBot/internal/models"
	"SheetTradeBot/internal/operations/backtest"
	"SheetTradeBot/internal/operations/binance"
	"SheetTradeBot/internal/operations/notify"
	"SheetTradeBot/internal/operations/position"
	"SheetTradeBot/internal/operations/price"
	"SheetTradeBot/internal/operations/signals"
	"SheetTradeBot/internal/repositories"
	"SheetTradeBot/internal/services/indicators"
	"SheetTradeBot/internal/services/strategy"
	"SheetTradeBot/internal/services/trading"
	"context"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

var version = "dev"

var openDatabase = repositories.OpenDatabase

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		logLevel string
		dryRun   bool
	)

	root := &cobra.Command{
		Use:          "sheettradebot",
		Short:        "Spot trading bot driven by a signal spreadsheet with ATR risk bands",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// flags win over .env and the environment
			if cmd.Flags().Changed("log-level") {
				os.Setenv("LOG_LEVEL", logLevel)
			}
			if cmd.Flags().Changed("dry-run") {
				os.Setenv("DRY_RUN", fmt.Sprintf("%t", dryRun))
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBot(cmd.Context(), false)
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "INFO", "DEBUG, INFO, WARNING or ERROR")
	root.PersistentFlags().BoolVar(&dryRun, "dry-run", false, "trade against the paper balance instead of the exchange")

	root.AddCommand(
		&cobra.Command{
			Use:   "run",
			Short: "Run the trading loop until interrupted",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runBot(cmd.Context(), false)
			},
		},
		&cobra.Command{
			Use:   "once",
			Short: "Run a single trading cycle and exit",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runBot(cmd.Context(), true)
			},
		},
		newBacktestCmd(),
		&cobra.Command{
			Use:   "version",
			Short: "Print the version",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Println("sheettradebot", version)
			},
		},
	)
	return root
}

type bot struct {
	db        *gorm.DB
	logCloser io.Closer
	notifier  notify.Notifier
	prices    *handlers.PriceHandler
	strategy  *handlers.StrategyHandler
	positions *repositories.PositionRepository
}

func runBot(parent context.Context, once bool) error {
	cfg, err := config.Load()
	if err != nil {
		log.Printf("Failed to load config: %v", err)
		return err
	}

	b, err := setupBot(parent, cfg)
	if err != nil {
		return err
	}
	defer b.close()

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := b.restore(ctx); err != nil {
		return err
	}

	if once {
		report, err := b.strategy.RunCycle(ctx)
		if err != nil {
			return err
		}
		printReport(report)
		return nil
	}

	mode := "live"
	if cfg.Trading.DryRun {
		mode = "dry run"
	}
	b.notify(ctx, fmt.Sprintf("🤖 Trading bot started (%s, checking every %s)", mode, cfg.Trading.CheckInterval))
	log.Printf("Trading loop started (%s)", mode)

	b.strategy.Start(ctx)

	log.Println("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	b.notify(shutdownCtx, "🛑 Trading bot stopped")
	log.Println("Shutdown complete")
	return nil
}

func setupBot(ctx context.Context, cfg *config.Config) (b *bot, err error) {
	logCloser, err := logging.Setup(cfg.Log.Level, cfg.Log.File)
	if err != nil {
		return nil, err
	}

	db, err := openDatabase(cfg.Database)
	if err != nil {
		logCloser.Close()
		return nil, err
	}
	defer func() {
		if err != nil {
			closeDatabase(db)
			logCloser.Close()
		}
	}()

	priceRepo := repositories.NewPriceRepository(db)
	positionRepo := repositories.NewPositionRepository(db)
	tradeRepo := repositories.NewTradeRepository(db)
	balanceRepo := repositories.NewBalanceRepository(db)

	parser := signals.NewParser(cfg.Exchange.QuoteAsset)
	var (
		source   signals.Source
		reporter signals.Reporter
	)
	if cfg.Sheet.SignalFile != "" {
		source = signals.NewFileSource(cfg.Sheet.SignalFile, parser)
		reporter = signals.LogReporter{}
		log.Printf("Reading signals from %s", cfg.Sheet.SignalFile)
	} else {
		sheet, err := signals.NewSheetSource(ctx, cfg.Sheet.SheetID, cfg.Sheet.CredentialsFile, cfg.Sheet.WorksheetName, parser)
		if err != nil {
			return nil, err
		}
		source, reporter = sheet, sheet
		log.Printf("Reading signals from worksheet %s", cfg.Sheet.WorksheetName)
	}

	client := binance.NewClient(cfg.Exchange)
	if err := client.Ping(ctx); err != nil {
		logging.Warnf("Exchange not reachable yet: %v", err)
	}

	var gateway position.Gateway = client
	if cfg.Trading.DryRun {
		paper, err := trading.NewPaperTrader(balanceRepo, cfg.Exchange.QuoteAsset, cfg.Trading.PaperBalance)
		if err != nil {
			return nil, err
		}
		balance, _ := paper.Balance()
		log.Printf("Dry run: paper balance %.2f %s", balance, cfg.Exchange.QuoteAsset)
		gateway = paper
	} else if balances, err := client.Balances(ctx); err == nil {
		log.Printf("Exchange balance: %.2f %s", balances[cfg.Exchange.QuoteAsset], cfg.Exchange.QuoteAsset)
	} else {
		logging.Warnf("Could not read exchange balances: %v", err)
	}

	var notifier notify.Notifier = notify.LogNotifier{}
	if cfg.TelegramEnabled() {
		telegram, err := notify.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID)
		if err != nil {
			logging.Warnf("Telegram disabled: %v", err)
		} else {
			notifier = telegram
		}
	}

	atr := indicators.NewATRService(cfg.Trading.ATRPeriod, indicators.Smoothing(cfg.Trading.ATRMethod))
	engine := strategy.NewDecisionEngine(cfg.Trading.ATRMultiplier, cfg.Trading.TakeProfitCap)
	executor := position.NewPositionExecutor(gateway, positionRepo, tradeRepo, reporter, notifier,
		cfg.Trading.TradeAmount, time.Now)

	priceHandler := handlers.NewPriceHandler(client, priceRepo, cfg.Trading.ATRInterval, atr.Window(), time.Now)
	positionHandler := handlers.NewPositionHandler(engine, executor, positionRepo)
	strategyHandler := handlers.NewStrategyHandler(source, priceHandler, positionHandler, positionRepo, atr,
		notifier, cfg.Trading.BatchSize, cfg.Trading.CheckInterval, time.Now)

	return &bot{
		db:        db,
		logCloser: logCloser,
		notifier:  notifier,
		prices:    priceHandler,
		strategy:  strategyHandler,
		positions: positionRepo,
	}, nil
}

// restore reloads open positions and their candle windows after a restart
func (b *bot) restore(ctx context.Context) error {
	open, err := b.positions.FindOpenPositions()
	if err != nil {
		return fmt.Errorf("failed to load open positions: %w", err)
	}
	for _, p := range open {
		n, err := b.prices.Warmup(p.Symbol)
		if err != nil {
			logging.Warnf("Warmup of %s failed: %v", p.Symbol, err)
		}
		log.Printf("Restored %s %s position: %.8f @ %.8f | SL %.8f TP %.8f (%d stored candles)",
			p.Side, p.Symbol, p.Quantity, p.EntryPrice, p.StopLossPrice, p.TakeProfitPrice, n)
	}
	if len(open) > 0 {
		b.notify(ctx, fmt.Sprintf("♻️ Restored %d open position(s)", len(open)))
	}
	return nil
}

func (b *bot) notify(ctx context.Context, message string) {
	if err := b.notifier.Notify(ctx, message); err != nil {
		log.Printf("Error sending notification: %v", err)
	}
}

func (b *bot) close() {
	closeDatabase(b.db)
	b.logCloser.Close()
}

func closeDatabase(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}
}

func printReport(report *handlers.CycleReport) {
	fmt.Printf("Cycle %s at %s\n", report.CycleID, report.Started.Format("2006-01-02 15:04:05"))
	for symbol, d := range report.Decisions {
		fmt.Printf("  %-12s %s\n", symbol, d.Describe())
	}
	for symbol, err := range report.Errors {
		fmt.Printf("  %-12s error: %v\n", symbol, err)
	}
	for _, rowErr := range report.Rejected {
		fmt.Printf("  rejected: %v\n", rowErr)
	}
}

func newBacktestCmd() *cobra.Command {
	var (
		symbols  []string
		days     int
		interval string
		replay   string
		persist  bool
	)

	cmd := &cobra.Command{
		Use:   "backtest",
		Short: "Replay exchange candles through the ATR bands and trailing stop",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Read()
			if err != nil {
				return err
			}
			if err := cfg.ValidateStrategy(); err != nil {
				return err
			}
			if _, err := logging.Setup(cfg.Log.Level, ""); err != nil {
				return err
			}
			if len(symbols) == 0 {
				symbols = cfg.Symbols
			}
			if interval == "" {
				interval = cfg.Trading.ATRInterval
			}
			step, err := models.TimeFrameDuration(interval)
			if err != nil {
				return err
			}

			var db *gorm.DB
			if persist {
				db, err = repositories.OpenDatabase(cfg.Database)
			} else {
				db, err = repositories.OpenInMemory()
			}
			if err != nil {
				return err
			}
			priceRepo := repositories.NewPriceRepository(db)

			btConfig := backtest.NewConfig()
			btConfig.TradeAmount = cfg.Trading.TradeAmount
			btConfig.InitialBalance = cfg.Trading.PaperBalance
			btConfig.Interval = interval
			btConfig.ATRPeriod = cfg.Trading.ATRPeriod
			btConfig.ATRMethod = cfg.Trading.ATRMethod
			btConfig.ATRMultiplier = cfg.Trading.ATRMultiplier
			btConfig.TakeProfitCap = cfg.Trading.TakeProfitCap
			btConfig.Signal = strategy.SignalAction(strings.ToUpper(replay))
			btConfig.Symbols = symbols
			btConfig.EndTime = time.Now().UTC().Truncate(step)
			btConfig.StartTime = btConfig.EndTime.AddDate(0, 0, -days)

			// history for the first ATR window comes on top of the replayed days
			warmupDays := int(math.Ceil(float64(step*time.Duration(cfg.Trading.ATRPeriod+1)) / float64(24*time.Hour)))
			fetcher := price.NewPriceFetcher(binance.NewClient(cfg.Exchange), priceRepo, symbols)
			if _, err := fetcher.FetchPrices(cmd.Context(), interval, days+warmupDays, btConfig.EndTime); err != nil {
				return err
			}

			engine := backtest.NewEngine(priceRepo, btConfig)
			results, err := engine.RunBacktest(btConfig.StartTime, btConfig.EndTime, symbols)
			if err != nil {
				return fmt.Errorf("backtest failed: %w", err)
			}
			printResults(results)
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&symbols, "symbol", nil, "symbols to replay (default TRADING_SYMBOLS)")
	cmd.Flags().IntVar(&days, "days", 7, "number of days to replay")
	cmd.Flags().StringVar(&interval, "interval", "", "candle interval (default ATR_INTERVAL)")
	cmd.Flags().StringVar(&replay, "signal", string(strategy.SignalBuy), "signal replayed on every candle: BUY, SELL or WAIT")
	cmd.Flags().BoolVar(&persist, "persist", false, "store fetched candles in the configured database")
	return cmd
}

func printResults(results *backtest.BacktestResults) {
	fmt.Println("\n=== Backtest Results ===")
	fmt.Printf("Total Trades: %d\n", results.TotalTrades)
	if results.TotalTrades > 0 {
		fmt.Printf("Winning Trades: %d (%.2f%%)\n", results.WinningTrades, results.WinRate*100)
	}
	fmt.Printf("Stop Adjustments: %d\n", results.StopAdjustments)
	fmt.Printf("Skipped Entries (invalid band): %d\n", results.SkippedBands)
	fmt.Printf("Total PnL: $%.4f\n", results.TotalPnL)
	fmt.Printf("Average PnL: $%.4f\n", results.AveragePnL)
	fmt.Printf("Max Drawdown: %.2f%%\n", results.MaxDrawdown*100)
	fmt.Printf("Final Balance: $%.2f\n", results.FinalBalance)
	fmt.Printf("Sharpe Ratio: %.2f\n", results.SharpeRatio)

	for _, t := range results.Trades {
		fmt.Printf("  %s %-5s %s -> %s  %.8g -> %.8g  %-12s %+.4f\n",
			t.Symbol, t.Side,
			t.EntryTime.Format("01-02 15:04"), t.ExitTime.Format("01-02 15:04"),
			t.EntryPrice, t.ExitPrice, t.Reason, t.PnL)
	}
}
