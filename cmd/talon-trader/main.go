// talon-trader is the command-line entry point to the trading client. Each
// subcommand performs one account or trading operation and exits.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"talon/internal/broker"
	"talon/internal/config"
	"talon/internal/debuglog"
	"talon/internal/engine"
	"talon/internal/journal"
	"talon/internal/notify"
	"talon/internal/util"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: talon-trader <command> [options]\n\n")
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "  account                       Show account equity, buying power, day P/L\n")
		fmt.Fprintf(os.Stderr, "  positions                     List open positions\n")
		fmt.Fprintf(os.Stderr, "  orders                        List open orders\n")
		fmt.Fprintf(os.Stderr, "  bars -symbol S [-tf 1Day] [-limit 10]\n")
		fmt.Fprintf(os.Stderr, "  buy -symbol S -qty Q -stop P -target P\n")
		fmt.Fprintf(os.Stderr, "  sell -symbol S [-qty Q]       Sell (whole position when -qty omitted)\n")
		fmt.Fprintf(os.Stderr, "  close -symbol S               Liquidate the position\n")
		fmt.Fprintf(os.Stderr, "  cancel -id ID                 Cancel one open order\n")
		fmt.Fprintf(os.Stderr, "  cancel-all                    Cancel every open order\n")
		fmt.Fprintf(os.Stderr, "\n")
	}

	if len(os.Args) < 2 {
		flag.Usage()
		os.Exit(1)
	}

	// Local .env holds credentials in development; absent in production.
	_ = godotenv.Load()

	cfgPath := "config/talon.yaml"
	if p := os.Getenv("TALON_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	e, cleanup := buildEngine(cfg, logger)
	defer cleanup()

	if err := run(ctx, e, os.Args[1], os.Args[2:]); err != nil {
		logger.Error("command failed", "command", os.Args[1], "err", err)
		os.Exit(1)
	}
}

func buildEngine(cfg *config.Config, logger *slog.Logger) (*engine.Engine, func()) {
	var gw broker.Gateway
	if cfg.Trading.PaperMode {
		gw = broker.NewSimulatorGateway(100_000)
		logger.Info("paper mode: using simulator gateway")
	} else {
		gw = broker.NewAlpacaGateway(broker.AlpacaOpts{
			APIKey:          cfg.Alpaca.APIKey,
			APISecret:       cfg.Alpaca.APISecret,
			BaseURL:         cfg.Alpaca.BaseURL,
			DataURL:         cfg.Alpaca.DataURL,
			RateLimitPerMin: cfg.Alpaca.RateLimitPerMin,
		})
	}

	var notifier notify.Notifier
	if cfg.Notify.WebhookURL != "" {
		notifier = notify.NewWebhookNotifier(cfg.Notify.WebhookURL, time.Duration(cfg.Notify.TimeoutSeconds)*time.Second)
	} else {
		notifier = notify.NewLogNotifier(logger)
	}

	var cleanups []func()
	opts := engine.Options{
		Logger:      logger.With("component", "engine"),
		BarCacheTTL: time.Duration(cfg.Trading.BarCacheTTLMS) * time.Millisecond,
		FillWait:    time.Duration(cfg.Trading.FillWaitMS) * time.Millisecond,
	}
	if cfg.Trading.MaxPositionPct > 0 || cfg.Trading.MaxDailyLossPct > 0 {
		opts.Risk = &engine.RiskManager{
			MaxPositionPct:  cfg.Trading.MaxPositionPct,
			MaxDailyLossPct: cfg.Trading.MaxDailyLossPct,
		}
	}
	if cfg.DebugLog.Path != "" {
		dbg := debuglog.New(debuglog.Options{
			Path:       cfg.DebugLog.Path,
			MaxSizeMB:  cfg.DebugLog.MaxSizeMB,
			MaxBackups: cfg.DebugLog.MaxBackups,
		})
		opts.Debug = dbg
		cleanups = append(cleanups, func() { dbg.Close() })
	}
	if cfg.Storage.SQLitePath != "" {
		rec, err := journal.Open(cfg.Storage.SQLitePath)
		if err != nil {
			log.Fatalf("failed to open trade journal: %v", err)
		}
		opts.Recorder = rec
		cleanups = append(cleanups, func() { rec.Close() })
	}

	e := engine.New(gw, notifier, opts)
	return e, func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}
}

func run(ctx context.Context, e *engine.Engine, command string, args []string) error {
	switch command {
	case "account":
		if err := e.RefreshAccount(ctx); err != nil {
			return err
		}
		fmt.Printf("equity:        %s\n", e.PortfolioValue())
		fmt.Printf("buying power:  %s\n", e.BuyingPower())
		fmt.Printf("day p/l:       %s (%s%%)\n", e.DayPL(), e.DayPLPercent().Round(2))
		return nil

	case "positions":
		if err := e.RefreshPositions(ctx); err != nil {
			return err
		}
		for symbol, p := range e.Positions() {
			fmt.Printf("%-10s qty=%s avg=%s pl=%s\n", symbol, p.Qty, p.AvgEntryPrice, p.UnrealizedPL)
		}
		return nil

	case "orders":
		if err := e.RefreshOrders(ctx); err != nil {
			return err
		}
		for id, o := range e.OpenOrders() {
			fmt.Printf("%s %s %s %s qty=%s status=%s\n", id, o.Side, o.Type, o.Symbol, o.Qty, o.Status)
		}
		return nil

	case "bars":
		fs := flag.NewFlagSet("bars", flag.ExitOnError)
		symbol := fs.String("symbol", "", "symbol to fetch")
		tf := fs.String("tf", "1Day", "bar timeframe")
		limit := fs.Int("limit", 10, "number of bars")
		fs.Parse(args)
		if *symbol == "" {
			return fmt.Errorf("bars: -symbol is required")
		}
		for _, b := range e.GetBars(ctx, *symbol, *tf, *limit) {
			fmt.Printf("%s o=%.2f h=%.2f l=%.2f c=%.2f v=%d\n",
				b.Timestamp.Format("2006-01-02 15:04"), b.Open, b.High, b.Low, b.Close, b.Volume)
		}
		return nil

	case "buy":
		fs := flag.NewFlagSet("buy", flag.ExitOnError)
		symbol := fs.String("symbol", "", "symbol to buy")
		qty := fs.String("qty", "", "quantity (fractional allowed)")
		stop := fs.String("stop", "", "stop-loss price")
		target := fs.String("target", "", "take-profit price")
		fs.Parse(args)
		if *symbol == "" || *qty == "" || *stop == "" || *target == "" {
			return fmt.Errorf("buy: -symbol, -qty, -stop, and -target are required")
		}
		q, err := decimal.NewFromString(*qty)
		if err != nil {
			return fmt.Errorf("buy: bad qty %q: %w", *qty, err)
		}
		sl, err := decimal.NewFromString(*stop)
		if err != nil {
			return fmt.Errorf("buy: bad stop %q: %w", *stop, err)
		}
		tp, err := decimal.NewFromString(*target)
		if err != nil {
			return fmt.Errorf("buy: bad target %q: %w", *target, err)
		}
		if err := e.Initialize(ctx); err != nil {
			return err
		}
		order, err := e.BuyMarket(ctx, *symbol, q, sl, tp)
		if err != nil {
			return err
		}
		fmt.Printf("submitted %s (%s)\n", order.ID, order.Status)
		return nil

	case "sell":
		fs := flag.NewFlagSet("sell", flag.ExitOnError)
		symbol := fs.String("symbol", "", "symbol to sell")
		qty := fs.String("qty", "", "quantity; whole position when omitted")
		fs.Parse(args)
		if *symbol == "" {
			return fmt.Errorf("sell: -symbol is required")
		}
		q := decimal.Zero
		if *qty != "" {
			var err error
			if q, err = decimal.NewFromString(*qty); err != nil {
				return fmt.Errorf("sell: bad qty %q: %w", *qty, err)
			}
		}
		order, err := e.SellMarket(ctx, *symbol, q)
		if err != nil {
			return err
		}
		fmt.Printf("submitted %s (%s)\n", order.ID, order.Status)
		return nil

	case "close":
		fs := flag.NewFlagSet("close", flag.ExitOnError)
		symbol := fs.String("symbol", "", "symbol to liquidate")
		fs.Parse(args)
		if *symbol == "" {
			return fmt.Errorf("close: -symbol is required")
		}
		order, err := e.ClosePosition(ctx, *symbol)
		if err != nil {
			return err
		}
		fmt.Printf("closing %s via %s\n", *symbol, order.ID)
		return nil

	case "cancel":
		fs := flag.NewFlagSet("cancel", flag.ExitOnError)
		id := fs.String("id", "", "order ID to cancel")
		fs.Parse(args)
		if *id == "" {
			return fmt.Errorf("cancel: -id is required")
		}
		return e.CancelOrder(ctx, *id)

	case "cancel-all":
		return e.CancelAllOrders(ctx)

	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", command)
		flag.Usage()
		os.Exit(1)
		return nil
	}
}
