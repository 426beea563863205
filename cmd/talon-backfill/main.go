// talon-backfill downloads historical bars for a list of symbols and writes
// them to the local Parquet archive for offline research.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"talon/internal/broker"
	"talon/internal/config"
	"talon/internal/engine"
	"talon/internal/notify"
	"talon/internal/store"
	"talon/internal/util"
)

func main() {
	symbols := flag.String("symbols", "", "comma-separated symbols, e.g. AAPL,TSLA,BTC/USD")
	tf := flag.String("tf", "1Day", "bar timeframe")
	startStr := flag.String("start", "", "range start (YYYY-MM-DD)")
	endStr := flag.String("end", "", "range end (YYYY-MM-DD), default today")
	list := flag.Bool("list", false, "list archived symbols and exit")
	flag.Parse()

	_ = godotenv.Load()

	cfgPath := "config/talon.yaml"
	if p := os.Getenv("TALON_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)

	dataDir := cfg.Storage.DataDir
	if dataDir == "" {
		dataDir = "data"
	}
	archive := store.NewParquetStore(dataDir)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *list {
		names, err := archive.ListSymbols(ctx)
		if err != nil {
			log.Fatalf("failed to list archive: %v", err)
		}
		for _, name := range names {
			fmt.Println(name)
		}
		return
	}

	if *symbols == "" || *startStr == "" {
		log.Fatal("-symbols and -start are required")
	}
	start, err := time.Parse("2006-01-02", *startStr)
	if err != nil {
		log.Fatalf("bad -start: %v", err)
	}
	end := time.Now().UTC()
	if *endStr != "" {
		if end, err = time.Parse("2006-01-02", *endStr); err != nil {
			log.Fatalf("bad -end: %v", err)
		}
	}

	gw := broker.NewAlpacaGateway(broker.AlpacaOpts{
		APIKey:          cfg.Alpaca.APIKey,
		APISecret:       cfg.Alpaca.APISecret,
		BaseURL:         cfg.Alpaca.BaseURL,
		DataURL:         cfg.Alpaca.DataURL,
		RateLimitPerMin: cfg.Alpaca.RateLimitPerMin,
	})
	e := engine.New(gw, notify.NewLogNotifier(logger), engine.Options{Logger: logger})

	for _, symbol := range strings.Split(*symbols, ",") {
		symbol = strings.TrimSpace(symbol)
		if symbol == "" {
			continue
		}
		bars := e.GetHistoricalBars(ctx, symbol, *tf, start, end, 0)
		if len(bars) == 0 {
			logger.Warn("no bars returned", "symbol", symbol)
			continue
		}
		if err := archive.WriteBars(ctx, bars); err != nil {
			log.Fatalf("failed to archive %s: %v", symbol, err)
		}
		logger.Info("archived bars", "symbol", symbol, "count", len(bars),
			"from", bars[0].Timestamp.Format("2006-01-02"),
			"to", bars[len(bars)-1].Timestamp.Format("2006-01-02"))
	}
}
