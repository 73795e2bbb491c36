// Package main provides a one-shot CLI for running change detection against
// an ETF's two most recent snapshots. Useful for recomputing a diff after a
// force re-ingestion, or for auditing that the stored change log matches the
// snapshots it was derived from.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/buggu-git/taiwan-tools/internal/config"
	"github.com/buggu-git/taiwan-tools/internal/logging"
	"github.com/buggu-git/taiwan-tools/internal/service"
	"github.com/buggu-git/taiwan-tools/internal/storage"
	"github.com/buggu-git/taiwan-tools/internal/types"
)

func main() {
	var (
		etfSymbol = flag.String("etf", "", "ETF ticker symbol (required)")
		beforeRaw = flag.String("before", "", "Only consider trade dates at or before this date (YYYY-MM-DD)")
	)
	flag.Parse()

	if *etfSymbol == "" {
		fmt.Fprintln(os.Stderr, "usage: diff -etf <symbol> [-before YYYY-MM-DD]")
		os.Exit(2)
	}

	var before *time.Time
	if *beforeRaw != "" {
		d, err := time.Parse(types.DateFormat, *beforeRaw)
		if err != nil {
			log.Fatalf("Invalid -before date %q: %v", *beforeRaw, err)
		}
		before = &d
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := logging.NewLogger(
		logging.ParseLogLevel(cfg.Logging.Level),
		logging.ParseLogFormat(cfg.Logging.Format),
	)

	postgres, err := storage.NewPostgresDB(&cfg.Postgres)
	if err != nil {
		log.Fatalf("Failed to connect to Postgres: %v", err)
	}
	defer postgres.Close()

	detector := service.NewChangeDetector(
		storage.NewHoldingRepository(postgres),
		storage.NewChangeRepository(postgres),
		logger,
	)

	result, err := detector.DetectAndStore(context.Background(), *etfSymbol, before)
	if err != nil {
		log.Fatalf("Change detection failed: %v", err)
	}

	if result.NoPriorSnapshot {
		fmt.Printf("%s: fewer than two snapshot dates, nothing to diff\n", result.ETFSymbol)
		return
	}

	fmt.Printf("%s: %d change(s) between %s and %s\n",
		result.ETFSymbol,
		result.ChangeCount,
		result.PrevTradeDate.Format(types.DateFormat),
		result.TradeDate.Format(types.DateFormat),
	)
}
