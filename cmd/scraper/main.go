package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/rakudev/auction-seller-scraper/internal/config"
	"github.com/rakudev/auction-seller-scraper/internal/runner"
	"github.com/rakudev/auction-seller-scraper/internal/scraper"
	"github.com/rakudev/auction-seller-scraper/pkg/logger"
)

func main() {
	var (
		startDate = flag.String("start-date", "", "Start of the date window (YYYY-MM-DD)")
		endDate   = flag.String("end-date", "", "End of the date window (YYYY-MM-DD)")
		minPrice  = flag.Int("min-price", config.DefaultMinSellerPrice, "Minimum seller aggregate price in yen")
	)
	flag.Parse()

	// Argument validation happens before any environment or network work,
	// so a typo fails fast.
	if err := validateArgs(*startDate, *endDate, *minPrice); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n\n", err)
		flag.Usage()
		os.Exit(2)
	}

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	log.Info("starting seller scrape", "start", *startDate, "end", *endDate, "min_price", *minPrice)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("shutdown signal received")
		cancel()
	}()

	r := runner.New(cfg)
	result, err := r.Run(ctx, runner.Params{
		StartDate: *startDate,
		EndDate:   *endDate,
		MinPrice:  *minPrice,
	})
	if err != nil {
		log.Error("run failed", "error", err)
		os.Exit(1)
	}

	log.Info("run completed",
		"sellers", len(result.Sellers),
		"elapsed", result.Elapsed,
		"intermediate", result.IntermediatePath,
		"final", result.FinalPath)
}

func validateArgs(startDate, endDate string, minPrice int) error {
	if startDate == "" || endDate == "" {
		return fmt.Errorf("both -start-date and -end-date are required")
	}
	if err := scraper.ValidateDateRange(startDate, endDate); err != nil {
		return err
	}
	return scraper.ValidateMinPrice(minPrice)
}
