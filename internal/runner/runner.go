package runner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rakudev/auction-seller-scraper/internal/browser"
	"github.com/rakudev/auction-seller-scraper/internal/classifier"
	"github.com/rakudev/auction-seller-scraper/internal/config"
	"github.com/rakudev/auction-seller-scraper/internal/exporter"
	"github.com/rakudev/auction-seller-scraper/internal/models"
	"github.com/rakudev/auction-seller-scraper/internal/pipeline"
	"github.com/rakudev/auction-seller-scraper/internal/retry"
	"github.com/rakudev/auction-seller-scraper/internal/scraper"
	"github.com/rakudev/auction-seller-scraper/internal/session"
)

// Params are the user-facing inputs of one scrape run.
type Params struct {
	StartDate string
	EndDate   string
	MinPrice  int
}

// Result summarizes a finished run.
type Result struct {
	Sellers          []models.Seller
	IntermediatePath string
	FinalPath        string
	Elapsed          time.Duration
}

// Runner drives a full run: aggregator login and seller discovery,
// marketplace login and product fetches, classification, and CSV export.
type Runner struct {
	cfg      *config.Config
	metrics  *pipeline.Metrics
	prompter scraper.SMSPrompter
	logger   *slog.Logger
}

type Option func(*Runner)

// WithMetrics shares a metrics registry with the caller (the service mode
// serves it over /metrics).
func WithMetrics(m *pipeline.Metrics) Option {
	return func(r *Runner) { r.metrics = m }
}

// WithPrompter replaces the interactive SMS prompter.
func WithPrompter(p scraper.SMSPrompter) Option {
	return func(r *Runner) { r.prompter = p }
}

func New(cfg *config.Config, opts ...Option) *Runner {
	r := &Runner{
		cfg:    cfg,
		logger: slog.Default().With("component", "runner"),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.metrics == nil {
		r.metrics = pipeline.NewMetrics()
	}
	return r
}

// Run executes one full scrape run. Validation failures surface before any
// browser is launched.
func (r *Runner) Run(ctx context.Context, params Params) (*Result, error) {
	if err := scraper.ValidateDateRange(params.StartDate, params.EndDate); err != nil {
		return nil, err
	}
	if err := scraper.ValidateMinPrice(params.MinPrice); err != nil {
		return nil, err
	}

	start := time.Now()

	// Soft deadline: warn when a run drags on, never cancel it.
	warn := time.AfterFunc(r.cfg.Scraper.RunTimeoutWarning, func() {
		r.logger.Warn("run is taking longer than expected", "threshold", r.cfg.Scraper.RunTimeoutWarning)
	})
	defer warn.Stop()

	sessions := session.NewStore(r.cfg.Session.Dir)
	policy := retry.Policy{MaxAttempts: r.cfg.Scraper.MaxRetryAttempts, Backoff: retry.DefaultBackoff}

	links, err := r.fetchSellerLinks(ctx, sessions, policy, params)
	if err != nil {
		return nil, err
	}
	if len(links) == 0 {
		r.logger.Info("no sellers matched the price floor", "min_price", params.MinPrice)
		return &Result{Elapsed: time.Since(start)}, nil
	}

	yahoo := scraper.NewYahooScraper(sessions, &scraper.YahooOptions{
		LoginURL:    r.cfg.Yahoo.LoginURL,
		AuctionsURL: r.cfg.Yahoo.AuctionsURL,
		Proxy: browser.ProxyOptions{
			Server:   r.cfg.Proxy.URL,
			Username: r.cfg.Proxy.Username,
			Password: r.cfg.Proxy.Password,
		},
		ExpectedIP:  r.cfg.Proxy.ExpectedIP,
		Headless:    r.cfg.Browser.Headless,
		Timeout:     r.cfg.Browser.Timeout,
		SMSTimeout:  r.cfg.Scraper.SMSTimeout,
		MaxProducts: r.cfg.Scraper.MaxProductsPerSeller,
		Policy:      policy,
		Prompter:    r.prompter,
	})
	defer yahoo.Close()

	if err := yahoo.Login(ctx, r.cfg.Yahoo.PhoneNumber); err != nil {
		return nil, fmt.Errorf("marketplace login failed: %w", err)
	}

	pipe := pipeline.New(yahoo, r.cfg.Scraper.MaxConcurrentSellers, r.metrics)
	sellers := pipe.Process(ctx, links)

	csv := exporter.NewCSVExporter(r.cfg.Export.OutputDir)
	intermediatePath, err := csv.ExportIntermediate(sellers)
	if err != nil {
		return nil, err
	}

	cls := classifier.New(r.cfg.Classifier.Model)
	sellers = cls.ClassifySellers(ctx, sellers)

	finalPath, err := csv.ExportFinal(sellers)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Sellers:          sellers,
		IntermediatePath: intermediatePath,
		FinalPath:        finalPath,
		Elapsed:          time.Since(start),
	}

	r.logger.Info("run finished",
		"sellers", len(sellers),
		"elapsed", result.Elapsed,
		"intermediate", intermediatePath,
		"final", finalPath)

	return result, nil
}

func (r *Runner) fetchSellerLinks(ctx context.Context, sessions *session.Store, policy retry.Policy, params Params) ([]models.SellerLink, error) {
	rapras := scraper.NewRaprasScraper(sessions, &scraper.RaprasOptions{
		BaseURL:  r.cfg.Rapras.BaseURL,
		Headless: r.cfg.Browser.Headless,
		Timeout:  r.cfg.Browser.Timeout,
		Policy:   policy,
	})
	defer rapras.Close()

	if err := rapras.Login(ctx, r.cfg.Rapras.Username, r.cfg.Rapras.Password); err != nil {
		return nil, fmt.Errorf("aggregator login failed: %w", err)
	}

	links, err := rapras.FetchSellerLinks(ctx, params.StartDate, params.EndDate, params.MinPrice)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch seller links: %w", err)
	}
	return links, nil
}
