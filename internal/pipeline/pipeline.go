package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/rakudev/auction-seller-scraper/internal/models"
)

// Fetcher loads a seller page and returns the enriched seller.
type Fetcher interface {
	FetchSellerProducts(ctx context.Context, url string) (models.Seller, error)
}

// Pipeline fans seller links out to the fetcher with a bounded number of
// in-flight fetches. Individual failures drop the seller; the rest of the
// run continues.
type Pipeline struct {
	fetcher     Fetcher
	concurrency int
	metrics     *Metrics
	logger      *slog.Logger
}

func New(fetcher Fetcher, concurrency int, metrics *Metrics) *Pipeline {
	if concurrency < 1 {
		concurrency = 3
	}
	if metrics == nil {
		metrics = NewMetrics()
	}
	return &Pipeline{
		fetcher:     fetcher,
		concurrency: concurrency,
		metrics:     metrics,
		logger:      slog.Default().With("component", "pipeline"),
	}
}

// Process fetches every link and returns the successful sellers in the
// order their links were supplied. The seller's aggregate price is carried
// over from the link.
func (p *Pipeline) Process(ctx context.Context, links []models.SellerLink) []models.Seller {
	results := make([]*models.Seller, len(links))
	sem := make(chan struct{}, p.concurrency)
	var wg sync.WaitGroup

	for i, link := range links {
		wg.Add(1)
		go func(idx int, link models.SellerLink) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				p.logger.Warn("seller skipped, run cancelled", "seller", link.Name)
				return
			}

			p.metrics.InFlight.Inc()
			start := time.Now()
			seller, err := p.fetcher.FetchSellerProducts(ctx, link.URL)
			p.metrics.FetchDuration.Observe(time.Since(start).Seconds())
			p.metrics.InFlight.Dec()

			if err != nil {
				p.metrics.SellerFetchFailures.Inc()
				p.logger.Warn("seller dropped after fetch failure", "seller", link.Name, "url", link.URL, "error", err)
				return
			}

			seller.TotalPrice = link.TotalPrice
			p.metrics.SellersProcessed.Inc()
			results[idx] = &seller
		}(i, link)
	}

	wg.Wait()

	sellers := make([]models.Seller, 0, len(links))
	for _, r := range results {
		if r != nil {
			sellers = append(sellers, *r)
		}
	}

	p.logger.Info("pipeline finished", "links", len(links), "sellers", len(sellers), "dropped", len(links)-len(sellers))
	return sellers
}
