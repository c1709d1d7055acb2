package pipeline

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rakudev/auction-seller-scraper/internal/models"
)

// countingFetcher tracks concurrent invocations and fails scripted URLs.
type countingFetcher struct {
	inFlight    atomic.Int32
	maxInFlight atomic.Int32
	failURLs    map[string]bool
	delay       time.Duration
}

func (f *countingFetcher) FetchSellerProducts(ctx context.Context, url string) (models.Seller, error) {
	current := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)

	for {
		max := f.maxInFlight.Load()
		if current <= max || f.maxInFlight.CompareAndSwap(max, current) {
			break
		}
	}

	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	if f.failURLs[url] {
		return models.Seller{}, fmt.Errorf("fetch failed for %s", url)
	}

	return models.Seller{
		Name:          "seller for " + url,
		URL:           url,
		ProductTitles: []string{"商品"},
	}, nil
}

func makeLinks(n int) []models.SellerLink {
	links := make([]models.SellerLink, n)
	for i := range links {
		links[i] = models.SellerLink{
			Name:       fmt.Sprintf("seller-%d", i),
			TotalPrice: (i + 1) * 100000,
			URL:        fmt.Sprintf("https://example.jp/seller/%d", i),
		}
	}
	return links
}

func TestProcessRespectsConcurrencyCap(t *testing.T) {
	fetcher := &countingFetcher{delay: 10 * time.Millisecond}
	p := New(fetcher, 3, NewMetrics())

	sellers := p.Process(context.Background(), makeLinks(10))

	require.Len(t, sellers, 10)
	assert.LessOrEqual(t, fetcher.maxInFlight.Load(), int32(3))
}

func TestProcessDropsFailedSellers(t *testing.T) {
	fetcher := &countingFetcher{failURLs: map[string]bool{
		"https://example.jp/seller/1": true,
		"https://example.jp/seller/4": true,
		"https://example.jp/seller/7": true,
	}}
	p := New(fetcher, 3, NewMetrics())

	sellers := p.Process(context.Background(), makeLinks(10))
	assert.Len(t, sellers, 7)
}

func TestProcessPreservesInputOrder(t *testing.T) {
	fetcher := &countingFetcher{delay: time.Millisecond, failURLs: map[string]bool{
		"https://example.jp/seller/2": true,
	}}
	p := New(fetcher, 3, NewMetrics())

	links := makeLinks(6)
	sellers := p.Process(context.Background(), links)

	require.Len(t, sellers, 5)
	expected := []string{
		"https://example.jp/seller/0",
		"https://example.jp/seller/1",
		"https://example.jp/seller/3",
		"https://example.jp/seller/4",
		"https://example.jp/seller/5",
	}
	for i, s := range sellers {
		assert.Equal(t, expected[i], s.URL)
	}
}

func TestProcessCarriesAggregatePrice(t *testing.T) {
	fetcher := &countingFetcher{}
	p := New(fetcher, 2, NewMetrics())

	links := makeLinks(3)
	sellers := p.Process(context.Background(), links)

	require.Len(t, sellers, 3)
	for i, s := range sellers {
		assert.Equal(t, links[i].TotalPrice, s.TotalPrice)
	}
}

func TestProcessEmptyInput(t *testing.T) {
	p := New(&countingFetcher{}, 3, NewMetrics())
	sellers := p.Process(context.Background(), nil)
	assert.Empty(t, sellers)
}

func TestProcessCancelledContextSkipsWaitingSellers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fetcher := &countingFetcher{}
	p := New(fetcher, 1, NewMetrics())

	sellers := p.Process(ctx, makeLinks(5))
	// Goroutines that cannot get a slot before cancellation drop out; at
	// most those already holding a slot complete.
	assert.LessOrEqual(t, len(sellers), 5)
}
