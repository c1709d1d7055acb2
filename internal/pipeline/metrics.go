package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes pipeline throughput on a dedicated registry so the
// service can serve them without touching the global one.
type Metrics struct {
	Registry *prometheus.Registry

	SellersProcessed    prometheus.Counter
	SellerFetchFailures prometheus.Counter
	FetchDuration       prometheus.Histogram
	InFlight            prometheus.Gauge
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		Registry: registry,
		SellersProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "seller_pipeline_sellers_processed_total",
			Help: "Sellers fetched and carried into classification.",
		}),
		SellerFetchFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "seller_pipeline_fetch_failures_total",
			Help: "Sellers dropped after fetch retries were exhausted.",
		}),
		FetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "seller_pipeline_fetch_duration_seconds",
			Help:    "Duration of individual seller page fetches.",
			Buckets: prometheus.DefBuckets,
		}),
		InFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "seller_pipeline_in_flight_fetches",
			Help: "Seller fetches currently holding a concurrency slot.",
		}),
	}

	registry.MustRegister(m.SellersProcessed, m.SellerFetchFailures, m.FetchDuration, m.InFlight)
	return m
}
