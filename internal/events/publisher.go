package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/rakudev/auction-seller-scraper/internal/models"
)

const (
	StreamSellerClassification = "stream:seller_classification"
	EventTypeSellerClassified  = "SELLER_CLASSIFIED"
)

// RedisClient is the subset of the redis client the publisher needs.
type RedisClient interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// SellerClassifiedPayload is the JSON body attached to stream entries.
type SellerClassifiedPayload struct {
	EventID        string `json:"event_id"`
	EventType      string `json:"event_type"`
	Timestamp      string `json:"timestamp"`
	RunID          string `json:"run_id"`
	SellerName     string `json:"seller_name"`
	SellerURL      string `json:"seller_url"`
	TotalPrice     int    `json:"total_price"`
	Classification string `json:"classification"`
}

// Publisher emits classified-seller events onto a redis stream.
type Publisher struct {
	redis  RedisClient
	logger *slog.Logger
}

func NewPublisher(client RedisClient) *Publisher {
	return &Publisher{
		redis:  client,
		logger: slog.Default().With("component", "events"),
	}
}

// PublishSellerClassified appends one event to the classification stream.
func (p *Publisher) PublishSellerClassified(ctx context.Context, runID string, seller models.Seller) error {
	payload := SellerClassifiedPayload{
		EventID:        uuid.New().String(),
		EventType:      EventTypeSellerClassified,
		Timestamp:      time.Now().UTC().Format(time.RFC3339),
		RunID:          runID,
		SellerName:     seller.Name,
		SellerURL:      seller.URL,
		TotalPrice:     seller.TotalPrice,
		Classification: seller.Classification.String(),
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := p.redis.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamSellerClassification,
		Values: map[string]interface{}{
			"type":         payload.EventType,
			"aggregate_id": seller.URL,
			"timestamp":    payload.Timestamp,
			"data":         string(data),
		},
	}).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	p.logger.Debug("event published", "stream", StreamSellerClassification, "seller", seller.Name)
	return nil
}
