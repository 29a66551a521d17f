package statuscache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/skyfare/FlightBookingGo/internal/domain"
	apperrors "github.com/skyfare/FlightBookingGo/pkg/errors"
)

const keyPrefix = "saga:status:"

// Cache is a short-TTL Redis read-through cache for saga status lookups.
// Entries are never invalidated; the TTL bounds staleness instead, which is
// acceptable for a status poll endpoint.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// New creates a saga status cache.
func New(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{
		client: client,
		ttl:    ttl,
	}
}

// Get retrieves a cached saga transaction, or apperrors.ErrNotFound on a miss.
func (c *Cache) Get(ctx context.Context, correlationID string) (*domain.SagaTransaction, error) {
	data, err := c.client.Get(ctx, keyPrefix+correlationID).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, apperrors.NotFound("saga status", correlationID)
		}
		return nil, fmt.Errorf("redis get saga status: %w", err)
	}

	var tx domain.SagaTransaction
	if err := json.Unmarshal(data, &tx); err != nil {
		return nil, fmt.Errorf("unmarshal saga status: %w", err)
	}

	return &tx, nil
}

// Set caches a saga transaction with the configured TTL.
func (c *Cache) Set(ctx context.Context, tx *domain.SagaTransaction) error {
	data, err := json.Marshal(tx)
	if err != nil {
		return fmt.Errorf("marshal saga status: %w", err)
	}

	if err := c.client.Set(ctx, keyPrefix+tx.CorrelationID, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set saga status: %w", err)
	}

	return nil
}
