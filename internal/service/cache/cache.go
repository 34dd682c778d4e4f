package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"NeuralTrade/internal/domain/models"
	"NeuralTrade/pkg/logger"
)

// BytesCache is a minimal cache API storing raw bytes with TTL.
type BytesCache interface {
	GetBytes(ctx context.Context, key string) (b []byte, ok bool, err error)
	SetBytes(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// PredictionCache keeps predictions addressable by ID: an in-process TTL map
// in front of an optional shared store (Redis).
type PredictionCache struct {
	local  *TTLCache
	shared BytesCache
	ttl    time.Duration
	prefix string
	logger *logger.Logger
}

// NewPredictionCache builds the cache. shared may be nil.
func NewPredictionCache(shared BytesCache, ttl time.Duration, prefix string, l *logger.Logger) *PredictionCache {
	if l == nil {
		l = logger.NewNop()
	}
	return &PredictionCache{
		local:  NewTTLCache(10000),
		shared: shared,
		ttl:    ttl,
		prefix: prefix,
		logger: l,
	}
}

func (c *PredictionCache) key(id string) string {
	return fmt.Sprintf("%s:signal:%s", c.prefix, id)
}

func (c *PredictionCache) Put(ctx context.Context, s *models.SignalPrediction) error {
	b, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal prediction: %w", err)
	}
	k := c.key(s.ID)
	c.local.Set(k, b, c.ttl)
	if c.shared == nil {
		return nil
	}
	if err := c.shared.SetBytes(ctx, k, b, c.ttl); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

// Get checks the local layer first, then the shared one; shared hits are copied locally.
func (c *PredictionCache) Get(ctx context.Context, id string) (*models.SignalPrediction, bool, error) {
	k := c.key(id)
	b, ok, _ := c.local.GetBytes(ctx, k)
	if !ok && c.shared != nil {
		var err error
		b, ok, err = c.shared.GetBytes(ctx, k)
		if err != nil {
			return nil, false, fmt.Errorf("cache get: %w", err)
		}
		if ok {
			c.local.Set(k, b, c.ttl)
		}
	}
	if !ok {
		return nil, false, nil
	}

	var s models.SignalPrediction
	if err := json.Unmarshal(b, &s); err != nil {
		c.logger.Warn("drop undecodable cached prediction", logger.String("id", id), logger.Error(err))
		return nil, false, nil
	}
	return &s, true, nil
}
