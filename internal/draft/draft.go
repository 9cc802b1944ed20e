// Package draft keeps the unsaved new-order basket of a register in Redis so
// a restart does not lose it.
package draft

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cafe-pos/register/internal/cart"
	"github.com/cafe-pos/register/internal/pricing"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	keyPrefix  = "register:draft:"
	defaultTTL = 12 * time.Hour
)

// Draft is the persisted state of a NewOrder context.
type Draft struct {
	CustomerName string           `json:"customer_name"`
	CustomerID   *int64           `json:"customer_id,omitempty"`
	ServiceType  string           `json:"service_type"`
	Comments     string           `json:"comments"`
	Lines        []cart.Line      `json:"lines"`
	Discount     pricing.Discount `json:"discount"`
	Tip          pricing.Tip      `json:"tip"`
	SavedAt      time.Time        `json:"saved_at"`
}

// Store saves and restores drafts. Satisfied by *RedisStore and NopStore.
type Store interface {
	Save(ctx context.Context, registerID string, d Draft) error
	Load(ctx context.Context, registerID string) (*Draft, error)
	Delete(ctx context.Context, registerID string) error
}

// kv is satisfied by *redis.Client.
type kv interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisStore keeps one draft per register under register:draft:<id>.
type RedisStore struct {
	client kv
	ttl    time.Duration
	logger logrus.FieldLogger
}

// NewRedisStore creates a store on an existing client. ttl <= 0 uses 12h.
func NewRedisStore(client *redis.Client, ttl time.Duration, logger logrus.FieldLogger) *RedisStore {
	return newStore(client, ttl, logger)
}

func newStore(client kv, ttl time.Duration, logger logrus.FieldLogger) *RedisStore {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &RedisStore{
		client: client,
		ttl:    ttl,
		logger: logger.WithField("component", "draft"),
	}
}

func (s *RedisStore) Save(ctx context.Context, registerID string, d Draft) error {
	if d.SavedAt.IsZero() {
		d.SavedAt = time.Now()
	}
	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("encode draft: %w", err)
	}
	if err := s.client.Set(ctx, keyPrefix+registerID, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("save draft: %w", err)
	}
	s.logger.WithFields(logrus.Fields{"register_id": registerID, "lines": len(d.Lines)}).Debug("draft saved")
	return nil
}

// Load returns nil, nil when the register has no draft.
func (s *RedisStore) Load(ctx context.Context, registerID string) (*Draft, error) {
	data, err := s.client.Get(ctx, keyPrefix+registerID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load draft: %w", err)
	}

	var d Draft
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("decode draft: %w", err)
	}
	return &d, nil
}

func (s *RedisStore) Delete(ctx context.Context, registerID string) error {
	if err := s.client.Del(ctx, keyPrefix+registerID).Err(); err != nil {
		return fmt.Errorf("delete draft: %w", err)
	}
	return nil
}

// NopStore keeps nothing. Used when Redis is not configured.
type NopStore struct{}

func (NopStore) Save(context.Context, string, Draft) error { return nil }
func (NopStore) Load(context.Context, string) (*Draft, error) { return nil, nil }
func (NopStore) Delete(context.Context, string) error { return nil }
