package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/blobrelay/pkg/domain"
	backend "github.com/redis/go-redis/v9"
)

const defaultPrefix = "blobrelay:instance:"

// Store implements ports.StateStore using Redis.
// Each checkpoint is a single SET, so a reader never observes a partial write.
type Store struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

type Option func(*Store)

// WithTTL sets the expiration for instance records.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// WithPrefix sets the key prefix for instance records.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// New creates a new Redis store with options.
func New(address, password string, db int, opts ...Option) *Store {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, opts...)
}

// NewFromClient creates a new Redis store from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	store := &Store{
		client: client,
		prefix: defaultPrefix,
		ttl:    0, // No expiration by default
	}

	for _, opt := range opts {
		opt(store)
	}

	return store
}

// Client exposes the underlying client, e.g. to share it with a Locker.
func (s *Store) Client() *backend.Client {
	return s.client
}

// Prefix returns the key prefix in use.
func (s *Store) Prefix() string {
	return s.prefix
}

func (s *Store) key(instanceID string) string {
	return s.prefix + instanceID
}

func (s *Store) indexKey() string {
	return s.prefix + "index"
}

// Save persists the checkpoint to Redis.
func (s *Store) Save(ctx context.Context, instanceID string, inst *domain.Instance) error {
	data, err := json.Marshal(inst)
	if err != nil {
		return fmt.Errorf("failed to marshal instance: %w", err)
	}

	pipe := s.client.TxPipeline()

	// 1. Save JSON with TTL (0 means no expiration)
	pipe.Set(ctx, s.key(instanceID), data, s.ttl)

	// 2. Add to Index (ZSET). Score = expiry time; far future when there is no TTL.
	score := float64(time.Now().Add(s.ttl).Unix())
	if s.ttl == 0 {
		score = 4102444800 // 2100-01-01
	}

	pipe.ZAdd(ctx, s.indexKey(), backend.Z{
		Score:  score,
		Member: instanceID,
	})

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save to redis: %w", err)
	}

	return nil
}

// Load retrieves the checkpoint from Redis.
func (s *Store) Load(ctx context.Context, instanceID string) (*domain.Instance, error) {
	val, err := s.client.Get(ctx, s.key(instanceID)).Bytes()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return nil, domain.ErrInstanceNotFound
		}
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}

	var inst domain.Instance
	if err := json.Unmarshal(val, &inst); err != nil {
		return nil, fmt.Errorf("failed to unmarshal instance: %w", err)
	}

	return &inst, nil
}

// Delete removes the instance.
func (s *Store) Delete(ctx context.Context, instanceID string) error {
	pipe := s.client.TxPipeline()

	pipe.Del(ctx, s.key(instanceID))
	pipe.ZRem(ctx, s.indexKey(), instanceID)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete from redis: %w", err)
	}
	return nil
}

// List returns live instance ids from the index, pruning expired entries first.
func (s *Store) List(ctx context.Context) ([]string, error) {
	now := float64(time.Now().Unix())

	err := s.client.ZRemRangeByScore(ctx, s.indexKey(), "-inf", fmt.Sprintf("%f", now)).Err()
	if err != nil {
		return nil, fmt.Errorf("failed to prune expired instances: %w", err)
	}

	ids, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list instances: %w", err)
	}

	return ids, nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the redis client.
func (s *Store) Close() error {
	return s.client.Close()
}
