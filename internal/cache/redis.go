// Package cache provides a Redis-backed cache for catalog responses that
// can be shared between several leaplineage servers.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/leapstack-labs/leaplineage/internal/catalog"
	"github.com/leapstack-labs/leaplineage/internal/lineage"
)

// ErrMiss is returned when a key is absent or has expired.
var ErrMiss = fmt.Errorf("redis: %w", catalog.ErrCacheMiss)

var _ catalog.Cache = (*RedisCache)(nil)

// Config holds the Redis connection and key settings.
type Config struct {
	Addr     string
	Password string
	DB       int
	// Prefix is prepended to every key.
	Prefix string
	// TTL bounds how long entries live. Zero means no expiry.
	TTL time.Duration
}

// RedisCache implements catalog.Cache on Redis.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// New connects to Redis and verifies the connection.
func New(ctx context.Context, cfg Config) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}

	return NewWithClient(client, cfg.Prefix, cfg.TTL), nil
}

// NewWithClient creates a cache over an existing client.
func NewWithClient(client *redis.Client, prefix string, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, prefix: prefix, ttl: ttl}
}

func (r *RedisCache) graphKey(key catalog.GraphKey) string {
	return r.prefix + "graph:" + key.String()
}

func (r *RedisCache) columnsKey(id string) string {
	return r.prefix + "columns:" + id
}

// GetGraph returns the graph cached under key.
func (r *RedisCache) GetGraph(ctx context.Context, key catalog.GraphKey) (lineage.Graph, error) {
	var g lineage.Graph
	if err := r.get(ctx, r.graphKey(key), &g); err != nil {
		return lineage.Graph{}, err
	}
	return g, nil
}

// SaveGraph caches g under key.
func (r *RedisCache) SaveGraph(ctx context.Context, key catalog.GraphKey, g lineage.Graph) error {
	return r.set(ctx, r.graphKey(key), g)
}

// GetColumns returns the cached columns of an entity.
func (r *RedisCache) GetColumns(ctx context.Context, entityID string) ([]lineage.Column, error) {
	var cols []lineage.Column
	if err := r.get(ctx, r.columnsKey(entityID), &cols); err != nil {
		return nil, err
	}
	return cols, nil
}

// SaveColumns caches the columns of an entity.
func (r *RedisCache) SaveColumns(ctx context.Context, entityID string, cols []lineage.Column) error {
	return r.set(ctx, r.columnsKey(entityID), cols)
}

// ClearGraphs removes every cached graph under the prefix.
func (r *RedisCache) ClearGraphs(ctx context.Context) error {
	iter := r.client.Scan(ctx, 0, r.prefix+"graph:*", 0).Iterator()
	for iter.Next(ctx) {
		if err := r.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("failed to delete %s: %w", iter.Val(), err)
		}
	}
	return iter.Err()
}

// Close closes the Redis connection.
func (r *RedisCache) Close() error {
	return r.client.Close()
}

func (r *RedisCache) get(ctx context.Context, key string, out any) error {
	value, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrMiss
		}
		return fmt.Errorf("failed to get %s: %w", key, err)
	}
	if err := json.Unmarshal(value, out); err != nil {
		return fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return nil
}

func (r *RedisCache) set(ctx context.Context, key string, v any) error {
	value, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	if err := r.client.Set(ctx, key, value, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}
