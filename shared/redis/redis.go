package redis

import (
	"context"
	"errors"
	"time"

	"fightzone/backend/pkg/config"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned when a key does not exist
var ErrNotFound = errors.New("key not found")

// Client wraps go-redis with the handful of operations this service needs:
// entitlement records, password-reset tokens, OAuth state and the token
// denylist all live in the same keyspace.
type Client struct {
	client *redis.Client
}

// NewClient builds a client from application configuration
func NewClient() *Client {
	cfg := config.Get()
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	return &Client{client: client}
}

// NewClientFromRedis wraps an existing go-redis client (used by tests)
func NewClientFromRedis(client *redis.Client) *Client {
	return &Client{client: client}
}

// Set stores a value with an optional expiration (0 means no expiry)
func (r *Client) Set(ctx context.Context, key, value string, expiration time.Duration) error {
	return r.client.Set(ctx, key, value, expiration).Err()
}

// Get retrieves a value, returning ErrNotFound for missing keys
func (r *Client) Get(ctx context.Context, key string) (string, error) {
	val, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	return val, err
}

// Del removes a key
func (r *Client) Del(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

// Exists reports whether a key is present
func (r *Client) Exists(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Exists(ctx, key).Result()
	return n > 0, err
}

// Ping checks connectivity for health reporting
func (r *Client) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
