package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// tokenKeyPrefix namespaces the per-user token lists so the service can
// share a Redis instance with other keyspaces.
const tokenKeyPrefix = "push:tokens:"

// RedisClient stores per-user device-token lists in Redis, JSON-encoded
// under the push:tokens: namespace. It satisfies the TokenCache interface.
type RedisClient struct {
	rdb *redis.Client
}

func NewRedisClient(addr, password string, db int) (*RedisClient, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	// Fail fast if connection is bad
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &RedisClient{rdb: rdb}, nil
}

// GetTokens returns the cached token list for the user. A missing key is
// returned as the redis.Nil error, which callers treat as a cache miss.
func (c *RedisClient) GetTokens(ctx context.Context, userID uuid.UUID) ([]string, error) {
	val, err := c.rdb.Get(ctx, tokenKey(userID)).Bytes()
	if err != nil {
		return nil, err
	}
	var tokens []string
	if err := json.Unmarshal(val, &tokens); err != nil {
		return nil, fmt.Errorf("corrupt cached token list for user %s: %w", userID, err)
	}
	return tokens, nil
}

func (c *RedisClient) SetTokens(ctx context.Context, userID uuid.UUID, tokens []string, ttl time.Duration) error {
	encoded, err := json.Marshal(tokens)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, tokenKey(userID), encoded, ttl).Err()
}

func (c *RedisClient) InvalidateTokens(ctx context.Context, userID uuid.UUID) error {
	return c.rdb.Del(ctx, tokenKey(userID)).Err()
}

func (c *RedisClient) Close() error {
	return c.rdb.Close()
}

func tokenKey(userID uuid.UUID) string {
	return tokenKeyPrefix + userID.String()
}
