package downloads

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const counterKeyPrefix = "downloads:"

// RedisCounter counts downloads with INCR.
type RedisCounter struct {
	client redis.Cmdable
}

// NewRedisCounter creates a counter on an existing client.
func NewRedisCounter(client redis.Cmdable) *RedisCounter {
	return &RedisCounter{client: client}
}

// ConnectRedis connects to Redis and verifies the connection.
func ConnectRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:            addr,
		Password:        password,
		DB:              db,
		MaxRetries:      3,
		MinRetryBackoff: 100 * time.Millisecond,
		MaxRetryBackoff: 300 * time.Millisecond,
		DialTimeout:     5 * time.Second,
		ReadTimeout:     3 * time.Second,
		WriteTimeout:    3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func (c *RedisCounter) Increment(ctx context.Context, productID string) (int64, error) {
	n, err := c.client.Incr(ctx, counterKeyPrefix+productID).Result()
	if err != nil {
		return 0, fmt.Errorf("increment download counter %s: %w", productID, err)
	}
	return n, nil
}

// MemoryCounter counts downloads in process.
type MemoryCounter struct {
	mu     sync.Mutex
	counts map[string]int64
}

// NewMemoryCounter creates an empty counter.
func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{counts: make(map[string]int64)}
}

func (c *MemoryCounter) Increment(ctx context.Context, productID string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[productID]++
	return c.counts[productID], nil
}

// Count returns the current count for a product.
func (c *MemoryCounter) Count(productID string) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[productID]
}

var (
	_ Counter = (*RedisCounter)(nil)
	_ Counter = (*MemoryCounter)(nil)
)
