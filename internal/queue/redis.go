package queue

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Redis is a Queue backed by a Redis list. RPUSH appends, LPOP takes the
// head; both are atomic on the server so any number of workers or processes
// can share the key.
type Redis struct {
	client *redis.Client
	key    string
}

// RedisOptions configures a Redis queue
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Key      string
}

// NewRedis connects to Redis and verifies the connection with PING
func NewRedis(ctx context.Context, opts RedisOptions) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", opts.Addr, err)
	}

	return &Redis{client: client, key: opts.Key}, nil
}

// Push appends id to the tail of the list
func (q *Redis) Push(ctx context.Context, id string) error {
	if err := q.client.RPush(ctx, q.key, id).Err(); err != nil {
		return fmt.Errorf("rpush %s: %w", q.key, err)
	}
	return nil
}

// Pop removes the head of the list
func (q *Redis) Pop(ctx context.Context) (string, bool, error) {
	id, err := q.client.LPop(ctx, q.key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("lpop %s: %w", q.key, err)
	}
	return id, true, nil
}

// Len returns the list length
func (q *Redis) Len(ctx context.Context) (int64, error) {
	n, err := q.client.LLen(ctx, q.key).Result()
	if err != nil {
		return 0, fmt.Errorf("llen %s: %w", q.key, err)
	}
	return n, nil
}

// Close closes the connection pool
func (q *Redis) Close() error {
	return q.client.Close()
}
