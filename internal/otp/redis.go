package otp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

type RedisStore struct {
	client *goredis.Client
	prefix string
}

func NewRedisClient(ctx context.Context, addr, password string) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

func NewRedisStore(client *goredis.Client) *RedisStore {
	return &RedisStore{client: client, prefix: "otp:"}
}

func (r *RedisStore) key(email string) string {
	return r.prefix + strings.ToLower(strings.TrimSpace(email))
}

func (r *RedisStore) Put(ctx context.Context, email, codeHash string, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("otp: ttl must be positive")
	}
	return r.client.Set(ctx, r.key(email), codeHash, ttl).Err()
}

func (r *RedisStore) Get(ctx context.Context, email string) (string, error) {
	val, err := r.client.Get(ctx, r.key(email)).Result()
	if errors.Is(err, goredis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return val, nil
}

func (r *RedisStore) Delete(ctx context.Context, email string) error {
	return r.client.Del(ctx, r.key(email)).Err()
}
