// Package token issues and consumes the single-use tokens that admit
// WebSocket subscribers.
package token

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix  = "wstoken:"
	DefaultTTL = 5 * time.Minute
)

type Store interface {
	// Issue mints a new single-use token and returns it with its expiry.
	Issue(ctx context.Context) (string, time.Time, error)
	// Consume atomically validates and deletes a token. It returns false for
	// tokens that are unknown, expired, or already consumed.
	Consume(ctx context.Context, tok string) (bool, error)
}

// RedisStore keeps tokens in Redis. Key TTL handles expiry, so no sweep is
// needed; GETDEL makes consumption single-use even under concurrent
// admission attempts.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) Issue(ctx context.Context) (string, time.Time, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", time.Time{}, fmt.Errorf("failed to generate token: %w", err)
	}
	tok := hex.EncodeToString(buf)
	expiresAt := time.Now().Add(s.ttl)

	ok, err := s.client.SetNX(ctx, keyPrefix+tok, "1", s.ttl).Result()
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to store token: %w", err)
	}
	if !ok {
		return "", time.Time{}, errors.New("token collision")
	}
	return tok, expiresAt, nil
}

func (s *RedisStore) Consume(ctx context.Context, tok string) (bool, error) {
	_, err := s.client.GetDel(ctx, keyPrefix+tok).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to consume token: %w", err)
	}
	return true, nil
}
