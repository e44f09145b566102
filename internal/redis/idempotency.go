package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// IdempotencyStore remembers successful operator mutations (mission
// creation) per caller and Idempotency-Key.
type IdempotencyStore struct {
	client *goredis.Client
	ttl    time.Duration
}

func NewIdempotencyStore(client *goredis.Client, ttlSeconds int) *IdempotencyStore {
	return &IdempotencyStore{
		client: client,
		ttl:    time.Duration(ttlSeconds) * time.Second,
	}
}

func (s *IdempotencyStore) Check(ctx context.Context, callerID, key string) ([]byte, bool, error) {
	stored, err := s.client.Get(ctx, idempotencyKey(callerID, key)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("check idempotency key: %w", err)
	}
	return stored, true, nil
}

// Set stores response unless another request with the same key got there
// first; the earlier response stays authoritative.
func (s *IdempotencyStore) Set(ctx context.Context, callerID, key string, response []byte) error {
	if err := s.client.SetNX(ctx, idempotencyKey(callerID, key), response, s.ttl).Err(); err != nil {
		return fmt.Errorf("set idempotency key: %w", err)
	}
	return nil
}

func idempotencyKey(callerID, key string) string {
	return fmt.Sprintf("fleet:idempotency:%s:%s", callerID, key)
}
