package redisstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jrsteele09/dortmed-client/credentials"
	apperrors "github.com/jrsteele09/dortmed-client/internal/errors"
	"github.com/redis/go-redis/v9"
)

var _ credentials.Repo = (*Store)(nil)

// Store keeps the session keys in Redis under a prefix, e.g. "dortmed:access_token".
type Store struct {
	rdb    redis.UniversalClient
	prefix string
}

// New creates a Redis backed store.
func New(rdb redis.UniversalClient, prefix string) *Store {
	return &Store{rdb: rdb, prefix: prefix}
}

func (s *Store) key(k string) string {
	return s.prefix + k
}

// Upsert writes all values with a single MSET.
func (s *Store) Upsert(ctx context.Context, values map[string]string) error {
	if err := credentials.ValidateKeys(values); err != nil {
		return err
	}
	if len(values) == 0 {
		return nil
	}
	pairs := make([]any, 0, len(values)*2)
	for k, v := range values {
		pairs = append(pairs, s.key(k), v)
	}
	if err := s.rdb.MSet(ctx, pairs...).Err(); err != nil {
		return fmt.Errorf("redis mset: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, key string) (string, error) {
	v, err := s.rdb.Get(ctx, s.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", apperrors.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("redis get: %w", err)
	}
	return v, nil
}

// Clear removes every session key with one DEL, which Redis applies atomically.
func (s *Store) Clear(ctx context.Context) error {
	keys := make([]string, 0, len(credentials.Keys))
	for _, k := range credentials.Keys {
		keys = append(keys, s.key(k))
	}
	if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
