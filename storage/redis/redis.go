// Package redis provides a Redis-backed implementation of storage.Store so
// that several processes can share one set of users and API keys.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ggoodman/authresolver/storage"
	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix is used when Config.KeyPrefix is empty.
const DefaultKeyPrefix = "authresolver:"

// Config contains configuration options for the Redis store.
type Config struct {
	// Client is the Redis client instance.
	Client *redis.Client

	// KeyPrefix is the prefix for all Redis keys.
	// Default: "authresolver:"
	KeyPrefix string
}

// Store implements storage.Store using Redis string keys holding JSON.
type Store struct {
	client    *redis.Client
	keyPrefix string
}

var _ storage.Store = (*Store)(nil)

// New creates a Redis-backed store.
func New(config Config) (*Store, error) {
	if config.Client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = DefaultKeyPrefix
	}
	return &Store{client: config.Client, keyPrefix: config.KeyPrefix}, nil
}

// Dial connects to addr, verifies the connection and returns a store.
func Dial(ctx context.Context, addr, keyPrefix string) (*Store, error) {
	cl := redis.NewClient(&redis.Options{Addr: addr})
	if err := cl.Ping(ctx).Err(); err != nil {
		_ = cl.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return New(Config{Client: cl, KeyPrefix: keyPrefix})
}

func (s *Store) userKey(id string) string  { return s.keyPrefix + "user:" + id }
func (s *Store) keyKey(hash string) string { return s.keyPrefix + "apikey:" + hash }

func (s *Store) PutUser(ctx context.Context, u *storage.User) error {
	if err := storage.ValidateUser(u); err != nil {
		return err
	}
	return s.put(ctx, s.userKey(u.ID), u, 0)
}

func (s *Store) FindUser(ctx context.Context, id string) (*storage.User, error) {
	var u storage.User
	if err := s.get(ctx, s.userKey(id), &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) PutAPIKey(ctx context.Context, k *storage.APIKey) error {
	if err := storage.ValidateAPIKey(k); err != nil {
		return err
	}
	var ttl time.Duration
	if k.ExpiresAt != nil {
		ttl = time.Until(*k.ExpiresAt)
		if ttl <= 0 {
			// Already expired: nothing useful to store.
			return s.del(ctx, s.keyKey(k.Hash))
		}
	}
	return s.put(ctx, s.keyKey(k.Hash), k, ttl)
}

func (s *Store) LookupAPIKey(ctx context.Context, hash string) (*storage.APIKey, error) {
	var k storage.APIKey
	if err := s.get(ctx, s.keyKey(hash), &k); err != nil {
		return nil, err
	}
	return &k, nil
}

func (s *Store) RevokeAPIKey(ctx context.Context, hash string) error {
	key := s.keyKey(hash)
	return s.client.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return storage.ErrNotFound
			}
			return fmt.Errorf("failed to get key %s: %w", key, err)
		}
		var k storage.APIKey
		if err := json.Unmarshal(raw, &k); err != nil {
			return fmt.Errorf("failed to unmarshal api key: %w", err)
		}
		k.Revoked = true
		b, err := json.Marshal(&k)
		if err != nil {
			return fmt.Errorf("failed to marshal api key: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.SetArgs(ctx, key, b, redis.SetArgs{KeepTTL: true})
			return nil
		})
		return err
	}, key)
}

// Close closes the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) put(ctx context.Context, key string, v any, ttl time.Duration) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	if err := s.client.Set(ctx, key, b, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set key %s: %w", key, err)
	}
	return nil
}

func (s *Store) get(ctx context.Context, key string, v any) error {
	raw, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return storage.ErrNotFound
		}
		return fmt.Errorf("failed to get key %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("failed to unmarshal record: %w", err)
	}
	return nil
}

func (s *Store) del(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to delete key %s: %w", key, err)
	}
	return nil
}
