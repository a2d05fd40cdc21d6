// Package memory provides an in-memory implementation of storage.Store
// using github.com/hashicorp/golang-lru/v2 to bound the number of records.
//
// A full store never evicts: inserting a new user or key beyond the bound
// fails with storage.ErrFull, so stored credentials keep working.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/ggoodman/authresolver/storage"
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultMaxItems bounds each record kind when New is given a non-positive size.
const DefaultMaxItems = 10_000

// Store implements storage.Store in process memory. Records are copied on
// the way in and out so callers never share mutable state with the store.
type Store struct {
	mu    sync.RWMutex
	max   int
	users *lru.Cache[string, storage.User]
	keys  *lru.Cache[string, storage.APIKey]
}

var _ storage.Store = (*Store)(nil)

// New creates a store holding at most maxItems users and maxItems keys.
func New(maxItems int) (*Store, error) {
	if maxItems <= 0 {
		maxItems = DefaultMaxItems
	}
	users, err := lru.New[string, storage.User](maxItems)
	if err != nil {
		return nil, fmt.Errorf("failed to create user cache: %w", err)
	}
	keys, err := lru.New[string, storage.APIKey](maxItems)
	if err != nil {
		return nil, fmt.Errorf("failed to create api key cache: %w", err)
	}
	return &Store{max: maxItems, users: users, keys: keys}, nil
}

func (s *Store) PutUser(ctx context.Context, u *storage.User) error {
	if err := storage.ValidateUser(u); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.users.Contains(u.ID) && s.users.Len() >= s.max {
		return fmt.Errorf("%w: %d users", storage.ErrFull, s.max)
	}
	s.users.Add(u.ID, *u)
	return nil
}

func (s *Store) FindUser(ctx context.Context, id string) (*storage.User, error) {
	s.mu.RLock()
	u, ok := s.users.Get(id)
	s.mu.RUnlock()
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &u, nil
}

func (s *Store) PutAPIKey(ctx context.Context, k *storage.APIKey) error {
	if err := storage.ValidateAPIKey(k); err != nil {
		return err
	}
	cp := *k
	if k.ExpiresAt != nil {
		exp := *k.ExpiresAt
		cp.ExpiresAt = &exp
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.keys.Contains(k.Hash) && s.keys.Len() >= s.max {
		return fmt.Errorf("%w: %d api keys", storage.ErrFull, s.max)
	}
	s.keys.Add(k.Hash, cp)
	return nil
}

func (s *Store) LookupAPIKey(ctx context.Context, hash string) (*storage.APIKey, error) {
	s.mu.RLock()
	k, ok := s.keys.Get(hash)
	s.mu.RUnlock()
	if !ok {
		return nil, storage.ErrNotFound
	}
	if k.ExpiresAt != nil {
		exp := *k.ExpiresAt
		k.ExpiresAt = &exp
	}
	return &k, nil
}

func (s *Store) RevokeAPIKey(ctx context.Context, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.keys.Peek(hash)
	if !ok {
		return storage.ErrNotFound
	}
	k.Revoked = true
	s.keys.Add(hash, k)
	return nil
}

// Close purges all records.
func (s *Store) Close() error {
	s.mu.Lock()
	s.users.Purge()
	s.keys.Purge()
	s.mu.Unlock()
	return nil
}
