// Package authtest provides in-memory collaborators for exercising auth
// strategies in tests.
package authtest

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ggoodman/authresolver/auth"
	"github.com/ggoodman/authresolver/discovery"
)

// User is a minimal auth.Principal.
type User string

func (u User) UserID() string { return string(u) }

// Users is a static auth.UserLookup. The zero value knows nobody.
type Users map[string]auth.Principal

// NewUsers returns a Users containing a User for each id.
func NewUsers(ids ...string) Users {
	u := make(Users, len(ids))
	for _, id := range ids {
		u[id] = User(id)
	}
	return u
}

func (u Users) FindUser(_ context.Context, id string) (auth.Principal, error) {
	p, ok := u[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", auth.ErrUserNotFound, id)
	}
	return p, nil
}

// APIKeys is a static auth.APIKeyLookup keyed by hash.
type APIKeys struct {
	mu   sync.RWMutex
	recs map[string]auth.APIKeyRecord
}

func NewAPIKeys() *APIKeys {
	return &APIKeys{recs: map[string]auth.APIKeyRecord{}}
}

// Add registers the plaintext key for userID and returns its hash.
func (k *APIKeys) Add(key, userID string) string {
	return k.Put(key, auth.APIKeyRecord{UserID: userID})
}

// AddExpiring registers key with an expiry time.
func (k *APIKeys) AddExpiring(key, userID string, at time.Time) string {
	return k.Put(key, auth.APIKeyRecord{UserID: userID, ExpiresAt: &at})
}

// Put stores rec under the hash of key.
func (k *APIKeys) Put(key string, rec auth.APIKeyRecord) string {
	h := auth.HashAPIKey(key)
	k.mu.Lock()
	defer k.mu.Unlock()
	k.recs[h] = rec
	return h
}

// Revoke marks the key as revoked.
func (k *APIKeys) Revoke(key string) {
	h := auth.HashAPIKey(key)
	k.mu.Lock()
	defer k.mu.Unlock()
	if rec, ok := k.recs[h]; ok {
		rec.Revoked = true
		k.recs[h] = rec
	}
}

func (k *APIKeys) LookupAPIKey(_ context.Context, hash string) (auth.APIKeyRecord, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	rec, ok := k.recs[hash]
	if !ok {
		return auth.APIKeyRecord{}, fmt.Errorf("%w: unknown key", auth.ErrInvalidAPIKey)
	}
	return rec, nil
}

// Fetcher is an auth.MetadataFetcher with canned results that counts calls.
type Fetcher struct {
	Metadata discovery.Metadata
	Err      error

	calls atomic.Int64
	mu    sync.Mutex
	urls  []string
}

func (f *Fetcher) Fetch(ctx context.Context, url string) (discovery.Metadata, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.urls = append(f.urls, url)
	f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return discovery.Metadata{}, &discovery.FetchError{URL: url, Err: err}
	}
	if f.Err != nil {
		return discovery.Metadata{}, f.Err
	}
	return f.Metadata, nil
}

// Calls returns how many times Fetch ran.
func (f *Fetcher) Calls() int { return int(f.calls.Load()) }

// URLs returns every URL passed to Fetch, in order.
func (f *Fetcher) URLs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.urls...)
}

// Strategy is a scripted auth.Strategy.
type Strategy struct {
	ID        string
	Principal auth.Principal
	Err       error

	calls atomic.Int64
}

func (s *Strategy) Name() string { return s.ID }

func (s *Strategy) Authenticate(*http.Request) (auth.Principal, error) {
	s.calls.Add(1)
	if s.Err != nil {
		return nil, s.Err
	}
	return s.Principal, nil
}

// Calls returns how many times Authenticate ran.
func (s *Strategy) Calls() int { return int(s.calls.Load()) }
