// Package storage defines the credential store consulted by the
// authentication strategies: user records that back authenticated principals
// and hashed API keys that map to those users.
//
// Implementations live in subpackages: memory (bounded in-process LRU),
// redis (shared across processes) and keyfile (a JSON file reloaded on
// change). Users and APIKeys adapt any Store to the lookup contracts in the
// auth package.
package storage

import (
	"context"
	"errors"
	"time"
)

// Store persists users and API keys.
type Store interface {
	// PutUser inserts or replaces a user record.
	PutUser(ctx context.Context, u *User) error

	// FindUser returns the user with the given id, or ErrNotFound.
	FindUser(ctx context.Context, id string) (*User, error)

	// PutAPIKey inserts or replaces an API key record keyed by its hash.
	PutAPIKey(ctx context.Context, k *APIKey) error

	// LookupAPIKey returns the key record for hash, or ErrNotFound.
	LookupAPIKey(ctx context.Context, hash string) (*APIKey, error)

	// RevokeAPIKey marks the key as revoked. Revoking an unknown key
	// returns ErrNotFound.
	RevokeAPIKey(ctx context.Context, hash string) error

	// Close releases resources held by the store.
	Close() error
}

// User is an account that tokens and API keys resolve to.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email,omitempty"`
	Name      string    `json:"name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// UserID implements auth.Principal.
func (u *User) UserID() string { return u.ID }

// APIKey is a stored API key. Only the hash of the presented secret is kept.
type APIKey struct {
	Hash      string     `json:"hash"`
	Name      string     `json:"name,omitempty"`
	UserID    string     `json:"user_id"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Revoked   bool       `json:"revoked,omitempty"`
}

// IsExpired reports whether the key has an expiry at or before now.
func (k *APIKey) IsExpired(now time.Time) bool {
	return k.ExpiresAt != nil && !now.Before(*k.ExpiresAt)
}

// Error types
var (
	// ErrNotFound is returned when a user or API key does not exist.
	ErrNotFound = errors.New("storage: not found")

	// ErrReadOnly is returned by stores that do not accept writes.
	ErrReadOnly = errors.New("storage: read-only store")

	// ErrFull is returned when a bounded store has no room for a new record.
	ErrFull = errors.New("storage: store is full")

	// ErrInvalidRecord is returned when a record is missing its identifier.
	ErrInvalidRecord = errors.New("storage: invalid record")
)

// ValidateUser checks the fields every store requires on a user.
func ValidateUser(u *User) error {
	if u == nil || u.ID == "" {
		return ErrInvalidRecord
	}
	return nil
}

// ValidateAPIKey checks the fields every store requires on an API key.
func ValidateAPIKey(k *APIKey) error {
	if k == nil || k.Hash == "" || k.UserID == "" {
		return ErrInvalidRecord
	}
	return nil
}
