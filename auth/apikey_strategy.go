package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// APIKeyHeader is checked before the Authorization header.
const APIKeyHeader = "X-API-Key"

// HashAPIKey returns the lookup hash for a presented API key.
func HashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// APIKeyStrategy authenticates static API keys.
type APIKeyStrategy struct {
	keys  APIKeyLookup
	users UserLookup
	now   func() time.Time
}

var _ Strategy = (*APIKeyStrategy)(nil)

func NewAPIKeyStrategy(keys APIKeyLookup, users UserLookup) *APIKeyStrategy {
	return &APIKeyStrategy{keys: keys, users: users, now: time.Now}
}

func (s *APIKeyStrategy) Name() string { return StrategyAPIKey }

// Verify looks up key and resolves its owner. Errors match ErrInvalidAPIKey
// or ErrUserNotFound.
func (s *APIKeyStrategy) Verify(ctx context.Context, key string) (Principal, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, fmt.Errorf("%w: empty key", ErrInvalidAPIKey)
	}
	rec, err := s.keys.LookupAPIKey(ctx, HashAPIKey(key))
	if err != nil {
		if errors.Is(err, ErrInvalidAPIKey) {
			return nil, err
		}
		return nil, fmt.Errorf("api-key: lookup: %w", err)
	}
	if rec.Revoked {
		return nil, fmt.Errorf("%w: revoked", ErrInvalidAPIKey)
	}
	if rec.ExpiresAt != nil && !s.now().Before(*rec.ExpiresAt) {
		return nil, fmt.Errorf("%w: expired", ErrInvalidAPIKey)
	}

	p, err := s.users.FindUser(ctx, rec.UserID)
	if err != nil {
		return nil, fmt.Errorf("api-key: resolve owner %q: %w", rec.UserID, err)
	}
	if p == nil {
		return nil, fmt.Errorf("%w: owner %q", ErrUserNotFound, rec.UserID)
	}
	return p, nil
}

// Authenticate reads the key from the X-API-Key header, falling back to a
// bearer token.
func (s *APIKeyStrategy) Authenticate(r *http.Request) (Principal, error) {
	key := strings.TrimSpace(r.Header.Get(APIKeyHeader))
	if key == "" {
		var ok bool
		if key, ok = BearerToken(r); !ok {
			return nil, ErrNoCredentials
		}
	}
	return s.Verify(r.Context(), key)
}
