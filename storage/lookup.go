package storage

import (
	"context"
	"errors"

	"github.com/ggoodman/authresolver/auth"
)

// Users adapts s to auth.UserLookup.
func Users(s Store) auth.UserLookup { return userLookup{s: s} }

// APIKeys adapts s to auth.APIKeyLookup.
func APIKeys(s Store) auth.APIKeyLookup { return keyLookup{s: s} }

type userLookup struct{ s Store }

func (l userLookup) FindUser(ctx context.Context, id string) (auth.Principal, error) {
	u, err := l.s.FindUser(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, errors.Join(auth.ErrUserNotFound, err)
		}
		return nil, err
	}
	return u, nil
}

type keyLookup struct{ s Store }

func (l keyLookup) LookupAPIKey(ctx context.Context, hash string) (auth.APIKeyRecord, error) {
	k, err := l.s.LookupAPIKey(ctx, hash)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return auth.APIKeyRecord{}, errors.Join(auth.ErrInvalidAPIKey, err)
		}
		return auth.APIKeyRecord{}, err
	}
	return auth.APIKeyRecord{UserID: k.UserID, ExpiresAt: k.ExpiresAt, Revoked: k.Revoked}, nil
}
