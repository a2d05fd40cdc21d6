package keyfile

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ggoodman/authresolver/auth"
	"github.com/ggoodman/authresolver/storage"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
}

func TestOpen_Loads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys.json")
	writeFile(t, path, `{
		"users": [{"id": "u1", "email": "u1@example.com"}],
		"api_keys": [
			{"name": "plain", "user_id": "u1", "key": "dev-secret"},
			{"name": "hashed", "user_id": "u1", "hash": "`+auth.HashAPIKey("other-secret")+`", "revoked": true}
		]
	}`)

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()

	u, err := s.FindUser(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, "u1@example.com", u.Email)

	k, err := s.LookupAPIKey(ctx, auth.HashAPIKey("dev-secret"))
	require.NoError(t, err)
	require.Equal(t, "plain", k.Name)

	k, err = s.LookupAPIKey(ctx, auth.HashAPIKey("other-secret"))
	require.NoError(t, err)
	require.True(t, k.Revoked)

	require.ErrorIs(t, s.PutUser(ctx, &storage.User{ID: "x"}), storage.ErrReadOnly)
	require.ErrorIs(t, s.PutAPIKey(ctx, &storage.APIKey{Hash: "x", UserID: "x"}), storage.ErrReadOnly)
	require.ErrorIs(t, s.RevokeAPIKey(ctx, "x"), storage.ErrReadOnly)
}

func TestOpen_Invalid(t *testing.T) {
	dir := t.TempDir()

	_, err := Open(filepath.Join(dir, "missing.json"))
	require.Error(t, err)

	bad := filepath.Join(dir, "bad.json")
	writeFile(t, bad, `{"api_keys": [{"user_id": "u1", "key": "a", "hash": "b"}]}`)
	_, err = Open(bad)
	require.Error(t, err)

	unknown := filepath.Join(dir, "unknown.json")
	writeFile(t, unknown, `{"tokens": []}`)
	_, err = Open(unknown)
	require.Error(t, err)
}

func TestReload_KeepsPreviousOnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys.json")
	writeFile(t, path, `{"users": [{"id": "u1"}]}`)

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	writeFile(t, path, `{not json`)
	require.Error(t, s.Reload())

	_, err = s.FindUser(context.Background(), "u1")
	require.NoError(t, err)
}

func TestWatch_ReloadsOnChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys.json")
	writeFile(t, path, `{"users": [{"id": "u1"}]}`)

	reloaded := make(chan error, 16)
	s, err := Open(path, WithReloadHook(func(err error) {
		select {
		case reloaded <- err:
		default:
		}
	}))
	require.NoError(t, err)
	defer s.Close()

	writeFile(t, path, `{"users": [{"id": "u1"}], "api_keys": [{"user_id": "u1", "key": "fresh"}]}`)

	ctx := context.Background()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case <-reloaded:
			if _, err := s.LookupAPIKey(ctx, auth.HashAPIKey("fresh")); err == nil {
				return
			}
		case <-deadline:
			t.Fatal("file change was not picked up")
		}
	}
}
