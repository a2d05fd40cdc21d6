// Package keyfile implements a read-only storage.Store loaded from a JSON
// file. The file is watched with fsnotify and reloaded whenever it changes,
// so API keys can be added or revoked without restarting the process.
//
// File format:
//
//	{
//	  "users":    [{"id": "u1", "email": "dev@example.com"}],
//	  "api_keys": [
//	    {"name": "ci",  "user_id": "u1", "hash": "<sha256 hex>"},
//	    {"name": "dev", "user_id": "u1", "key": "plaintext-for-local-use"}
//	  ]
//	}
//
// Entries with a plaintext "key" are hashed at load time.
package keyfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/ggoodman/authresolver/auth"
	"github.com/ggoodman/authresolver/storage"
	"github.com/ggoodman/authresolver/storage/memory"
)

type fileUser struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
}

type fileKey struct {
	Name      string     `json:"name,omitempty"`
	UserID    string     `json:"user_id"`
	Hash      string     `json:"hash,omitempty"`
	Key       string     `json:"key,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Revoked   bool       `json:"revoked,omitempty"`
}

type fileDoc struct {
	Users   []fileUser `json:"users"`
	APIKeys []fileKey  `json:"api_keys"`
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used to report reloads. Defaults to slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

// WithReloadHook registers fn to be called after every reload attempt with
// its outcome.
func WithReloadHook(fn func(error)) Option {
	return func(s *Store) { s.onReload = fn }
}

// Store serves users and API keys from the most recently loaded file.
type Store struct {
	path     string
	log      *slog.Logger
	onReload func(error)

	current atomic.Pointer[memory.Store]
	watcher *fsnotify.Watcher
	done    chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
}

var _ storage.Store = (*Store)(nil)

// Open loads path and starts watching it for changes.
func Open(path string, opts ...Option) (*Store, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("keyfile: resolve path: %w", err)
	}
	s := &Store{path: abs, log: slog.Default(), done: make(chan struct{})}
	for _, opt := range opts {
		opt(s)
	}

	mem, err := load(abs)
	if err != nil {
		return nil, err
	}
	s.current.Store(mem)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("keyfile: watcher: %w", err)
	}
	// Watch the directory so editors that replace the file via rename are seen.
	if err := w.Add(filepath.Dir(abs)); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("keyfile: watch %s: %w", filepath.Dir(abs), err)
	}
	s.watcher = w
	s.wg.Add(1)
	go s.watch()
	return s, nil
}

func (s *Store) watch() {
	defer s.wg.Done()
	for {
		select {
		case <-s.done:
			return
		case ev, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != s.path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			s.reload()
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.log.Warn("keyfile.watch.fail", slog.String("path", s.path), slog.String("err", err.Error()))
		}
	}
}

// Reload re-reads the file immediately. On failure the previous contents
// stay in effect.
func (s *Store) Reload() error { return s.reload() }

func (s *Store) reload() error {
	mem, err := load(s.path)
	if err != nil {
		s.log.Warn("keyfile.reload.fail", slog.String("path", s.path), slog.String("err", err.Error()))
	} else {
		s.current.Store(mem)
		s.log.Info("keyfile.reload.ok", slog.String("path", s.path))
	}
	if s.onReload != nil {
		s.onReload(err)
	}
	return err
}

func load(path string) (*memory.Store, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("keyfile: open: %w", err)
	}
	defer f.Close()

	var doc fileDoc
	dec := json.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("keyfile: decode %s: %w", path, err)
	}

	mem, err := memory.New(len(doc.Users) + len(doc.APIKeys))
	if err != nil {
		return nil, err
	}
	ctx := context.Background()
	now := time.Now()
	for i, u := range doc.Users {
		if err := mem.PutUser(ctx, &storage.User{ID: u.ID, Email: u.Email, Name: u.Name, CreatedAt: now}); err != nil {
			return nil, fmt.Errorf("keyfile: users[%d]: %w", i, err)
		}
	}
	for i, k := range doc.APIKeys {
		hash := k.Hash
		if k.Key != "" {
			if hash != "" {
				return nil, fmt.Errorf("keyfile: api_keys[%d]: set either key or hash", i)
			}
			hash = auth.HashAPIKey(k.Key)
		}
		rec := &storage.APIKey{Hash: hash, Name: k.Name, UserID: k.UserID, CreatedAt: now, ExpiresAt: k.ExpiresAt, Revoked: k.Revoked}
		if err := mem.PutAPIKey(ctx, rec); err != nil {
			return nil, fmt.Errorf("keyfile: api_keys[%d]: %w", i, err)
		}
	}
	return mem, nil
}

func (s *Store) FindUser(ctx context.Context, id string) (*storage.User, error) {
	return s.current.Load().FindUser(ctx, id)
}

func (s *Store) LookupAPIKey(ctx context.Context, hash string) (*storage.APIKey, error) {
	return s.current.Load().LookupAPIKey(ctx, hash)
}

func (s *Store) PutUser(context.Context, *storage.User) error { return storage.ErrReadOnly }

func (s *Store) PutAPIKey(context.Context, *storage.APIKey) error { return storage.ErrReadOnly }

func (s *Store) RevokeAPIKey(context.Context, string) error { return storage.ErrReadOnly }

// Close stops watching the file.
func (s *Store) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.watcher.Close()
		s.wg.Wait()
	})
	return err
}
