package discovery

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestURL(t *testing.T) {
	cases := []struct {
		issuer string
		want   string
	}{
		{"https://idp.example.com", "https://idp.example.com/.well-known/openid-configuration"},
		{"https://idp.example.com/", "https://idp.example.com/.well-known/openid-configuration"},
		{"  https://idp.example.com/realms/x// ", "https://idp.example.com/realms/x/.well-known/openid-configuration"},
		{"http://localhost:5556/dex", "http://localhost:5556/dex/.well-known/openid-configuration"},
	}
	for _, tc := range cases {
		got, err := URL(tc.issuer)
		require.NoError(t, err, tc.issuer)
		require.Equal(t, tc.want, got)
	}

	for _, bad := range []string{"", "   ", "idp.example.com", "ftp://idp.example.com", "https://"} {
		_, err := URL(bad)
		require.Error(t, err, "issuer %q", bad)
	}
}

func serve(t *testing.T, h http.HandlerFunc) (*httptest.Server, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		h(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestFetch_OK(t *testing.T) {
	srv, calls := serve(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/.well-known/openid-configuration", r.URL.Path)
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_, _ = w.Write([]byte(`{"issuer":"https://idp.example.com","jwks_uri":"https://idp.example.com/jwks","token_endpoint":"x"}`))
	})

	u, err := URL(srv.URL)
	require.NoError(t, err)
	md, err := New().Fetch(context.Background(), u)
	require.NoError(t, err)
	require.Equal(t, Metadata{Issuer: "https://idp.example.com", JWKSURI: "https://idp.example.com/jwks"}, md)
	require.EqualValues(t, 1, atomic.LoadInt32(calls))
}

func TestFetch_StatusError(t *testing.T) {
	srv, calls := serve(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	_, err := New().Fetch(context.Background(), srv.URL+"/.well-known/openid-configuration")
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrFetch))
	require.False(t, errors.Is(err, ErrParse))

	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	require.Equal(t, http.StatusInternalServerError, fe.StatusCode)
	require.EqualValues(t, 1, atomic.LoadInt32(calls), "no retries")
}

func TestFetch_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	_, err := New().Fetch(context.Background(), addr+"/.well-known/openid-configuration")
	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	require.Zero(t, fe.StatusCode)
	require.NotNil(t, fe.Unwrap())
}

func TestFetch_Malformed(t *testing.T) {
	cases := map[string]http.HandlerFunc{
		"not json": func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"issuer":`))
		},
		"html": func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte(`<html></html>`))
		},
		"missing jwks_uri": func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"issuer":"https://idp.example.com"}`))
		},
		"missing issuer": func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"jwks_uri":"https://idp.example.com/jwks"}`))
		},
	}
	for name, h := range cases {
		t.Run(name, func(t *testing.T) {
			srv, _ := serve(t, h)
			_, err := New().Fetch(context.Background(), srv.URL)
			var pe *ParseError
			require.True(t, errors.As(err, &pe), "got %v", err)
			require.True(t, errors.Is(err, ErrParse))
		})
	}
}

func TestFetch_IgnoresContentType(t *testing.T) {
	for _, ct := range []string{"text/plain", "application/octet-stream", "application/jrd+json", "application/json; charset=utf-8", ""} {
		t.Run(ct, func(t *testing.T) {
			srv, _ := serve(t, func(w http.ResponseWriter, r *http.Request) {
				if ct == "" {
					w.Header()["Content-Type"] = nil
				} else {
					w.Header().Set("Content-Type", ct)
				}
				_, _ = w.Write([]byte(`{"issuer":"https://i","jwks_uri":"https://i/k"}`))
			})

			md, err := New().Fetch(context.Background(), srv.URL)
			require.NoError(t, err)
			require.Equal(t, Metadata{Issuer: "https://i", JWKSURI: "https://i/k"}, md)
		})
	}
}

func TestFetch_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv, _ := serve(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	start := time.Now()
	_, err := New(WithTimeout(50*time.Millisecond)).Fetch(context.Background(), srv.URL)
	require.True(t, errors.Is(err, ErrFetch))
	require.True(t, errors.Is(err, context.DeadlineExceeded))
	require.Less(t, time.Since(start), 5*time.Second)
}
