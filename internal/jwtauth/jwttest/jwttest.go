// Package jwttest provides an in-process OpenID provider for tests: it serves
// a discovery document and a JWKS, and signs tokens with its RSA key.
package jwttest

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ggoodman/authresolver/internal/wellknown"
	jose "github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"
)

const keyID = "test-key"

// Issuer is a mock OIDC provider backed by httptest.Server.
type Issuer struct {
	srv  *httptest.Server
	key  *rsa.PrivateKey
	jwks []byte

	mu        sync.Mutex
	docStatus int
	docBody   []byte

	discoveryCalls atomic.Int32
}

// NewIssuer starts a mock provider that is closed on test cleanup.
func NewIssuer(t testing.TB) *Issuer {
	t.Helper()
	pk, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("gen key: %v", err)
	}
	jwk := jose.JSONWebKey{Key: &pk.PublicKey, KeyID: keyID, Algorithm: "RS256", Use: "sig"}
	set := struct {
		Keys []jose.JSONWebKey `json:"keys"`
	}{Keys: []jose.JSONWebKey{jwk}}
	b, err := json.Marshal(set)
	if err != nil {
		t.Fatalf("marshal jwks: %v", err)
	}

	is := &Issuer{key: pk, jwks: b, docStatus: http.StatusOK}
	mux := http.NewServeMux()
	mux.HandleFunc(wellknown.OpenIDConfigurationPath, is.handleDiscovery)
	mux.HandleFunc("/keys", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(is.jwks)
	})
	is.srv = httptest.NewServer(mux)
	t.Cleanup(is.srv.Close)
	return is
}

func (is *Issuer) handleDiscovery(w http.ResponseWriter, r *http.Request) {
	is.discoveryCalls.Add(1)
	is.mu.Lock()
	status, body := is.docStatus, is.docBody
	is.mu.Unlock()

	if status != http.StatusOK {
		http.Error(w, http.StatusText(status), status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if body != nil {
		_, _ = w.Write(body)
		return
	}
	_ = json.NewEncoder(w).Encode(wellknown.OpenIDConfiguration{
		Issuer:                           is.URL(),
		JwksURI:                          is.JWKSURL(),
		ResponseTypesSupported:           []string{"code"},
		IDTokenSigningAlgValuesSupported: []string{"RS256"},
	})
}

// URL is the issuer identifier.
func (is *Issuer) URL() string { return is.srv.URL }

// JWKSURL is the JWKS endpoint advertised in discovery.
func (is *Issuer) JWKSURL() string { return is.srv.URL + "/keys" }

// DiscoveryCalls reports how many discovery requests were served.
func (is *Issuer) DiscoveryCalls() int { return int(is.discoveryCalls.Load()) }

// FailDiscovery makes the discovery endpoint answer with status.
func (is *Issuer) FailDiscovery(status int) {
	is.mu.Lock()
	is.docStatus = status
	is.mu.Unlock()
}

// SetDiscoveryBody replaces the discovery document with a raw body.
func (is *Issuer) SetDiscoveryBody(body []byte) {
	is.mu.Lock()
	is.docBody = body
	is.mu.Unlock()
}

// Sign returns an RS256 token over claims with the issuer's key id.
func (is *Issuer) Sign(t testing.TB, claims jwt.MapClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = keyID
	s, err := tok.SignedString(is.key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

// Claims returns a valid claim set for sub and aud issued by is.
func (is *Issuer) Claims(sub, aud string) jwt.MapClaims {
	now := time.Now()
	return jwt.MapClaims{
		"iss": is.URL(),
		"sub": sub,
		"aud": aud,
		"exp": now.Add(time.Hour).Unix(),
		"iat": now.Unix(),
	}
}
