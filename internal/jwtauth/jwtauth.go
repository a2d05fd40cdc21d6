package jwtauth

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	keyfunc "github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

// Config controls validation behavior for bearer tokens. Issuer, Audience and
// JWKSURI are required; the rest fall back to DefaultConfig values.
type Config struct {
	Issuer      string
	Audience    string
	JWKSURI     string
	AllowedAlgs []string
	Leeway      time.Duration
}

// DefaultConfig returns a Config with safe defaults for algorithm and leeway.
func DefaultConfig() *Config {
	return &Config{
		AllowedAlgs: []string{"RS256"},
		Leeway:      60 * time.Second,
	}
}

// Claims is what a validated token establishes about its caller.
type Claims struct {
	Subject string
}

// ErrUnauthorized indicates that the token failed validation (signature,
// issuer, audience, exp/nbf) and the caller should be treated as
// unauthenticated.
var ErrUnauthorized = errors.New("jwtauth: unauthorized")

// Verifier validates JWTs against a fixed issuer, audience and JWKS endpoint.
// It is immutable after construction and safe for concurrent use.
type Verifier struct {
	cfg     Config
	keyfunc jwt.Keyfunc
}

// New constructs a Verifier backed by an auto-refreshing JWKS client for
// cfg.JWKSURI. An unreachable JWKS endpoint does not fail construction; tokens
// are rejected until keys can be retrieved.
func New(ctx context.Context, cfg *Config) (*Verifier, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if cfg.Issuer == "" {
		return nil, errors.New("issuer is required")
	}
	if cfg.Audience == "" {
		return nil, errors.New("audience is required")
	}
	if cfg.JWKSURI == "" {
		return nil, errors.New("jwks uri required")
	}

	kf, err := keyfunc.NewDefaultCtx(ctx, []string{cfg.JWKSURI})
	if err != nil {
		return nil, fmt.Errorf("jwks init failed: %w", err)
	}
	return NewWithKeyfunc(cfg, kf.Keyfunc)
}

// NewWithKeyfunc constructs a Verifier that resolves signing keys with kf
// instead of a remote JWKS.
func NewWithKeyfunc(cfg *Config, kf jwt.Keyfunc) (*Verifier, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if kf == nil {
		return nil, errors.New("keyfunc is required")
	}
	c := *cfg
	c.AllowedAlgs = append([]string(nil), cfg.AllowedAlgs...)
	if len(c.AllowedAlgs) == 0 {
		c.AllowedAlgs = []string{"RS256"}
	}
	if c.Leeway == 0 {
		c.Leeway = 60 * time.Second
	}
	if c.Leeway < 0 {
		c.Leeway = 0
	}

	return &Verifier{cfg: c, keyfunc: func(t *jwt.Token) (any, error) {
		alg := t.Method.Alg()
		if !slices.Contains(c.AllowedAlgs, alg) {
			return nil, fmt.Errorf("disallowed alg: %s", alg)
		}
		return kf(t)
	}}, nil
}

// Verify checks signature, issuer, audience and time claims and returns the
// token's claims. Every validation failure wraps ErrUnauthorized.
func (v *Verifier) Verify(ctx context.Context, tok string) (*Claims, error) {
	tok = strings.TrimSpace(tok)
	if tok == "" {
		return nil, fmt.Errorf("%w: empty token", ErrUnauthorized)
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods(v.cfg.AllowedAlgs),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(v.cfg.Issuer),
		jwt.WithAudience(v.cfg.Audience),
		jwt.WithLeeway(v.cfg.Leeway),
		jwt.WithIssuedAt(),
	)
	claims := jwt.MapClaims{}
	if _, err := parser.ParseWithClaims(tok, claims, v.keyfunc); err != nil {
		return nil, fmt.Errorf("%w: token parse/verify failed: %v", ErrUnauthorized, err)
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, fmt.Errorf("%w: missing sub", ErrUnauthorized)
	}
	return &Claims{Subject: sub}, nil
}
