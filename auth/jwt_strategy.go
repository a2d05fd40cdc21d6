package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ggoodman/authresolver/internal/jwtauth"
	"github.com/golang-jwt/jwt/v5"
)

// JWTOption configures optional aspects of the JWT strategy.
type JWTOption func(*jwtOptions)

type jwtOptions struct {
	cfg     *jwtauth.Config
	keyfunc jwt.Keyfunc
}

// WithAllowedAlgs restricts allowed JWS algorithms. "none" is never allowed.
// Defaults to ["RS256"].
func WithAllowedAlgs(algs ...string) JWTOption {
	return func(o *jwtOptions) { o.cfg.AllowedAlgs = append([]string(nil), algs...) }
}

// WithLeeway sets clock skew tolerance for time-based claims.
func WithLeeway(d time.Duration) JWTOption {
	return func(o *jwtOptions) { o.cfg.Leeway = d }
}

// WithKeyfunc resolves signing keys with kf instead of fetching the JWKS
// named in the AuthConfig.
func WithKeyfunc(kf jwt.Keyfunc) JWTOption {
	return func(o *jwtOptions) { o.keyfunc = kf }
}

// JWTStrategy authenticates bearer JWTs issued by the configured issuer for
// the configured audience and resolves their subject to a principal.
type JWTStrategy struct {
	cfg      AuthConfig
	verifier *jwtauth.Verifier
	users    UserLookup
}

var _ Strategy = (*JWTStrategy)(nil)

// NewJWTStrategy builds the strategy from a complete AuthConfig. Signing keys
// are fetched from cfg.JWKSURI and refreshed in the background for as long
// as ctx is alive; an unreachable JWKS endpoint does not fail construction.
func NewJWTStrategy(ctx context.Context, cfg AuthConfig, users UserLookup, opts ...JWTOption) (*JWTStrategy, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if users == nil {
		return nil, errors.New("auth: user lookup is required")
	}

	o := &jwtOptions{cfg: jwtauth.DefaultConfig()}
	for _, opt := range opts {
		opt(o)
	}
	o.cfg.Issuer = cfg.Issuer
	o.cfg.Audience = cfg.Audience
	o.cfg.JWKSURI = cfg.JWKSURI

	var (
		v   *jwtauth.Verifier
		err error
	)
	if o.keyfunc != nil {
		v, err = jwtauth.NewWithKeyfunc(o.cfg, o.keyfunc)
	} else {
		v, err = jwtauth.New(ctx, o.cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("auth: jwt strategy: %w", err)
	}
	return &JWTStrategy{cfg: cfg, verifier: v, users: users}, nil
}

func (s *JWTStrategy) Name() string { return StrategyJWT }

// Config returns the AuthConfig the strategy was built from.
func (s *JWTStrategy) Config() AuthConfig { return s.cfg }

// Verify validates tok and resolves its subject. Errors match ErrInvalidToken
// or ErrUserNotFound.
func (s *JWTStrategy) Verify(ctx context.Context, tok string) (Principal, error) {
	claims, err := s.verifier.Verify(ctx, tok)
	if err != nil {
		return nil, errors.Join(ErrInvalidToken, err)
	}
	p, err := s.users.FindUser(ctx, claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("jwt: resolve subject %q: %w", claims.Subject, err)
	}
	if p == nil {
		return nil, fmt.Errorf("%w: subject %q", ErrUserNotFound, claims.Subject)
	}
	return p, nil
}

// Authenticate verifies the request's bearer token. Requests without one are
// declined with ErrNoCredentials.
func (s *JWTStrategy) Authenticate(r *http.Request) (Principal, error) {
	tok, ok := BearerToken(r)
	if !ok {
		return nil, ErrNoCredentials
	}
	return s.Verify(r.Context(), tok)
}
