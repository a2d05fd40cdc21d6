package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ggoodman/authresolver/discovery"
)

// Mode records which branch of resolution produced an AuthConfig.
type Mode int

const (
	// ModeDevMock: development environment with external connections skipped.
	ModeDevMock Mode = iota + 1
	// ModeProductionDiscovered: issuer and JWKS URI came from OIDC discovery.
	ModeProductionDiscovered
	// ModeFallbackOnError: discovery failed and the fallback values were used.
	ModeFallbackOnError
)

func (m Mode) String() string {
	switch m {
	case ModeDevMock:
		return "dev_mock"
	case ModeProductionDiscovered:
		return "discovered"
	case ModeFallbackOnError:
		return "fallback"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

var (
	// ErrMissingAudience is the fallback cause when discovery would run
	// without a configured audience.
	ErrMissingAudience = errors.New("auth: oidc audience is required")

	// ErrInvalidIssuer is the fallback cause when the configured issuer
	// cannot be turned into a discovery URL.
	ErrInvalidIssuer = errors.New("auth: oidc issuer is invalid")
)

// MetadataFetcher retrieves discovery metadata from a discovery URL.
// *discovery.Fetcher is the standard implementation.
type MetadataFetcher interface {
	Fetch(ctx context.Context, url string) (discovery.Metadata, error)
}

// Resolution is the outcome of Resolver.Resolve. Config always satisfies
// AuthConfig.Validate. Err is the cause when Mode is ModeFallbackOnError.
type Resolution struct {
	Config AuthConfig
	Mode   Mode
	Err    error
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithFetcher replaces the discovery fetcher.
func WithFetcher(f MetadataFetcher) ResolverOption {
	return func(r *Resolver) {
		if f != nil {
			r.fetcher = f
		}
	}
}

// WithLogger sets the logger used to report the chosen mode.
func WithLogger(l *slog.Logger) ResolverOption {
	return func(r *Resolver) {
		if l != nil {
			r.log = l
		}
	}
}

// WithDiscoveryTimeout bounds the discovery request. Non-positive values
// leave only the fetcher's own limits in place.
func WithDiscoveryTimeout(d time.Duration) ResolverOption {
	return func(r *Resolver) { r.timeout = d }
}

// Resolver decides which AuthConfig the JWT strategy is built from.
type Resolver struct {
	fetcher MetadataFetcher
	log     *slog.Logger
	timeout time.Duration
}

// NewResolver returns a Resolver using discovery.New() and slog.Default().
func NewResolver(opts ...ResolverOption) *Resolver {
	r := &Resolver{
		fetcher: discovery.New(),
		log:     slog.Default(),
		timeout: discovery.DefaultTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve picks the AuthConfig for s. It never fails: when discovery cannot
// complete it logs a warning and returns FallbackConfig.
//
//  1. Environment "dev" with SkipConnections: FallbackConfig, no network.
//  2. Otherwise fetch {issuer}/.well-known/openid-configuration and use its
//     issuer and jwks_uri with the configured audience.
//  3. Any failure in step 2: FallbackConfig.
func (r *Resolver) Resolve(ctx context.Context, s Settings) Resolution {
	if s.devMock() {
		cfg := FallbackConfig(s.OIDC.Audience)
		r.log.InfoContext(ctx, "auth.resolve.dev_mock",
			slog.String("issuer", cfg.Issuer),
			slog.String("audience", cfg.Audience),
		)
		return Resolution{Config: cfg, Mode: ModeDevMock}
	}

	cfg, err := r.discover(ctx, s)
	if err == nil {
		r.log.InfoContext(ctx, "auth.resolve.discovered",
			slog.String("issuer", cfg.Issuer),
			slog.String("jwks_uri", cfg.JWKSURI),
			slog.String("audience", cfg.Audience),
		)
		return Resolution{Config: cfg, Mode: ModeProductionDiscovered}
	}

	cfg = FallbackConfig(s.OIDC.Audience)
	r.log.WarnContext(ctx, "auth.resolve.fallback",
		slog.String("kind", failureKind(err)),
		slog.String("err", err.Error()),
		slog.String("issuer", cfg.Issuer),
		slog.String("audience", cfg.Audience),
	)
	return Resolution{Config: cfg, Mode: ModeFallbackOnError, Err: err}
}

func (r *Resolver) discover(ctx context.Context, s Settings) (AuthConfig, error) {
	if strings.TrimSpace(s.OIDC.Audience) == "" {
		return AuthConfig{}, ErrMissingAudience
	}
	u, err := discovery.URL(s.OIDC.Issuer)
	if err != nil {
		return AuthConfig{}, fmt.Errorf("%w: %v", ErrInvalidIssuer, err)
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	md, err := r.fetcher.Fetch(ctx, u)
	if err != nil {
		return AuthConfig{}, fmt.Errorf("failed to fetch OpenID configuration: %w", err)
	}

	cfg := AuthConfig{Audience: s.OIDC.Audience, Issuer: md.Issuer, JWKSURI: md.JWKSURI}
	if err := cfg.Validate(); err != nil {
		return AuthConfig{}, &discovery.ParseError{URL: u, Err: err}
	}
	return cfg, nil
}

func failureKind(err error) string {
	var fe *discovery.FetchError
	var pe *discovery.ParseError
	switch {
	case errors.As(err, &fe):
		return "fetch"
	case errors.As(err, &pe):
		return "parse"
	case errors.Is(err, ErrMissingAudience), errors.Is(err, ErrInvalidIssuer):
		return "config"
	default:
		return "unknown"
	}
}

// Resolve runs a default Resolver and returns only the AuthConfig.
func Resolve(ctx context.Context, s Settings) AuthConfig {
	return NewResolver().Resolve(ctx, s).Config
}
