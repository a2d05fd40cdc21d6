package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"

	"github.com/ggoodman/authresolver/internal/logctx"
	"github.com/google/uuid"
)

// CompositeOption configures a Composite.
type CompositeOption func(*Composite)

// WithCompositeLogger sets the logger used for per-request outcomes.
func WithCompositeLogger(l *slog.Logger) CompositeOption {
	return func(c *Composite) {
		if l != nil {
			c.log = l
		}
	}
}

// WithRealm sets the realm advertised in WWW-Authenticate challenges.
func WithRealm(realm string) CompositeOption {
	return func(c *Composite) { c.realm = realm }
}

// Composite tries a fixed, ordered list of strategies and accepts the first
// that succeeds.
type Composite struct {
	strategies []Strategy
	log        *slog.Logger
	realm      string
}

// NewComposite returns a Composite that tries strategies in the given order.
// Strategy names must be unique.
func NewComposite(strategies []Strategy, opts ...CompositeOption) (*Composite, error) {
	if len(strategies) == 0 {
		return nil, errors.New("auth: at least one strategy is required")
	}
	seen := map[string]bool{}
	for i, s := range strategies {
		if s == nil {
			return nil, fmt.Errorf("auth: strategy %d is nil", i)
		}
		if seen[s.Name()] {
			return nil, fmt.Errorf("auth: duplicate strategy %q", s.Name())
		}
		seen[s.Name()] = true
	}

	c := &Composite{strategies: append([]Strategy(nil), strategies...), log: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	c.log = slog.New(logctx.Handler{Handler: c.log.Handler()})
	return c, nil
}

// Ordered arranges strategies by name following order, e.g. DefaultOrder.
// Every named strategy must be present; extra strategies are an error.
func Ordered(order []string, strategies ...Strategy) ([]Strategy, error) {
	byName := make(map[string]Strategy, len(strategies))
	for _, s := range strategies {
		if s != nil {
			byName[s.Name()] = s
		}
	}
	out := make([]Strategy, 0, len(order))
	for _, name := range order {
		s, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("auth: strategy %q not provided", name)
		}
		out = append(out, s)
		delete(byName, name)
	}
	if len(byName) > 0 {
		extra := make([]string, 0, len(byName))
		for name := range byName {
			extra = append(extra, name)
		}
		slices.Sort(extra)
		return nil, fmt.Errorf("auth: strategy %q not in order", extra[0])
	}
	return out, nil
}

// Names returns the strategy names in the order they are tried.
func (c *Composite) Names() []string {
	names := make([]string, len(c.strategies))
	for i, s := range c.strategies {
		names[i] = s.Name()
	}
	return names
}

// Authenticate returns the principal from the first strategy that accepts r
// and that strategy's name. When none does, the error matches
// ErrUnauthenticated and wraps each strategy's failure.
func (c *Composite) Authenticate(r *http.Request) (Principal, string, error) {
	ctx := r.Context()
	errs := []error{ErrUnauthenticated}
	for _, s := range c.strategies {
		p, err := s.Authenticate(r)
		if err == nil && p != nil {
			return p, s.Name(), nil
		}
		if err == nil {
			err = fmt.Errorf("%w: no principal", ErrUserNotFound)
		}
		if errors.Is(err, ErrNoCredentials) {
			c.log.DebugContext(ctx, "auth.strategy.decline", slog.String("strategy", s.Name()))
		} else {
			c.log.InfoContext(ctx, "auth.strategy.fail", slog.String("strategy", s.Name()), slog.String("err", err.Error()))
		}
		errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
	}
	return nil, "", errors.Join(errs...)
}

// Middleware authenticates every request before calling next. Authenticated
// requests carry the principal in their context (see PrincipalFromContext);
// others receive 401 with a Bearer challenge.
func (c *Composite) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if !logctx.HasRequestData(ctx) {
			ctx = logctx.WithRequestData(ctx, &logctx.RequestData{
				RequestID:  uuid.NewString(),
				Method:     r.Method,
				UserAgent:  r.UserAgent(),
				RemoteAddr: r.RemoteAddr,
				Path:       r.URL.Path,
			})
			r = r.WithContext(ctx)
		}

		p, name, err := c.Authenticate(r)
		if err != nil {
			c.log.InfoContext(ctx, "auth.check.fail", slog.String("err", err.Error()))
			var params map[string]string
			if credentialsPresented(err) {
				params = map[string]string{"error": "invalid_token", "error_description": "the presented credentials were not accepted"}
			}
			writeUnauthorized(w, buildBearerChallenge(c.realm, params))
			return
		}

		ctx = logctx.WithAuthData(ctx, &logctx.AuthData{UserID: p.UserID(), Strategy: name})
		ctx = context.WithValue(ctx, principalKey{}, p)
		ctx = context.WithValue(ctx, strategyKey{}, name)
		c.log.InfoContext(ctx, "auth.check.ok")
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// credentialsPresented reports whether any strategy failed for a reason
// other than a missing credential.
func credentialsPresented(err error) bool {
	joined, ok := err.(interface{ Unwrap() []error })
	if !ok {
		return false
	}
	for _, e := range joined.Unwrap() {
		if e == ErrUnauthenticated {
			continue
		}
		if !errors.Is(e, ErrNoCredentials) {
			return true
		}
	}
	return false
}

type principalKey struct{}

type strategyKey struct{}

// PrincipalFromContext returns the principal stored by Composite.Middleware.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// StrategyFromContext returns the name of the strategy that authenticated
// the request.
func StrategyFromContext(ctx context.Context) (string, bool) {
	s, ok := ctx.Value(strategyKey{}).(string)
	return s, ok
}
