package auth_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ggoodman/authresolver/auth"
	"github.com/ggoodman/authresolver/auth/authtest"
	"github.com/ggoodman/authresolver/internal/jwtauth/jwttest"
	"github.com/stretchr/testify/require"
)

type stack struct {
	is        *jwttest.Issuer
	composite *auth.Composite
}

func newStack(t *testing.T) *stack {
	t.Helper()
	is := jwttest.NewIssuer(t)
	users := authtest.NewUsers("user-1", "user-2")
	keys := authtest.NewAPIKeys()
	keys.Add("key-2", "user-2")

	ordered, err := auth.Ordered(auth.DefaultOrder,
		auth.NewAPIKeyStrategy(keys, users),
		newJWTStrategy(t, is, users),
	)
	require.NoError(t, err)
	c, err := auth.NewComposite(ordered, auth.WithCompositeLogger(discardLogger()), auth.WithRealm("api"))
	require.NoError(t, err)
	return &stack{is: is, composite: c}
}

func TestCompositeOrder(t *testing.T) {
	st := newStack(t)
	require.Equal(t, []string{"jwt", "api-key"}, st.composite.Names())
}

func TestCompositeJWT(t *testing.T) {
	st := newStack(t)
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer "+st.is.Sign(t, st.is.Claims("user-1", "api")))

	p, name, err := st.composite.Authenticate(req)
	require.NoError(t, err)
	require.Equal(t, "jwt", name)
	require.Equal(t, "user-1", p.UserID())
}

func TestCompositeFallsThroughToAPIKey(t *testing.T) {
	st := newStack(t)

	t.Run("api key only", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set("X-API-Key", "key-2")

		p, name, err := st.composite.Authenticate(req)
		require.NoError(t, err)
		require.Equal(t, "api-key", name)
		require.Equal(t, "user-2", p.UserID())
	})

	t.Run("api key as bearer", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set("Authorization", "Bearer key-2")

		p, name, err := st.composite.Authenticate(req)
		require.NoError(t, err)
		require.Equal(t, "api-key", name)
		require.Equal(t, "user-2", p.UserID())
	})
}

func TestCompositeAllFail(t *testing.T) {
	st := newStack(t)

	req := httptest.NewRequest("GET", "/", nil)
	_, _, err := st.composite.Authenticate(req)
	require.ErrorIs(t, err, auth.ErrUnauthenticated)
	require.ErrorIs(t, err, auth.ErrNoCredentials)

	req.Header.Set("Authorization", "Bearer nope")
	_, _, err = st.composite.Authenticate(req)
	require.ErrorIs(t, err, auth.ErrUnauthenticated)
	require.ErrorIs(t, err, auth.ErrInvalidToken)
	require.ErrorIs(t, err, auth.ErrInvalidAPIKey)
}

func TestCompositeStopsAtFirstSuccess(t *testing.T) {
	first := &authtest.Strategy{ID: "a", Principal: authtest.User("u-a")}
	second := &authtest.Strategy{ID: "b", Principal: authtest.User("u-b")}
	c, err := auth.NewComposite([]auth.Strategy{first, second}, auth.WithCompositeLogger(discardLogger()))
	require.NoError(t, err)

	p, name, err := c.Authenticate(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	require.Equal(t, "a", name)
	require.Equal(t, "u-a", p.UserID())
	require.Equal(t, 1, first.Calls())
	require.Zero(t, second.Calls())
}

func TestCompositeContinuesPastFailure(t *testing.T) {
	first := &authtest.Strategy{ID: "a", Err: errors.New("backend down")}
	second := &authtest.Strategy{ID: "b", Principal: authtest.User("u-b")}
	c, err := auth.NewComposite([]auth.Strategy{first, second}, auth.WithCompositeLogger(discardLogger()))
	require.NoError(t, err)

	_, name, err := c.Authenticate(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	require.Equal(t, "b", name)
}

func TestNewCompositeValidation(t *testing.T) {
	_, err := auth.NewComposite(nil)
	require.Error(t, err)

	_, err = auth.NewComposite([]auth.Strategy{&authtest.Strategy{ID: "a"}, &authtest.Strategy{ID: "a"}})
	require.ErrorContains(t, err, "duplicate")

	_, err = auth.Ordered(auth.DefaultOrder, &authtest.Strategy{ID: "jwt"})
	require.ErrorContains(t, err, `"api-key" not provided`)

	_, err = auth.Ordered([]string{"jwt"}, &authtest.Strategy{ID: "jwt"}, &authtest.Strategy{ID: "extra"})
	require.ErrorContains(t, err, `"extra" not in order`)
}

func TestMiddleware(t *testing.T) {
	st := newStack(t)
	h := st.composite.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := auth.PrincipalFromContext(r.Context())
		require.True(t, ok)
		name, ok := auth.StrategyFromContext(r.Context())
		require.True(t, ok)
		_ = json.NewEncoder(w).Encode(map[string]string{"user": p.UserID(), "strategy": name})
	}))

	t.Run("authenticated", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/me", nil)
		req.Header.Set("X-API-Key", "key-2")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		require.JSONEq(t, `{"user":"user-2","strategy":"api-key"}`, rec.Body.String())
	})

	t.Run("no credentials", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest("GET", "/me", nil))

		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.Equal(t, `Bearer realm="api"`, rec.Header().Get("WWW-Authenticate"))
		require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		require.JSONEq(t, `{"error":{"code":401,"message":"unauthorized"}}`, rec.Body.String())
	})

	t.Run("bad credentials", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/me", nil)
		req.Header.Set("Authorization", "Bearer nope")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.Equal(t,
			`Bearer realm="api", error="invalid_token", error_description="the presented credentials were not accepted"`,
			rec.Header().Get("WWW-Authenticate"))
	})
}

func TestContextAccessorsWithoutMiddleware(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	_, ok := auth.PrincipalFromContext(req.Context())
	require.False(t, ok)
	_, ok = auth.StrategyFromContext(req.Context())
	require.False(t, ok)
}
