package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"
)

// Strategy names as registered with a Composite.
const (
	StrategyJWT    = "jwt"
	StrategyAPIKey = "api-key"
)

// DefaultOrder is the order in which a Composite tries strategies when built
// with Ordered(DefaultOrder, ...).
var DefaultOrder = []string{StrategyJWT, StrategyAPIKey}

var (
	// ErrNoCredentials is returned by a Strategy when the request carries no
	// credential it understands. A Composite moves on to the next strategy.
	ErrNoCredentials = errors.New("auth: no credentials")

	// ErrInvalidToken indicates a bearer JWT failed signature or claim validation.
	ErrInvalidToken = errors.New("auth: invalid token")

	// ErrInvalidAPIKey indicates an API key is unknown, revoked or expired.
	ErrInvalidAPIKey = errors.New("auth: invalid api key")

	// ErrUserNotFound indicates a valid credential whose subject does not
	// resolve to a principal.
	ErrUserNotFound = errors.New("auth: user not found")

	// ErrUnauthenticated is returned by a Composite when no strategy accepted
	// the request.
	ErrUnauthenticated = errors.New("auth: unauthenticated")
)

// Principal is an authenticated identity. Implementations are owned by the
// user-lookup collaborator and must be safe for concurrent reads.
type Principal interface {
	// UserID returns the unique identifier for the user.
	UserID() string
}

// UserLookup resolves a subject identifier to a principal. It returns an
// error matching ErrUserNotFound when the subject is unknown.
type UserLookup interface {
	FindUser(ctx context.Context, id string) (Principal, error)
}

// APIKeyRecord is what an APIKeyLookup knows about a stored key.
type APIKeyRecord struct {
	UserID    string
	ExpiresAt *time.Time
	Revoked   bool
}

// APIKeyLookup finds a stored API key by the hex SHA-256 of the presented
// secret. It returns an error matching ErrInvalidAPIKey when the hash is unknown.
type APIKeyLookup interface {
	LookupAPIKey(ctx context.Context, hash string) (APIKeyRecord, error)
}

// Strategy authenticates a single kind of credential.
//
// Authenticate returns ErrNoCredentials when the request does not carry the
// strategy's credential, any other error when the credential is present but
// rejected, and a non-nil Principal on success.
type Strategy interface {
	Name() string
	Authenticate(r *http.Request) (Principal, error)
}

// BearerToken extracts the token from an "Authorization: Bearer <token>"
// header. The scheme is matched case-insensitively.
func BearerToken(r *http.Request) (string, bool) {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	const prefix = "bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return "", false
	}
	tok := strings.TrimSpace(h[len(prefix):])
	return tok, tok != ""
}
