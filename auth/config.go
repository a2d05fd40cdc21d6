package auth

import (
	"errors"
	"fmt"
	"strings"
)

// Values used whenever OIDC discovery is skipped or fails. Both the
// development branch and the failure branch of the Resolver build their
// AuthConfig from these through FallbackConfig.
const (
	DevIssuer       = "http://localhost:5556/dex"
	DevJWKSURI      = "http://localhost:5556/dex/keys"
	DefaultAudience = "daytona"
)

// EnvironmentDev is the environment name that, together with
// SkipConnections, selects the development mock configuration.
const EnvironmentDev = "dev"

// ErrIncompleteConfig is returned when an AuthConfig is missing a field.
var ErrIncompleteConfig = errors.New("auth: incomplete auth config")

// OIDCSettings are the identity provider settings read from configuration.
type OIDCSettings struct {
	Issuer   string
	Audience string
}

// Settings is the configuration the Resolver reads.
type Settings struct {
	Environment     string
	SkipConnections bool
	OIDC            OIDCSettings
}

func (s Settings) devMock() bool {
	return s.Environment == EnvironmentDev && s.SkipConnections
}

// AuthConfig is the finalized input to the JWT strategy. It is a plain value:
// built once at startup and shared read-only afterwards.
type AuthConfig struct {
	Audience string
	Issuer   string
	JWKSURI  string
}

// FallbackConfig returns the development/fallback AuthConfig, using audience
// when set and DefaultAudience otherwise.
func FallbackConfig(audience string) AuthConfig {
	if audience == "" {
		audience = DefaultAudience
	}
	return AuthConfig{Audience: audience, Issuer: DevIssuer, JWKSURI: DevJWKSURI}
}

// Validate reports whether every field is set.
func (c AuthConfig) Validate() error {
	var missing []string
	if strings.TrimSpace(c.Audience) == "" {
		missing = append(missing, "audience")
	}
	if strings.TrimSpace(c.Issuer) == "" {
		missing = append(missing, "issuer")
	}
	if strings.TrimSpace(c.JWKSURI) == "" {
		missing = append(missing, "jwks uri")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrIncompleteConfig, strings.Join(missing, ", "))
	}
	return nil
}
