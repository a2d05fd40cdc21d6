// Package discovery fetches OpenID Connect discovery metadata.
//
// A Fetcher performs exactly one GET against an issuer's
// /.well-known/openid-configuration document and extracts the two values the
// JWT strategy needs: the issuer identifier and the jwks_uri. It performs no
// retries and never caches; callers decide what to do on failure.
//
// Failures are reported as one of two typed errors so callers can branch on
// the kind of failure:
//
//	md, err := discovery.New().Fetch(ctx, u)
//	var fe *discovery.FetchError
//	var pe *discovery.ParseError
//	switch {
//	case err == nil:
//	case errors.As(err, &fe): // transport failure or non-2xx status
//	case errors.As(err, &pe): // malformed or incomplete document
//	}
//
// Both error types also match the ErrFetch and ErrParse sentinels via errors.Is.
package discovery
