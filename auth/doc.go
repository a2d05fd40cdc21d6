// Package auth decides how incoming requests are authenticated and provides
// the strategies that do it.
//
// # Resolution
//
// A Resolver turns Settings into the AuthConfig the JWT strategy is built
// from. It has three outcomes, reported as a Mode:
//
//   - ModeDevMock: Environment is "dev" and SkipConnections is set. The
//     local Dex values (DevIssuer, DevJWKSURI) are used without any network
//     traffic.
//   - ModeProductionDiscovered: the issuer's OpenID discovery document was
//     fetched and its issuer and jwks_uri are used verbatim.
//   - ModeFallbackOnError: discovery failed for any reason. The failure is
//     logged as a warning and the Dex values are used instead.
//
// Resolution never returns an error, so a broken identity provider cannot
// keep the process from starting.
//
//	res := auth.NewResolver(auth.WithLogger(logger)).Resolve(ctx, settings)
//	jwtStrategy, err := auth.NewJWTStrategy(ctx, res.Config, users)
//
// # Strategies
//
// JWTStrategy verifies "Authorization: Bearer" tokens against the resolved
// issuer, audience and JWKS. APIKeyStrategy accepts keys from the X-API-Key
// header or the bearer token and looks them up by SHA-256 hash. Both resolve
// the credential's subject through a UserLookup.
//
// A Composite tries strategies in a fixed order (DefaultOrder is jwt, then
// api-key) and accepts the first that succeeds. Its Middleware stores the
// principal in the request context and answers everything else with 401 and
// a Bearer challenge.
//
// # Errors
//
// Strategies return ErrNoCredentials to decline a request that carries none
// of their credentials. Rejections match ErrInvalidToken, ErrInvalidAPIKey or
// ErrUserNotFound. A Composite that finds no match returns an error matching
// ErrUnauthenticated joined with each strategy's cause.
package auth
