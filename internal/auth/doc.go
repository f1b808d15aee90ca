// Package auth authenticates callers of the gateway's HTTP API.
//
// # Token Sources
//
// A token is read from the "token" query parameter or, failing that, from
// an "Authorization: Bearer" header. Three kinds are accepted:
//
//   - Static tokens listed in configuration (auth.tokens)
//   - JWTs signed with HS256 using auth.jwt_secret (issued by the token command)
//   - Managed API keys (rgk_<id>_<secret>) stored bcrypt-hashed in the database
//
// Chain combines the configured verifiers; the first one that accepts wins.
//
// # Middleware
//
//	verifier := auth.Chain{auth.NewStaticTokens(cfg.Auth.Tokens), jwtVerifier, keyVerifier}
//	mux.Handle("/send", auth.HTTPAuthMiddleware(verifier, deny, logger)(handler))
//
// Handlers read the caller with FromContext or PrincipalFromContext.
package auth
