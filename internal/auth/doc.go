// Package auth protects the operator API with HS256 bearer tokens.
//
// Tokens are minted by `mailroom token` with the configured auth.jwt_secret
// and name an operator in the sub claim:
//
//	verifier, err := auth.NewJWTVerifier([]byte(secret))
//	token, err := verifier.Generate("alice", 24*time.Hour)
//
// HTTPAuthMiddleware wraps the operator handlers. Handlers can read the
// operator with OperatorFrom.
package auth
