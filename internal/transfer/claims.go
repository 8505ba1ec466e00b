package transfer

import "github.com/golang-jwt/jwt/v5"

type SessionClaims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// StateClaims is the payload of the OAuth state parameter: a signed,
// structured token binding the authorization request to the initiating
// user, the target platform, and the PKCE verifier, so the callback can
// verify itself without a server-side session lookup.
type StateClaims struct {
	UserID   string `json:"user_id"`
	Platform string `json:"platform"`
	Verifier string `json:"verifier"`
	jwt.RegisteredClaims
}
