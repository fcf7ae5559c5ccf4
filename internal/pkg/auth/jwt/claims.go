package jwt

import "github.com/golang-jwt/jwt"

// Payload defines the claims carried by API tokens.
// A token only points at a web session; the session row decides which user is acting.
type Payload struct {
	// StandardClaims embeds Exp (Expiration), Iat (Issued At) and Iss (Issuer).
	jwt.StandardClaims `json:"standard_claims"`

	// SessionID is the web session the token was issued for.
	SessionID string `json:"sid"`
}
