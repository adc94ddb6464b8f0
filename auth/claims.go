package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"

	"github.com/goliatone/go-wms/middleware/jwtware"
)

// JWTClaims is the payload shared by access and refresh tokens
type JWTClaims struct {
	jwt.RegisteredClaims
	UID   string `json:"userId"`
	Email string `json:"email"`
}

var (
	_ Identity           = (*JWTClaims)(nil)
	_ jwtware.AuthClaims = (*JWTClaims)(nil)
)

// UserID returns the user ID, falling back to the subject
func (c *JWTClaims) UserID() string {
	if c.UID != "" {
		return c.UID
	}
	return c.Subject
}

// UserEmail returns the email claim
func (c *JWTClaims) UserEmail() string {
	return c.Email
}

func ensureTokenID(claims *jwt.RegisteredClaims) {
	if claims.ID == "" {
		claims.ID = ulid.Make().String()
	}
}
