package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenIssuer mints and verifies HS256 access tokens for staff users.
type TokenIssuer struct {
	signKey []byte
	ttl     time.Duration
	now     func() time.Time
}

// Claims carried by a staff access token.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// NewTokenIssuer builds a TokenIssuer. ttl defaults to 12 hours when zero.
func NewTokenIssuer(signKey []byte, ttl time.Duration) (*TokenIssuer, error) {
	if len(signKey) == 0 {
		return nil, fmt.Errorf("auth: empty token signing key")
	}
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &TokenIssuer{signKey: signKey, ttl: ttl, now: time.Now}, nil
}

// Issue creates a signed HS256 JWT for the given subject and role.
func (t *TokenIssuer) Issue(userID, role string) (token string, expiresAt time.Time, err error) {
	now := t.now()
	expiresAt = now.Add(t.ttl)
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	token, err = tok.SignedString(t.signKey)
	return token, expiresAt, err
}

// Verify parses and validates a token string, returning its claims.
func (t *TokenIssuer) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return t.signKey, nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithTimeFunc(t.now))
	if err != nil {
		return nil, err
	}
	if !tok.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}
