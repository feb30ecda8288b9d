package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims carried by an instructor token.
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// TokenService mints and checks signed instructor tokens. Signature validity
// alone does not make a token live; the Registry keeps the revocation set.
type TokenService struct {
	secret      []byte
	expireHours int
}

// NewTokenService creates a token service signing with secret.
func NewTokenService(secret string, expireHours int) *TokenService {
	return &TokenService{secret: []byte(secret), expireHours: expireHours}
}

// Generate creates a fresh token for an instructor. The jti is a new UUID,
// so two logins by the same instructor never collide.
func (s *TokenService) Generate(username string) (string, error) {
	claims := Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Duration(s.expireHours) * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ID:        uuid.New().String(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Validate parses and checks signature and expiry.
func (s *TokenService) Validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
