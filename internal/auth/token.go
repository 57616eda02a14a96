package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"messagely/internal/apperrors"
)

// Claims represents the JWT claims
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// TokenVerifier verifies a token string and returns its claims.
type TokenVerifier interface {
	Verify(token string) (*Claims, error)
}

// TokenService issues and verifies signed tokens
type TokenService struct {
	secretKey []byte
	issuer    string
	ttl       time.Duration
	now       func() time.Time
}

// NewTokenService creates a token service signing with secretKey. Tokens
// expire ttl after issue.
func NewTokenService(secretKey []byte, issuer string, ttl time.Duration) (*TokenService, error) {
	if len(secretKey) == 0 {
		return nil, errors.New("token secret must not be empty")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("token ttl must be positive, got %s", ttl)
	}
	key := make([]byte, len(secretKey))
	copy(key, secretKey)
	return &TokenService{
		secretKey: key,
		issuer:    issuer,
		ttl:       ttl,
		now:       time.Now,
	}, nil
}

// Issue generates a token for username
func (s *TokenService) Issue(username string) (string, error) {
	if username == "" {
		return "", errors.New("cannot issue a token without a username")
	}
	now := s.now()
	claims := Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   username,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secretKey)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify validates a token and returns the claims. Every failure wraps
// apperrors.ErrInvalidToken.
func (s *TokenService) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		// Ensure the signing method is what we expect
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secretKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(s.issuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrInvalidToken, err)
	}
	if !token.Valid || claims.Username == "" {
		return nil, apperrors.ErrInvalidToken
	}
	return claims, nil
}
