package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"contest-platform/internal/apperr"
)

var (
	ErrInvalidToken  = fmt.Errorf("%w: invalid token", apperr.ErrAuth)
	ErrExpiredToken  = fmt.Errorf("%w: token has expired", apperr.ErrAuth)
	ErrInvalidClaims = fmt.Errorf("%w: invalid token claims", apperr.ErrAuth)
)

// Verifier turns a bearer credential into the verified principal email.
type Verifier interface {
	Verify(ctx context.Context, token string) (string, error)
}

type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// JWT issues and verifies HS256 tokens carrying the principal email.
type JWT struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewJWT(secret string, ttl time.Duration) *JWT {
	return &JWT{secret: []byte(secret), ttl: ttl, now: time.Now}
}

func (j *JWT) Issue(email string) (string, error) {
	now := j.now()
	claims := Claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(j.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(j.secret)
}

func (j *JWT) Verify(_ context.Context, tokenString string) (string, error) {
	if tokenString == "" {
		return "", fmt.Errorf("%w: missing token", apperr.ErrAuth)
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return j.secret, nil
	}, jwt.WithTimeFunc(j.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrExpiredToken
		}
		return "", ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Email == "" {
		return "", ErrInvalidClaims
	}
	return strings.ToLower(claims.Email), nil
}
