// Package session issues and validates the bearer tokens that carry a
// caller's actor id and role.
package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultIssuer is the iss claim of tokens minted by Signer.
const DefaultIssuer = "safereport"

// DefaultDuration is the lifetime of a minted token.
const DefaultDuration = 24 * time.Hour

// Claims defines the structure of our JWT claims. The actor id is the subject.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// ErrSessionTokenInvalid is returned when a session token is invalid or expired.
var ErrSessionTokenInvalid = errors.New("session token is invalid or expired")

// Signer mints and validates HS256 session tokens.
type Signer struct {
	secret   []byte
	issuer   string
	duration time.Duration
	now      func() time.Time
}

// NewSigner creates a Signer. A zero duration selects DefaultDuration.
func NewSigner(secret string, duration time.Duration) (*Signer, error) {
	if secret == "" {
		return nil, errors.New("JWT secret key cannot be empty")
	}
	if duration <= 0 {
		duration = DefaultDuration
	}
	return &Signer{secret: []byte(secret), issuer: DefaultIssuer, duration: duration, now: time.Now}, nil
}

// GenerateToken creates a new session token for subject with role. It returns
// the token and its expiry.
func (s *Signer) GenerateToken(subject, role string) (string, time.Time, error) {
	if subject == "" || role == "" {
		return "", time.Time{}, errors.New("subject and role are required")
	}
	now := s.now()
	expirationTime := now.Add(s.duration)
	claims := &Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(expirationTime),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    s.issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign session token: %w", err)
	}
	return tokenString, expirationTime, nil
}

// ValidateToken checks the validity of a session token string.
func (s *Signer) ValidateToken(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	},
		jwt.WithIssuer(s.issuer),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) || errors.Is(err, jwt.ErrTokenNotValidYet) {
			return nil, ErrSessionTokenInvalid
		}
		return nil, fmt.Errorf("failed to parse session token: %w", err)
	}
	if !token.Valid || claims.Subject == "" {
		return nil, ErrSessionTokenInvalid
	}
	return claims, nil
}
