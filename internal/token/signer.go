// Package token signs and verifies the short-lived access tokens handed out
// alongside refresh tokens. Verification is signature and expiry only.
package token

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const accessTokenType = "access"

var (
	ErrInvalidSignature = errors.New("invalid token signature")
	ErrExpired          = errors.New("token expired")
)

type Claims struct {
	Subject   string
	Username  string
	Role      int
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type jwtClaims struct {
	Username string `json:"username"`
	RoleID   int    `json:"role_id"`
	Type     string `json:"typ"`
	jwt.RegisteredClaims
}

type Signer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewSigner(secret string, ttl time.Duration) *Signer {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Signer{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// WithClock replaces the signer's time source. Intended for tests.
func (s *Signer) WithClock(now func() time.Time) *Signer {
	s.now = now
	return s
}

func (s *Signer) TTL() time.Duration {
	return s.ttl
}

// Issue builds claims for the subject valid for the signer's TTL and signs them.
func (s *Signer) Issue(subject, username string, role int) (string, Claims, error) {
	issuedAt := s.now().UTC().Truncate(time.Second)
	claims := Claims{
		Subject:   subject,
		Username:  username,
		Role:      role,
		IssuedAt:  issuedAt,
		ExpiresAt: issuedAt.Add(s.ttl),
	}

	signed, err := s.Sign(claims)
	if err != nil {
		return "", Claims{}, err
	}
	return signed, claims, nil
}

func (s *Signer) Sign(claims Claims) (string, error) {
	payload := jwtClaims{
		Username: claims.Username,
		RoleID:   claims.Role,
		Type:     accessTokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   claims.Subject,
			IssuedAt:  jwt.NewNumericDate(claims.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(claims.ExpiresAt),
		},
	}

	encoded, err := jwt.NewWithClaims(jwt.SigningMethodHS256, payload).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign jwt: %w", err)
	}
	return encoded, nil
}

func (s *Signer) Verify(raw string) (Claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Claims{}, ErrInvalidSignature
	}

	var parsed jwtClaims
	token, err := jwt.ParseWithClaims(raw, &parsed, func(token *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrExpired
		}
		return Claims{}, ErrInvalidSignature
	}
	if !token.Valid || parsed.Type != accessTokenType || parsed.Subject == "" {
		return Claims{}, ErrInvalidSignature
	}

	claims := Claims{
		Subject:   parsed.Subject,
		Username:  parsed.Username,
		Role:      parsed.RoleID,
		ExpiresAt: parsed.ExpiresAt.Time.UTC(),
	}
	if parsed.IssuedAt != nil {
		claims.IssuedAt = parsed.IssuedAt.Time.UTC()
	}
	return claims, nil
}
