package auth

import (
	"context"
	"time"
)

type UserStore interface {
	FindUserByEmail(ctx context.Context, email string) (User, error)
	FindUserByUsername(ctx context.Context, username string) (User, error)
	CountUsersByUsername(ctx context.Context, username string) (int, error)
	InsertUser(ctx context.Context, user User) error

	// Updates touch a single column so concurrent writers never overwrite
	// each other's fields.
	TouchLastLogin(ctx context.Context, email string, at time.Time) error
	MarkEmailVerified(ctx context.Context, email string) error
	UpdateUsername(ctx context.Context, email, username string) error
}

// TokenStore persists refresh tokens. RevokeRefreshToken must only flip rows
// that are still active and report whether this call did the flip.
type TokenStore interface {
	FindRefreshToken(ctx context.Context, token string) (RefreshToken, error)
	InsertRefreshToken(ctx context.Context, record RefreshToken) error
	RevokeRefreshToken(ctx context.Context, token string, now time.Time) (bool, error)
	DeleteRefreshTokens(ctx context.Context, now time.Time) (int64, error)
	WithinTx(ctx context.Context, fn func(TokenStore) error) error
}

type VerificationStore interface {
	UpsertVerification(ctx context.Context, v EmailVerification) error
	FindVerification(ctx context.Context, email string) (EmailVerification, error)
	IncrementVerificationAttempts(ctx context.Context, email string) error
	DeleteVerification(ctx context.Context, email string) error
}

type Store interface {
	UserStore
	VerificationStore
}
