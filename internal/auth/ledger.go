package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	defaultRefreshTTL = 30 * 24 * time.Hour
	refreshTokenBytes = 32
)

// Ledger owns refresh token issuance, single-use rotation and revocation.
type Ledger struct {
	store TokenStore
	ttl   time.Duration
	now   func() time.Time
}

func NewLedger(store TokenStore, ttl time.Duration) *Ledger {
	if ttl <= 0 {
		ttl = defaultRefreshTTL
	}
	return &Ledger{
		store: store,
		ttl:   ttl,
		now:   time.Now,
	}
}

func (l *Ledger) Issue(ctx context.Context, userEmail string) (RefreshToken, error) {
	return l.issue(ctx, l.store, userEmail, l.now().UTC())
}

func (l *Ledger) issue(ctx context.Context, store TokenStore, userEmail string, now time.Time) (RefreshToken, error) {
	raw, err := randomToken(refreshTokenBytes)
	if err != nil {
		return RefreshToken{}, fmt.Errorf("generate refresh token: %w", err)
	}
	id, err := uuid.NewV7()
	if err != nil {
		return RefreshToken{}, fmt.Errorf("generate refresh token id: %w", err)
	}

	record := RefreshToken{
		ID:        id.String(),
		Token:     raw,
		UserEmail: userEmail,
		ExpiresAt: now.Add(l.ttl),
		CreatedAt: now,
	}
	if err := store.InsertRefreshToken(ctx, record); err != nil {
		return RefreshToken{}, err
	}
	return record, nil
}

// Rotate exchanges an active token for a successor owned by the same user.
// Of several concurrent rotations of one token exactly one succeeds; the
// others observe ErrInvalidToken.
func (l *Ledger) Rotate(ctx context.Context, token string) (RefreshToken, error) {
	if token == "" {
		return RefreshToken{}, ErrInvalidToken
	}

	current, err := l.store.FindRefreshToken(ctx, token)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return RefreshToken{}, ErrInvalidToken
		}
		return RefreshToken{}, err
	}
	if current.Revoked {
		return RefreshToken{}, ErrInvalidToken
	}

	now := l.now().UTC()
	if !now.Before(current.ExpiresAt) {
		return RefreshToken{}, ErrExpired
	}

	var next RefreshToken
	err = l.store.WithinTx(ctx, func(tx TokenStore) error {
		flipped, err := tx.RevokeRefreshToken(ctx, token, now)
		if err != nil {
			return err
		}
		if !flipped {
			return ErrInvalidToken
		}

		next, err = l.issue(ctx, tx, current.UserEmail, now)
		return err
	})
	if err != nil {
		return RefreshToken{}, err
	}
	return next, nil
}

// Revoke marks the token revoked. Unknown or already revoked tokens are not
// an error.
func (l *Ledger) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if _, err := l.store.RevokeRefreshToken(ctx, token, l.now().UTC()); err != nil {
		return err
	}
	return nil
}

func (l *Ledger) Sweep(ctx context.Context, now time.Time) (int64, error) {
	return l.store.DeleteRefreshTokens(ctx, now.UTC())
}

func randomToken(size int) (string, error) {
	b := make([]byte, size)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
