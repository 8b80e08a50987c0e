package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"time"
)

const (
	verificationCodeTTL     = 10 * time.Minute
	maxVerificationAttempts = 5
)

// SendVerification issues a fresh code for an unverified account, replacing
// any previous one.
func (s *Service) SendVerification(ctx context.Context, email string) error {
	email = normalizeEmail(email)

	user, err := s.store.FindUserByEmail(ctx, email)
	if err != nil {
		return err
	}
	if user.EmailVerified {
		return nil
	}

	return s.sendVerification(ctx, email)
}

func (s *Service) sendVerification(ctx context.Context, email string) error {
	code, err := verificationCode()
	if err != nil {
		return fmt.Errorf("generate verification code: %w", err)
	}

	now := s.now().UTC()
	err = s.store.UpsertVerification(ctx, EmailVerification{
		Email:     email,
		Code:      code,
		ExpiresAt: now.Add(verificationCodeTTL),
		CreatedAt: now,
	})
	if err != nil {
		return err
	}

	if s.notifier == nil {
		s.logger.Warn("verification_notifier_missing", map[string]any{"email": email})
		return nil
	}
	if err := s.notifier.SendVerificationCode(ctx, email, code); err != nil {
		return fmt.Errorf("send verification code: %w", err)
	}
	return nil
}

func (s *Service) VerifyEmail(ctx context.Context, email, code string) error {
	email = normalizeEmail(email)

	v, err := s.store.FindVerification(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrInvalidCode
		}
		return err
	}

	if v.Attempts >= maxVerificationAttempts {
		return ErrTooManyAttempts
	}
	if !s.now().UTC().Before(v.ExpiresAt) {
		return ErrCodeExpired
	}
	if subtle.ConstantTimeCompare([]byte(v.Code), []byte(code)) != 1 {
		if err := s.store.IncrementVerificationAttempts(ctx, email); err != nil {
			return err
		}
		return ErrInvalidCode
	}

	if err := s.store.MarkEmailVerified(ctx, email); err != nil {
		return err
	}

	return s.store.DeleteVerification(ctx, email)
}

func verificationCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}
