package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyEmail_Success(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	_, err := f.service.Signup(ctx, "a@x.com", "password123")
	require.NoError(t, err)

	code := f.notifier.code("a@x.com")
	require.Len(t, code, 6)
	require.NoError(t, f.service.VerifyEmail(ctx, "a@x.com", code))

	user, err := f.store.FindUserByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	assert.True(t, user.EmailVerified)

	_, err = f.store.FindVerification(ctx, "a@x.com")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, f.service.VerifyEmail(ctx, "a@x.com", code), ErrInvalidCode)
}

func TestVerifyEmail_WrongCodeCountsAttempts(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	_, err := f.service.Signup(ctx, "a@x.com", "password123")
	require.NoError(t, err)
	code := f.notifier.code("a@x.com")

	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}
	for i := 0; i < maxVerificationAttempts; i++ {
		assert.ErrorIs(t, f.service.VerifyEmail(ctx, "a@x.com", wrong), ErrInvalidCode)
	}

	assert.ErrorIs(t, f.service.VerifyEmail(ctx, "a@x.com", code), ErrTooManyAttempts)
}

func TestVerifyEmail_Expired(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	_, err := f.service.Signup(ctx, "a@x.com", "password123")
	require.NoError(t, err)
	code := f.notifier.code("a@x.com")

	f.service.now = func() time.Time { return f.now.Add(verificationCodeTTL) }
	assert.ErrorIs(t, f.service.VerifyEmail(ctx, "a@x.com", code), ErrCodeExpired)
}

func TestVerifyEmail_UnknownEmail(t *testing.T) {
	f := newServiceFixture(t)
	assert.ErrorIs(t, f.service.VerifyEmail(context.Background(), "nobody@x.com", "123456"), ErrInvalidCode)
}

func TestSendVerification_ReplacesCode(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	_, err := f.service.Signup(ctx, "a@x.com", "password123")
	require.NoError(t, err)

	require.NoError(t, f.store.IncrementVerificationAttempts(ctx, "a@x.com"))
	require.NoError(t, f.service.SendVerification(ctx, "a@x.com"))

	v, err := f.store.FindVerification(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, 0, v.Attempts)
	assert.Equal(t, f.notifier.code("a@x.com"), v.Code)

	assert.ErrorIs(t, f.service.SendVerification(ctx, "nobody@x.com"), ErrNotFound)
}

func TestVerificationCodeFormat(t *testing.T) {
	for i := 0; i < 50; i++ {
		code, err := verificationCode()
		require.NoError(t, err)
		assert.Regexp(t, `^[1-9][0-9]{5}$`, code)
	}
}
