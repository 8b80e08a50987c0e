package auth

import (
	"errors"
	"time"
)

type User struct {
	Email         string
	Username      string
	PasswordHash  string
	Role          Role
	EmailVerified bool
	CreatedAt     time.Time
	LastLogin     *time.Time
}

type RefreshToken struct {
	ID        string
	Token     string
	UserEmail string
	ExpiresAt time.Time
	Revoked   bool
	CreatedAt time.Time
}

type EmailVerification struct {
	Email     string
	Code      string
	ExpiresAt time.Time
	Attempts  int
	CreatedAt time.Time
}

type UserView struct {
	Email         string     `json:"email"`
	Username      string     `json:"username"`
	RoleID        int        `json:"role_id"`
	Role          string     `json:"role"`
	EmailVerified bool       `json:"email_verified"`
	CreatedAt     time.Time  `json:"created_at"`
	LastLogin     *time.Time `json:"last_login,omitempty"`
}

func (u User) View() UserView {
	return UserView{
		Email:         u.Email,
		Username:      u.Username,
		RoleID:        int(u.Role),
		Role:          u.Role.Title(),
		EmailVerified: u.EmailVerified,
		CreatedAt:     u.CreatedAt,
		LastLogin:     u.LastLogin,
	}
}

type Tokens struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	ExpiresIn    int64     `json:"expires_in"`
	ExpiresAt    time.Time `json:"expires_at"`
}

type Session struct {
	Tokens
	User UserView `json:"user"`
}

var (
	ErrNotFound           = errors.New("not found")
	ErrAlreadyExists      = errors.New("already exists")
	ErrUsernameTaken      = errors.New("username already taken")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNotVerified        = errors.New("email not verified")
	ErrInvalidToken       = errors.New("invalid refresh token")
	ErrExpired            = errors.New("refresh token expired")
	ErrInvalidEmail       = errors.New("invalid email")
	ErrInvalidPassword    = errors.New("invalid password")
	ErrInvalidUsername    = errors.New("invalid username")
	ErrInvalidCode        = errors.New("invalid verification code")
	ErrCodeExpired        = errors.New("verification code expired")
	ErrTooManyAttempts    = errors.New("too many verification attempts")
)
