package auth

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	uniqueViolation          = "23505"
	usernameUniqueConstraint = "users_username_key"
)

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Repository is the PostgreSQL credential store. Refresh tokens are stored as
// sha256 hashes; the raw value only ever lives with the client.
type Repository struct {
	db *sql.DB
	q  querier
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db, q: db}
}

func (r *Repository) FindUserByEmail(ctx context.Context, email string) (User, error) {
	return r.scanUser(r.q.QueryRowContext(ctx, `
		SELECT email, username, password_hash, role_id, email_verified, created_at, last_login
		FROM users
		WHERE email = $1
	`, email), "email")
}

func (r *Repository) FindUserByUsername(ctx context.Context, username string) (User, error) {
	return r.scanUser(r.q.QueryRowContext(ctx, `
		SELECT email, username, password_hash, role_id, email_verified, created_at, last_login
		FROM users
		WHERE username = $1
	`, username), "username")
}

func (r *Repository) scanUser(row *sql.Row, by string) (User, error) {
	var user User
	var role int
	var lastLogin sql.NullTime
	err := row.Scan(&user.Email, &user.Username, &user.PasswordHash, &role, &user.EmailVerified, &user.CreatedAt, &lastLogin)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, fmt.Errorf("query user by %s: %w", by, err)
	}

	user.Role = Role(role)
	if !user.Role.Valid() {
		return User{}, fmt.Errorf("query user by %s: unknown role id %d", by, role)
	}
	user.CreatedAt = user.CreatedAt.UTC()
	if lastLogin.Valid {
		value := lastLogin.Time.UTC()
		user.LastLogin = &value
	}
	return user, nil
}

func (r *Repository) CountUsersByUsername(ctx context.Context, username string) (int, error) {
	var count int
	err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE username = $1`, username).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count users by username: %w", err)
	}
	return count, nil
}

func (r *Repository) InsertUser(ctx context.Context, user User) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO users (email, username, password_hash, role_id, email_verified, created_at, last_login)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, user.Email, user.Username, user.PasswordHash, int(user.Role), user.EmailVerified, user.CreatedAt.UTC(), nullTime(user.LastLogin))
	if err != nil {
		if mapped := mapUniqueViolation(err); mapped != nil {
			return mapped
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *Repository) TouchLastLogin(ctx context.Context, email string, at time.Time) error {
	res, err := r.q.ExecContext(ctx, `UPDATE users SET last_login = $2 WHERE email = $1`, email, at)
	if err != nil {
		return fmt.Errorf("touch last login: %w", err)
	}
	return requireAffected(res, "touch last login")
}

func (r *Repository) MarkEmailVerified(ctx context.Context, email string) error {
	res, err := r.q.ExecContext(ctx, `UPDATE users SET email_verified = TRUE WHERE email = $1`, email)
	if err != nil {
		return fmt.Errorf("mark email verified: %w", err)
	}
	return requireAffected(res, "mark email verified")
}

func (r *Repository) UpdateUsername(ctx context.Context, email, username string) error {
	res, err := r.q.ExecContext(ctx, `UPDATE users SET username = $2 WHERE email = $1`, email, username)
	if err != nil {
		if mapped := mapUniqueViolation(err); mapped != nil {
			return mapped
		}
		return fmt.Errorf("update username: %w", err)
	}
	return requireAffected(res, "update username")
}

func requireAffected(res sql.Result, op string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) FindRefreshToken(ctx context.Context, token string) (RefreshToken, error) {
	record := RefreshToken{Token: token}
	err := r.q.QueryRowContext(ctx, `
		SELECT id, user_email, expires_at, revoked, created_at
		FROM refresh_tokens
		WHERE token_hash = $1
	`, hashToken(token)).Scan(&record.ID, &record.UserEmail, &record.ExpiresAt, &record.Revoked, &record.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return RefreshToken{}, ErrNotFound
		}
		return RefreshToken{}, fmt.Errorf("read refresh token: %w", err)
	}

	record.ExpiresAt = record.ExpiresAt.UTC()
	record.CreatedAt = record.CreatedAt.UTC()
	return record, nil
}

func (r *Repository) InsertRefreshToken(ctx context.Context, record RefreshToken) error {
	id := record.ID
	if id == "" {
		generated, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("generate refresh token id: %w", err)
		}
		id = generated.String()
	}

	_, err := r.q.ExecContext(ctx, `
		INSERT INTO refresh_tokens (id, token_hash, user_email, expires_at, revoked, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, id, hashToken(record.Token), record.UserEmail, record.ExpiresAt.UTC(), record.Revoked, record.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert refresh token: %w", err)
	}
	return nil
}

func (r *Repository) RevokeRefreshToken(ctx context.Context, token string, now time.Time) (bool, error) {
	res, err := r.q.ExecContext(ctx, `
		UPDATE refresh_tokens
		SET revoked = TRUE, revoked_at = $2
		WHERE token_hash = $1 AND revoked = FALSE
	`, hashToken(token), now.UTC())
	if err != nil {
		return false, fmt.Errorf("revoke refresh token: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("revoke refresh token rows affected: %w", err)
	}
	return affected == 1, nil
}

func (r *Repository) DeleteRefreshTokens(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.q.ExecContext(ctx, `
		DELETE FROM refresh_tokens
		WHERE expires_at < $1 OR revoked = TRUE
	`, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("delete stale refresh tokens: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("stale refresh tokens rows affected: %w", err)
	}
	return affected, nil
}

// WithinTx runs fn against a copy of the repository bound to one transaction.
// Nested calls reuse the outer transaction.
func (r *Repository) WithinTx(ctx context.Context, fn func(TokenStore) error) error {
	if _, inTx := r.q.(*sql.Tx); inTx {
		return fn(r)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&Repository{db: r.db, q: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (r *Repository) UpsertVerification(ctx context.Context, v EmailVerification) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO email_verifications (email, code, expires_at, attempts, created_at)
		VALUES ($1, $2, $3, 0, $4)
		ON CONFLICT (email)
		DO UPDATE SET
			code = EXCLUDED.code,
			expires_at = EXCLUDED.expires_at,
			attempts = 0,
			created_at = EXCLUDED.created_at
	`, v.Email, v.Code, v.ExpiresAt.UTC(), v.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("upsert email verification: %w", err)
	}
	return nil
}

func (r *Repository) FindVerification(ctx context.Context, email string) (EmailVerification, error) {
	v := EmailVerification{Email: email}
	err := r.q.QueryRowContext(ctx, `
		SELECT code, expires_at, attempts, created_at
		FROM email_verifications
		WHERE email = $1
	`, email).Scan(&v.Code, &v.ExpiresAt, &v.Attempts, &v.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return EmailVerification{}, ErrNotFound
		}
		return EmailVerification{}, fmt.Errorf("read email verification: %w", err)
	}

	v.ExpiresAt = v.ExpiresAt.UTC()
	v.CreatedAt = v.CreatedAt.UTC()
	return v, nil
}

func (r *Repository) IncrementVerificationAttempts(ctx context.Context, email string) error {
	_, err := r.q.ExecContext(ctx, `
		UPDATE email_verifications
		SET attempts = attempts + 1
		WHERE email = $1
	`, email)
	if err != nil {
		return fmt.Errorf("increment verification attempts: %w", err)
	}
	return nil
}

func (r *Repository) DeleteVerification(ctx context.Context, email string) error {
	_, err := r.q.ExecContext(ctx, `DELETE FROM email_verifications WHERE email = $1`, email)
	if err != nil {
		return fmt.Errorf("delete email verification: %w", err)
	}
	return nil
}

func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func nullTime(value *time.Time) sql.NullTime {
	if value == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: value.UTC(), Valid: true}
}

func mapUniqueViolation(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolation {
		return nil
	}
	if pgErr.ConstraintName == usernameUniqueConstraint {
		return ErrUsernameTaken
	}
	return ErrAlreadyExists
}
