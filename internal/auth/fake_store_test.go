package auth

import (
	"context"
	"sync"
	"time"
)

type memoryStore struct {
	mu            sync.Mutex
	users         map[string]User
	tokens        map[string]RefreshToken
	verifications map[string]EmailVerification

	// usernameConflicts makes the next N InsertUser calls fail as if another
	// signup claimed the display name first.
	usernameConflicts int

	// afterUsernameLookup runs once, outside the lock, right after
	// FindUserByUsername reads a row.
	afterUsernameLookup func()
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		users:         make(map[string]User),
		tokens:        make(map[string]RefreshToken),
		verifications: make(map[string]EmailVerification),
	}
}

func (m *memoryStore) FindUserByEmail(_ context.Context, email string) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, ok := m.users[email]
	if !ok {
		return User{}, ErrNotFound
	}
	return user, nil
}

func (m *memoryStore) FindUserByUsername(_ context.Context, username string) (User, error) {
	m.mu.Lock()
	var (
		found User
		ok    bool
	)
	for _, user := range m.users {
		if user.Username == username {
			found, ok = user, true
			break
		}
	}
	hook := m.afterUsernameLookup
	m.afterUsernameLookup = nil
	m.mu.Unlock()

	if !ok {
		return User{}, ErrNotFound
	}
	if hook != nil {
		hook()
	}
	return found, nil
}

func (m *memoryStore) CountUsersByUsername(_ context.Context, username string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for _, user := range m.users {
		if user.Username == username {
			count++
		}
	}
	return count, nil
}

func (m *memoryStore) InsertUser(_ context.Context, user User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.usernameConflicts > 0 {
		m.usernameConflicts--
		return ErrUsernameTaken
	}
	if _, exists := m.users[user.Email]; exists {
		return ErrAlreadyExists
	}
	for _, existing := range m.users {
		if existing.Username == user.Username {
			return ErrUsernameTaken
		}
	}
	m.users[user.Email] = user
	return nil
}

func (m *memoryStore) TouchLastLogin(_ context.Context, email string, at time.Time) error {
	return m.updateUser(email, func(u *User) error {
		u.LastLogin = &at
		return nil
	})
}

func (m *memoryStore) MarkEmailVerified(_ context.Context, email string) error {
	return m.updateUser(email, func(u *User) error {
		u.EmailVerified = true
		return nil
	})
}

func (m *memoryStore) UpdateUsername(_ context.Context, email, username string) error {
	return m.updateUser(email, func(u *User) error {
		for other, existing := range m.users {
			if other != email && existing.Username == username {
				return ErrUsernameTaken
			}
		}
		u.Username = username
		return nil
	})
}

// updateUser applies fn to the stored row under the lock, like a single
// UPDATE statement would.
func (m *memoryStore) updateUser(email string, fn func(*User) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, ok := m.users[email]
	if !ok {
		return ErrNotFound
	}
	if err := fn(&user); err != nil {
		return err
	}
	m.users[email] = user
	return nil
}

func (m *memoryStore) FindRefreshToken(_ context.Context, token string) (RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	record, ok := m.tokens[token]
	if !ok {
		return RefreshToken{}, ErrNotFound
	}
	return record, nil
}

func (m *memoryStore) InsertRefreshToken(_ context.Context, record RefreshToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.tokens[record.Token] = record
	return nil
}

func (m *memoryStore) RevokeRefreshToken(_ context.Context, token string, _ time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	record, ok := m.tokens[token]
	if !ok || record.Revoked {
		return false, nil
	}
	record.Revoked = true
	m.tokens[token] = record
	return true, nil
}

func (m *memoryStore) DeleteRefreshTokens(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var deleted int64
	for key, record := range m.tokens {
		if record.Revoked || record.ExpiresAt.Before(now) {
			delete(m.tokens, key)
			deleted++
		}
	}
	return deleted, nil
}

func (m *memoryStore) WithinTx(_ context.Context, fn func(TokenStore) error) error {
	return fn(m)
}

func (m *memoryStore) UpsertVerification(_ context.Context, v EmailVerification) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	v.Attempts = 0
	m.verifications[v.Email] = v
	return nil
}

func (m *memoryStore) FindVerification(_ context.Context, email string) (EmailVerification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.verifications[email]
	if !ok {
		return EmailVerification{}, ErrNotFound
	}
	return v, nil
}

func (m *memoryStore) IncrementVerificationAttempts(_ context.Context, email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.verifications[email]
	if ok {
		v.Attempts++
		m.verifications[email] = v
	}
	return nil
}

func (m *memoryStore) DeleteVerification(_ context.Context, email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.verifications, email)
	return nil
}

func (m *memoryStore) token(raw string) RefreshToken {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tokens[raw]
}

type recordingNotifier struct {
	mu    sync.Mutex
	codes map[string]string
	err   error
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{codes: make(map[string]string)}
}

func (n *recordingNotifier) SendVerificationCode(_ context.Context, email, code string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.err != nil {
		return n.err
	}
	n.codes[email] = code
	return nil
}

func (n *recordingNotifier) code(email string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.codes[email]
}
