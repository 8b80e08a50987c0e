package auth

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"anivault/internal/observability"
	"anivault/internal/token"
)

const (
	minPasswordLength   = 8
	maxPasswordLength   = 200
	maxUsernameAttempts = 3
)

var (
	emailRegex    = regexp.MustCompile(`^[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}$`)
	usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9_]{3,20}$`)

	reservedUsernames = map[string]struct{}{
		"admin": {}, "root": {}, "system": {}, "api": {}, "www": {},
		"mail": {}, "support": {}, "help": {}, "info": {},
	}
)

// Notifier delivers verification codes out of band.
type Notifier interface {
	SendVerificationCode(ctx context.Context, email, code string) error
}

type Option func(*Service)

func WithNotifier(notifier Notifier) Option {
	return func(s *Service) { s.notifier = notifier }
}

// WithVerificationRequired makes Login refuse accounts whose email is not verified.
func WithVerificationRequired(required bool) Option {
	return func(s *Service) { s.requireVerified = required }
}

func WithHasher(hasher Hasher) Option {
	return func(s *Service) { s.hasher = hasher }
}

func WithLogger(logger *observability.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

type Service struct {
	store           Store
	ledger          *Ledger
	signer          *token.Signer
	hasher          Hasher
	notifier        Notifier
	logger          *observability.Logger
	requireVerified bool
	now             func() time.Time
}

func NewService(store Store, ledger *Ledger, signer *token.Signer, opts ...Option) *Service {
	s := &Service{
		store:  store,
		ledger: ledger,
		signer: signer,
		hasher: BcryptHasher{},
		logger: observability.NopLogger(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Signup(ctx context.Context, email, password string) (Session, error) {
	email = normalizeEmail(email)
	if !emailRegex.MatchString(email) {
		return Session{}, ErrInvalidEmail
	}
	if len(password) < minPasswordLength || len(password) > maxPasswordLength {
		return Session{}, ErrInvalidPassword
	}

	if _, err := s.store.FindUserByEmail(ctx, email); err == nil {
		return Session{}, ErrAlreadyExists
	} else if !errors.Is(err, ErrNotFound) {
		return Session{}, err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return Session{}, err
	}

	base := email[:strings.Index(email, "@")]
	user := User{
		Email:        email,
		PasswordHash: hash,
		Role:         RoleUser,
		CreatedAt:    s.now().UTC(),
	}

	// Another signup can claim the same display name between the lookup and
	// the insert; the unique constraint catches it and we pick again.
	for attempt := 1; ; attempt++ {
		user.Username, err = s.uniqueUsername(ctx, base)
		if err != nil {
			return Session{}, err
		}

		err = s.store.InsertUser(ctx, user)
		if err == nil {
			break
		}
		if errors.Is(err, ErrUsernameTaken) && attempt < maxUsernameAttempts {
			continue
		}
		if errors.Is(err, ErrUsernameTaken) {
			return Session{}, ErrAlreadyExists
		}
		return Session{}, err
	}

	if err := s.sendVerification(ctx, user.Email); err != nil {
		s.logger.Warn("verification_send_failed", map[string]any{
			"email": user.Email,
			"error": err.Error(),
		})
	}

	s.logger.Info("user_signed_up", map[string]any{"email": user.Email, "username": user.Username})
	return s.issueSession(ctx, user)
}

// uniqueUsername returns base, or base followed by the smallest positive
// integer suffix that no existing user holds.
func (s *Service) uniqueUsername(ctx context.Context, base string) (string, error) {
	candidate := base
	for n := 1; ; n++ {
		count, err := s.store.CountUsersByUsername(ctx, candidate)
		if err != nil {
			return "", err
		}
		if count == 0 {
			return candidate, nil
		}
		candidate = base + strconv.Itoa(n)
	}
}

func (s *Service) Login(ctx context.Context, identifier, password string) (Session, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || password == "" {
		return Session{}, ErrInvalidCredentials
	}

	var (
		user User
		err  error
	)
	if strings.Contains(identifier, "@") {
		user, err = s.store.FindUserByEmail(ctx, normalizeEmail(identifier))
	} else {
		user, err = s.store.FindUserByUsername(ctx, identifier)
	}
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Session{}, ErrInvalidCredentials
		}
		return Session{}, err
	}

	if !s.hasher.Verify(user.PasswordHash, password) {
		return Session{}, ErrInvalidCredentials
	}
	if s.requireVerified && !user.EmailVerified {
		return Session{}, ErrNotVerified
	}

	now := s.now().UTC()
	if err := s.store.TouchLastLogin(ctx, user.Email, now); err != nil {
		return Session{}, fmt.Errorf("record last login: %w", err)
	}
	user.LastLogin = &now

	return s.issueSession(ctx, user)
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Tokens, error) {
	next, err := s.ledger.Rotate(ctx, strings.TrimSpace(refreshToken))
	if err != nil {
		return Tokens{}, err
	}

	user, err := s.store.FindUserByEmail(ctx, next.UserEmail)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Tokens{}, ErrInvalidToken
		}
		return Tokens{}, err
	}

	if !user.Role.Valid() {
		return Tokens{}, fmt.Errorf("refresh: unknown role %d", int(user.Role))
	}
	access, claims, err := s.signer.Issue(user.Email, user.Username, int(user.Role))
	if err != nil {
		return Tokens{}, err
	}
	return s.tokens(access, claims, next.Token), nil
}

func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	return s.ledger.Revoke(ctx, strings.TrimSpace(refreshToken))
}

func (s *Service) CurrentUser(ctx context.Context, email string) (User, error) {
	return s.store.FindUserByEmail(ctx, email)
}

func (s *Service) UpdateUsername(ctx context.Context, email, username string) (User, error) {
	username = strings.TrimSpace(username)
	if !usernameRegex.MatchString(username) {
		return User{}, ErrInvalidUsername
	}
	if _, reserved := reservedUsernames[strings.ToLower(username)]; reserved {
		return User{}, ErrInvalidUsername
	}

	user, err := s.store.FindUserByEmail(ctx, email)
	if err != nil {
		return User{}, err
	}
	if user.Username == username {
		return user, nil
	}

	count, err := s.store.CountUsersByUsername(ctx, username)
	if err != nil {
		return User{}, err
	}
	if count > 0 {
		return User{}, ErrAlreadyExists
	}

	if err := s.store.UpdateUsername(ctx, email, username); err != nil {
		if errors.Is(err, ErrUsernameTaken) {
			return User{}, ErrAlreadyExists
		}
		return User{}, err
	}
	return s.store.FindUserByEmail(ctx, email)
}

func (s *Service) issueSession(ctx context.Context, user User) (Session, error) {
	if !user.Role.Valid() {
		return Session{}, fmt.Errorf("issue session: unknown role %d", int(user.Role))
	}
	access, claims, err := s.signer.Issue(user.Email, user.Username, int(user.Role))
	if err != nil {
		return Session{}, err
	}

	refresh, err := s.ledger.Issue(ctx, user.Email)
	if err != nil {
		return Session{}, err
	}

	return Session{
		Tokens: s.tokens(access, claims, refresh.Token),
		User:   user.View(),
	}, nil
}

func (s *Service) tokens(access string, claims token.Claims, refresh string) Tokens {
	return Tokens{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.signer.TTL().Seconds()),
		ExpiresAt:    claims.ExpiresAt,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
