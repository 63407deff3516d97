package auth

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"recuento/internal/core/apperror"
	"recuento/pkg/logger"
)

// User is a registry entry. The password hash is bcrypt.
type User struct {
	ID           string
	Username     string
	PasswordHash string
}

// Credentials for login.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Token is the result of a successful login.
type Token struct {
	AccessToken string    `json:"accessToken"`
	ExpiresAt   time.Time `json:"expiresAt"`
	TokenType   string    `json:"tokenType"`
}

// ServiceConfig holds auth service configuration.
type ServiceConfig struct {
	MaxLoginAttempts int
	LockDuration     time.Duration
}

// DefaultServiceConfig returns default configuration.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		MaxLoginAttempts: 5,
		LockDuration:     15 * time.Minute,
	}
}

type loginState struct {
	failed      int
	lockedUntil time.Time
}

// Service authenticates against a static user registry. Counting stations
// share a small fixed set of accounts configured at startup, so there is no
// user repository behind this.
type Service struct {
	users      map[string]User
	jwtService *JWTService
	config     ServiceConfig

	mu    sync.Mutex
	state map[string]*loginState
}

// NewService creates a new auth service.
func NewService(users []User, jwtService *JWTService, config ServiceConfig) *Service {
	byName := make(map[string]User, len(users))
	for _, u := range users {
		byName[u.Username] = u
	}
	return &Service{
		users:      byName,
		jwtService: jwtService,
		config:     config,
		state:      make(map[string]*loginState),
	}
}

// HashPassword produces a bcrypt hash for registry entries built from
// plain-text configuration.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Login authenticates the credentials and returns a session token.
func (s *Service) Login(ctx context.Context, creds Credentials) (*Token, error) {
	if creds.Username == "" || creds.Password == "" {
		return nil, apperror.NewValidation("username and password are required")
	}

	if err := s.checkLock(creds.Username); err != nil {
		return nil, err
	}

	user, ok := s.users[creds.Username]
	if !ok {
		// Burn a comparison so unknown users cost the same as bad passwords.
		_ = bcrypt.CompareHashAndPassword([]byte("$2a$10$000000000000000000000uGZLcdK3Pv7RuBDRwrr9uCjEIY1uDCG2"), []byte(creds.Password))
		s.recordFailure(creds.Username)
		return nil, apperror.NewUnauthorized("invalid credentials")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(creds.Password)); err != nil {
		s.recordFailure(creds.Username)
		return nil, apperror.NewUnauthorized("invalid credentials")
	}
	s.recordSuccess(creds.Username)

	sessionID := uuid.NewString()
	accessToken, expiresAt, err := s.jwtService.GenerateAccessToken(user.ID, user.Username, sessionID)
	if err != nil {
		return nil, apperror.NewInternal(err)
	}

	logger.Info(ctx, "user logged in",
		"user_id", user.ID,
		"username", user.Username,
		"session_id", sessionID)

	return &Token{
		AccessToken: accessToken,
		ExpiresAt:   expiresAt,
		TokenType:   "Bearer",
	}, nil
}

func (s *Service) checkLock(username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.state[username]
	if !ok {
		return nil
	}
	if time.Now().Before(st.lockedUntil) {
		return apperror.NewForbidden("account is temporarily locked")
	}
	return nil
}

func (s *Service) recordFailure(username string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.state[username]
	if !ok {
		st = &loginState{}
		s.state[username] = st
	}
	st.failed++
	if st.failed >= s.config.MaxLoginAttempts {
		st.lockedUntil = time.Now().Add(s.config.LockDuration)
		st.failed = 0
	}
}

func (s *Service) recordSuccess(username string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.state, username)
}
