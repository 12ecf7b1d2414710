// Package auth provides authentication for the gateway.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/shipanion/gateway/config"
	"github.com/shipanion/gateway/store"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnauthorized       = errors.New("unauthorized")
)

// Service is the builtin auth provider: HS256 JWTs signed with a configured
// secret, user accounts with bcrypt password hashes in the store, and an
// optional fixed test token for non-production testing.
// It implements Provider and LoginProvider.
type Service struct {
	store     store.Store
	jwtSecret []byte
	jwtExpiry time.Duration
	testToken string
	admin     *config.InitialAdmin
}

// NewService creates a new builtin auth service.
func NewService(s store.Store, cfg config.AuthConfig) *Service {
	return &Service{
		store:     s,
		jwtSecret: []byte(cfg.JWTSecret),
		jwtExpiry: cfg.JWTExpiry.Duration,
		testToken: cfg.TestToken,
		admin:     cfg.InitialAdmin,
	}
}

// Name returns the provider name.
func (s *Service) Name() string { return "builtin" }

// TokenExpiry returns the lifetime of issued tokens.
func (s *Service) TokenExpiry() time.Duration { return s.jwtExpiry }

// Bootstrap creates the initial user if configured and not present.
func (s *Service) Bootstrap(ctx context.Context) error {
	if s.admin == nil {
		return nil
	}

	existing, err := s.store.GetUser(ctx, s.admin.Username)
	if err != nil {
		return fmt.Errorf("check existing user: %w", err)
	}
	if existing != nil {
		return nil // already bootstrapped
	}

	_, err = s.Register(ctx, s.admin.Username, s.admin.Password)
	return err
}

// Register creates a new user account.
func (s *Service) Register(ctx context.Context, username, password string) (*store.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &store.User{
		ID:           uuid.New().String(),
		Username:     username,
		PasswordHash: string(hash),
		CreatedAt:    time.Now(),
	}

	if err := s.store.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

// Login authenticates a user and returns a signed JWT.
func (s *Service) Login(ctx context.Context, username, password string) (string, error) {
	user, err := s.store.GetUser(ctx, username)
	if err != nil {
		return "", fmt.Errorf("get user: %w", err)
	}
	if user == nil {
		return "", ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}

	return s.generateToken(user.Username)
}

// ValidateToken validates a bearer token and returns an Identity.
// The configured test token is accepted for the "user" account without
// expiry, matching the token handed out by /test-token.
func (s *Service) ValidateToken(_ context.Context, tokenStr string) (*Identity, error) {
	if s.testToken != "" && tokenStr == s.testToken {
		return &Identity{Username: "user"}, nil
	}

	token, err := jwt.ParseWithClaims(tokenStr, &jwt.RegisteredClaims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return nil, ErrUnauthorized
	}

	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, ErrUnauthorized
	}

	return &Identity{Username: claims.Subject}, nil
}

// TestToken returns the configured test token, or "" when disabled.
func (s *Service) TestToken() string { return s.testToken }

func (s *Service) generateToken(username string) (string, error) {
	claims := &jwt.RegisteredClaims{
		Subject:   username,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(s.jwtExpiry)),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ID:        uuid.New().String(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}
