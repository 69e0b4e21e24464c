package auth

import (
	"context"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"marmora/internal/core/apperror"
	"marmora/pkg/logger"
)

// UserStore persists operator accounts.
type UserStore interface {
	GetByEmail(ctx context.Context, email string) (*User, error)
	Create(ctx context.Context, user *User) error
	Exists(ctx context.Context, email string) (bool, error)
}

// ServiceConfig holds auth service configuration.
type ServiceConfig struct {
	PasswordMinLength int

	// BootstrapAdminEmail / BootstrapAdminPassword seed the first admin
	// account on startup when the user table is empty.
	BootstrapAdminEmail    string
	BootstrapAdminPassword string
}

// DefaultServiceConfig returns default configuration.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{PasswordMinLength: 8}
}

// Service provides authentication logic.
type Service struct {
	users      UserStore
	jwtService *JWTService
	config     ServiceConfig
}

// NewService creates a new auth service.
func NewService(users UserStore, jwtService *JWTService, config ServiceConfig) *Service {
	return &Service{
		users:      users,
		jwtService: jwtService,
		config:     config,
	}
}

// Login authenticates an operator and returns an access token.
func (s *Service) Login(ctx context.Context, creds Credentials) (*Token, *User, error) {
	user, err := s.users.GetByEmail(ctx, creds.Email)
	if err != nil {
		return nil, nil, apperror.NewUnauthorized("invalid credentials")
	}
	if !user.IsActive {
		return nil, nil, apperror.NewForbidden("account disabled")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(creds.Password)); err != nil {
		return nil, nil, apperror.NewUnauthorized("invalid credentials")
	}

	accessToken, expiresAt, err := s.jwtService.GenerateAccessToken(
		user.ID.String(), user.Email, user.Roles, user.IsAdmin)
	if err != nil {
		return nil, nil, fmt.Errorf("generate access token: %w", err)
	}

	logger.Info(ctx, "user logged in",
		"user_id", user.ID,
		"email", user.Email)

	return &Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
		ExpiresAt:   expiresAt,
	}, user, nil
}

// Register creates a new operator account.
func (s *Service) Register(ctx context.Context, email, password, fullName string) (*User, error) {
	if email == "" {
		return nil, apperror.NewValidation("email is required").WithDetail("field", "email")
	}
	if len(password) < s.config.PasswordMinLength {
		return nil, apperror.NewValidation(
			fmt.Sprintf("password must be at least %d characters", s.config.PasswordMinLength),
		).WithDetail("field", "password")
	}

	exists, err := s.users.Exists(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("check email exists: %w", err)
	}
	if exists {
		return nil, apperror.NewConflict("email already registered").WithDetail("email", email)
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := NewUser(email, string(passwordHash))
	user.FullName = fullName
	if err := s.users.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	logger.Info(ctx, "user registered",
		"user_id", user.ID,
		"email", user.Email)

	return user, nil
}

// EnsureBootstrapAdmin seeds the configured admin account if it does not
// exist yet. Called once on startup.
func (s *Service) EnsureBootstrapAdmin(ctx context.Context) error {
	if s.config.BootstrapAdminEmail == "" || s.config.BootstrapAdminPassword == "" {
		return nil
	}

	exists, err := s.users.Exists(ctx, s.config.BootstrapAdminEmail)
	if err != nil {
		return fmt.Errorf("check admin exists: %w", err)
	}
	if exists {
		return nil
	}

	passwordHash, err := bcrypt.GenerateFromPassword(
		[]byte(s.config.BootstrapAdminPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	admin := NewUser(s.config.BootstrapAdminEmail, string(passwordHash))
	admin.FullName = "Administrator"
	admin.IsAdmin = true
	admin.Roles = []string{"admin"}
	if err := s.users.Create(ctx, admin); err != nil {
		return fmt.Errorf("create admin: %w", err)
	}

	logger.Info(ctx, "bootstrap admin created", "email", admin.Email)
	return nil
}
