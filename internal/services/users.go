package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"contest-platform/internal/apperr"
	"contest-platform/internal/auth"
	"contest-platform/internal/models"
	"contest-platform/internal/store"
)

// TokenIssuer signs a session token for a verified principal.
type TokenIssuer interface {
	Issue(email string) (string, error)
}

type UserService struct {
	users  store.UserStore
	roles  auth.RoleStore
	tokens TokenIssuer
	logger zerolog.Logger
	now    func() time.Time
}

func NewUserService(users store.UserStore, roles auth.RoleStore, tokens TokenIssuer, logger zerolog.Logger) *UserService {
	return &UserService{
		users:  users,
		roles:  roles,
		tokens: tokens,
		logger: logger.With().Str("component", "users").Logger(),
		now:    time.Now,
	}
}

type RegisterRequest struct {
	Email       string `json:"email" binding:"required,email"`
	Password    string `json:"password" binding:"required,min=8"`
	DisplayName string `json:"displayName" binding:"required"`
	PhotoURL    string `json:"photoURL"`
}

// Register creates the account with role "user". A second registration for
// the same email fails with apperr.ErrConflict.
func (s *UserService) Register(ctx context.Context, req RegisterRequest) (*models.User, error) {
	email := normalizeEmail(req.Email)
	if !validEmail(email) {
		return nil, fmt.Errorf("%w: invalid email", apperr.ErrValidation)
	}
	if len(req.Password) < 8 {
		return nil, fmt.Errorf("%w: password must be at least 8 characters", apperr.ErrValidation)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u := &models.User{
		Email:        email,
		DisplayName:  req.DisplayName,
		PhotoURL:     req.PhotoURL,
		Role:         models.RoleUser,
		PasswordHash: string(hash),
		CreatedAt:    s.now().UTC(),
	}
	if err := s.users.InsertUser(ctx, u); err != nil {
		return nil, err
	}

	s.logger.Info().Str("email", email).Msg("User registered")
	return u, nil
}

// Login checks the password and returns a signed token.
func (s *UserService) Login(ctx context.Context, email, password string) (string, error) {
	u, err := s.users.GetUser(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return "", fmt.Errorf("%w: invalid email or password", apperr.ErrAuth)
		}
		return "", err
	}
	if u.PasswordHash == "" {
		return "", fmt.Errorf("%w: invalid email or password", apperr.ErrAuth)
	}

	// Compare stored hash with the submitted password
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return "", fmt.Errorf("%w: invalid email or password", apperr.ErrAuth)
	}

	return s.tokens.Issue(u.Email)
}

func (s *UserService) Profile(ctx context.Context, email string) (*models.User, error) {
	return s.users.GetUser(ctx, normalizeEmail(email))
}

type ProfileUpdate struct {
	DisplayName string `json:"displayName"`
	PhotoURL    string `json:"photoURL"`
	Bio         string `json:"bio"`
}

func (s *UserService) UpdateProfile(ctx context.Context, principal string, p ProfileUpdate) (*models.User, error) {
	email := normalizeEmail(principal)
	if err := s.users.UpdateProfile(ctx, email, p.DisplayName, p.PhotoURL, p.Bio); err != nil {
		return nil, err
	}
	return s.users.GetUser(ctx, email)
}

func (s *UserService) ListUsers(ctx context.Context, principal string) ([]models.User, error) {
	if _, err := auth.RequireRole(ctx, s.roles, principal, models.RoleAdmin); err != nil {
		return nil, err
	}
	return s.users.ListUsers(ctx)
}

// SetRole is the only path that changes a user's role.
func (s *UserService) SetRole(ctx context.Context, principal, email string, role models.Role) error {
	if _, err := auth.RequireRole(ctx, s.roles, principal, models.RoleAdmin); err != nil {
		return err
	}
	if !role.Valid() {
		return fmt.Errorf("%w: unknown role %q", apperr.ErrValidation, role)
	}

	email = normalizeEmail(email)
	if err := s.users.SetRole(ctx, email, role); err != nil {
		return err
	}

	s.logger.Info().Str("email", email).Str("role", string(role)).Str("by", principal).Msg("Role changed")
	return nil
}
