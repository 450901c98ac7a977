package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/sakif/pollar/internal/apperror"
	"github.com/sakif/pollar/internal/auth"
	"github.com/sakif/pollar/internal/model"
	"github.com/sakif/pollar/internal/plan"
	"github.com/sakif/pollar/internal/repository"
)

// Account field bounds.
const (
	MinNameLength     = 2
	MaxNameLength     = 100
	MinPasswordLength = 8
)

// AuthService signs people in and manages their account.
//
//	AuthHandler (HTTP) → AuthService → UserRepository (DB)
//	                                 ↘ TokenService (JWT), PasswordService (bcrypt)
//
// It never sets cookies or reads requests; the handler does that with the
// AuthResult it gets back.
type AuthService struct {
	users     repository.UserRepository
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	logger    *slog.Logger
}

// NewAuthService creates an AuthService.
func NewAuthService(
	users repository.UserRepository,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:     users,
		tokens:    tokens,
		passwords: passwords,
		logger:    logger,
	}
}

// AuthResult bundles the user and the issued session so the handler can
// set the cookie and respond in one step.
type AuthResult struct {
	User      *model.User `json:"user"`
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expiresAt"`
}

// SignupInput is the body of POST /auth/signup.
type SignupInput struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// ProfileUpdate carries the optional fields of PATCH /me.
type ProfileUpdate struct {
	Name      *string `json:"name"`
	AvatarURL *string `json:"avatarUrl"`
}

// Account is the signed-in user with their plan and linked providers.
type Account struct {
	*model.User
	Limits    plan.Plan `json:"limits"`
	Providers []string  `json:"providers"`
}

// SignInWithProvider finishes an OAuth callback: the identity is upserted
// by email and a session is issued.
func (s *AuthService) SignInWithProvider(ctx context.Context, id model.Identity) (*AuthResult, error) {
	id.Email = normalizeEmail(id.Email)
	if id.Email == "" {
		return nil, apperror.Unauthorized("The identity provider did not return an email address")
	}

	user, err := s.users.UpsertIdentity(ctx, id)
	if err != nil {
		return nil, err
	}

	s.logger.Info("user signed in",
		slog.String("userID", user.ID),
		slog.String("provider", id.Provider),
	)
	return s.issue(user)
}

// Signup creates a password account on the FREE plan.
func (s *AuthService) Signup(ctx context.Context, in SignupInput) (*AuthResult, error) {
	name := strings.TrimSpace(in.Name)
	email := normalizeEmail(in.Email)

	if n := len(name); n < MinNameLength || n > MaxNameLength {
		return nil, apperror.ValidationFailed("name",
			fmt.Sprintf("name must be between %d and %d characters", MinNameLength, MaxNameLength))
	}
	if !validEmail(email) {
		return nil, apperror.ValidationFailed("email", "a valid email address is required")
	}
	if len(in.Password) < MinPasswordLength {
		return nil, apperror.ValidationFailed("password",
			fmt.Sprintf("password must be at least %d characters", MinPasswordLength))
	}

	hash, err := s.passwords.Hash(in.Password)
	if err != nil {
		return nil, err
	}

	user := &model.User{Email: email, Name: name, PasswordHash: hash, Plan: plan.Free}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info("user signed up", slog.String("userID", user.ID))
	return s.issue(user)
}

// Login checks an email and password. An unknown email and a wrong
// password produce the same error and take about the same time.
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, apperror.ValidationFailed("email", "email and password are required")
	}

	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, apperror.ErrNotFound) {
			return nil, err
		}
		_ = s.passwords.Verify("", password)
		return nil, invalidCredentials()
	}

	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		s.logger.Debug("login failed", slog.String("userID", user.ID))
		return nil, invalidCredentials()
	}

	s.logger.Info("user logged in", slog.String("userID", user.ID))
	return s.issue(user)
}

// ValidateSession reports who a token belongs to and when it expires.
func (s *AuthService) ValidateSession(token string) (*auth.Claims, error) {
	if token == "" {
		return nil, apperror.Unauthorized("No session")
	}
	return s.tokens.Validate(token)
}

// Account loads the signed-in user's account.
func (s *AuthService) Account(ctx context.Context, userID string) (*Account, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	providers, err := s.users.ListProviders(ctx, userID)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(providers))
	for _, p := range providers {
		names = append(names, p.Name)
	}
	return &Account{User: user, Limits: plan.For(user.Plan), Providers: names}, nil
}

// UpdateProfile changes the name and/or avatar of the signed-in user.
func (s *AuthService) UpdateProfile(ctx context.Context, userID string, upd ProfileUpdate) (*model.User, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if n := len(name); n < MinNameLength || n > MaxNameLength {
			return nil, apperror.ValidationFailed("name",
				fmt.Sprintf("name must be between %d and %d characters", MinNameLength, MaxNameLength))
		}
		user.Name = name
	}
	if upd.AvatarURL != nil {
		user.AvatarURL = strings.TrimSpace(*upd.AvatarURL)
	}

	if err := s.users.UpdateProfile(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *AuthService) issue(user *model.User) (*AuthResult, error) {
	token, expires, err := s.tokens.Issue(user.ID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: issuing token for user %s: %w", user.ID, err)
	}
	return &AuthResult{User: user, Token: token, ExpiresAt: expires}, nil
}

func invalidCredentials() error {
	return apperror.New(apperror.ErrInvalidCredentials, "", "Invalid email or password")
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// validEmail accepts a bare address (no display name) that net/mail can
// parse and that has a dot in the domain.
func validEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s {
		return false
	}
	at := strings.LastIndexByte(s, '@')
	return at > 0 && strings.Contains(s[at+1:], ".")
}
