// Package service holds the business rules between the HTTP handlers and the
// repositories:
//
//	Handler (HTTP) → Service (validation, orchestration) → Repository (storage)
//
// Services never see an http.Request. They return *apperror.AppError for
// outcomes a client should understand and wrap everything else with %w so
// the handler can log it and answer 500.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sakif/codemind/internal/apperror"
	"github.com/sakif/codemind/internal/auth"
	"github.com/sakif/codemind/internal/model"
	"github.com/sakif/codemind/internal/repository"
)

const (
	MinNameLength     = 2
	MinPasswordLength = 6

	msgInvalidCredentials = "Invalid credentials"
)

// Themes a user may choose.
var Themes = []string{"light", "dark"}

// AuthService registers users, checks passwords and issues session tokens.
//
// DEPENDENCIES:
//   - users      repository.UserRepository → read/write user records
//   - tokens     *auth.TokenService        → sign and verify JWTs
//   - passwords  *auth.PasswordService     → bcrypt hashing
type AuthService struct {
	users     repository.UserRepository
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	logger    *slog.Logger
	now       func() time.Time
}

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
		now:       time.Now,
	}
}

// AuthResult bundles the user and a freshly issued token so the handler can
// set the cookie and respond in one step.
type AuthResult struct {
	User  *model.User
	Token string
}

type RegisterInput struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// PreferencesInput replaces only the fields that are non-empty.
type PreferencesInput struct {
	Theme            string `json:"theme"`
	DefaultLanguage  string `json:"defaultLanguage"`
	DefaultFramework string `json:"defaultFramework"`
}

// Register creates an account with default preferences. A second
// registration with the same email fails with apperror.ErrConflict and
// leaves the store untouched.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	name := strings.TrimSpace(in.Name)
	email := strings.TrimSpace(in.Email)

	var r rules
	r.check(runeLen(name) >= MinNameLength, "Name must be at least 2 characters long")
	r.check(validEmail(email), "Please provide a valid email address")
	r.check(len(in.Password) >= MinPasswordLength, "Password must be at least 6 characters long")
	r.check(len(in.Password) <= auth.MaxPasswordBytes, "Password must be at most 72 bytes long")
	if err := r.err(); err != nil {
		return nil, err
	}

	hash, err := s.passwords.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("service/auth: %w", err)
	}

	user := &model.User{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		IsActive:     true,
		Preferences:  model.DefaultPreferences(),
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info("user registered", slog.String("userID", user.ID))
	return s.issue(user)
}

// Login checks the password and records the login time. Unknown emails and
// wrong passwords produce the same error.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (*AuthResult, error) {
	email := strings.TrimSpace(in.Email)

	var r rules
	r.check(validEmail(email), "Please provide a valid email address")
	r.check(in.Password != "", "Password is required")
	if err := r.err(); err != nil {
		return nil, err
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.Unauthorized(msgInvalidCredentials)
		}
		return nil, fmt.Errorf("service/auth: looking up %s: %w", email, err)
	}

	if err := s.passwords.Verify(user.PasswordHash, in.Password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			return nil, apperror.Unauthorized(msgInvalidCredentials)
		}
		return nil, fmt.Errorf("service/auth: %w", err)
	}
	if !user.IsActive {
		return nil, apperror.Unauthorized(auth.MsgUserInactive)
	}

	if err := s.touchLogin(ctx, user); err != nil {
		return nil, err
	}
	return s.issue(user)
}

// LoginOrRegisterGitHub signs in the account linked to a GitHub identity,
// creating it on first use. An existing password account with the same
// email is not linked automatically.
func (s *AuthService) LoginOrRegisterGitHub(ctx context.Context, gh *auth.GitHubUser) (*AuthResult, error) {
	if gh == nil {
		return nil, fmt.Errorf("service/auth: GitHub user must not be nil")
	}

	user, err := s.users.GetByGitHubID(ctx, gh.ID)
	switch {
	case err == nil:
		if !user.IsActive {
			return nil, apperror.Unauthorized(auth.MsgUserInactive)
		}
		if err := s.touchLogin(ctx, user); err != nil {
			return nil, err
		}
		return s.issue(user)
	case !errors.Is(err, apperror.ErrNotFound):
		return nil, fmt.Errorf("service/auth: looking up GitHub user %d: %w", gh.ID, err)
	}

	email := gh.Email
	if email == "" {
		email = fmt.Sprintf("%d+%s@users.noreply.github.com", gh.ID, gh.Login)
	}
	name := gh.Name
	if name == "" {
		name = gh.Login
	}

	user = &model.User{
		Name:        name,
		Email:       email,
		GitHubID:    gh.ID,
		IsActive:    true,
		Preferences: model.DefaultPreferences(),
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}
	s.logger.Info("user registered via GitHub",
		slog.String("userID", user.ID),
		slog.String("login", gh.Login),
	)

	if err := s.touchLogin(ctx, user); err != nil {
		return nil, err
	}
	return s.issue(user)
}

func (s *AuthService) Me(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (s *AuthService) UpdatePreferences(ctx context.Context, userID string, in PreferencesInput) (*model.User, error) {
	var r rules
	r.check(in.Theme == "" || model.OneOf(in.Theme, Themes), "Theme must be one of: "+strings.Join(Themes, ", "))
	r.check(in.DefaultLanguage == "" || model.OneOf(in.DefaultLanguage, model.HistoryLanguages),
		"Default language must be one of: "+strings.Join(model.HistoryLanguages, ", "))
	r.check(in.DefaultFramework == "" || model.OneOf(in.DefaultFramework, model.Frameworks),
		"Default framework must be one of: "+strings.Join(model.Frameworks, ", "))
	if err := r.err(); err != nil {
		return nil, err
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	prefs := user.Preferences
	if in.Theme != "" {
		prefs.Theme = in.Theme
	}
	if in.DefaultLanguage != "" {
		prefs.DefaultLanguage = in.DefaultLanguage
	}
	if in.DefaultFramework != "" {
		prefs.DefaultFramework = in.DefaultFramework
	}

	if err := s.users.UpdatePreferences(ctx, userID, prefs); err != nil {
		return nil, err
	}
	user.Preferences = prefs
	return user, nil
}

func (s *AuthService) touchLogin(ctx context.Context, user *model.User) error {
	at := s.now().UTC()
	if err := s.users.UpdateLastLogin(ctx, user.ID, at); err != nil {
		return fmt.Errorf("service/auth: recording login for %s: %w", user.ID, err)
	}
	user.LastLogin = &at
	return nil
}

func (s *AuthService) issue(user *model.User) (*AuthResult, error) {
	token, err := s.tokens.Generate(user.ID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: generating token for user %s: %w", user.ID, err)
	}
	return &AuthResult{User: user, Token: token}, nil
}
