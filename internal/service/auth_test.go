package service

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/sakif/codemind/internal/apperror"
	"github.com/sakif/codemind/internal/auth"
	"github.com/sakif/codemind/internal/model"
	"github.com/sakif/codemind/internal/repository"
	"github.com/sakif/codemind/internal/repository/memory"
)

// =========================================================================
// FAKES AND HELPERS
// =========================================================================

// failingUsers wraps a real repository and fails the configured calls, to
// simulate a database outage.
type failingUsers struct {
	repository.UserRepository
	getByEmailErr  error
	lastLoginErr   error
	getByGitHubErr error
}

func (f *failingUsers) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	if f.getByEmailErr != nil {
		return nil, f.getByEmailErr
	}
	return f.UserRepository.GetByEmail(ctx, email)
}

func (f *failingUsers) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	if f.lastLoginErr != nil {
		return f.lastLoginErr
	}
	return f.UserRepository.UpdateLastLogin(ctx, id, at)
}

func (f *failingUsers) GetByGitHubID(ctx context.Context, id int64) (*model.User, error) {
	if f.getByGitHubErr != nil {
		return nil, f.getByGitHubErr
	}
	return f.UserRepository.GetByGitHubID(ctx, id)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// newTestAuthService returns an AuthService backed by the in-memory store.
func newTestAuthService(t *testing.T, users repository.UserRepository) (*AuthService, *auth.TokenService) {
	t.Helper()

	ts, err := auth.NewTokenService("test-secret-at-least-16-chars!!")
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	// Cost 4 is the bcrypt minimum and keeps tests fast.
	ps := auth.NewPasswordServiceForTest(4)
	return NewAuthService(users, ts, ps, testLogger()), ts
}

func register(t *testing.T, svc *AuthService, name, email, password string) *AuthResult {
	t.Helper()
	res, err := svc.Register(context.Background(), RegisterInput{Name: name, Email: email, Password: password})
	if err != nil {
		t.Fatalf("Register(%q) error = %v", email, err)
	}
	return res
}

// =========================================================================
// Register / Login
// =========================================================================

func TestRegisterThenLogin(t *testing.T) {
	svc, ts := newTestAuthService(t, memory.New().Users())

	reg := register(t, svc, "Alice", "a@x.com", "secret1")
	if reg.Token == "" {
		t.Fatal("Register() returned empty token")
	}
	if reg.User.PasswordHash == "secret1" || reg.User.PasswordHash == "" {
		t.Errorf("password was not hashed: %q", reg.User.PasswordHash)
	}
	if reg.User.Preferences != model.DefaultPreferences() {
		t.Errorf("Preferences = %+v, want defaults", reg.User.Preferences)
	}

	login, err := svc.Login(context.Background(), LoginInput{Email: "a@x.com", Password: "secret1"})
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if login.User.ID != reg.User.ID {
		t.Errorf("Login user = %q, want %q", login.User.ID, reg.User.ID)
	}
	if login.User.LastLogin == nil {
		t.Error("Login() did not record LastLogin")
	}

	subject, err := ts.Validate(login.Token)
	if err != nil {
		t.Fatalf("Validate(login token) error = %v", err)
	}
	if subject != reg.User.ID {
		t.Errorf("token subject = %q, want %q", subject, reg.User.ID)
	}
}

func TestRegister_DuplicateEmail(t *testing.T) {
	users := memory.New().Users()
	svc, _ := newTestAuthService(t, users)
	register(t, svc, "Alice", "a@x.com", "secret1")

	_, err := svc.Register(context.Background(), RegisterInput{Name: "Alice Two", Email: "a@x.com", Password: "secret2"})
	if !errors.Is(err, apperror.ErrConflict) {
		t.Fatalf("second Register() error = %v, want ErrConflict", err)
	}
	if err.Error() != "User with this email already exists" {
		t.Errorf("message = %q", err.Error())
	}

	u, err := users.GetByEmail(context.Background(), "a@x.com")
	if err != nil {
		t.Fatalf("GetByEmail: %v", err)
	}
	if u.Name != "Alice" {
		t.Errorf("stored user was replaced: name = %q", u.Name)
	}
}

func TestRegister_Validation(t *testing.T) {
	svc, _ := newTestAuthService(t, memory.New().Users())

	tests := []struct {
		name    string
		input   RegisterInput
		details []string
	}{
		{
			name:    "short name",
			input:   RegisterInput{Name: " A ", Email: "a@x.com", Password: "secret1"},
			details: []string{"Name must be at least 2 characters long"},
		},
		{
			name:    "bad email",
			input:   RegisterInput{Name: "Alice", Email: "a@x", Password: "secret1"},
			details: []string{"Please provide a valid email address"},
		},
		{
			name:    "short password",
			input:   RegisterInput{Name: "Alice", Email: "a@x.com", Password: "12345"},
			details: []string{"Password must be at least 6 characters long"},
		},
		{
			name:  "everything wrong",
			input: RegisterInput{},
			details: []string{
				"Name must be at least 2 characters long",
				"Please provide a valid email address",
				"Password must be at least 6 characters long",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Register(context.Background(), tt.input)
			var appErr *apperror.AppError
			if !errors.As(err, &appErr) || !errors.Is(err, apperror.ErrValidation) {
				t.Fatalf("Register() error = %v, want validation error", err)
			}
			if len(appErr.Details) != len(tt.details) {
				t.Fatalf("Details = %v, want %v", appErr.Details, tt.details)
			}
			for i := range tt.details {
				if appErr.Details[i] != tt.details[i] {
					t.Errorf("Details[%d] = %q, want %q", i, appErr.Details[i], tt.details[i])
				}
			}
		})
	}
}

func TestLogin_InvalidCredentials(t *testing.T) {
	svc, _ := newTestAuthService(t, memory.New().Users())
	register(t, svc, "Alice", "a@x.com", "secret1")

	for _, in := range []LoginInput{
		{Email: "a@x.com", Password: "wrong-password"},
		{Email: "nobody@x.com", Password: "secret1"},
	} {
		_, err := svc.Login(context.Background(), in)
		if !errors.Is(err, apperror.ErrUnauthorized) {
			t.Fatalf("Login(%+v) error = %v, want ErrUnauthorized", in, err)
		}
		if err.Error() != "Invalid credentials" {
			t.Errorf("Login(%+v) message = %q", in, err.Error())
		}
	}
}

func TestLogin_MissingPassword(t *testing.T) {
	svc, _ := newTestAuthService(t, memory.New().Users())
	_, err := svc.Login(context.Background(), LoginInput{Email: "a@x.com"})
	if !errors.Is(err, apperror.ErrValidation) {
		t.Fatalf("Login() error = %v, want ErrValidation", err)
	}
}

func TestLogin_RepositoryError(t *testing.T) {
	users := &failingUsers{UserRepository: memory.New().Users(), getByEmailErr: errors.New("database is on fire")}
	svc, _ := newTestAuthService(t, users)

	_, err := svc.Login(context.Background(), LoginInput{Email: "a@x.com", Password: "secret1"})
	if err == nil || errors.Is(err, apperror.ErrUnauthorized) {
		t.Fatalf("Login() error = %v, want an internal error", err)
	}
}

func TestLogin_LastLoginFailure(t *testing.T) {
	users := &failingUsers{UserRepository: memory.New().Users()}
	svc, _ := newTestAuthService(t, users)
	register(t, svc, "Alice", "a@x.com", "secret1")

	users.lastLoginErr = errors.New("disk full")
	if _, err := svc.Login(context.Background(), LoginInput{Email: "a@x.com", Password: "secret1"}); err == nil {
		t.Fatal("Login() should fail when the login time cannot be stored")
	}
}

// =========================================================================
// Preferences / Me
// =========================================================================

func TestUpdatePreferences_OnlyNonEmptyFields(t *testing.T) {
	svc, _ := newTestAuthService(t, memory.New().Users())
	reg := register(t, svc, "Alice", "a@x.com", "secret1")

	user, err := svc.UpdatePreferences(context.Background(), reg.User.ID, PreferencesInput{Theme: "light"})
	if err != nil {
		t.Fatalf("UpdatePreferences() error = %v", err)
	}
	want := model.Preferences{Theme: "light", DefaultLanguage: "javascript", DefaultFramework: "react"}
	if user.Preferences != want {
		t.Errorf("Preferences = %+v, want %+v", user.Preferences, want)
	}

	me, err := svc.Me(context.Background(), reg.User.ID)
	if err != nil {
		t.Fatalf("Me() error = %v", err)
	}
	if me.Preferences != want {
		t.Errorf("stored Preferences = %+v, want %+v", me.Preferences, want)
	}
}

func TestUpdatePreferences_Invalid(t *testing.T) {
	svc, _ := newTestAuthService(t, memory.New().Users())
	reg := register(t, svc, "Alice", "a@x.com", "secret1")

	_, err := svc.UpdatePreferences(context.Background(), reg.User.ID, PreferencesInput{Theme: "neon"})
	if !errors.Is(err, apperror.ErrValidation) {
		t.Fatalf("UpdatePreferences() error = %v, want ErrValidation", err)
	}
}

func TestMe_UnknownUser(t *testing.T) {
	svc, _ := newTestAuthService(t, memory.New().Users())
	if _, err := svc.Me(context.Background(), "missing"); !errors.Is(err, apperror.ErrNotFound) {
		t.Fatalf("Me() error = %v, want ErrNotFound", err)
	}
}

// =========================================================================
// GitHub sign-in
// =========================================================================

func TestLoginOrRegisterGitHub_NewThenExisting(t *testing.T) {
	svc, _ := newTestAuthService(t, memory.New().Users())

	gh := &auth.GitHubUser{ID: 42, Login: "octocat", Email: "octo@github.com"}
	first, err := svc.LoginOrRegisterGitHub(context.Background(), gh)
	if err != nil {
		t.Fatalf("first LoginOrRegisterGitHub() error = %v", err)
	}
	if first.User.Name != "octocat" {
		t.Errorf("Name = %q, want login as fallback", first.User.Name)
	}

	second, err := svc.LoginOrRegisterGitHub(context.Background(), gh)
	if err != nil {
		t.Fatalf("second LoginOrRegisterGitHub() error = %v", err)
	}
	if second.User.ID != first.User.ID {
		t.Errorf("second sign-in created a new user: %q != %q", second.User.ID, first.User.ID)
	}
	if second.Token == "" {
		t.Error("no token issued")
	}
}

func TestLoginOrRegisterGitHub_HiddenEmail(t *testing.T) {
	svc, _ := newTestAuthService(t, memory.New().Users())

	res, err := svc.LoginOrRegisterGitHub(context.Background(), &auth.GitHubUser{ID: 7, Login: "ghost", Name: "Ghost"})
	if err != nil {
		t.Fatalf("LoginOrRegisterGitHub() error = %v", err)
	}
	if res.User.Email != "7+ghost@users.noreply.github.com" {
		t.Errorf("Email = %q", res.User.Email)
	}
	if res.User.Name != "Ghost" {
		t.Errorf("Name = %q", res.User.Name)
	}

	// No password was set, so password login must fail.
	_, err = svc.Login(context.Background(), LoginInput{Email: res.User.Email, Password: "anything"})
	if !errors.Is(err, apperror.ErrUnauthorized) {
		t.Errorf("password login for GitHub account error = %v, want ErrUnauthorized", err)
	}
}

func TestLoginOrRegisterGitHub_EmailTakenByPasswordAccount(t *testing.T) {
	svc, _ := newTestAuthService(t, memory.New().Users())
	register(t, svc, "Alice", "a@x.com", "secret1")

	_, err := svc.LoginOrRegisterGitHub(context.Background(), &auth.GitHubUser{ID: 9, Login: "alice", Email: "a@x.com"})
	if !errors.Is(err, apperror.ErrConflict) {
		t.Fatalf("error = %v, want ErrConflict", err)
	}
}

func TestLoginOrRegisterGitHub_Errors(t *testing.T) {
	svc, _ := newTestAuthService(t, memory.New().Users())
	if _, err := svc.LoginOrRegisterGitHub(context.Background(), nil); err == nil {
		t.Error("nil GitHub user should fail")
	}

	users := &failingUsers{UserRepository: memory.New().Users(), getByGitHubErr: errors.New("database is on fire")}
	svc, _ = newTestAuthService(t, users)
	if _, err := svc.LoginOrRegisterGitHub(context.Background(), &auth.GitHubUser{ID: 1, Login: "u"}); err == nil {
		t.Error("repository errors should propagate")
	}
}
