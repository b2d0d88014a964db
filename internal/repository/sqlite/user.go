package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/codemind/internal/apperror"
	"github.com/sakif/codemind/internal/model"
	"github.com/sakif/codemind/internal/repository"
)

var _ repository.UserRepository = (*UserDB)(nil)

// UserDB is the users table.
type UserDB struct {
	conn *sql.DB
}

const userColumns = `id, name, email, password_hash, github_id, is_active,
	theme, default_language, default_framework, last_login, created_at, updated_at`

// Create inserts user, filling in ID and timestamps. The email's UNIQUE index
// turns a duplicate into apperror.ErrConflict.
func (u *UserDB) Create(ctx context.Context, user *model.User) error {
	t := now()
	user.ID = xid.New().String()
	user.CreatedAt = t
	user.UpdatedAt = t

	var githubID sql.NullInt64
	if user.GitHubID != 0 {
		githubID = sql.NullInt64{Int64: user.GitHubID, Valid: true}
	}

	_, err := u.conn.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID,
		user.Name,
		user.Email,
		user.PasswordHash,
		githubID,
		user.IsActive,
		user.Preferences.Theme,
		user.Preferences.DefaultLanguage,
		user.Preferences.DefaultFramework,
		nil,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			if strings.Contains(err.Error(), "users.github_id") {
				return apperror.Conflict("GitHub account is already linked to a user")
			}
			return apperror.Conflict("User with this email already exists")
		}
		return fmt.Errorf("sqlite: inserting user %s: %w", user.Email, err)
	}
	return nil
}

func (u *UserDB) GetByID(ctx context.Context, id string) (*model.User, error) {
	return u.getOne(ctx, "id = ?", id, apperror.NotFound("user", id))
}

// GetByEmail matches the address exactly.
func (u *UserDB) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return u.getOne(ctx, "email = ?", email, apperror.NotFoundMessage("user not found"))
}

func (u *UserDB) GetByGitHubID(ctx context.Context, githubID int64) (*model.User, error) {
	return u.getOne(ctx, "github_id = ?", githubID, apperror.NotFoundMessage("user not found"))
}

func (u *UserDB) getOne(ctx context.Context, where string, arg any, notFound error) (*model.User, error) {
	var (
		user      model.User
		githubID  sql.NullInt64
		lastLogin sql.NullTime
	)
	err := u.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE `+where, arg,
	).Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.PasswordHash,
		&githubID,
		&user.IsActive,
		&user.Preferences.Theme,
		&user.Preferences.DefaultLanguage,
		&user.Preferences.DefaultFramework,
		&lastLogin,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, notFound
		}
		return nil, fmt.Errorf("sqlite: getting user by %s: %w", where, err)
	}

	user.GitHubID = githubID.Int64
	if lastLogin.Valid {
		t := lastLogin.Time
		user.LastLogin = &t
	}
	return &user, nil
}

func (u *UserDB) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	res, err := u.conn.ExecContext(ctx,
		`UPDATE users SET last_login = ?, updated_at = ? WHERE id = ?`,
		at.UTC(), now(), id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating last login for %s: %w", id, err)
	}
	return rowsAffectedOrNotFound(res, apperror.NotFound("user", id))
}

func (u *UserDB) UpdatePreferences(ctx context.Context, id string, prefs model.Preferences) error {
	res, err := u.conn.ExecContext(ctx,
		`UPDATE users SET theme = ?, default_language = ?, default_framework = ?, updated_at = ?
		 WHERE id = ?`,
		prefs.Theme, prefs.DefaultLanguage, prefs.DefaultFramework, now(), id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating preferences for %s: %w", id, err)
	}
	return rowsAffectedOrNotFound(res, apperror.NotFound("user", id))
}
