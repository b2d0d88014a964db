// Package repository declares the storage contracts the services depend on.
//
// Two backends implement every interface: repository/sqlite (durable) and
// repository/memory (process lifetime only). The backend is chosen once at
// startup and handed to the services as a Store.
//
// Every history and error-log operation takes the owner's user id. A record
// that exists but belongs to someone else is reported as apperror.ErrNotFound,
// never as forbidden.
package repository

import (
	"context"
	"time"

	"github.com/sakif/codemind/internal/model"
)

// Sort keys accepted by HistoryRepository.List. A leading "-" means
// descending.
var HistorySortKeys = []string{"createdAt", "updatedAt", "title", "viewCount", "language"}

const (
	DefaultHistorySort = "-createdAt"
	DefaultPageSize    = 20
	MaxPageSize        = 100
)

// HistoryFilter narrows and orders a history listing.
type HistoryFilter struct {
	Language      string // exact match; empty means any
	FavoritesOnly bool
	Search        string // case-insensitive substring over title, prompt and tags
	Sort          string // one of HistorySortKeys, optionally prefixed with "-"
	Limit         int
	Offset        int
}

// SortField splits Sort into a key and direction, falling back to
// DefaultHistorySort for unknown keys.
func (f HistoryFilter) SortField() (key string, desc bool) {
	s := f.Sort
	if s == "" {
		s = DefaultHistorySort
	}
	desc = s[0] == '-'
	if desc {
		s = s[1:]
	}
	for _, k := range HistorySortKeys {
		if k == s {
			return k, desc
		}
	}
	return "createdAt", true
}

// HistoryUpdate carries the fields PUT /history/{id} may change. Nil means
// "leave as is".
type HistoryUpdate struct {
	Title      *string
	EditedCode *string
	IsFavorite *bool
	Tags       []string // nil leaves tags untouched; empty clears them
}

type UserRepository interface {
	// Create fails with apperror.ErrConflict when the email is taken.
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	GetByGitHubID(ctx context.Context, githubID int64) (*model.User, error)
	UpdateLastLogin(ctx context.Context, id string, at time.Time) error
	UpdatePreferences(ctx context.Context, id string, prefs model.Preferences) error
}

type HistoryRepository interface {
	Create(ctx context.Context, h *model.History) error
	List(ctx context.Context, userID string, filter HistoryFilter) ([]model.HistorySummary, int, error)
	GetByID(ctx context.Context, userID, id string) (*model.History, error)
	// IncrementViewCount bumps the counter by one and returns the new value.
	IncrementViewCount(ctx context.Context, userID, id string) (int, error)
	Update(ctx context.Context, userID, id string, upd HistoryUpdate) (*model.History, error)
	Delete(ctx context.Context, userID, id string) error
	// ToggleFavorite flips the flag and returns the new value.
	ToggleFavorite(ctx context.Context, userID, id string) (bool, error)
	// AppendFix records a fix attempt and makes fixedCode the edited code.
	AppendFix(ctx context.Context, userID, id string, fix model.FixAttempt) error
	Stats(ctx context.Context, userID string, since time.Time) (*model.HistoryStats, error)
}

type ErrorLogRepository interface {
	Create(ctx context.Context, log *model.ErrorLog) error
	// ListByUser returns the newest logs first.
	ListByUser(ctx context.Context, userID string, limit int) ([]model.ErrorLog, error)
	MarkResolved(ctx context.Context, userID, id string) (*model.ErrorLog, error)
}

// Store bundles one backend's repositories with its lifecycle.
type Store interface {
	Users() UserRepository
	Histories() HistoryRepository
	ErrorLogs() ErrorLogRepository
	// Durable is false for backends that lose data on restart.
	Durable() bool
	Ping(ctx context.Context) error
	Close() error
}
