// Package memory is a volatile repository.Store for development without a
// database. Everything is lost when the process exits; Durable reports false
// so the HTTP layer can warn clients.
//
// A single RWMutex guards all maps. Records are copied on the way in and on
// the way out, so callers never share memory with the store.
package memory

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/codemind/internal/apperror"
	"github.com/sakif/codemind/internal/model"
	"github.com/sakif/codemind/internal/repository"
)

var (
	_ repository.Store              = (*Store)(nil)
	_ repository.UserRepository     = (*users)(nil)
	_ repository.HistoryRepository  = (*histories)(nil)
	_ repository.ErrorLogRepository = (*errorLogs)(nil)
)

type Store struct {
	mu        sync.RWMutex
	users     map[string]*model.User
	histories map[string]*model.History
	errorLogs map[string]*model.ErrorLog
	clock     func() time.Time
}

func New() *Store {
	return &Store{
		users:     make(map[string]*model.User),
		histories: make(map[string]*model.History),
		errorLogs: make(map[string]*model.ErrorLog),
		clock:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) Users() repository.UserRepository { return (*users)(s) }

func (s *Store) Histories() repository.HistoryRepository { return (*histories)(s) }

func (s *Store) ErrorLogs() repository.ErrorLogRepository { return (*errorLogs)(s) }

// Durable is always false.
func (s *Store) Durable() bool { return false }

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }

// ---- users ----

type users Store

func (u *users) Create(_ context.Context, user *model.User) error {
	s := (*Store)(u)
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if existing.Email == user.Email {
			return apperror.Conflict("User with this email already exists")
		}
		if user.GitHubID != 0 && existing.GitHubID == user.GitHubID {
			return apperror.Conflict("GitHub account is already linked to a user")
		}
	}

	t := s.clock()
	user.ID = xid.New().String()
	user.CreatedAt = t
	user.UpdatedAt = t
	s.users[user.ID] = cloneUser(user)
	return nil
}

func (u *users) GetByID(_ context.Context, id string) (*model.User, error) {
	s := (*Store)(u)
	s.mu.RLock()
	defer s.mu.RUnlock()

	if user, ok := s.users[id]; ok {
		return cloneUser(user), nil
	}
	return nil, apperror.NotFound("user", id)
}

func (u *users) GetByEmail(_ context.Context, email string) (*model.User, error) {
	return u.find(func(user *model.User) bool { return user.Email == email })
}

func (u *users) GetByGitHubID(_ context.Context, githubID int64) (*model.User, error) {
	return u.find(func(user *model.User) bool { return githubID != 0 && user.GitHubID == githubID })
}

func (u *users) find(match func(*model.User) bool) (*model.User, error) {
	s := (*Store)(u)
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, user := range s.users {
		if match(user) {
			return cloneUser(user), nil
		}
	}
	return nil, apperror.NotFoundMessage("user not found")
}

func (u *users) UpdateLastLogin(_ context.Context, id string, at time.Time) error {
	return u.mutate(id, func(user *model.User) {
		t := at.UTC()
		user.LastLogin = &t
	})
}

func (u *users) UpdatePreferences(_ context.Context, id string, prefs model.Preferences) error {
	return u.mutate(id, func(user *model.User) { user.Preferences = prefs })
}

func (u *users) mutate(id string, fn func(*model.User)) error {
	s := (*Store)(u)
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[id]
	if !ok {
		return apperror.NotFound("user", id)
	}
	fn(user)
	user.UpdatedAt = s.clock()
	return nil
}

func cloneUser(u *model.User) *model.User {
	c := *u
	if u.LastLogin != nil {
		t := *u.LastLogin
		c.LastLogin = &t
	}
	return &c
}

// ---- history ----

type histories Store

func historyNotFound() error {
	return apperror.NotFoundMessage("Code history not found")
}

func (h *histories) Create(_ context.Context, rec *model.History) error {
	s := (*Store)(h)
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.clock()
	rec.ID = xid.New().String()
	rec.CreatedAt = t
	rec.UpdatedAt = t
	rec.Tags = model.NormalizeTags(rec.Tags)
	if rec.FixAttempts == nil {
		rec.FixAttempts = []model.FixAttempt{}
	}
	s.histories[rec.ID] = rec.Clone()
	return nil
}

func (h *histories) List(_ context.Context, userID string, f repository.HistoryFilter) ([]model.HistorySummary, int, error) {
	s := (*Store)(h)
	s.mu.RLock()
	defer s.mu.RUnlock()

	search := strings.ToLower(strings.TrimSpace(f.Search))
	matched := make([]*model.History, 0)
	for _, rec := range s.histories {
		if rec.UserID != userID {
			continue
		}
		if f.Language != "" && rec.Language != f.Language {
			continue
		}
		if f.FavoritesOnly && !rec.IsFavorite {
			continue
		}
		if search != "" && !matchesSearch(rec, search) {
			continue
		}
		matched = append(matched, rec)
	}

	key, desc := f.SortField()
	slices.SortFunc(matched, func(a, b *model.History) int {
		c := compareBy(key, a, b)
		if c == 0 {
			c = strings.Compare(a.ID, b.ID)
		}
		if desc {
			return -c
		}
		return c
	})

	total := len(matched)
	limit, offset := f.Limit, f.Offset
	if limit <= 0 {
		limit = repository.DefaultPageSize
	}
	limit = min(limit, repository.MaxPageSize)
	offset = max(offset, 0)

	out := make([]model.HistorySummary, 0, limit)
	for i := offset; i < total && len(out) < limit; i++ {
		out = append(out, matched[i].Summary())
	}
	return out, total, nil
}

func matchesSearch(rec *model.History, needle string) bool {
	if strings.Contains(strings.ToLower(rec.Title), needle) ||
		strings.Contains(strings.ToLower(rec.Prompt), needle) {
		return true
	}
	return slices.ContainsFunc(rec.Tags, func(t string) bool {
		return strings.Contains(strings.ToLower(t), needle)
	})
}

func compareBy(key string, a, b *model.History) int {
	switch key {
	case "updatedAt":
		return a.UpdatedAt.Compare(b.UpdatedAt)
	case "title":
		return strings.Compare(a.Title, b.Title)
	case "viewCount":
		return cmp.Compare(a.ViewCount, b.ViewCount)
	case "language":
		return strings.Compare(a.Language, b.Language)
	default:
		return a.CreatedAt.Compare(b.CreatedAt)
	}
}

func (h *histories) GetByID(_ context.Context, userID, id string) (*model.History, error) {
	s := (*Store)(h)
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, err := s.ownedHistory(userID, id)
	if err != nil {
		return nil, err
	}
	return rec.Clone(), nil
}

// ownedHistory must be called with mu held.
func (s *Store) ownedHistory(userID, id string) (*model.History, error) {
	rec, ok := s.histories[id]
	if !ok || rec.UserID != userID {
		return nil, historyNotFound()
	}
	return rec, nil
}

func (h *histories) IncrementViewCount(_ context.Context, userID, id string) (int, error) {
	s := (*Store)(h)
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.ownedHistory(userID, id)
	if err != nil {
		return 0, err
	}
	rec.ViewCount++
	return rec.ViewCount, nil
}

func (h *histories) Update(_ context.Context, userID, id string, upd repository.HistoryUpdate) (*model.History, error) {
	s := (*Store)(h)
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.ownedHistory(userID, id)
	if err != nil {
		return nil, err
	}
	if upd.Title != nil {
		rec.Title = *upd.Title
	}
	if upd.EditedCode != nil {
		rec.EditedCode = *upd.EditedCode
	}
	if upd.IsFavorite != nil {
		rec.IsFavorite = *upd.IsFavorite
	}
	if upd.Tags != nil {
		rec.Tags = model.NormalizeTags(upd.Tags)
	}
	rec.UpdatedAt = s.clock()
	return rec.Clone(), nil
}

func (h *histories) Delete(_ context.Context, userID, id string) error {
	s := (*Store)(h)
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.ownedHistory(userID, id); err != nil {
		return err
	}
	delete(s.histories, id)
	return nil
}

func (h *histories) ToggleFavorite(_ context.Context, userID, id string) (bool, error) {
	s := (*Store)(h)
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.ownedHistory(userID, id)
	if err != nil {
		return false, err
	}
	rec.IsFavorite = !rec.IsFavorite
	rec.UpdatedAt = s.clock()
	return rec.IsFavorite, nil
}

func (h *histories) AppendFix(_ context.Context, userID, id string, fix model.FixAttempt) error {
	s := (*Store)(h)
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.ownedHistory(userID, id)
	if err != nil {
		return err
	}
	t := s.clock()
	if fix.Timestamp.IsZero() {
		fix.Timestamp = t
	}
	rec.FixAttempts = append(rec.FixAttempts, fix)
	rec.EditedCode = fix.FixedCode
	rec.UpdatedAt = t
	return nil
}

func (h *histories) Stats(_ context.Context, userID string, since time.Time) (*model.HistoryStats, error) {
	s := (*Store)(h)
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &model.HistoryStats{ByLanguage: []model.LanguageCount{}}
	byLang := make(map[string]int)
	for _, rec := range s.histories {
		if rec.UserID != userID {
			continue
		}
		stats.Total++
		if rec.IsFavorite {
			stats.Favorites++
		}
		if !rec.CreatedAt.Before(since) {
			stats.RecentActivity++
		}
		byLang[rec.Language]++
	}
	for lang, n := range byLang {
		stats.ByLanguage = append(stats.ByLanguage, model.LanguageCount{Language: lang, Count: n})
	}
	model.SortLanguageCounts(stats.ByLanguage)
	return stats, nil
}

// ---- error logs ----

type errorLogs Store

func (e *errorLogs) Create(_ context.Context, log *model.ErrorLog) error {
	s := (*Store)(e)
	s.mu.Lock()
	defer s.mu.Unlock()

	log.ID = xid.New().String()
	log.CreatedAt = s.clock()
	c := *log
	s.errorLogs[log.ID] = &c
	return nil
}

func (e *errorLogs) ListByUser(_ context.Context, userID string, limit int) ([]model.ErrorLog, error) {
	s := (*Store)(e)
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = repository.DefaultPageSize
	}
	limit = min(limit, repository.MaxPageSize)

	logs := make([]model.ErrorLog, 0)
	for _, l := range s.errorLogs {
		if l.UserID == userID {
			logs = append(logs, *l)
		}
	}
	slices.SortFunc(logs, func(a, b model.ErrorLog) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(b.ID, a.ID)
	})
	if len(logs) > limit {
		logs = logs[:limit]
	}
	return logs, nil
}

func (e *errorLogs) MarkResolved(_ context.Context, userID, id string) (*model.ErrorLog, error) {
	s := (*Store)(e)
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.errorLogs[id]
	if !ok || l.UserID != userID {
		return nil, apperror.NotFoundMessage("Error log not found")
	}
	l.Resolved = true
	c := *l
	return &c, nil
}
