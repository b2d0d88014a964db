// Package repotest holds behaviour tests every repository.Store backend must
// pass. Backends call Run from their own _test.go files.
package repotest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/codemind/internal/apperror"
	"github.com/sakif/codemind/internal/model"
	"github.com/sakif/codemind/internal/repository"
)

// Factory returns a fresh, empty store. It should register its own cleanup.
type Factory func(t *testing.T) repository.Store

// Run executes the whole suite against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s repository.Store)
	}{
		{"UserCreateAndLookup", testUserCreateAndLookup},
		{"UserDuplicateEmail", testUserDuplicateEmail},
		{"UserUpdates", testUserUpdates},
		{"HistoryOwnership", testHistoryOwnership},
		{"HistoryListFilters", testHistoryListFilters},
		{"HistoryListPagingAndSort", testHistoryListPagingAndSort},
		{"HistoryViewCount", testHistoryViewCount},
		{"HistoryUpdate", testHistoryUpdate},
		{"HistoryToggleFavorite", testHistoryToggleFavorite},
		{"HistoryAppendFix", testHistoryAppendFix},
		{"HistoryDelete", testHistoryDelete},
		{"HistoryStats", testHistoryStats},
		{"ErrorLogs", testErrorLogs},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, newStore(t))
		})
	}
}

func newUser(t *testing.T, s repository.Store, email string) *model.User {
	t.Helper()
	u := &model.User{
		Name:         "User " + email,
		Email:        email,
		PasswordHash: "$2a$04$hash",
		IsActive:     true,
		Preferences:  model.DefaultPreferences(),
	}
	require.NoError(t, s.Users().Create(context.Background(), u))
	return u
}

func newHistory(t *testing.T, s repository.Store, owner, title, language string, tags ...string) *model.History {
	t.Helper()
	h := &model.History{
		UserID:        owner,
		Title:         title,
		Language:      language,
		Framework:     model.DefaultFramework,
		Styling:       model.DefaultStyling,
		Prompt:        "prompt for " + title,
		GeneratedCode: "code for " + title,
		AIProvider:    model.DefaultAIProvider,
		Tags:          tags,
	}
	require.NoError(t, s.Histories().Create(context.Background(), h))
	return h
}

func testUserCreateAndLookup(t *testing.T, s repository.Store) {
	ctx := context.Background()
	u := newUser(t, s, "alice@x.com")
	require.NotEmpty(t, u.ID)
	assert.False(t, u.CreatedAt.IsZero())

	byID, err := s.Users().GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice@x.com", byID.Email)
	assert.Equal(t, "$2a$04$hash", byID.PasswordHash)
	assert.True(t, byID.IsActive)
	assert.Equal(t, model.DefaultPreferences(), byID.Preferences)
	assert.Nil(t, byID.LastLogin)

	byEmail, err := s.Users().GetByEmail(ctx, "alice@x.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, byEmail.ID)

	// Exact match only.
	_, err = s.Users().GetByEmail(ctx, "Alice@x.com")
	assert.True(t, errors.Is(err, apperror.ErrNotFound), "got %v", err)

	_, err = s.Users().GetByID(ctx, "missing")
	assert.True(t, errors.Is(err, apperror.ErrNotFound), "got %v", err)

	gh := &model.User{Name: "octo", Email: "octo@x.com", GitHubID: 42, IsActive: true, Preferences: model.DefaultPreferences()}
	require.NoError(t, s.Users().Create(ctx, gh))
	found, err := s.Users().GetByGitHubID(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, gh.ID, found.ID)
}

func testUserDuplicateEmail(t *testing.T, s repository.Store) {
	ctx := context.Background()
	newUser(t, s, "dup@x.com")

	err := s.Users().Create(ctx, &model.User{Name: "Other", Email: "dup@x.com", IsActive: true})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperror.ErrConflict), "got %v", err)
	assert.Equal(t, "User with this email already exists", err.Error())

	// Only the first record exists.
	u, err := s.Users().GetByEmail(ctx, "dup@x.com")
	require.NoError(t, err)
	assert.Equal(t, "User dup@x.com", u.Name)
}

func testUserUpdates(t *testing.T, s repository.Store) {
	ctx := context.Background()
	u := newUser(t, s, "upd@x.com")

	at := time.Now().Add(-time.Minute).UTC().Truncate(time.Second)
	require.NoError(t, s.Users().UpdateLastLogin(ctx, u.ID, at))

	prefs := model.Preferences{Theme: "light", DefaultLanguage: "python", DefaultFramework: "flask"}
	require.NoError(t, s.Users().UpdatePreferences(ctx, u.ID, prefs))

	got, err := s.Users().GetByID(ctx, u.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastLogin)
	assert.True(t, got.LastLogin.Equal(at), "last login %v, want %v", got.LastLogin, at)
	assert.Equal(t, prefs, got.Preferences)

	err = s.Users().UpdatePreferences(ctx, "missing", prefs)
	assert.True(t, errors.Is(err, apperror.ErrNotFound), "got %v", err)
}

func testHistoryOwnership(t *testing.T, s repository.Store) {
	ctx := context.Background()
	alice := newUser(t, s, "a@x.com")
	bob := newUser(t, s, "b@x.com")
	h := newHistory(t, s, alice.ID, "alice page", "html")

	_, err := s.Histories().GetByID(ctx, bob.ID, h.ID)
	assert.True(t, errors.Is(err, apperror.ErrNotFound), "get: %v", err)

	_, err = s.Histories().IncrementViewCount(ctx, bob.ID, h.ID)
	assert.True(t, errors.Is(err, apperror.ErrNotFound), "views: %v", err)

	title := "stolen"
	_, err = s.Histories().Update(ctx, bob.ID, h.ID, repository.HistoryUpdate{Title: &title})
	assert.True(t, errors.Is(err, apperror.ErrNotFound), "update: %v", err)

	_, err = s.Histories().ToggleFavorite(ctx, bob.ID, h.ID)
	assert.True(t, errors.Is(err, apperror.ErrNotFound), "favorite: %v", err)

	err = s.Histories().AppendFix(ctx, bob.ID, h.ID, model.FixAttempt{Error: "e", FixedCode: "x"})
	assert.True(t, errors.Is(err, apperror.ErrNotFound), "fix: %v", err)

	err = s.Histories().Delete(ctx, bob.ID, h.ID)
	assert.True(t, errors.Is(err, apperror.ErrNotFound), "delete: %v", err)

	list, total, err := s.Histories().List(ctx, bob.ID, repository.HistoryFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Zero(t, total)

	// Alice's record survived every attempt untouched.
	got, err := s.Histories().GetByID(ctx, alice.ID, h.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice page", got.Title)
	assert.Zero(t, got.ViewCount)
	assert.False(t, got.IsFavorite)
	assert.Empty(t, got.FixAttempts)
	assert.Equal(t, alice.ID, got.UserID)
}

func testHistoryListFilters(t *testing.T, s repository.Store) {
	ctx := context.Background()
	u := newUser(t, s, "f@x.com")
	newHistory(t, s, u.ID, "Login Form", "html", "auth")
	fav := newHistory(t, s, u.ID, "Sorting", "python", "algorithms")
	newHistory(t, s, u.ID, "Navbar", "react", "UI", "Layout")
	_, err := s.Histories().ToggleFavorite(ctx, u.ID, fav.ID)
	require.NoError(t, err)

	tests := []struct {
		name   string
		filter repository.HistoryFilter
		want   []string
	}{
		{"language", repository.HistoryFilter{Language: "python"}, []string{"Sorting"}},
		{"favorites only", repository.HistoryFilter{FavoritesOnly: true}, []string{"Sorting"}},
		{"search title case-insensitive", repository.HistoryFilter{Search: "LOGIN"}, []string{"Login Form"}},
		{"search prompt", repository.HistoryFilter{Search: "prompt for nav"}, []string{"Navbar"}},
		{"search tags", repository.HistoryFilter{Search: "layout"}, []string{"Navbar"}},
		{"search wildcard is literal", repository.HistoryFilter{Search: "%"}, []string{}},
		{"combined", repository.HistoryFilter{Language: "html", Search: "sort"}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			list, total, err := s.Histories().List(ctx, u.ID, tt.filter)
			require.NoError(t, err)
			titles := make([]string, 0, len(list))
			for _, h := range list {
				titles = append(titles, h.Title)
			}
			assert.ElementsMatch(t, tt.want, titles)
			assert.Equal(t, len(tt.want), total)
		})
	}
}

func testHistoryListPagingAndSort(t *testing.T, s repository.Store) {
	ctx := context.Background()
	u := newUser(t, s, "p@x.com")
	for i := range 5 {
		newHistory(t, s, u.ID, fmt.Sprintf("item-%d", i), "c")
		time.Sleep(2 * time.Millisecond) // distinct creation times
	}

	page, total, err := s.Histories().List(ctx, u.ID, repository.HistoryFilter{Limit: 2, Offset: 0})
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, page, 2)
	assert.Equal(t, "item-4", page[0].Title, "default sort is newest first")
	assert.Equal(t, "item-3", page[1].Title)

	page, _, err = s.Histories().List(ctx, u.ID, repository.HistoryFilter{Limit: 2, Offset: 4})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "item-0", page[0].Title)

	page, _, err = s.Histories().List(ctx, u.ID, repository.HistoryFilter{Sort: "title", Limit: 10})
	require.NoError(t, err)
	require.Len(t, page, 5)
	assert.Equal(t, "item-0", page[0].Title)
	assert.Equal(t, "item-4", page[4].Title)

	page, _, err = s.Histories().List(ctx, u.ID, repository.HistoryFilter{Sort: "nonsense", Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, "item-4", page[0].Title, "unknown sort falls back to newest first")
}

func testHistoryViewCount(t *testing.T, s repository.Store) {
	ctx := context.Background()
	u := newUser(t, s, "v@x.com")
	h := newHistory(t, s, u.ID, "viewed", "java")

	for want := 1; want <= 2; want++ {
		got, err := s.Histories().IncrementViewCount(ctx, u.ID, h.ID)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	rec, err := s.Histories().GetByID(ctx, u.ID, h.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, rec.ViewCount)
}

func testHistoryUpdate(t *testing.T, s repository.Store) {
	ctx := context.Background()
	u := newUser(t, s, "u@x.com")
	h := newHistory(t, s, u.ID, "before", "typescript", "old")

	title := "after"
	code := "const x = 1;"
	fav := true
	got, err := s.Histories().Update(ctx, u.ID, h.ID, repository.HistoryUpdate{
		Title:      &title,
		EditedCode: &code,
		IsFavorite: &fav,
		Tags:       []string{" new ", "new", "ts"},
	})
	require.NoError(t, err)
	assert.Equal(t, "after", got.Title)
	assert.Equal(t, code, got.CurrentCode())
	assert.True(t, got.IsFavorite)
	assert.Equal(t, []string{"new", "ts"}, got.Tags)

	// Nil fields are left alone.
	got, err = s.Histories().Update(ctx, u.ID, h.ID, repository.HistoryUpdate{})
	require.NoError(t, err)
	assert.Equal(t, "after", got.Title)
	assert.Equal(t, []string{"new", "ts"}, got.Tags)

	stored, err := s.Histories().GetByID(ctx, u.ID, h.ID)
	require.NoError(t, err)
	assert.Equal(t, "code for before", stored.GeneratedCode)
	assert.Equal(t, code, stored.EditedCode)
}

func testHistoryToggleFavorite(t *testing.T, s repository.Store) {
	ctx := context.Background()
	u := newUser(t, s, "t@x.com")
	h := newHistory(t, s, u.ID, "fav", "nodejs")

	on, err := s.Histories().ToggleFavorite(ctx, u.ID, h.ID)
	require.NoError(t, err)
	assert.True(t, on)

	off, err := s.Histories().ToggleFavorite(ctx, u.ID, h.ID)
	require.NoError(t, err)
	assert.False(t, off)

	rec, err := s.Histories().GetByID(ctx, u.ID, h.ID)
	require.NoError(t, err)
	assert.False(t, rec.IsFavorite, "two toggles restore the original state")
}

func testHistoryAppendFix(t *testing.T, s repository.Store) {
	ctx := context.Background()
	u := newUser(t, s, "fix@x.com")
	h := newHistory(t, s, u.ID, "buggy", "python")

	require.NoError(t, s.Histories().AppendFix(ctx, u.ID, h.ID, model.FixAttempt{Error: "NameError", FixedCode: "fixed-1"}))
	require.NoError(t, s.Histories().AppendFix(ctx, u.ID, h.ID, model.FixAttempt{Error: "TypeError", FixedCode: "fixed-2"}))

	rec, err := s.Histories().GetByID(ctx, u.ID, h.ID)
	require.NoError(t, err)
	require.Len(t, rec.FixAttempts, 2)
	assert.Equal(t, "NameError", rec.FixAttempts[0].Error)
	assert.Equal(t, "fixed-2", rec.FixAttempts[1].FixedCode)
	assert.False(t, rec.FixAttempts[0].Timestamp.IsZero())
	assert.Equal(t, "fixed-2", rec.EditedCode)
}

func testHistoryDelete(t *testing.T, s repository.Store) {
	ctx := context.Background()
	u := newUser(t, s, "d@x.com")
	h := newHistory(t, s, u.ID, "doomed", "c")
	require.NoError(t, s.Histories().AppendFix(ctx, u.ID, h.ID, model.FixAttempt{Error: "e", FixedCode: "f"}))

	require.NoError(t, s.Histories().Delete(ctx, u.ID, h.ID))

	_, err := s.Histories().GetByID(ctx, u.ID, h.ID)
	assert.True(t, errors.Is(err, apperror.ErrNotFound), "got %v", err)

	err = s.Histories().Delete(ctx, u.ID, h.ID)
	assert.True(t, errors.Is(err, apperror.ErrNotFound), "second delete: %v", err)
}

func testHistoryStats(t *testing.T, s repository.Store) {
	ctx := context.Background()
	u := newUser(t, s, "s@x.com")
	other := newUser(t, s, "o@x.com")
	newHistory(t, s, u.ID, "a", "python")
	b := newHistory(t, s, u.ID, "b", "python")
	newHistory(t, s, u.ID, "c", "html")
	newHistory(t, s, other.ID, "x", "java")
	_, err := s.Histories().ToggleFavorite(ctx, u.ID, b.ID)
	require.NoError(t, err)

	stats, err := s.Histories().Stats(ctx, u.ID, time.Now().Add(-7*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 1, stats.Favorites)
	assert.Equal(t, 3, stats.RecentActivity)
	assert.Equal(t, []model.LanguageCount{{Language: "python", Count: 2}, {Language: "html", Count: 1}}, stats.ByLanguage)

	future, err := s.Histories().Stats(ctx, u.ID, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Zero(t, future.RecentActivity)

	empty, err := s.Histories().Stats(ctx, "nobody", time.Now())
	require.NoError(t, err)
	assert.Zero(t, empty.Total)
	assert.NotNil(t, empty.ByLanguage)
}

func testErrorLogs(t *testing.T, s repository.Store) {
	ctx := context.Background()
	u := newUser(t, s, "e@x.com")
	other := newUser(t, s, "e2@x.com")

	first := &model.ErrorLog{UserID: u.ID, ErrorType: model.ErrorTypeRuntime, ErrorMessage: "boom", Language: "c", FixAttempted: true}
	require.NoError(t, s.ErrorLogs().Create(ctx, first))
	time.Sleep(2 * time.Millisecond)
	second := &model.ErrorLog{UserID: u.ID, ErrorType: model.ErrorTypeRuntime, ErrorMessage: "bang", Language: "c", FixAttempted: true, FixSuccessful: true, AIResponse: "ok"}
	require.NoError(t, s.ErrorLogs().Create(ctx, second))
	require.NotEmpty(t, first.ID)

	logs, err := s.ErrorLogs().ListByUser(ctx, u.ID, 10)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "bang", logs[0].ErrorMessage, "newest first")
	assert.True(t, logs[0].FixSuccessful)
	assert.False(t, logs[1].FixSuccessful)

	_, err = s.ErrorLogs().MarkResolved(ctx, other.ID, first.ID)
	assert.True(t, errors.Is(err, apperror.ErrNotFound), "got %v", err)

	resolved, err := s.ErrorLogs().MarkResolved(ctx, u.ID, first.ID)
	require.NoError(t, err)
	assert.True(t, resolved.Resolved)
	assert.Equal(t, "boom", resolved.ErrorMessage)

	none, err := s.ErrorLogs().ListByUser(ctx, other.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}
