package auth

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/codemind/internal/apperror"
	"github.com/sakif/codemind/internal/model"
)

type fakeFinder struct {
	users map[string]*model.User
	err   error
}

func (f *fakeFinder) GetByID(_ context.Context, id string) (*model.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	u, ok := f.users[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	return u, nil
}

func guardedHandler(t *testing.T, users *fakeFinder) (http.Handler, *TokenService) {
	t.Helper()
	ts := newTestTokenService(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := ProfileFromContext(r.Context())
		if !ok {
			t.Error("profile missing from context")
		}
		_ = json.NewEncoder(w).Encode(p)
	})
	return RequireAuth(ts, users, logger)(next), ts
}

func decodeMessage(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	assert.False(t, body.Success)
	return body.Message
}

func TestRequireAuth(t *testing.T) {
	users := &fakeFinder{users: map[string]*model.User{
		"u1": {ID: "u1", Name: "Alice", Email: "a@x.com", IsActive: true, Preferences: model.DefaultPreferences()},
		"u2": {ID: "u2", Name: "Bob", Email: "b@x.com", IsActive: false},
	}}
	h, ts := guardedHandler(t, users)

	good, _ := ts.Generate("u1")
	inactive, _ := ts.Generate("u2")
	ghost, _ := ts.Generate("nobody")
	expired, _ := ts.GenerateWithDuration("u1", -time.Minute)

	t.Run("bearer header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+good)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)

		require.Equal(t, http.StatusOK, rr.Code)
		var p model.UserProfile
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&p))
		assert.Equal(t, "u1", p.ID)
		assert.Equal(t, "a@x.com", p.Email)
		assert.Equal(t, "dark", p.Preferences.Theme)
	})

	t.Run("cookie fallback", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: CookieName, Value: good})
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("header wins over cookie", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+expired)
		req.AddCookie(&http.Cookie{Name: CookieName, Value: good})
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	rejections := []struct {
		name    string
		header  string
		wantMsg string
	}{
		{"no token", "", MsgNoToken},
		{"malformed header", "Token abc", MsgNoToken},
		{"expired", "Bearer " + expired, MsgInvalidToken},
		{"garbage", "Bearer nope", MsgInvalidToken},
		{"unknown user", "Bearer " + ghost, MsgUserNotFound},
		{"deactivated user", "Bearer " + inactive, MsgUserInactive},
	}
	for _, tt := range rejections {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)

			assert.Equal(t, http.StatusUnauthorized, rr.Code)
			assert.Equal(t, tt.wantMsg, decodeMessage(t, rr))
		})
	}
}

func TestRequireAuth_StoreFailure(t *testing.T) {
	h, ts := guardedHandler(t, &fakeFinder{err: errors.New("disk on fire")})
	token, _ := ts.Generate("u1")

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestUserIDFromContext_Anonymous(t *testing.T) {
	_, ok := UserIDFromContext(context.Background())
	assert.False(t, ok)
}
