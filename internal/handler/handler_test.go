package handler_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/codemind/internal/ai"
	"github.com/sakif/codemind/internal/auth"
	"github.com/sakif/codemind/internal/codegen"
	"github.com/sakif/codemind/internal/handler"
	"github.com/sakif/codemind/internal/repository/memory"
	"github.com/sakif/codemind/internal/service"
)

const storeWarning = "store is volatile"

// envelope covers both Response and ListResponse.
type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Token   string          `json:"token"`
	User    json.RawMessage `json:"user"`
	Data    json.RawMessage `json:"data"`
	Warning string          `json:"warning"`
	Errors  []string        `json:"errors"`
	Count   int             `json:"count"`
	Total   int             `json:"total"`
	Page    int             `json:"page"`
	Pages   int             `json:"pages"`
}

// testAPI mounts the real handlers and services on an in-memory store with
// the AI disabled, so every generation takes the demo path.
type testAPI struct {
	t      *testing.T
	router chi.Router
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.New()

	tokens, err := auth.NewTokenService("handler-test-secret-0123456789")
	require.NoError(t, err)
	fallback, err := codegen.NewFallback()
	require.NoError(t, err)
	gateway := codegen.New(ai.Disabled{}, fallback, codegen.NewMetrics(prometheus.NewRegistry()), time.Second, logger)

	authH := handler.NewAuthHandler(
		service.NewAuthService(store.Users(), tokens, auth.NewPasswordServiceForTest(4), logger),
		nil, handler.CookieConfig{RedirectURL: "http://localhost:5173"}, storeWarning, logger,
	)
	historyH := handler.NewHistoryHandler(service.NewHistoryService(store.Histories(), logger), storeWarning, logger)
	codeH := handler.NewCodeHandler(service.NewCodeService(gateway, store.Histories(), store.ErrorLogs(), logger), logger)

	r := chi.NewRouter()
	r.NotFound(handler.HandleNotFound)
	r.Get("/health", handler.HandleHealth)
	r.Post("/api/auth/register", authH.HandleRegister)
	r.Post("/api/auth/login", authH.HandleLogin)
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(tokens, store.Users(), logger))
		r.Get("/api/auth/me", authH.HandleMe)
		r.Post("/api/auth/logout", authH.HandleLogout)
		r.Put("/api/auth/preferences", authH.HandleUpdatePreferences)

		r.Post("/api/code/generate", codeH.HandleGenerate)
		r.Post("/api/code/fix", codeH.HandleFix)
		r.Post("/api/code/explain", codeH.HandleExplain)
		r.Post("/api/code/optimize", codeH.HandleOptimize)
		r.Post("/api/code/convert", codeH.HandleConvert)
		r.Get("/api/code/errors", codeH.HandleListErrors)
		r.Patch("/api/code/errors/{id}/resolve", codeH.HandleResolveError)

		r.Get("/api/history", historyH.HandleList)
		r.Post("/api/history", historyH.HandleCreate)
		r.Get("/api/history/stats", historyH.HandleStats)
		r.Get("/api/history/{id}", historyH.HandleGet)
		r.Put("/api/history/{id}", historyH.HandleUpdate)
		r.Delete("/api/history/{id}", historyH.HandleDelete)
		r.Patch("/api/history/{id}/favorite", historyH.HandleToggleFavorite)
	})
	return &testAPI{t: t, router: r}
}

// do sends body (a string is sent as-is, anything else is JSON encoded)
// with an optional bearer token.
func (a *testAPI) do(method, path string, body any, token string) (*httptest.ResponseRecorder, envelope) {
	a.t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(a.t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	a.router.ServeHTTP(rr, req)

	var env envelope
	require.NoError(a.t, json.Unmarshal(rr.Body.Bytes(), &env), rr.Body.String())
	return rr, env
}

func (a *testAPI) register(name, email string) string {
	a.t.Helper()
	rr, env := a.do(http.MethodPost, "/api/auth/register",
		map[string]string{"name": name, "email": email, "password": "secret123"}, "")
	require.Equal(a.t, http.StatusCreated, rr.Code, env.Message)
	return env.Token
}

func decodeData(t *testing.T, env envelope, dst any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(env.Data, dst))
}

func TestRegisterAndLogin(t *testing.T) {
	api := newTestAPI(t)

	rr, env := api.do(http.MethodPost, "/api/auth/register",
		map[string]string{"name": "Ada", "email": "ada@example.com", "password": "secret123"}, "")
	require.Equal(t, http.StatusCreated, rr.Code)
	assert.True(t, env.Success)
	assert.NotEmpty(t, env.Token)
	assert.Equal(t, storeWarning, env.Warning)
	assert.Contains(t, string(env.User), `"email":"ada@example.com"`)
	assert.NotContains(t, string(env.User), "password")

	cookie := rr.Result().Cookies()
	require.Len(t, cookie, 1)
	assert.Equal(t, auth.CookieName, cookie[0].Name)
	assert.True(t, cookie[0].HttpOnly)

	rr, env = api.do(http.MethodPost, "/api/auth/login",
		map[string]string{"email": "ada@example.com", "password": "secret123"}, "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.NotEmpty(t, env.Token)

	rr, env = api.do(http.MethodPost, "/api/auth/login",
		map[string]string{"email": "ada@example.com", "password": "wrong-password"}, "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.False(t, env.Success)
	assert.Equal(t, "Invalid credentials", env.Message)
}

func TestRegisterRejects(t *testing.T) {
	api := newTestAPI(t)
	api.register("Ada", "ada@example.com")

	tests := []struct {
		name    string
		body    any
		message string
		detail  string
	}{
		{
			name:    "duplicate email",
			body:    map[string]string{"name": "Ada", "email": "ada@example.com", "password": "secret123"},
			message: "User with this email already exists",
		},
		{
			name:    "short password",
			body:    map[string]string{"name": "Bob", "email": "bob@example.com", "password": "123"},
			message: "Validation failed",
			detail:  "Password must be at least 6 characters long",
		},
		{
			name:    "bad email",
			body:    map[string]string{"name": "Bob", "email": "bob", "password": "secret123"},
			message: "Validation failed",
			detail:  "Please provide a valid email address",
		},
		{
			name:    "malformed JSON",
			body:    `{"name":`,
			message: "Invalid JSON request body",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr, env := api.do(http.MethodPost, "/api/auth/register", tt.body, "")
			assert.Equal(t, http.StatusBadRequest, rr.Code)
			assert.False(t, env.Success)
			assert.Equal(t, tt.message, env.Message)
			if tt.detail != "" {
				assert.Contains(t, env.Errors, tt.detail)
			}
		})
	}
}

func TestGuard(t *testing.T) {
	api := newTestAPI(t)
	token := api.register("Ada", "ada@example.com")

	rr, env := api.do(http.MethodGet, "/api/auth/me", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, auth.MsgNoToken, env.Message)

	rr, env = api.do(http.MethodGet, "/api/auth/me", nil, "not-a-token")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, auth.MsgInvalidToken, env.Message)

	rr, env = api.do(http.MethodGet, "/api/auth/me", nil, token)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, string(env.User), `"name":"Ada"`)

	// Cookie works when no header is sent.
	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.AddCookie(&http.Cookie{Name: auth.CookieName, Value: token})
	cookieRR := httptest.NewRecorder()
	api.router.ServeHTTP(cookieRR, req)
	assert.Equal(t, http.StatusOK, cookieRR.Code)
}

func TestLogoutExpiresCookie(t *testing.T) {
	api := newTestAPI(t)
	token := api.register("Ada", "ada@example.com")

	rr, env := api.do(http.MethodPost, "/api/auth/logout", nil, token)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "Logged out successfully", env.Message)

	cookies := rr.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, auth.CookieName, cookies[0].Name)
	assert.Empty(t, cookies[0].Value)
	assert.Less(t, cookies[0].MaxAge, 0)
}

func TestUpdatePreferences(t *testing.T) {
	api := newTestAPI(t)
	token := api.register("Ada", "ada@example.com")

	rr, env := api.do(http.MethodPut, "/api/auth/preferences", map[string]string{"theme": "light"}, token)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, string(env.User), `"theme":"light"`)

	rr, _ = api.do(http.MethodPut, "/api/auth/preferences", map[string]string{"theme": "neon"}, token)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestGenerateLoginPageInDemoMode(t *testing.T) {
	api := newTestAPI(t)
	token := api.register("Ada", "ada@example.com")

	rr, env := api.do(http.MethodPost, "/api/code/generate",
		map[string]string{"prompt": "Create a login page", "language": "html"}, token)
	require.Equal(t, http.StatusCreated, rr.Code, env.Message)
	assert.Equal(t, codegen.WarnGenerate, env.Warning)

	var data struct {
		Code      string `json:"code"`
		HistoryID string `json:"historyId"`
	}
	decodeData(t, env, &data)
	assert.Contains(t, data.Code, "Welcome Back")
	require.NotEmpty(t, data.HistoryID)

	rr, env = api.do(http.MethodGet, "/api/history/"+data.HistoryID, nil, token)
	require.Equal(t, http.StatusOK, rr.Code)
	var rec struct {
		Prompt        string `json:"prompt"`
		GeneratedCode string `json:"generatedCode"`
		ViewCount     int    `json:"viewCount"`
	}
	decodeData(t, env, &rec)
	assert.Equal(t, "Create a login page", rec.Prompt)
	assert.Equal(t, data.Code, rec.GeneratedCode)
	assert.Equal(t, 1, rec.ViewCount)
}

func TestGenerateValidation(t *testing.T) {
	api := newTestAPI(t)
	token := api.register("Ada", "ada@example.com")

	rr, env := api.do(http.MethodPost, "/api/code/generate",
		map[string]string{"prompt": "hi", "language": "cobol"}, token)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "Validation failed", env.Message)
	assert.Len(t, env.Errors, 2)

	rr, env = api.do(http.MethodGet, "/api/history", nil, token)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Zero(t, env.Total, "rejected requests persist nothing")
}

func TestCodeOperationsInDemoMode(t *testing.T) {
	api := newTestAPI(t)
	token := api.register("Ada", "ada@example.com")

	rr, env := api.do(http.MethodPost, "/api/code/explain",
		map[string]string{"code": "x = 1", "language": "python"}, token)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, codegen.WarnExplain, env.Warning)
	var explained struct {
		Explanation string `json:"explanation"`
	}
	decodeData(t, env, &explained)
	assert.NotEmpty(t, explained.Explanation)

	rr, env = api.do(http.MethodPost, "/api/code/optimize",
		map[string]string{"code": "x = 1", "language": "python"}, token)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, codegen.WarnOptimize, env.Warning)
	assert.Contains(t, string(env.Data), "x = 1")

	rr, env = api.do(http.MethodPost, "/api/code/convert",
		map[string]string{"code": "x = 1", "fromLanguage": "python"}, token)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "Code, fromLanguage, and toLanguage are required", env.Message)

	rr, env = api.do(http.MethodPost, "/api/code/explain", map[string]string{"code": "x = 1"}, token)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "Code and language are required", env.Message)
}

func TestFixIsLoggedAndResolvable(t *testing.T) {
	api := newTestAPI(t)
	token := api.register("Ada", "ada@example.com")

	_, env := api.do(http.MethodPost, "/api/code/generate",
		map[string]string{"prompt": "Print hello world", "language": "python"}, token)
	var gen struct {
		HistoryID string `json:"historyId"`
	}
	decodeData(t, env, &gen)

	rr, env := api.do(http.MethodPost, "/api/code/fix", map[string]string{
		"code":      "print(x)",
		"error":     "NameError: name 'x' is not defined",
		"language":  "python",
		"historyId": gen.HistoryID,
	}, token)
	require.Equal(t, http.StatusOK, rr.Code, env.Message)
	assert.Equal(t, codegen.WarnFix, env.Warning)
	var fixed struct {
		Code       string `json:"code"`
		ErrorLogID string `json:"errorLogId"`
	}
	decodeData(t, env, &fixed)
	assert.True(t, strings.HasPrefix(fixed.Code, "// Fixed (Demo)"))
	require.NotEmpty(t, fixed.ErrorLogID)

	rr, env = api.do(http.MethodGet, "/api/code/errors", nil, token)
	require.Equal(t, http.StatusOK, rr.Code)
	var logs []struct {
		ID            string `json:"id"`
		HistoryID     string `json:"codeHistoryId"`
		FixSuccessful bool   `json:"fixSuccessful"`
		Resolved      bool   `json:"resolved"`
	}
	decodeData(t, env, &logs)
	require.Len(t, logs, 1)
	assert.Equal(t, fixed.ErrorLogID, logs[0].ID)
	assert.Equal(t, gen.HistoryID, logs[0].HistoryID)
	assert.False(t, logs[0].FixSuccessful, "demo output is not a successful fix")

	rr, env = api.do(http.MethodPatch, "/api/code/errors/"+fixed.ErrorLogID+"/resolve", nil, token)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, string(env.Data), `"resolved":true`)

	other := api.register("Bob", "bob@example.com")
	rr, _ = api.do(http.MethodPatch, "/api/code/errors/"+fixed.ErrorLogID+"/resolve", nil, other)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func createHistory(t *testing.T, api *testAPI, token, title string) string {
	t.Helper()
	rr, env := api.do(http.MethodPost, "/api/history", map[string]any{
		"title":         title,
		"language":      "javascript",
		"prompt":        "a prompt for " + title,
		"generatedCode": "console.log('" + title + "');",
	}, token)
	require.Equal(t, http.StatusCreated, rr.Code, env.Message)
	var rec struct {
		ID string `json:"id"`
	}
	decodeData(t, env, &rec)
	return rec.ID
}

func TestHistoryListAndFavorites(t *testing.T) {
	api := newTestAPI(t)
	token := api.register("Ada", "ada@example.com")
	first := createHistory(t, api, token, "first")
	createHistory(t, api, token, "second")
	createHistory(t, api, token, "third")

	rr, env := api.do(http.MethodPatch, "/api/history/"+first+"/favorite", nil, token)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, string(env.Data), `"isFavorite":true`)

	rr, env = api.do(http.MethodGet, "/api/history?limit=2&page=1", nil, token)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 3, env.Total)
	assert.Equal(t, 2, env.Count)
	assert.Equal(t, 2, env.Pages)
	assert.Equal(t, storeWarning, env.Warning)

	rr, env = api.do(http.MethodGet, "/api/history?isFavorite=true", nil, token)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 1, env.Total)
	assert.Contains(t, string(env.Data), first)
	assert.NotContains(t, string(env.Data), "generatedCode", "summaries omit the code")

	rr, env = api.do(http.MethodGet, "/api/history/stats", nil, token)
	require.Equal(t, http.StatusOK, rr.Code)
	var stats struct {
		Total     int `json:"total"`
		Favorites int `json:"favorites"`
	}
	decodeData(t, env, &stats)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 1, stats.Favorites)
}

func TestHistoryUpdate(t *testing.T) {
	api := newTestAPI(t)
	token := api.register("Ada", "ada@example.com")
	id := createHistory(t, api, token, "draft")

	rr, env := api.do(http.MethodPut, "/api/history/"+id,
		map[string]any{"title": "final", "editedCode": "let x = 2;"}, token)
	require.Equal(t, http.StatusOK, rr.Code, env.Message)
	assert.Contains(t, string(env.Data), `"title":"final"`)
	assert.Contains(t, string(env.Data), `"editedCode":"let x = 2;"`)

	rr, _ = api.do(http.MethodPut, "/api/history/"+id, map[string]any{"title": "  "}, token)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHistoryIsOwnerScoped(t *testing.T) {
	api := newTestAPI(t)
	owner := api.register("Ada", "ada@example.com")
	other := api.register("Bob", "bob@example.com")
	id := createHistory(t, api, owner, "mine")

	rr, env := api.do(http.MethodDelete, "/api/history/"+id, nil, other)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "Code history not found", env.Message)

	rr, _ = api.do(http.MethodGet, "/api/history/"+id, nil, other)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr, _ = api.do(http.MethodGet, "/api/history/"+id, nil, owner)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr, env = api.do(http.MethodDelete, "/api/history/"+id, nil, owner)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "Code history deleted successfully", env.Message)

	rr, _ = api.do(http.MethodGet, "/api/history/"+id, nil, owner)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestHealthAndNotFound(t *testing.T) {
	api := newTestAPI(t)

	rr, env := api.do(http.MethodGet, "/health", nil, "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, env.Success)
	assert.Equal(t, "Server is running", env.Message)

	rr, env = api.do(http.MethodGet, "/nope", nil, "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.False(t, env.Success)
}

func TestBodyTooLarge(t *testing.T) {
	api := newTestAPI(t)
	big := `{"name":"` + strings.Repeat("a", handler.MaxBodyBytes+1) + `"}`

	rr, env := api.do(http.MethodPost, "/api/auth/register", big, "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "Request body is too large", env.Message)
}
