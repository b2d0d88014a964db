package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/codemind/internal/auth"
	"github.com/sakif/codemind/internal/service"
)

const stateCookieName = "oauth_state"

// AuthHandler serves registration, login, the session endpoints and the
// optional GitHub sign-in.
//
// HANDLER RESPONSIBILITIES:
//   - HandleRegister / HandleLogin → issue a session (token + cookie)
//   - HandleMe / HandleUpdatePreferences → read and edit the signed-in user
//   - HandleLogout → expire the cookie
//   - HandleGitHubLogin / HandleGitHubCallback → OAuth round trip
type AuthHandler struct {
	auth    *service.AuthService
	github  *auth.GitHubProvider // nil when GitHub sign-in is not configured
	cookies CookieConfig
	warning string
	logger  *slog.Logger
}

// CookieConfig controls the session cookie and where the browser lands
// after GitHub sign-in.
type CookieConfig struct {
	Secure      bool
	RedirectURL string
}

func NewAuthHandler(
	svc *service.AuthService,
	github *auth.GitHubProvider,
	cookies CookieConfig,
	storeWarning string,
	logger *slog.Logger,
) *AuthHandler {
	return &AuthHandler{
		auth:    svc,
		github:  github,
		cookies: cookies,
		warning: storeWarning,
		logger:  logger,
	}
}

// GitHubEnabled reports whether the OAuth routes should be mounted.
func (h *AuthHandler) GitHubEnabled() bool { return h.github != nil }

// HandleRegister creates an account.
//
// HTTP: POST /api/auth/register → 201
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var in service.RegisterInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, h.logger, err)
		return
	}

	res, err := h.auth.Register(r.Context(), in)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.sendSession(w, http.StatusCreated, res)
}

// HandleLogin checks credentials.
//
// HTTP: POST /api/auth/login → 200
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var in service.LoginInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, h.logger, err)
		return
	}

	res, err := h.auth.Login(r.Context(), in)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.sendSession(w, http.StatusOK, res)
}

// HandleMe returns the full user record of the signed-in user.
//
// HTTP: GET /api/auth/me
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	user, err := h.auth.Me(r.Context(), userID(r))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, User: user, Warning: h.warning})
}

// HandleLogout expires the session cookie. Tokens are stateless, so a
// client holding a bearer token can keep using it until it expires.
//
// HTTP: POST /api/auth/logout
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cookies.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, Response{Success: true, Message: "Logged out successfully"})
}

// HandleUpdatePreferences replaces the non-empty preference fields.
//
// HTTP: PUT /api/auth/preferences
func (h *AuthHandler) HandleUpdatePreferences(w http.ResponseWriter, r *http.Request) {
	var in service.PreferencesInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, h.logger, err)
		return
	}

	user, err := h.auth.UpdatePreferences(r.Context(), userID(r), in)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, User: user, Warning: h.warning})
}

// HandleGitHubLogin redirects the browser to GitHub's consent page.
//
// HTTP: GET /api/auth/github/login
//
// CSRF PROTECTION VIA STATE:
// A random state value is stored in a short-lived HttpOnly cookie and sent
// to GitHub; the callback only proceeds when both match.
func (h *AuthHandler) HandleGitHubLogin(w http.ResponseWriter, r *http.Request) {
	state := xid.New().String()
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/",
		MaxAge:   600,
		HttpOnly: true,
		Secure:   h.cookies.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, h.github.AuthURL(state), http.StatusTemporaryRedirect)
}

// HandleGitHubCallback finishes the OAuth flow: check state, exchange the
// code, sign the user in and send the browser back to the frontend with
// the session cookie set.
//
// HTTP: GET /api/auth/github/callback?code=xxx&state=yyy
func (h *AuthHandler) HandleGitHubCallback(w http.ResponseWriter, r *http.Request) {
	stateCookie, err := r.Cookie(stateCookieName)
	if err != nil || stateCookie.Value == "" || r.URL.Query().Get("state") != stateCookie.Value {
		h.logger.Warn("github callback: state mismatch")
		writeJSON(w, http.StatusBadRequest, Response{Message: "Invalid OAuth state"})
		return
	}
	// Single use.
	http.SetCookie(w, &http.Cookie{Name: stateCookieName, Value: "", Path: "/", MaxAge: -1})

	if errParam := r.URL.Query().Get("error"); errParam != "" {
		h.logger.Info("github callback: authorization denied", slog.String("error", errParam))
		http.Redirect(w, r, h.cookies.RedirectURL+"/?auth=denied", http.StatusSeeOther)
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		writeJSON(w, http.StatusBadRequest, Response{Message: "Missing OAuth code"})
		return
	}

	ghUser, err := h.github.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("github callback: exchange failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadGateway, Response{Message: "GitHub authentication failed"})
		return
	}

	res, err := h.auth.LoginOrRegisterGitHub(r.Context(), ghUser)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	h.setSessionCookie(w, res.Token)
	http.Redirect(w, r, h.cookies.RedirectURL+"/?auth=success", http.StatusSeeOther)
}

func (h *AuthHandler) sendSession(w http.ResponseWriter, status int, res *service.AuthResult) {
	h.setSessionCookie(w, res.Token)
	writeJSON(w, status, Response{
		Success: true,
		Token:   res.Token,
		User:    res.User.Profile(),
		Warning: h.warning,
	})
}

func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    token,
		Path:     "/",
		Expires:  time.Now().Add(auth.TokenTTL),
		HttpOnly: true,
		Secure:   h.cookies.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}
