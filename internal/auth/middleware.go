package auth

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/sakif/codemind/internal/apperror"
	"github.com/sakif/codemind/internal/model"
)

// CookieName is the cookie carrying the session token.
const CookieName = "token"

// Rejection messages, one per failed step of RequireAuth.
const (
	MsgNoToken       = "Not authorized to access this route. Please login."
	MsgInvalidToken  = "Token is invalid or expired. Please login again."
	MsgUserNotFound  = "User not found. Token may be invalid."
	MsgUserInactive  = "User account is deactivated."
	msgInternalError = "An internal error occurred"
)

// contextKey is unexported so no other package can collide with our keys.
type contextKey string

const profileKey contextKey = "profile"

// UserFinder is the slice of the credential store the guard needs.
type UserFinder interface {
	GetByID(ctx context.Context, id string) (*model.User, error)
}

// RequireAuth rejects any request without a valid session.
//
// The token comes from the Authorization header ("Bearer <t>") or, failing
// that, the "token" cookie. After signature and expiry checks the subject is
// loaded from users; missing or deactivated accounts are rejected too. Every
// rejection is a 401 with a message naming the failed step. On success the
// user's public profile is stored in the request context.
func RequireAuth(tokens *TokenService, users UserFinder, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := tokenFromRequest(r)
			if raw == "" {
				reject(w, http.StatusUnauthorized, MsgNoToken)
				return
			}

			userID, err := tokens.Validate(raw)
			if err != nil {
				reject(w, http.StatusUnauthorized, MsgInvalidToken)
				return
			}

			user, err := users.GetByID(r.Context(), userID)
			if err != nil {
				if errors.Is(err, apperror.ErrNotFound) {
					reject(w, http.StatusUnauthorized, MsgUserNotFound)
					return
				}
				logger.Error("auth: loading session user",
					slog.String("userID", userID),
					slog.String("error", err.Error()),
				)
				reject(w, http.StatusInternalServerError, msgInternalError)
				return
			}
			if !user.IsActive {
				reject(w, http.StatusUnauthorized, MsgUserInactive)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithProfile(r.Context(), user.Profile())))
		})
	}
}

// WithProfile returns a copy of ctx carrying p. Handlers read it back with
// ProfileFromContext.
func WithProfile(ctx context.Context, p model.UserProfile) context.Context {
	return context.WithValue(ctx, profileKey, p)
}

// ProfileFromContext returns the authenticated user, if any.
func ProfileFromContext(ctx context.Context) (model.UserProfile, bool) {
	p, ok := ctx.Value(profileKey).(model.UserProfile)
	return p, ok && p.ID != ""
}

// UserIDFromContext returns ("", false) for anonymous requests.
func UserIDFromContext(ctx context.Context) (string, bool) {
	p, ok := ProfileFromContext(ctx)
	return p.ID, ok
}

func tokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if t, found := strings.CutPrefix(h, "Bearer "); found && strings.TrimSpace(t) != "" {
			return strings.TrimSpace(t)
		}
	}
	if c, err := r.Cookie(CookieName); err == nil {
		return c.Value
	}
	return ""
}

func reject(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "message": message})
}
