package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// MsgStoreUnavailable is returned while the database cannot be reached.
const MsgStoreUnavailable = "Database connection is not available. Please try again later."

// Pinger is satisfied by repository.Store.
type Pinger interface {
	Ping(ctx context.Context) error
}

const pingTimeout = 2 * time.Second

// RequireStore answers 503 without calling next when the store does not
// answer a ping.
func RequireStore(store Pinger, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), pingTimeout)
			err := store.Ping(ctx)
			cancel()
			if err != nil {
				logger.Error("store unavailable", slog.String("error", err.Error()))
				writeFailure(w, http.StatusServiceUnavailable, MsgStoreUnavailable, "SERVICE_UNAVAILABLE")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
