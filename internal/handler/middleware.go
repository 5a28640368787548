package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/trendz-app/auth-service/internal/service"
	"github.com/trendz-app/auth-service/internal/util"
)

type contextKey string

const userIDKey contextKey = "user_id"

// UserIDFromContext extracts the authenticated user id set by RequireSession
func UserIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	userID, ok := ctx.Value(userIDKey).(uuid.UUID)
	return userID, ok
}

// RequireSession resolves the session cookie and puts the user id into the
// request context. Requests without a resolvable session are rejected
// before the handler runs.
func (h *AuthHandler) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := h.sessionToken(r)

		userID, err := h.authService.Authenticate(r.Context(), token)
		if err != nil {
			if errors.Is(err, service.ErrUnauthorized) {
				h.respondWithError(w, http.StatusUnauthorized, service.ErrUnauthorized, "Authentication required")
				return
			}
			util.Error("Session lookup failed", util.ErrorField(err))
			h.respondWithError(w, http.StatusServiceUnavailable, service.ErrDependency, "Authentication unavailable")
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
