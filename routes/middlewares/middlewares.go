package middlewares

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/oauth"
	"github.com/gofrs/uuid"

	"github.com/mbolis/formpipe/model"
)

type contextKey string

const sessionKeyCtx = contextKey("session_key")

const SessionCookie = "formpipe_session"

// Session makes sure every caller carries a session key cookie, minting a
// fresh UUID for first-time visitors. Anonymous identities are keyed off it.
func Session(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(SessionCookie)
		if err == nil && cookie.Value != "" {
			ctx := context.WithValue(r.Context(), sessionKeyCtx, cookie.Value)
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		key, err := uuid.NewV4()
		if err != nil {
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		http.SetCookie(w, &http.Cookie{
			Path:     "/",
			Name:     SessionCookie,
			Value:    key.String(),
			MaxAge:   60 * 60 * 24 * 365,
			SameSite: http.SameSiteLaxMode,
		})

		ctx := context.WithValue(r.Context(), sessionKeyCtx, key.String())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAuth validates the bearer token on owner-only routes.
func RequireAuth(secret string) func(http.Handler) http.Handler {
	return oauth.Authorize(secret, nil)
}

// OptionalAuth runs bearer validation only when credentials are presented,
// leaving anonymous callers to their session identity.
func OptionalAuth(secret string) func(http.Handler) http.Handler {
	authorize := oauth.Authorize(secret, nil)
	return func(next http.Handler) http.Handler {
		authorized := authorize(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("authorization") == "" {
				next.ServeHTTP(w, r)
				return
			}
			authorized.ServeHTTP(w, r)
		})
	}
}

// Identity resolves the calling identity: the authenticated user when a
// valid token was presented, the anonymous session key otherwise.
func Identity(r *http.Request) model.Identity {
	if userID := UserID(r); userID != 0 {
		return model.Authenticated(userID)
	}
	key, _ := r.Context().Value(sessionKeyCtx).(string)
	return model.Anonymous(key)
}

// UserID returns the authenticated user id, or 0 for anonymous callers.
func UserID(r *http.Request) int {
	claims, ok := r.Context().Value(oauth.ClaimsContext).(map[string]string)
	if !ok {
		return 0
	}
	userID, err := strconv.Atoi(claims["user_id"])
	if err != nil {
		return 0
	}
	return userID
}
