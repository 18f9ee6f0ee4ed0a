package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// contextKey is unexported so only this package can set or read the user ID.
type contextKey string

const userIDKey contextKey = "userID"

// RequireAuth enforces a valid bearer token on protected routes.
//
// It reads "Authorization: Bearer <jwt>", validates it and stores the user ID
// in the request context. Missing or invalid tokens get a 401 in the standard
// error envelope and the chain stops.
func RequireAuth(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearerToken(r)
			if !ok {
				unauthorized(w, "No authentication token, access denied")
				return
			}

			userID, err := tokens.Validate(raw)
			if err != nil {
				if errors.Is(err, ErrTokenExpired) {
					unauthorized(w, "Your token has expired! Please log in again.")
					return
				}
				unauthorized(w, "Invalid token. Please log in again!")
				return
			}

			ctx := WithUserID(r.Context(), userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WithUserID returns a context carrying userID. Exported for handler tests
// that bypass the middleware.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserIDFromContext returns the authenticated user's ID, or ("", false) for
// anonymous requests.
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok && id != ""
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(h, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	// message is one of the fixed strings above, never user input.
	_, _ = w.Write([]byte(`{"status":"error","message":"` + message + `"}`))
}
