package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/sakif/game-market/internal/apperror"
	"github.com/sakif/game-market/internal/model"
)

// SessionCookieName is the HttpOnly cookie holding the signed session token.
const SessionCookieName = "session"

// AdminUsername is the fixed Basic auth user for /api/admin routes.
const AdminUsername = "admin"

// contextKey is an unexported type used for context keys in this package.
//
// WHY A CUSTOM TYPE FOR CONTEXT KEYS?
// context.WithValue uses any as the key type. If you use a plain string like
// context.WithValue(ctx, "userID", id), ANY package that knows the string "userID"
// can read or shadow your value. Using a package-private type prevents collisions.
type contextKey string

const userIDKey contextKey = "userID"

// Authenticator resolves a credential to a freshly synced user.
//
// Both methods upsert the user from the credential's claims before
// returning, so handlers behind RequireAuth can rely on the user row
// existing. Credential problems come back as apperror.ErrUnauthorized;
// anything else is an infrastructure failure.
type Authenticator interface {
	AuthenticateSession(ctx context.Context, token string) (*model.User, error)
	AuthenticateBearer(ctx context.Context, token string) (*model.User, error)
}

// RequireAuth is a middleware that enforces authentication on protected routes.
//
// It accepts either the session cookie (browser flow) or an
// "Authorization: Bearer <id token>" header (API clients), resolves it to a
// user, and stores the userID in the request context. A missing or invalid
// credential yields 401 and stops the request chain.
//
// MIDDLEWARE PATTERN IN GO:
// A middleware is a function that takes an http.Handler and returns a new
// http.Handler that wraps it:
//
//	func Middleware(next http.Handler) http.Handler {
//	    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
//	        // ... do stuff before the handler ...
//	        next.ServeHTTP(w, r)
//	    })
//	}
func RequireAuth(a Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, err := authenticate(r, a)
			if err != nil {
				if errors.Is(err, apperror.ErrUnauthorized) {
					writeAuthError(w, http.StatusUnauthorized, "unauthorized", "valid authentication required")
					return
				}
				// The claims' email already belongs to another account.
				if errors.Is(err, apperror.ErrConflict) {
					writeAuthError(w, http.StatusConflict, "conflict", "account email is already in use")
					return
				}
				writeAuthError(w, http.StatusInternalServerError, "internal_error", "an unexpected error occurred")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), user.ID)))
		})
	}
}

// authenticate prefers the bearer header over the cookie: an API client
// that sends a token explicitly means that identity.
func authenticate(r *http.Request, a Authenticator) (*model.User, error) {
	if h := r.Header.Get("Authorization"); h != "" {
		token, ok := strings.CutPrefix(h, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			return nil, apperror.Unauthorized("malformed authorization header")
		}
		return a.AuthenticateBearer(r.Context(), strings.TrimSpace(token))
	}

	cookie, err := r.Cookie(SessionCookieName)
	if err != nil || cookie.Value == "" {
		return nil, apperror.Unauthorized("no session")
	}
	return a.AuthenticateSession(r.Context(), cookie.Value)
}

// RequireAdmin guards admin routes with HTTP Basic auth checked against a
// bcrypt hash of the admin password.
func RequireAdmin(passwords *PasswordService, passwordHash string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, pass, ok := r.BasicAuth()
			userOK := subtle.ConstantTimeCompare([]byte(user), []byte(AdminUsername)) == 1
			if !ok || !userOK || passwords.Verify(passwordHash, pass) != nil {
				w.Header().Set("WWW-Authenticate", `Basic realm="admin", charset="UTF-8"`)
				writeAuthError(w, http.StatusUnauthorized, "unauthorized", "admin credentials required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WithUserID returns a copy of ctx carrying the authenticated user's id.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserIDFromContext retrieves the authenticated user's ID from the request context.
//
// Returns ("", false) if the request did not pass through RequireAuth.
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok && id != ""
}

func writeAuthError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte(`{"error":"` + code + `","message":"` + message + `"}`))
}
