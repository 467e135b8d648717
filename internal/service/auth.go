package service

// AuthService is the business logic layer for authentication. It sits between
// the HTTP handlers / middleware and the repositories and auth utilities:
//
//	AuthHandler, RequireAuth → AuthService → UserRepository, SessionRepository
//	                                      ↘ TokenService (JWT), IdentityVerifier
//
// KEY RESPONSIBILITIES:
//   - Turn a provider identity into a stored user plus a revocable session
//   - Resolve a session cookie or bearer token back into a user, re-syncing
//     the user row from the claims on every request
//   - Keep HTTP concerns (cookies, redirects) out of the auth rules

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/game-market/internal/apperror"
	"github.com/sakif/game-market/internal/auth"
	"github.com/sakif/game-market/internal/model"
	"github.com/sakif/game-market/internal/repository"
)

// DefaultSessionTTL is how long a login lasts without activity checks.
const DefaultSessionTTL = 7 * 24 * time.Hour

// IdentityVerifier checks a bearer credential issued by an external identity
// provider. *auth.FirebaseVerifier satisfies it.
type IdentityVerifier interface {
	Verify(ctx context.Context, token string) (*model.Identity, error)
}

// AuthService handles the authentication business logic.
//
// DEPENDENCIES (injected via NewAuthService):
//   - users     repository.UserRepository    → upsert/read user records
//   - sessions  repository.SessionRepository → server-side session rows
//   - tokens    *auth.TokenService           → sign/validate session JWTs
//   - bearer    IdentityVerifier             → optional; nil disables bearer auth
//   - logger    *slog.Logger                 → structured logging
type AuthService struct {
	users    repository.UserRepository
	sessions repository.SessionRepository
	tokens   *auth.TokenService
	bearer   IdentityVerifier
	ttl      time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

var _ auth.Authenticator = (*AuthService)(nil)

// NewAuthService creates an AuthService. A ttl <= 0 means DefaultSessionTTL.
func NewAuthService(
	users repository.UserRepository,
	sessions repository.SessionRepository,
	tokens *auth.TokenService,
	bearer IdentityVerifier,
	ttl time.Duration,
	logger *slog.Logger,
) *AuthService {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &AuthService{
		users:    users,
		sessions: sessions,
		tokens:   tokens,
		bearer:   bearer,
		ttl:      ttl,
		logger:   logger,
		now:      time.Now,
	}
}

// LoginResult bundles everything the callback handler needs to finish the
// login: the stored user, the cookie value and when the cookie should expire.
type LoginResult struct {
	User      *model.User
	Token     string
	ExpiresAt time.Time
}

// Login is called after the identity provider vouched for id.
//
//  1. Upsert the user (first login creates it, later logins refresh the profile)
//  2. Store a session row holding the claims snapshot
//  3. Sign a token naming the user (sub) and the session (jti)
//
// WHAT THIS METHOD DOES NOT DO:
// It does not set cookies or redirect; that's the handler's job.
func (s *AuthService) Login(ctx context.Context, id *model.Identity) (*LoginResult, error) {
	if id == nil || id.Subject == "" {
		return nil, fmt.Errorf("service/auth: identity must have a subject")
	}

	user, err := s.users.UpsertUser(ctx, id.User())
	if err != nil {
		return nil, fmt.Errorf("service/auth: upserting user %s: %w", id.Subject, err)
	}

	// xid: 20 chars, sortable by creation time, globally unique without coordination.
	sess := &model.Session{
		ID:        xid.New().String(),
		UserID:    user.ID,
		Identity:  *id,
		ExpiresAt: s.now().UTC().Add(s.ttl).Truncate(time.Second),
	}
	if err := s.sessions.CreateSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("service/auth: creating session for %s: %w", user.ID, err)
	}

	token, err := s.tokens.Issue(user.ID, sess.ID, s.ttl)
	if err != nil {
		return nil, fmt.Errorf("service/auth: issuing token for %s: %w", user.ID, err)
	}

	s.logger.Info("user logged in",
		slog.String("userID", user.ID),
		slog.String("sessionID", sess.ID),
	)

	return &LoginResult{User: user, Token: token, ExpiresAt: sess.ExpiresAt}, nil
}

// AuthenticateSession resolves a session cookie to a user.
//
// The token signature alone is not enough: the session row must still exist
// (logout and account deletion remove it) and must not have expired.
func (s *AuthService) AuthenticateSession(ctx context.Context, token string) (*model.User, error) {
	claims, err := s.tokens.Validate(token)
	if err != nil {
		return nil, apperror.Unauthorized("invalid session token")
	}

	sess, err := s.sessions.GetSession(ctx, claims.SessionID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.Unauthorized("session not found")
		}
		return nil, fmt.Errorf("service/auth: loading session %s: %w", claims.SessionID, err)
	}
	if sess.UserID != claims.UserID {
		return nil, apperror.Unauthorized("session does not belong to token subject")
	}
	if sess.Expired(s.now()) {
		if err := s.sessions.DeleteSession(ctx, sess.ID); err != nil {
			s.logger.Warn("failed to delete expired session",
				slog.String("sessionID", sess.ID),
				slog.String("error", err.Error()),
			)
		}
		return nil, apperror.Unauthorized("session expired")
	}

	return s.sync(ctx, sess.Identity)
}

// AuthenticateBearer resolves an "Authorization: Bearer" ID token to a user.
func (s *AuthService) AuthenticateBearer(ctx context.Context, token string) (*model.User, error) {
	if s.bearer == nil {
		return nil, apperror.Unauthorized("bearer tokens are not accepted")
	}

	id, err := s.bearer.Verify(ctx, token)
	if err != nil {
		s.logger.Debug("bearer token rejected", slog.String("error", err.Error()))
		return nil, apperror.Unauthorized("invalid bearer token")
	}

	return s.sync(ctx, *id)
}

// sync upserts the user from the credential's claims, so a handler behind
// RequireAuth always sees a stored, current user row.
func (s *AuthService) sync(ctx context.Context, id model.Identity) (*model.User, error) {
	user, err := s.users.UpsertUser(ctx, id.User())
	if err != nil {
		var appErr *apperror.AppError
		if errors.As(err, &appErr) {
			return nil, err
		}
		return nil, fmt.Errorf("service/auth: syncing user %s: %w", id.Subject, err)
	}
	return user, nil
}

// Logout revokes the session named by token. Unknown, expired or malformed
// tokens are not an error: the caller ends up logged out either way.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	claims, err := s.tokens.Validate(token)
	if err != nil {
		return nil
	}

	if err := s.sessions.DeleteSession(ctx, claims.SessionID); err != nil {
		return fmt.Errorf("service/auth: deleting session %s: %w", claims.SessionID, err)
	}

	s.logger.Info("user logged out",
		slog.String("userID", claims.UserID),
		slog.String("sessionID", claims.SessionID),
	)
	return nil
}

// CurrentUser returns the stored record for the authenticated user.
func (s *AuthService) CurrentUser(ctx context.Context, userID string) (*model.User, error) {
	if userID == "" {
		return nil, apperror.Unauthorized("no authenticated user")
	}
	return s.users.GetUser(ctx, userID)
}

// PruneSessions deletes every expired session. Run periodically by the scheduler.
func (s *AuthService) PruneSessions(ctx context.Context) (int64, error) {
	n, err := s.sessions.DeleteExpiredSessions(ctx, s.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("service/auth: pruning sessions: %w", err)
	}
	if n > 0 {
		s.logger.Info("pruned expired sessions", slog.Int64("count", n))
	}
	return n, nil
}
