package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/game-market/internal/apperror"
	"github.com/sakif/game-market/internal/repository"
)

// UserService holds account administration.
type UserService struct {
	users    repository.UserRepository
	sessions repository.SessionRepository
	logger   *slog.Logger
}

func NewUserService(users repository.UserRepository, sessions repository.SessionRepository, logger *slog.Logger) *UserService {
	return &UserService{users: users, sessions: sessions, logger: logger}
}

// DeleteUser removes an account. The store cascades to the user's listings;
// sessions are revoked explicitly because they may live outside the
// relational store (Redis).
func (s *UserService) DeleteUser(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return apperror.ValidationFailed("userId", "user ID is required")
	}

	if err := s.users.DeleteUser(ctx, id); err != nil {
		return err
	}

	if err := s.sessions.DeleteUserSessions(ctx, id); err != nil {
		return fmt.Errorf("service/user: revoking sessions of %s: %w", id, err)
	}

	s.logger.Info("user deleted", slog.String("userID", id))
	return nil
}
