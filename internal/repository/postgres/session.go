package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/sakif/game-market/internal/apperror"
	"github.com/sakif/game-market/internal/model"
)

func (db *DB) CreateSession(ctx context.Context, s *model.Session) error {
	sess, err := json.Marshal(s.Identity)
	if err != nil {
		return fmt.Errorf("postgres: encoding session %s: %w", s.ID, err)
	}

	_, err = db.pool.Exec(ctx,
		`INSERT INTO sessions (sid, user_id, sess, expire) VALUES ($1, $2, $3, $4)`,
		s.ID, s.UserID, sess, s.ExpiresAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("postgres: creating session %s: %w", s.ID, err)
	}
	return nil
}

func (db *DB) GetSession(ctx context.Context, id string) (*model.Session, error) {
	var (
		s    model.Session
		sess []byte
	)
	err := db.pool.QueryRow(ctx,
		`SELECT sid, user_id, sess, expire FROM sessions WHERE sid = $1`, id,
	).Scan(&s.ID, &s.UserID, &sess, &s.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NotFound("session", id)
		}
		return nil, fmt.Errorf("postgres: getting session %s: %w", id, err)
	}

	if err := json.Unmarshal(sess, &s.Identity); err != nil {
		return nil, fmt.Errorf("postgres: decoding session %s: %w", id, err)
	}
	s.ExpiresAt = s.ExpiresAt.UTC()
	return &s, nil
}

func (db *DB) DeleteSession(ctx context.Context, id string) error {
	if _, err := db.pool.Exec(ctx, `DELETE FROM sessions WHERE sid = $1`, id); err != nil {
		return fmt.Errorf("postgres: deleting session %s: %w", id, err)
	}
	return nil
}

func (db *DB) DeleteUserSessions(ctx context.Context, userID string) error {
	if _, err := db.pool.Exec(ctx, `DELETE FROM sessions WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("postgres: deleting sessions of user %s: %w", userID, err)
	}
	return nil
}

func (db *DB) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	tag, err := db.pool.Exec(ctx, `DELETE FROM sessions WHERE expire <= $1`, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("postgres: pruning sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}
