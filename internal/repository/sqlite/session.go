package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sakif/game-market/internal/apperror"
	"github.com/sakif/game-market/internal/model"
	"github.com/sakif/game-market/internal/repository"
)

var _ repository.SessionRepository = (*DB)(nil)

// CreateSession stores the session with its claims snapshot as JSON.
func (db *DB) CreateSession(ctx context.Context, s *model.Session) error {
	sess, err := json.Marshal(s.Identity)
	if err != nil {
		return fmt.Errorf("sqlite: encoding session %s: %w", s.ID, err)
	}

	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO sessions (sid, user_id, sess, expire) VALUES (?, ?, ?, ?)`,
		s.ID, s.UserID, string(sess), s.ExpiresAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating session %s: %w", s.ID, err)
	}
	return nil
}

// GetSession returns the stored session whether or not it has expired;
// callers decide with Session.Expired.
func (db *DB) GetSession(ctx context.Context, id string) (*model.Session, error) {
	var (
		s      model.Session
		sess   string
		expire int64
	)
	err := db.conn.QueryRowContext(ctx,
		`SELECT sid, user_id, sess, expire FROM sessions WHERE sid = ?`, id,
	).Scan(&s.ID, &s.UserID, &sess, &expire)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("session", id)
		}
		return nil, fmt.Errorf("sqlite: getting session %s: %w", id, err)
	}

	if err := json.Unmarshal([]byte(sess), &s.Identity); err != nil {
		return nil, fmt.Errorf("sqlite: decoding session %s: %w", id, err)
	}
	s.ExpiresAt = time.Unix(expire, 0).UTC()
	return &s, nil
}

// DeleteSession is idempotent: logging out twice is not an error.
func (db *DB) DeleteSession(ctx context.Context, id string) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM sessions WHERE sid = ?`, id); err != nil {
		return fmt.Errorf("sqlite: deleting session %s: %w", id, err)
	}
	return nil
}

func (db *DB) DeleteUserSessions(ctx context.Context, userID string) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM sessions WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("sqlite: deleting sessions of user %s: %w", userID, err)
	}
	return nil
}

func (db *DB) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM sessions WHERE expire <= ?`, now.Unix())
	if err != nil {
		return 0, fmt.Errorf("sqlite: pruning sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	return n, nil
}
