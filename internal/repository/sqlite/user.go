package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/sakif/game-market/internal/apperror"
	"github.com/sakif/game-market/internal/model"
	"github.com/sakif/game-market/internal/repository"
)

// compile-time check that *DB implements repository.UserRepository
var _ repository.UserRepository = (*DB)(nil)

// UpsertUser inserts the user, or refreshes their profile if the id exists.
//
// ON CONFLICT DO UPDATE vs INSERT OR REPLACE:
// "INSERT OR REPLACE" deletes the old row before inserting the new one. With
// foreign keys on, that DELETE would cascade and wipe the user's games and
// sessions on every login. ON CONFLICT(id) DO UPDATE modifies the row in place,
// and created_at is deliberately absent from the SET list so it never changes.
//
// The row is read back afterwards so the caller gets the canonical record,
// including the original created_at.
func (db *DB) UpsertUser(ctx context.Context, user *model.User) (*model.User, error) {
	now := db.now()

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO users (id, email, first_name, last_name, profile_image_url, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			email             = excluded.email,
			first_name        = excluded.first_name,
			last_name         = excluded.last_name,
			profile_image_url = excluded.profile_image_url,
			updated_at        = excluded.updated_at`,
		user.ID,
		user.Email,
		user.FirstName,
		user.LastName,
		user.ProfileImageURL,
		now,
		now,
	)
	if err != nil {
		// Another account already owns this email.
		if isUniqueViolation(err) {
			return nil, apperror.Conflict("user", user.ID)
		}
		return nil, fmt.Errorf("sqlite: upserting user %s: %w", user.ID, err)
	}

	return db.GetUser(ctx, user.ID)
}

// GetUser retrieves a user by id.
// Returns apperror.ErrNotFound if no user exists with that id.
func (db *DB) GetUser(ctx context.Context, id string) (*model.User, error) {
	var u model.User

	err := db.conn.QueryRowContext(ctx,
		`SELECT id, email, first_name, last_name, profile_image_url, created_at, updated_at
		 FROM users WHERE id = ?`,
		id,
	).Scan(
		&u.ID,
		&u.Email,
		&u.FirstName,
		&u.LastName,
		&u.ProfileImageURL,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", id)
		}
		return nil, fmt.Errorf("sqlite: getting user %s: %w", id, err)
	}
	u.CreatedAt, u.UpdatedAt = u.CreatedAt.UTC(), u.UpdatedAt.UTC()

	return &u, nil
}

// DeleteUser removes the user. Their games and sessions go with them
// through ON DELETE CASCADE.
func (db *DB) DeleteUser(ctx context.Context, id string) error {
	result, err := db.conn.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting user %s: %w", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("user", id)
	}

	return nil
}
