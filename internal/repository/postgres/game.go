package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"

	"github.com/sakif/game-market/internal/apperror"
	"github.com/sakif/game-market/internal/model"
	"github.com/sakif/game-market/internal/repository/query"
)

func (db *DB) CreateGame(ctx context.Context, in *model.NewGame) (*model.Game, error) {
	now := db.now()

	var id int64
	err := db.pool.QueryRow(ctx,
		`INSERT INTO games (title, description, price_cents, category, image_url, seller_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id`,
		in.Title, in.Description, int64(in.Price), in.Category, in.ImageURL, in.SellerID, now, now,
	).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("postgres: creating game: %w", err)
	}

	return &model.Game{
		ID:          id,
		Title:       in.Title,
		Description: in.Description,
		Price:       in.Price,
		Category:    in.Category,
		ImageURL:    in.ImageURL,
		SellerID:    in.SellerID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

func (db *DB) ListGames(ctx context.Context) ([]model.GameWithSeller, error) {
	q, args := query.AllGames(db.dialect)
	return db.queryGames(ctx, "listing games", q, args)
}

func (db *DB) GetGame(ctx context.Context, id int64) (*model.GameWithSeller, error) {
	q, args := query.GameByID(db.dialect, id)

	g, err := query.ScanGameWithSeller(db.pool.QueryRow(ctx, q, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NotFound("game", strconv.FormatInt(id, 10))
		}
		return nil, fmt.Errorf("postgres: getting game %d: %w", id, err)
	}
	return &g, nil
}

func (db *DB) ListGamesBySeller(ctx context.Context, sellerID string) ([]model.GameWithSeller, error) {
	q, args := query.GamesBySeller(db.dialect, sellerID)
	return db.queryGames(ctx, "listing games by seller "+sellerID, q, args)
}

func (db *DB) SearchGames(ctx context.Context, text string) ([]model.GameWithSeller, error) {
	q, args := query.SearchGames(db.dialect, text)
	return db.queryGames(ctx, "searching games", q, args)
}

func (db *DB) FilterGames(ctx context.Context, filter model.GameFilter) ([]model.GameWithSeller, error) {
	q, args := query.FilterGames(db.dialect, filter)
	return db.queryGames(ctx, "filtering games", q, args)
}

func (db *DB) queryGames(ctx context.Context, op, q string, args []any) ([]model.GameWithSeller, error) {
	rows, err := db.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: %s: %w", op, err)
	}
	defer rows.Close()

	games := make([]model.GameWithSeller, 0)
	for rows.Next() {
		g, err := query.ScanGameWithSeller(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scanning game row: %w", err)
		}
		games = append(games, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: %s: %w", op, err)
	}
	return games, nil
}
