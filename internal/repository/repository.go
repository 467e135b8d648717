// Package repository declares the storage contracts the services depend on.
//
// Both backends (sqlite and postgres) satisfy every interface here, and the
// session store can additionally live in Redis. Services only ever see these
// interfaces, which is what lets tests swap in hand-written fakes.
package repository

import (
	"context"
	"time"

	"github.com/sakif/game-market/internal/model"
)

// GameRepository is the read/write surface of the listing catalogue.
// Every read joins the seller; results are fully materialised slices.
type GameRepository interface {
	CreateGame(ctx context.Context, game *model.NewGame) (*model.Game, error)
	ListGames(ctx context.Context) ([]model.GameWithSeller, error)
	GetGame(ctx context.Context, id int64) (*model.GameWithSeller, error)
	ListGamesBySeller(ctx context.Context, sellerID string) ([]model.GameWithSeller, error)
	SearchGames(ctx context.Context, text string) ([]model.GameWithSeller, error)
	FilterGames(ctx context.Context, filter model.GameFilter) ([]model.GameWithSeller, error)
}

type UserRepository interface {
	UpsertUser(ctx context.Context, user *model.User) (*model.User, error)
	GetUser(ctx context.Context, id string) (*model.User, error)
	DeleteUser(ctx context.Context, id string) error
}

type SessionRepository interface {
	CreateSession(ctx context.Context, session *model.Session) error
	GetSession(ctx context.Context, id string) (*model.Session, error)
	DeleteSession(ctx context.Context, id string) error
	DeleteUserSessions(ctx context.Context, userID string) error
	// DeleteExpiredSessions removes every session expired at now and
	// reports how many were removed.
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)
}

// Store is a full relational backend.
type Store interface {
	GameRepository
	UserRepository
	SessionRepository
	Ping(ctx context.Context) error
	Close() error
}
