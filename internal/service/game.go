// Package service contains the business logic layer of the application.
//
// THE THREE-LAYER ARCHITECTURE:
//
//	Handler (HTTP layer)     → parses requests, writes responses
//	Service (Business layer) → validates, enforces rules, orchestrates
//	Repository (Data layer)  → reads/writes to the database
//
// Services take repository INTERFACES, never *sqlite.DB or *postgres.DB.
// main.go picks the backend; tests pass hand-written fakes (see *_test.go).
//
// THE DEPENDENCY CHAIN:
//
//	main.go creates:  Store → Services → Handlers
//	At runtime:       Handler calls Service calls Repository calls DB
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/sakif/game-market/internal/apperror"
	"github.com/sakif/game-market/internal/model"
	"github.com/sakif/game-market/internal/repository"
)

// GameService handles listing creation and every catalogue read.
type GameService struct {
	repo   repository.GameRepository
	logger *slog.Logger
}

func NewGameService(repo repository.GameRepository, logger *slog.Logger) *GameService {
	return &GameService{
		repo:   repo,
		logger: logger,
	}
}

// Query runs a tagged read request and returns the matching listings,
// each joined with its seller.
//
// WHY ONE ENTRY POINT?
// The handler decides WHAT is being asked (list, search, filter...) exactly
// once, while parsing the query string. The service then dispatches on the
// tag; no other layer re-derives the request kind from loose parameters.
//
// A ByID query yields at most one element, or apperror.ErrNotFound.
func (s *GameService) Query(ctx context.Context, q model.GameQuery) ([]model.GameWithSeller, error) {
	var (
		games []model.GameWithSeller
		err   error
	)

	switch q.Kind {
	case model.QueryList:
		games, err = s.repo.ListGames(ctx)
	case model.QueryByID:
		var g *model.GameWithSeller
		if g, err = s.repo.GetGame(ctx, q.ID); err == nil {
			games = []model.GameWithSeller{*g}
		}
	case model.QueryBySeller:
		games, err = s.repo.ListGamesBySeller(ctx, q.SellerID)
	case model.QuerySearch:
		// An empty search box means "no search", not "match nothing".
		if text := strings.TrimSpace(q.Text); text != "" {
			games, err = s.repo.SearchGames(ctx, text)
		} else {
			games, err = s.repo.ListGames(ctx)
		}
	case model.QueryFilter:
		f := q.Filter
		f.Category = strings.TrimSpace(f.Category)
		f.SortBy = model.ParseSortOrder(string(f.SortBy))
		games, err = s.repo.FilterGames(ctx, f)
	default:
		return nil, fmt.Errorf("service/game: unknown query kind %d", q.Kind)
	}

	if err != nil {
		return nil, s.readFailed(q, err)
	}
	return games, nil
}

// Get looks a listing up by the raw id from the URL.
// A non-integer id is a validation error, distinct from not-found.
func (s *GameService) Get(ctx context.Context, rawID string) (*model.GameWithSeller, error) {
	id, err := ParseGameID(rawID)
	if err != nil {
		return nil, err
	}

	games, err := s.Query(ctx, model.ByID(id))
	if err != nil {
		return nil, err
	}
	return &games[0], nil
}

// ParseGameID accepts base-10 integers only: "12abc", "1.0" and "" are rejected.
func ParseGameID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, apperror.ValidationFailed("id", "invalid game ID")
	}
	return id, nil
}

// ListBySeller returns a seller's listings, newest first.
func (s *GameService) ListBySeller(ctx context.Context, sellerID string) ([]model.GameWithSeller, error) {
	return s.Query(ctx, model.BySeller(sellerID))
}

// Create validates a seller's raw form input and persists the listing.
//
// VALIDATION COLLECTS, IT DOESN'T SHORT-CIRCUIT:
// A form with an empty title AND a bad price reports both, so the client
// can highlight every offending field in one round trip.
func (s *GameService) Create(ctx context.Context, in model.CreateGameInput) (*model.Game, error) {
	if strings.TrimSpace(in.SellerID) == "" {
		return nil, apperror.Unauthorized("a seller is required to create a listing")
	}

	ng, fields := validateNewGame(in)
	if len(fields) > 0 {
		return nil, apperror.Invalid("invalid game data", fields)
	}

	game, err := s.repo.CreateGame(ctx, ng)
	if err != nil {
		s.logger.Error("failed to create game",
			slog.String("sellerID", in.SellerID),
			slog.String("title", ng.Title),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("service/game: creating game: %w", err)
	}

	s.logger.Info("game listed",
		slog.Int64("id", game.ID),
		slog.String("sellerID", game.SellerID),
		slog.String("price", game.Price.String()),
	)
	return game, nil
}

// ValidateGameInput runs Create's field checks without persisting anything.
// The HTTP layer calls it before storing an uploaded image, so a rejected
// form doesn't leave an orphaned file behind.
func ValidateGameInput(in model.CreateGameInput) error {
	if _, fields := validateNewGame(in); len(fields) > 0 {
		return apperror.Invalid("invalid game data", fields)
	}
	return nil
}

func validateNewGame(in model.CreateGameInput) (*model.NewGame, []apperror.FieldError) {
	var fields []apperror.FieldError
	invalid := func(field, msg string) {
		fields = append(fields, apperror.FieldError{Field: field, Message: msg})
	}

	title := strings.TrimSpace(in.Title)
	if title == "" {
		invalid("title", "title is required")
	}

	description := strings.TrimSpace(in.Description)
	if description == "" {
		invalid("description", "description is required")
	}

	price, err := model.ParsePrice(in.Price)
	if err != nil {
		invalid("price", err.Error())
	}

	category := strings.TrimSpace(in.Category)
	switch {
	case category == "":
		invalid("category", "category is required")
	case len(category) > model.MaxCategoryLen:
		invalid("category", fmt.Sprintf("category must be %d characters or less", model.MaxCategoryLen))
	}

	ng := &model.NewGame{
		Title:       title,
		Description: description,
		Price:       price,
		Category:    category,
		SellerID:    in.SellerID,
	}
	if img := strings.TrimSpace(in.ImageURL); img != "" {
		ng.ImageURL = &img
	}
	return ng, fields
}

// readFailed logs infrastructure failures. Not-found is an expected answer,
// so it passes through unlogged and unwrapped.
func (s *GameService) readFailed(q model.GameQuery, err error) error {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return err
	}
	s.logger.Error("game query failed",
		slog.String("kind", q.Kind.String()),
		slog.String("error", err.Error()),
	)
	return fmt.Errorf("service/game: %s query: %w", q.Kind, err)
}
