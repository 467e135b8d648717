package service

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/game-market/internal/apperror"
	"github.com/sakif/game-market/internal/model"
)

// =========================================================================
// FAKE REPOSITORY
// =========================================================================
//
// fakeGameRepo records which repository method the service dispatched to,
// and with what arguments. The query engine itself is covered by the
// sqlite/postgres tests; here we only test the routing and validation rules.

type fakeGameRepo struct {
	calls   []string
	text    string
	filter  model.GameFilter
	created *model.NewGame
	games   map[int64]model.GameWithSeller
	err     error
}

func newFakeGameRepo() *fakeGameRepo {
	return &fakeGameRepo{games: make(map[int64]model.GameWithSeller)}
}

func (f *fakeGameRepo) CreateGame(_ context.Context, g *model.NewGame) (*model.Game, error) {
	f.calls = append(f.calls, "create")
	if f.err != nil {
		return nil, f.err
	}
	f.created = g
	return &model.Game{
		ID:          int64(len(f.games) + 1),
		Title:       g.Title,
		Description: g.Description,
		Price:       g.Price,
		Category:    g.Category,
		ImageURL:    g.ImageURL,
		SellerID:    g.SellerID,
	}, nil
}

func (f *fakeGameRepo) ListGames(context.Context) ([]model.GameWithSeller, error) {
	f.calls = append(f.calls, "list")
	return []model.GameWithSeller{}, f.err
}

func (f *fakeGameRepo) GetGame(_ context.Context, id int64) (*model.GameWithSeller, error) {
	f.calls = append(f.calls, "get")
	if f.err != nil {
		return nil, f.err
	}
	g, ok := f.games[id]
	if !ok {
		return nil, apperror.NotFound("game", "x")
	}
	return &g, nil
}

func (f *fakeGameRepo) ListGamesBySeller(_ context.Context, sellerID string) ([]model.GameWithSeller, error) {
	f.calls = append(f.calls, "by-seller:"+sellerID)
	return []model.GameWithSeller{}, f.err
}

func (f *fakeGameRepo) SearchGames(_ context.Context, text string) ([]model.GameWithSeller, error) {
	f.calls = append(f.calls, "search")
	f.text = text
	return []model.GameWithSeller{}, f.err
}

func (f *fakeGameRepo) FilterGames(_ context.Context, filter model.GameFilter) ([]model.GameWithSeller, error) {
	f.calls = append(f.calls, "filter")
	f.filter = filter
	return []model.GameWithSeller{}, f.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// =========================================================================
// Query TESTS
// =========================================================================

func TestQuery_Dispatch(t *testing.T) {
	tests := []struct {
		name string
		q    model.GameQuery
		want string
	}{
		{name: "list", q: model.ListAll(), want: "list"},
		{name: "by seller", q: model.BySeller("github:7"), want: "by-seller:github:7"},
		{name: "search", q: model.Search("zelda"), want: "search"},
		{name: "blank search lists everything", q: model.Search("   "), want: "list"},
		{name: "filter", q: model.Filtered(model.GameFilter{Category: "rpg"}), want: "filter"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newFakeGameRepo()
			svc := NewGameService(repo, testLogger())

			games, err := svc.Query(context.Background(), tt.q)
			require.NoError(t, err)
			assert.NotNil(t, games)
			assert.Equal(t, []string{tt.want}, repo.calls)
		})
	}
}

func TestQuery_SearchTextIsTrimmed(t *testing.T) {
	repo := newFakeGameRepo()
	svc := NewGameService(repo, testLogger())

	_, err := svc.Query(context.Background(), model.Search("  Hades "))
	require.NoError(t, err)
	assert.Equal(t, "Hades", repo.text)
}

func TestQuery_FilterNormalisesSort(t *testing.T) {
	repo := newFakeGameRepo()
	svc := NewGameService(repo, testLogger())

	lo := 10.0
	_, err := svc.Query(context.Background(), model.Filtered(model.GameFilter{
		Category: " rpg ",
		MinPrice: &lo,
		SortBy:   "cheapest-first",
	}))
	require.NoError(t, err)

	assert.Equal(t, "rpg", repo.filter.Category)
	assert.Equal(t, model.SortNewest, repo.filter.SortBy)
	require.NotNil(t, repo.filter.MinPrice)
	assert.Equal(t, 10.0, *repo.filter.MinPrice)
	assert.Nil(t, repo.filter.MaxPrice)
}

func TestQuery_StoreFailureIsWrapped(t *testing.T) {
	repo := newFakeGameRepo()
	repo.err = errors.New("disk I/O error")
	svc := NewGameService(repo, testLogger())

	_, err := svc.Query(context.Background(), model.ListAll())
	require.Error(t, err)
	assert.ErrorIs(t, err, repo.err)

	var appErr *apperror.AppError
	assert.False(t, errors.As(err, &appErr), "store failures must not look like client errors")
}

func TestQuery_UnknownKind(t *testing.T) {
	svc := NewGameService(newFakeGameRepo(), testLogger())

	_, err := svc.Query(context.Background(), model.GameQuery{Kind: model.QueryKind(99)})
	assert.Error(t, err)
}

// =========================================================================
// Get TESTS
// =========================================================================

func TestGet(t *testing.T) {
	repo := newFakeGameRepo()
	repo.games[3] = model.GameWithSeller{Game: model.Game{ID: 3, Title: "Celeste"}}
	svc := NewGameService(repo, testLogger())

	t.Run("found", func(t *testing.T) {
		g, err := svc.Get(context.Background(), "3")
		require.NoError(t, err)
		assert.Equal(t, "Celeste", g.Title)
	})

	t.Run("not found", func(t *testing.T) {
		_, err := svc.Get(context.Background(), "4")
		assert.ErrorIs(t, err, apperror.ErrNotFound)
	})

	for _, raw := range []string{"abc", "", "1.5", "12abc", "99999999999999999999"} {
		t.Run("invalid "+raw, func(t *testing.T) {
			before := len(repo.calls)
			_, err := svc.Get(context.Background(), raw)
			assert.ErrorIs(t, err, apperror.ErrValidation)
			assert.Len(t, repo.calls, before, "must not query the store for an unparsable id")
		})
	}
}

// =========================================================================
// Create TESTS
// =========================================================================

func validInput() model.CreateGameInput {
	return model.CreateGameInput{
		Title:       "  Hades ",
		Description: "Roguelike dungeon crawler",
		Price:       "24.99",
		Category:    "action",
		SellerID:    "github:1",
	}
}

func TestCreate_Valid(t *testing.T) {
	repo := newFakeGameRepo()
	svc := NewGameService(repo, testLogger())

	in := validInput()
	in.ImageURL = "/uploads/1-hades.png"

	game, err := svc.Create(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, "Hades", game.Title, "title is trimmed")
	assert.Equal(t, model.Price(2499), game.Price)
	require.NotNil(t, game.ImageURL)
	assert.Equal(t, "/uploads/1-hades.png", *game.ImageURL)
	assert.Equal(t, "github:1", repo.created.SellerID)
}

func TestCreate_NoImageIsNil(t *testing.T) {
	repo := newFakeGameRepo()
	svc := NewGameService(repo, testLogger())

	game, err := svc.Create(context.Background(), validInput())
	require.NoError(t, err)
	assert.Nil(t, game.ImageURL)
}

func TestCreate_CollectsEveryFieldError(t *testing.T) {
	repo := newFakeGameRepo()
	svc := NewGameService(repo, testLogger())

	_, err := svc.Create(context.Background(), model.CreateGameInput{
		Title:    "   ",
		Price:    "12.345",
		Category: string(make([]byte, 51)),
		SellerID: "github:1",
	})
	require.ErrorIs(t, err, apperror.ErrValidation)

	var appErr *apperror.AppError
	require.True(t, errors.As(err, &appErr))

	fields := make([]string, 0, len(appErr.Fields))
	for _, f := range appErr.Fields {
		fields = append(fields, f.Field)
	}
	assert.Equal(t, []string{"title", "description", "price", "category"}, fields)
	assert.Empty(t, repo.calls, "invalid input must not reach the store")
}

func TestCreate_PriceRules(t *testing.T) {
	tests := []struct {
		price   string
		wantErr bool
	}{
		{"15", false},
		{"15.5", false},
		{"0", false},
		{"", true},
		{"abc", true},
		{"-1", true},
		{"1.234", true},
	}

	for _, tt := range tests {
		t.Run(tt.price, func(t *testing.T) {
			svc := NewGameService(newFakeGameRepo(), testLogger())
			in := validInput()
			in.Price = tt.price

			_, err := svc.Create(context.Background(), in)
			if tt.wantErr {
				assert.ErrorIs(t, err, apperror.ErrValidation)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCreate_RequiresSeller(t *testing.T) {
	svc := NewGameService(newFakeGameRepo(), testLogger())
	in := validInput()
	in.SellerID = ""

	_, err := svc.Create(context.Background(), in)
	assert.ErrorIs(t, err, apperror.ErrUnauthorized)
}

func TestCreate_StoreFailure(t *testing.T) {
	repo := newFakeGameRepo()
	repo.err = errors.New("FOREIGN KEY constraint failed")
	svc := NewGameService(repo, testLogger())

	_, err := svc.Create(context.Background(), validInput())
	assert.ErrorIs(t, err, repo.err)
}

func TestValidateGameInput(t *testing.T) {
	assert.NoError(t, ValidateGameInput(validInput()))

	in := validInput()
	in.Category = ""
	err := ValidateGameInput(in)
	assert.ErrorIs(t, err, apperror.ErrValidation)
}
