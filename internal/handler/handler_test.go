package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/game-market/internal/auth"
	"github.com/sakif/game-market/internal/model"
	"github.com/sakif/game-market/internal/repository/sqlite"
	"github.com/sakif/game-market/internal/service"
	"github.com/sakif/game-market/internal/upload"
)

// =========================================================================
// TEST APP
// =========================================================================
//
// These tests run the real services on an in-memory SQLite store, behind a
// chi router shaped like the production one. Only the identity provider is
// faked, since GitHub can't be called from a test.

type fakeProvider struct {
	identities map[string]*model.Identity // code → identity
}

func (p *fakeProvider) AuthURL(state string) string {
	return "https://provider.example/authorize?state=" + url.QueryEscape(state)
}

func (p *fakeProvider) Exchange(_ context.Context, code string) (*model.Identity, error) {
	id, ok := p.identities[code]
	if !ok {
		return nil, errors.New("bad_verification_code")
	}
	return id, nil
}

type testApp struct {
	router    http.Handler
	db        *sqlite.DB
	auth      *service.AuthService
	uploadDir string
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	tokens, err := auth.NewTokenService("handler-test-secret-0123456789")
	require.NoError(t, err)

	uploadDir := filepath.Join(t.TempDir(), "uploads")
	images, err := upload.NewDiskStore(uploadDir, "/uploads")
	require.NoError(t, err)

	authSvc := service.NewAuthService(db, db, tokens, nil, time.Hour, logger)
	games := NewGameHandler(service.NewGameService(db, logger), images, logger)
	users := NewUserHandler(service.NewUserService(db, db, logger), logger)
	authH := NewAuthHandler(&fakeProvider{identities: map[string]*model.Identity{
		"good-code": {Subject: "github:42", Email: "octo@example.com", FirstName: "Octo"},
	}}, authSvc, false, logger)

	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		r.Get("/login", authH.HandleLogin)
		r.Get("/callback", authH.HandleCallback)
		r.Get("/logout", authH.HandleLogout)
		r.Get("/categories", HandleCategories)
		r.Get("/games", games.HandleList)
		r.Get("/games/{id}", games.HandleGet)
		r.Get("/users/{userId}/games", games.HandleListBySeller)
		r.Delete("/admin/users/{userId}", users.HandleDelete)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth(authSvc))
			r.Get("/auth/user", authH.HandleMe)
			r.Post("/games", games.HandleCreate)
		})
	})

	return &testApp{router: r, db: db, auth: authSvc, uploadDir: uploadDir}
}

func (a *testApp) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func (a *testApp) get(t *testing.T, target string) *httptest.ResponseRecorder {
	t.Helper()
	return a.do(httptest.NewRequest(http.MethodGet, target, nil))
}

// login creates a session directly through the service and returns the cookie.
func (a *testApp) login(t *testing.T, subject string) *http.Cookie {
	t.Helper()
	res, err := a.auth.Login(context.Background(), &model.Identity{
		Subject:   subject,
		FirstName: "Seller",
		LastName:  subject,
	})
	require.NoError(t, err)
	return &http.Cookie{Name: auth.SessionCookieName, Value: res.Token}
}

func (a *testApp) seedGame(t *testing.T, sellerID, title, category string, cents int64) *model.Game {
	t.Helper()
	g, err := a.db.CreateGame(context.Background(), &model.NewGame{
		Title:       title,
		Description: title + " description",
		Price:       model.Price(cents),
		Category:    category,
		SellerID:    sellerID,
	})
	require.NoError(t, err)
	return g
}

func (a *testApp) seedUser(t *testing.T, id string) {
	t.Helper()
	_, err := a.db.UpsertUser(context.Background(), &model.User{ID: id})
	require.NoError(t, err)
}

// gameJSON mirrors the wire shape, keeping price as the raw JSON string.
type gameJSON struct {
	ID          int64   `json:"id"`
	Title       string  `json:"title"`
	Price       string  `json:"price"`
	Category    string  `json:"category"`
	ImageURL    *string `json:"imageUrl"`
	SellerID    string  `json:"sellerId"`
	Seller      *struct {
		ID        string  `json:"id"`
		FirstName *string `json:"firstName"`
	} `json:"seller"`
}

func decodeGames(t *testing.T, rec *httptest.ResponseRecorder) []gameJSON {
	t.Helper()
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var out []gameJSON
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func gameTitles(games []gameJSON) []string {
	out := make([]string, len(games))
	for i, g := range games {
		out[i] = g.Title
	}
	return out
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var out ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

// =========================================================================
// GET /api/games
// =========================================================================

func TestListGames(t *testing.T) {
	app := newTestApp(t)
	app.seedUser(t, "github:1")
	app.seedGame(t, "github:1", "RPG cheap", "rpg", 999)
	app.seedGame(t, "github:1", "RPG mid", "rpg", 1500)
	app.seedGame(t, "github:1", "Strategy mid", "strategy", 2000)

	t.Run("empty query lists everything with sellers", func(t *testing.T) {
		games := decodeGames(t, app.get(t, "/api/games"))
		require.Len(t, games, 3)
		for _, g := range games {
			require.NotNil(t, g.Seller)
			assert.Equal(t, "github:1", g.Seller.ID)
		}
	})

	t.Run("filter example", func(t *testing.T) {
		games := decodeGames(t, app.get(t, "/api/games?category=rpg&minPrice=10&maxPrice=30&sortBy=price-low"))
		require.Len(t, games, 1)
		assert.Equal(t, "RPG mid", games[0].Title)
		assert.Equal(t, "15.00", games[0].Price)
	})

	t.Run("price sort", func(t *testing.T) {
		games := decodeGames(t, app.get(t, "/api/games?sortBy=price-high"))
		assert.Equal(t, []string{"Strategy mid", "RPG mid", "RPG cheap"}, gameTitles(games))
	})

	t.Run("search ignores filters", func(t *testing.T) {
		games := decodeGames(t, app.get(t, "/api/games?search=rpg&category=strategy"))
		assert.ElementsMatch(t, []string{"RPG cheap", "RPG mid"}, gameTitles(games))
	})

	t.Run("unknown sort behaves as newest", func(t *testing.T) {
		newest := decodeGames(t, app.get(t, "/api/games?sortBy=newest"))
		bogus := decodeGames(t, app.get(t, "/api/games?sortBy=bogus"))
		assert.Equal(t, gameTitles(newest), gameTitles(bogus))
	})

	t.Run("non-numeric bound is 400", func(t *testing.T) {
		rec := app.get(t, "/api/games?minPrice=cheap")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		body := decodeError(t, rec)
		assert.Equal(t, "validation_error", body.Error)
		require.Len(t, body.Errors, 1)
		assert.Equal(t, "minPrice", body.Errors[0].Field)
	})
}

func TestListGames_EmptyIsArray(t *testing.T) {
	app := newTestApp(t)

	rec := app.get(t, "/api/games")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

// =========================================================================
// GET /api/games/{id}
// =========================================================================

func TestGetGame(t *testing.T) {
	app := newTestApp(t)
	app.seedUser(t, "github:1")
	g := app.seedGame(t, "github:1", "Hades", "action", 2499)

	rec := app.get(t, fmt.Sprintf("/api/games/%d", g.ID))
	require.Equal(t, http.StatusOK, rec.Code)
	var got gameJSON
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "Hades", got.Title)
	assert.Equal(t, "24.99", got.Price)
	assert.Nil(t, got.ImageURL)
	require.NotNil(t, got.Seller)
	assert.Equal(t, "github:1", got.Seller.ID)

	assert.Equal(t, http.StatusBadRequest, app.get(t, "/api/games/abc").Code)
	assert.Equal(t, http.StatusNotFound, app.get(t, "/api/games/999").Code)
}

// =========================================================================
// GET /api/users/{userId}/games
// =========================================================================

func TestListGamesBySeller(t *testing.T) {
	app := newTestApp(t)
	app.seedUser(t, "github:1")
	app.seedUser(t, "github:2")
	app.seedGame(t, "github:1", "Mine", "indie", 100)
	app.seedGame(t, "github:2", "Theirs", "indie", 100)

	games := decodeGames(t, app.get(t, "/api/users/github:1/games"))
	assert.Equal(t, []string{"Mine"}, gameTitles(games))

	assert.Empty(t, decodeGames(t, app.get(t, "/api/users/nobody/games")))
}

// =========================================================================
// POST /api/games
// =========================================================================

var pngBytes = append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0}, 64)...)

type formImage struct {
	filename, contentType string
	data                  []byte
}

func multipartRequest(t *testing.T, fields map[string]string, img *formImage) *http.Request {
	t.Helper()

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if img != nil {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename=%q`, img.filename))
		h.Set("Content-Type", img.contentType)
		part, err := w.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(img.data)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/games", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func validFields() map[string]string {
	return map[string]string{
		"title":       "Hades",
		"description": "Roguelike",
		"price":       "24.99",
		"category":    "action",
	}
}

func TestCreateGame(t *testing.T) {
	app := newTestApp(t)
	cookie := app.login(t, "github:7")

	req := multipartRequest(t, validFields(), &formImage{"cover.png", "image/png", pngBytes})
	req.AddCookie(cookie)
	rec := app.do(req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var got gameJSON
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "github:7", got.SellerID)
	assert.Equal(t, "24.99", got.Price)
	assert.Nil(t, got.Seller, "create returns the bare game")

	require.NotNil(t, got.ImageURL)
	assert.True(t, strings.HasPrefix(*got.ImageURL, "/uploads/"), *got.ImageURL)
	assert.True(t, strings.HasSuffix(*got.ImageURL, "-cover.png"), *got.ImageURL)
	stored, err := os.ReadFile(filepath.Join(app.uploadDir, strings.TrimPrefix(*got.ImageURL, "/uploads/")))
	require.NoError(t, err)
	assert.Equal(t, pngBytes, stored)

	// Visible through the seller's listing, joined with the seller profile.
	games := decodeGames(t, app.get(t, "/api/users/github:7/games"))
	require.Len(t, games, 1)
	require.NotNil(t, games[0].Seller.FirstName)
	assert.Equal(t, "Seller", *games[0].Seller.FirstName)
}

func TestCreateGame_URLEncodedWithoutImage(t *testing.T) {
	app := newTestApp(t)
	cookie := app.login(t, "github:7")

	form := url.Values{}
	for k, v := range validFields() {
		form.Set(k, v)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/games", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(cookie)
	rec := app.do(req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var got gameJSON
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Nil(t, got.ImageURL)
}

func TestCreateGame_RequiresAuth(t *testing.T) {
	app := newTestApp(t)

	rec := app.do(multipartRequest(t, validFields(), nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, decodeGames(t, app.get(t, "/api/games")))
}

func TestCreateGame_ValidationErrors(t *testing.T) {
	app := newTestApp(t)
	cookie := app.login(t, "github:7")

	req := multipartRequest(t, map[string]string{
		"title":    "Hades",
		"price":    "12.345",
		"category": "action",
	}, &formImage{"cover.png", "image/png", pngBytes})
	req.AddCookie(cookie)
	rec := app.do(req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeError(t, rec)
	fields := []string{}
	for _, f := range body.Errors {
		fields = append(fields, f.Field)
	}
	assert.Equal(t, []string{"description", "price"}, fields)

	entries, err := os.ReadDir(app.uploadDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "a rejected form must not store its image")
}

// failingGameRepo accepts reads but fails every insert, like a store that
// goes away between validation and the write.
type failingGameRepo struct {
	*sqlite.DB
}

func (failingGameRepo) CreateGame(context.Context, *model.NewGame) (*model.Game, error) {
	return nil, errors.New("database is locked")
}

func TestCreateGame_StoreFailureRemovesImage(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	uploadDir := filepath.Join(t.TempDir(), "uploads")
	images, err := upload.NewDiskStore(uploadDir, "/uploads")
	require.NoError(t, err)

	h := NewGameHandler(service.NewGameService(failingGameRepo{db}, logger), images, logger)

	req := multipartRequest(t, validFields(), &formImage{"cover.png", "image/png", pngBytes})
	req = req.WithContext(auth.WithUserID(req.Context(), "github:7"))
	rec := httptest.NewRecorder()

	h.HandleCreate(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	entries, err := os.ReadDir(uploadDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "the image of a listing that was never created must be removed")
}

func TestCreateGame_RejectsNonImage(t *testing.T) {
	app := newTestApp(t)
	cookie := app.login(t, "github:7")

	req := multipartRequest(t, validFields(), &formImage{"notes.txt", "text/plain", []byte("hello")})
	req.AddCookie(cookie)
	rec := app.do(req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeError(t, rec)
	require.Len(t, body.Errors, 1)
	assert.Equal(t, "image", body.Errors[0].Field)
	assert.Empty(t, decodeGames(t, app.get(t, "/api/games")))
}

// =========================================================================
// AUTH ROUTES
// =========================================================================

func TestLoginCallbackFlow(t *testing.T) {
	app := newTestApp(t)

	rec := app.get(t, "/api/login")
	require.Equal(t, http.StatusTemporaryRedirect, rec.Code)
	var state *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == stateCookieName {
			state = c
		}
	}
	require.NotNil(t, state)
	assert.Contains(t, rec.Header().Get("Location"), "state="+state.Value)

	t.Run("state mismatch", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/callback?code=good-code&state=forged", nil)
		req.AddCookie(state)
		assert.Equal(t, http.StatusBadRequest, app.do(req).Code)
	})

	t.Run("bad code", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/callback?code=nope&state="+state.Value, nil)
		req.AddCookie(state)
		assert.Equal(t, http.StatusBadGateway, app.do(req).Code)
	})

	t.Run("success", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/callback?code=good-code&state="+state.Value, nil)
		req.AddCookie(state)
		rec := app.do(req)
		require.Equal(t, http.StatusSeeOther, rec.Code)

		var session *http.Cookie
		for _, c := range rec.Result().Cookies() {
			if c.Name == auth.SessionCookieName {
				session = c
			}
		}
		require.NotNil(t, session)
		assert.True(t, session.HttpOnly)

		me := httptest.NewRequest(http.MethodGet, "/api/auth/user", nil)
		me.AddCookie(&http.Cookie{Name: session.Name, Value: session.Value})
		meRec := app.do(me)
		require.Equal(t, http.StatusOK, meRec.Code)
		assert.Contains(t, meRec.Body.String(), `"id":"github:42"`)
		assert.Contains(t, meRec.Body.String(), `"email":"octo@example.com"`)
	})
}

func TestMe_Unauthenticated(t *testing.T) {
	app := newTestApp(t)
	assert.Equal(t, http.StatusUnauthorized, app.get(t, "/api/auth/user").Code)
}

func TestLogout(t *testing.T) {
	app := newTestApp(t)
	cookie := app.login(t, "github:9")

	req := httptest.NewRequest(http.MethodGet, "/api/logout", nil)
	req.AddCookie(cookie)
	rec := app.do(req)
	assert.Equal(t, http.StatusSeeOther, rec.Code)

	me := httptest.NewRequest(http.MethodGet, "/api/auth/user", nil)
	me.AddCookie(cookie)
	assert.Equal(t, http.StatusUnauthorized, app.do(me).Code, "the old cookie must stop working")
}

// =========================================================================
// ADMIN, CATEGORIES, HEALTH
// =========================================================================

func TestDeleteUser_CascadesListings(t *testing.T) {
	app := newTestApp(t)
	cookie := app.login(t, "github:5")
	app.seedGame(t, "github:5", "Doomed", "horror", 500)

	rec := app.do(httptest.NewRequest(http.MethodDelete, "/api/admin/users/github:5", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	assert.Empty(t, decodeGames(t, app.get(t, "/api/games")))

	me := httptest.NewRequest(http.MethodGet, "/api/auth/user", nil)
	me.AddCookie(cookie)
	assert.Equal(t, http.StatusUnauthorized, app.do(me).Code, "deleting a user revokes their sessions")

	rec = app.do(httptest.NewRequest(http.MethodDelete, "/api/admin/users/github:5", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCategories(t *testing.T) {
	app := newTestApp(t)

	rec := app.get(t, "/api/categories")
	require.Equal(t, http.StatusOK, rec.Code)
	var cats []model.Category
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cats))
	assert.Len(t, cats, 7)
	assert.Equal(t, "action", cats[0].Value)
}

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestHealth(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	ok := pingFunc(func(context.Context) error { return nil })
	down := pingFunc(func(context.Context) error { return errors.New("connection refused") })

	rec := httptest.NewRecorder()
	NewHealthHandler(map[string]Pinger{"db": ok}, logger).HandleHealth(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	NewHealthHandler(map[string]Pinger{"db": ok, "redis": down}, logger).HandleHealth(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"status":"unavailable","failing":["redis"]}`, rec.Body.String())
}
