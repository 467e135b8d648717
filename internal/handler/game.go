package handler

import (
	"context"
	"errors"
	"log/slog"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/game-market/internal/apperror"
	"github.com/sakif/game-market/internal/auth"
	"github.com/sakif/game-market/internal/model"
	"github.com/sakif/game-market/internal/service"
	"github.com/sakif/game-market/internal/upload"
)

// maxFormMemory is how much of a multipart body is kept in RAM; the rest
// spills to temp files.
const maxFormMemory = 1 << 20

// maxCreateBody caps the whole POST body: the image plus generous room for
// the text fields and multipart framing.
const maxCreateBody = upload.MaxImageSize + 1<<20

// GameHandler serves the listing catalogue.
//
// HANDLER RESPONSIBILITIES:
//   - HandleList         → GET  /api/games (list / search / filter)
//   - HandleGet          → GET  /api/games/{id}
//   - HandleCreate       → POST /api/games (auth, multipart)
//   - HandleListBySeller → GET  /api/users/{userId}/games
//
// The handler only translates HTTP into service calls; dispatch, validation
// and storage rules live in service.GameService.
type GameHandler struct {
	games  *service.GameService
	images upload.Store
	logger *slog.Logger
	now    func() time.Time
}

func NewGameHandler(games *service.GameService, images upload.Store, logger *slog.Logger) *GameHandler {
	return &GameHandler{
		games:  games,
		images: images,
		logger: logger,
		now:    time.Now,
	}
}

// HandleList returns listings matching the query string.
//
// HTTP: GET /api/games?search=&category=&minPrice=&maxPrice=&sortBy=
func (h *GameHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	q, err := parseGameQuery(r.URL.Query())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	games, err := h.games.Query(r.Context(), q)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, games)
}

// HandleGet returns one listing with its seller.
//
// HTTP: GET /api/games/{id}
// 400 for a non-integer id, 404 when no such game exists.
func (h *GameHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	game, err := h.games.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, game)
}

// HandleListBySeller returns a seller's listings, newest first.
// An unknown seller simply has no listings.
//
// HTTP: GET /api/users/{userId}/games
func (h *GameHandler) HandleListBySeller(w http.ResponseWriter, r *http.Request) {
	games, err := h.games.ListBySeller(r.Context(), chi.URLParam(r, "userId"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, games)
}

// HandleCreate lists a game for sale.
//
// HTTP: POST /api/games
// Auth: Required
// BODY: multipart/form-data (or urlencoded without an image):
//
//	title, description, price, category, image (optional file)
//
// The text fields are validated BEFORE the image is stored, so a rejected
// form never leaves an orphaned upload behind; if the insert itself fails,
// the stored image is deleted again.
func (h *GameHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	sellerID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, h.logger, apperror.Unauthorized("authentication required"))
		return
	}

	// MaxBytesReader makes the body read fail (and closes the connection)
	// once the limit is crossed, instead of buffering an arbitrary upload.
	r.Body = http.MaxBytesReader(w, r.Body, maxCreateBody)
	if err := r.ParseMultipartForm(maxFormMemory); err != nil {
		var tooBig *http.MaxBytesError
		switch {
		case errors.As(err, &tooBig), errors.Is(err, multipart.ErrMessageTooLarge):
			writeJSON(w, http.StatusRequestEntityTooLarge, ErrorResponse{
				Error:   "payload_too_large",
				Message: "image must be 10MB or smaller",
				Errors:  []apperror.FieldError{{Field: "image", Message: "image must be 10MB or smaller"}},
			})
			return
		case errors.Is(err, http.ErrNotMultipart):
			// Plain forms are fine; ParseMultipartForm already ran ParseForm.
		default:
			writeError(w, h.logger, apperror.ValidationFailed("body", "malformed form body"))
			return
		}
	}
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	in := model.CreateGameInput{
		Title:       r.FormValue("title"),
		Description: r.FormValue("description"),
		Price:       r.FormValue("price"),
		Category:    r.FormValue("category"),
		SellerID:    sellerID,
	}
	if err := service.ValidateGameInput(in); err != nil {
		writeError(w, h.logger, err)
		return
	}

	var stored *upload.Image
	file, header, err := r.FormFile("image")
	switch {
	case err == nil:
		defer file.Close()
		img, err := upload.Save(r.Context(), h.images, file, header, h.now())
		if err != nil {
			writeError(w, h.logger, err)
			return
		}
		stored = &img
		in.ImageURL = img.URL
	case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
		// No image is fine.
	default:
		writeError(w, h.logger, apperror.ValidationFailed("image", "could not read uploaded image"))
		return
	}

	game, err := h.games.Create(r.Context(), in)
	if err != nil {
		if stored != nil {
			h.discardImage(r.Context(), stored.Key)
		}
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, game)
}

// discardImage removes an image whose listing was never created. It runs even
// if the client has gone away, since the request context may be cancelled.
func (h *GameHandler) discardImage(ctx context.Context, key string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if err := h.images.Delete(ctx, key); err != nil {
		h.logger.Warn("failed to remove orphaned image",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
}
