package model

import "time"

// Game is a listing offered for sale by a seller.
//
// Listings are immutable once created: there is no edit or delete endpoint.
// A game only disappears when its seller's account is deleted (ON DELETE CASCADE).
type Game struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Price       Price     `json:"price"`
	Category    string    `json:"category"`
	ImageURL    *string   `json:"imageUrl"`
	SellerID    string    `json:"sellerId"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// GameWithSeller is the read projection returned by every browse endpoint.
//
// STRUCT EMBEDDING:
// Embedding Game (no field name) promotes its fields, so encoding/json writes
// id, title, price... at the top level and adds "seller" next to them:
//
//	{"id": 1, "title": "Hades", ..., "seller": {"id": "github:42", ...}}
//
// It is only ever built from an INNER JOIN and never written back.
type GameWithSeller struct {
	Game
	Seller User `json:"seller"`
}

// MaxCategoryLen mirrors the VARCHAR(50) column.
const MaxCategoryLen = 50

// NewGame is the validated input for creating a listing.
// The service fills it from raw form values; the repository persists it.
type NewGame struct {
	Title       string
	Description string
	Price       Price
	Category    string
	ImageURL    *string
	SellerID    string
}

// CreateGameInput is the raw, unvalidated form submitted by a seller.
// Price stays a string so "12.345" or "abc" can be reported per field.
type CreateGameInput struct {
	Title       string
	Description string
	Price       string
	Category    string
	ImageURL    string
	SellerID    string
}
