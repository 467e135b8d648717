package query

import (
	"strings"

	"github.com/sakif/game-market/internal/model"
)

// Ordering terms. Every sort ends on g.id so rows with equal keys
// (same price, same title, same timestamp) always come back in one order.
const (
	newestFirst = "g.created_at DESC"
	idTieBreak  = "g.id DESC"
)

// AllGames lists every game, newest first.
func AllGames(d Dialect) (string, []any) {
	return NewSelect(d).OrderBy(newestFirst, idTieBreak).Build()
}

// GameByID fetches at most one game.
func GameByID(d Dialect, id int64) (string, []any) {
	return NewSelect(d).
		Where(Condition{SQL: "g.id = ?", Args: []any{id}}).
		Build()
}

// GamesBySeller lists one seller's games, newest first.
func GamesBySeller(d Dialect, sellerID string) (string, []any) {
	return NewSelect(d).
		Where(Condition{SQL: "g.seller_id = ?", Args: []any{sellerID}}).
		OrderBy(newestFirst, idTieBreak).
		Build()
}

// SearchGames matches text as a case-insensitive substring of the title.
func SearchGames(d Dialect, text string) (string, []any) {
	return NewSelect(d).
		Where(TitleContains(d, text)).
		OrderBy(newestFirst, idTieBreak).
		Build()
}

// FilterGames applies whichever filter options are set, then sorts.
func FilterGames(d Dialect, f model.GameFilter) (string, []any) {
	s := NewSelect(d)
	for _, c := range FilterConditions(f) {
		s.Where(c)
	}
	return s.OrderBy(SortTerms(d, f.SortBy)...).Build()
}

// FilterConditions turns the present filter options into predicates.
// Absent options contribute nothing.
func FilterConditions(f model.GameFilter) []Condition {
	var conds []Condition
	if f.Category != "" {
		conds = append(conds, Condition{SQL: "g.category = ?", Args: []any{f.Category}})
	}
	if f.MinPrice != nil {
		conds = append(conds, Condition{SQL: "g.price_cents >= ?", Args: []any{int64(model.AtLeast(*f.MinPrice))}})
	}
	if f.MaxPrice != nil {
		conds = append(conds, Condition{SQL: "g.price_cents <= ?", Args: []any{int64(model.AtMost(*f.MaxPrice))}})
	}
	return conds
}

// SortTerms maps a sort order to ORDER BY terms. Unknown orders sort newest first.
func SortTerms(d Dialect, order model.SortOrder) []string {
	switch order {
	case model.SortPriceLow:
		return []string{"g.price_cents ASC", idTieBreak}
	case model.SortPriceHigh:
		return []string{"g.price_cents DESC", idTieBreak}
	case model.SortTitle:
		return []string{"g.title " + byteCollation(d) + " ASC", idTieBreak}
	default:
		return []string{newestFirst, idTieBreak}
	}
}

// TitleContains builds the search predicate. LIKE wildcards typed by the
// user are escaped so "100%" looks for a literal percent sign.
//
// On SQLite both sides go through casefold, a Unicode-aware lower()
// registered by the sqlite package; the built-in lower() is ASCII-only.
func TitleContains(d Dialect, text string) Condition {
	pattern := "%" + EscapeLike(text) + "%"
	if d == Postgres {
		return Condition{SQL: `g.title ILIKE ? ESCAPE '\'`, Args: []any{pattern}}
	}
	return Condition{SQL: `casefold(g.title) LIKE casefold(?) ESCAPE '\'`, Args: []any{pattern}}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// EscapeLike escapes \, % and _ for use with ESCAPE '\'.
func EscapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func byteCollation(d Dialect) string {
	if d == Postgres {
		return `COLLATE "C"`
	}
	return "COLLATE BINARY"
}
