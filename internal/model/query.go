package model

// SortOrder selects the ORDER BY of a filtered listing query.
type SortOrder string

const (
	SortNewest    SortOrder = "newest"
	SortPriceLow  SortOrder = "price-low"
	SortPriceHigh SortOrder = "price-high"
	SortTitle     SortOrder = "title"
)

// ParseSortOrder maps a query-string value to a SortOrder.
// Anything unrecognised (including "") falls back to newest first.
func ParseSortOrder(s string) SortOrder {
	switch SortOrder(s) {
	case SortPriceLow, SortPriceHigh, SortTitle:
		return SortOrder(s)
	default:
		return SortNewest
	}
}

// GameFilter is the inline filter config. Nil / empty fields mean "no predicate".
// Price bounds are inclusive.
type GameFilter struct {
	Category string
	MinPrice *float64
	MaxPrice *float64
	SortBy   SortOrder
}

// QueryKind tags which read a GameQuery performs.
type QueryKind int

const (
	QueryList QueryKind = iota
	QueryByID
	QueryBySeller
	QuerySearch
	QueryFilter
)

func (k QueryKind) String() string {
	switch k {
	case QueryList:
		return "list"
	case QueryByID:
		return "by-id"
	case QueryBySeller:
		return "by-seller"
	case QuerySearch:
		return "search"
	case QueryFilter:
		return "filter"
	default:
		return "unknown"
	}
}

// GameQuery is a tagged read request built once at the HTTP boundary.
// Only the fields belonging to Kind are meaningful.
type GameQuery struct {
	Kind     QueryKind
	ID       int64
	SellerID string
	Text     string
	Filter   GameFilter
}

func ListAll() GameQuery { return GameQuery{Kind: QueryList} }

func ByID(id int64) GameQuery { return GameQuery{Kind: QueryByID, ID: id} }

func BySeller(sellerID string) GameQuery { return GameQuery{Kind: QueryBySeller, SellerID: sellerID} }

func Search(text string) GameQuery { return GameQuery{Kind: QuerySearch, Text: text} }

func Filtered(f GameFilter) GameQuery { return GameQuery{Kind: QueryFilter, Filter: f} }
