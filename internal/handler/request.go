package handler

import (
	"math"
	"net/url"
	"strconv"
	"strings"

	"github.com/sakif/game-market/internal/apperror"
	"github.com/sakif/game-market/internal/model"
)

// filterParams are the query parameters that turn a listing request into a
// filtered one.
var filterParams = []string{"category", "minPrice", "maxPrice", "sortBy"}

// parseGameQuery decides, once, what GET /api/games is asking for:
//
//  1. a non-empty "search" wins and ignores every filter parameter
//  2. otherwise any non-empty filter parameter makes it a filter query,
//     even "?sortBy=newest" on its own
//  3. otherwise it lists everything
//
// Non-numeric price bounds are rejected rather than ignored.
func parseGameQuery(q url.Values) (model.GameQuery, error) {
	if search := strings.TrimSpace(q.Get("search")); search != "" {
		return model.Search(search), nil
	}

	filtered := false
	for _, p := range filterParams {
		if strings.TrimSpace(q.Get(p)) != "" {
			filtered = true
			break
		}
	}
	if !filtered {
		return model.ListAll(), nil
	}

	var fields []apperror.FieldError
	minPrice, err := parseBound(q.Get("minPrice"))
	if err != nil {
		fields = append(fields, apperror.FieldError{Field: "minPrice", Message: "minPrice must be a number"})
	}
	maxPrice, err := parseBound(q.Get("maxPrice"))
	if err != nil {
		fields = append(fields, apperror.FieldError{Field: "maxPrice", Message: "maxPrice must be a number"})
	}
	if len(fields) > 0 {
		return model.GameQuery{}, apperror.Invalid("invalid filter", fields)
	}

	return model.Filtered(model.GameFilter{
		Category: strings.TrimSpace(q.Get("category")),
		MinPrice: minPrice,
		MaxPrice: maxPrice,
		SortBy:   model.ParseSortOrder(strings.TrimSpace(q.Get("sortBy"))),
	}), nil
}

// maxBound keeps a bound well inside int64 once converted to cents.
const maxBound = 1e12

// parseBound returns nil for an absent bound. NaN and ±Inf are not prices.
func parseBound(raw string) (*float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.Abs(v) > maxBound {
		return nil, strconv.ErrSyntax
	}
	return &v, nil
}
