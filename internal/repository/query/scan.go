package query

import "github.com/sakif/game-market/internal/model"

// Row is satisfied by *sql.Row, *sql.Rows, pgx.Row and pgx.Rows.
type Row interface {
	Scan(dest ...any) error
}

// ScanGameWithSeller reads one row of the shared projection.
func ScanGameWithSeller(row Row) (model.GameWithSeller, error) {
	var (
		g     model.GameWithSeller
		cents int64
	)
	err := row.Scan(
		&g.ID, &g.Title, &g.Description, &cents, &g.Category, &g.ImageURL,
		&g.SellerID, &g.CreatedAt, &g.UpdatedAt,
		&g.Seller.ID, &g.Seller.Email, &g.Seller.FirstName, &g.Seller.LastName,
		&g.Seller.ProfileImageURL, &g.Seller.CreatedAt, &g.Seller.UpdatedAt,
	)
	if err != nil {
		return model.GameWithSeller{}, err
	}
	g.Price = model.Price(cents)
	// Drivers hand back fixed-offset zones; JSON should always say "Z".
	g.CreatedAt, g.UpdatedAt = g.CreatedAt.UTC(), g.UpdatedAt.UTC()
	g.Seller.CreatedAt, g.Seller.UpdatedAt = g.Seller.CreatedAt.UTC(), g.Seller.UpdatedAt.UTC()
	return g, nil
}
