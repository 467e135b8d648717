// Package query builds the read SQL for the game catalogue.
//
// Both storage backends execute the exact same queries; only a handful of
// details differ between SQLite and Postgres (placeholder syntax, the
// case-insensitive match operator, the byte-wise collation name), and those
// are decided by the Dialect.
//
// HOW A FILTER BECOMES SQL:
// Every optional predicate that is actually present is turned into a
// Condition (an SQL fragment plus its arguments). The conditions are joined
// with AND, so "no predicates" simply means "no WHERE clause":
//
//	category=rpg, minPrice=10      →  WHERE g.category = ? AND g.price_cents >= ?
//	(nothing)                      →  (every row)
//
// User input only ever travels as arguments, never as SQL text.
package query

import (
	"strconv"
	"strings"
)

// Dialect selects the SQL flavour.
type Dialect int

const (
	SQLite Dialect = iota
	Postgres
)

func (d Dialect) String() string {
	if d == Postgres {
		return "postgres"
	}
	return "sqlite"
}

// Condition is one WHERE predicate with its positional arguments.
// SQL uses "?" placeholders regardless of dialect; Build rebinds them.
type Condition struct {
	SQL  string
	Args []any
}

// gameColumns is the projection every read shares. The scan order in
// ScanGameWithSeller depends on it.
const gameColumns = `g.id, g.title, g.description, g.price_cents, g.category, g.image_url,
       g.seller_id, g.created_at, g.updated_at,
       u.id, u.email, u.first_name, u.last_name, u.profile_image_url, u.created_at, u.updated_at`

// Every listing is returned with its seller, so the join is INNER: a game
// without a seller can't exist (FK) and would be dropped anyway.
const gameFrom = `FROM games g
INNER JOIN users u ON u.id = g.seller_id`

// Select accumulates conditions and ordering for one catalogue read.
type Select struct {
	dialect Dialect
	where   []Condition
	orderBy []string
}

// NewSelect starts a catalogue query in dialect d.
func NewSelect(d Dialect) *Select {
	return &Select{dialect: d}
}

// Where adds a predicate. All predicates are ANDed.
func (s *Select) Where(c Condition) *Select {
	s.where = append(s.where, c)
	return s
}

// OrderBy appends ordering terms such as "g.created_at DESC".
func (s *Select) OrderBy(terms ...string) *Select {
	s.orderBy = append(s.orderBy, terms...)
	return s
}

// Build renders the statement and its flattened argument list.
func (s *Select) Build() (string, []any) {
	var b strings.Builder
	var args []any

	b.WriteString("SELECT ")
	b.WriteString(gameColumns)
	b.WriteString("\n")
	b.WriteString(gameFrom)

	if len(s.where) > 0 {
		parts := make([]string, 0, len(s.where))
		for _, c := range s.where {
			parts = append(parts, c.SQL)
			args = append(args, c.Args...)
		}
		b.WriteString("\nWHERE ")
		b.WriteString(strings.Join(parts, " AND "))
	}

	if len(s.orderBy) > 0 {
		b.WriteString("\nORDER BY ")
		b.WriteString(strings.Join(s.orderBy, ", "))
	}

	return Rebind(s.dialect, b.String()), args
}

// Rebind rewrites "?" placeholders into "$1, $2, ..." for Postgres.
// Question marks inside single-quoted literals are left alone.
func Rebind(d Dialect, sql string) string {
	if d != Postgres {
		return sql
	}

	var b strings.Builder
	b.Grow(len(sql) + 8)
	n := 0
	inQuote := false
	for i := 0; i < len(sql); i++ {
		c := sql[i]
		switch {
		case c == '\'':
			inQuote = !inQuote
			b.WriteByte(c)
		case c == '?' && !inQuote:
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}
