// Package sqlite implements the repository interfaces using SQLite as the storage backend.
//
// WHY SQLITE?
// SQLite is an embedded database — it lives inside your Go binary as a single file.
// No separate database server to install, configure, or manage. It is the default
// backend; set DB_DRIVER=postgres to run against a server instead.
//
// WHY modernc.org/sqlite INSTEAD OF github.com/mattn/go-sqlite3?
// mattn/go-sqlite3 uses CGo (calls C code from Go), which means you need a C compiler
// installed and cross-compilation becomes painful. modernc.org/sqlite is a pure Go
// translation of the SQLite C code — no C compiler needed, works everywhere Go works.
//
// DATABASE/SQL OVERVIEW:
// Go's standard library provides "database/sql" — a generic interface for SQL databases.
// Key types:
//   - sql.DB      — a connection pool (NOT a single connection!)
//   - sql.Row     — a single result row
//   - sql.Rows    — multiple result rows (must be closed!)
//
// The read queries themselves are not written here: they come from the shared
// query package, which both this package and the postgres package execute.
package sqlite

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"time"

	// DRIVER REGISTRATION:
	// The sqlite package's init() registers a database/sql driver named "sqlite".
	// Usually that is a blank import (`_ "modernc.org/sqlite"`); here we also
	// need its *Error type to recognise constraint violations, so it gets a name.
	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/sakif/game-market/internal/repository"
	"github.com/sakif/game-market/internal/repository/query"
)

// COMPILE-TIME INTERFACE CHECK:
// If *DB ever stops implementing the full Store, the build fails here
// instead of somewhere in server wiring.
var _ repository.Store = (*DB)(nil)

// CASEFOLD:
// SQLite's built-in lower() and LIKE only fold ASCII letters, so "élan" would
// never match "Élan". casefold is a Unicode-aware lower() that the query
// package uses for title search. Functions are registered process-wide and
// apply to every connection the driver opens afterwards.
func init() {
	if err := msqlite.RegisterDeterministicScalarFunction("casefold", 1, casefold); err != nil {
		panic(fmt.Sprintf("sqlite: registering casefold: %v", err))
	}
}

func casefold(_ *msqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	switch v := args[0].(type) {
	case nil:
		return nil, nil
	case string:
		return strings.ToLower(v), nil
	case []byte:
		return strings.ToLower(string(v)), nil
	default:
		return nil, fmt.Errorf("casefold: unsupported argument type %T", v)
	}
}

// DB wraps a sql.DB connection pool and provides repository methods.
type DB struct {
	conn    *sql.DB
	dialect query.Dialect
	now     func() time.Time
}

// New opens (or creates) the database at dbPath and runs migrations.
//
// dbPath examples:
//   - "data/market.db"  → file-based database (persistent)
//   - ":memory:"        → in-memory database (great for tests, lost on close)
//
// PRAGMAS IN THE DSN:
// PRAGMA foreign_keys is per-connection, and sql.DB opens connections lazily.
// Running "PRAGMA foreign_keys=ON" once after Open would only configure the first
// connection. Passing the pragmas in the DSN makes the driver apply them to every
// connection it opens — without it, ON DELETE CASCADE would silently not fire.
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// Every connection to ":memory:" is a brand new, empty database.
	// Pinning the pool to one connection keeps all queries on the same one.
	if isMemory(dbPath) {
		conn.SetMaxOpenConns(1)
	}

	// Ping verifies the connection actually works.
	// Without this, a bad path or permissions issue would only surface
	// on the first query — which is much harder to debug.
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	db := &DB{conn: conn, dialect: query.SQLite, now: utcNow}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

func dsn(dbPath string) string {
	params := []string{
		"_pragma=foreign_keys(1)",
		"_pragma=busy_timeout(5000)",
		// Store time.Time as "2006-01-02 15:04:05.999999999-07:00" so values
		// sort as text and parse back into time.Time on DATETIME columns.
		"_time_format=sqlite",
	}
	if !isMemory(dbPath) {
		params = append(params, "_pragma=journal_mode(WAL)")
	}
	return dbPath + "?" + strings.Join(params, "&")
}

func isMemory(dbPath string) bool {
	return dbPath == ":memory:" || strings.Contains(dbPath, "mode=memory")
}

// utcNow truncates to microseconds so timestamps round-trip identically
// through both backends (Postgres TIMESTAMPTZ keeps microseconds).
func utcNow() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// Ping is used by the /healthz endpoint.
func (db *DB) Ping(ctx context.Context) error {
	if err := db.conn.PingContext(ctx); err != nil {
		return fmt.Errorf("sqlite: ping: %w", err)
	}
	return nil
}

// Close closes the database connection pool.
//
// ALWAYS DEFER CLOSE:
//
//	db, err := sqlite.New("data/market.db")
//	if err != nil { ... }
//	defer db.Close()
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate creates the schema.
//
// CREATE TABLE IF NOT EXISTS is idempotent, so this runs on every start.
// The postgres backend uses golang-migrate with versioned files instead.
//
// Prices are stored as INTEGER cents. SQLite has no fixed-point type: a
// NUMERIC column would silently become a float and "15.00 <= 15.00" could
// compare wrong after arithmetic.
func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id                TEXT PRIMARY KEY,
			email             TEXT UNIQUE,
			first_name        TEXT,
			last_name         TEXT,
			profile_image_url TEXT,
			created_at        DATETIME NOT NULL,
			updated_at        DATETIME NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("creating users table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS games (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			title       TEXT NOT NULL,
			description TEXT NOT NULL,
			price_cents INTEGER NOT NULL CHECK (price_cents >= 0),
			category    VARCHAR(50) NOT NULL,
			image_url   TEXT,
			seller_id   TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			created_at  DATETIME NOT NULL,
			updated_at  DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_games_seller_id ON games(seller_id);
		CREATE INDEX IF NOT EXISTS idx_games_created_at ON games(created_at);
		CREATE INDEX IF NOT EXISTS idx_games_category ON games(category);
	`)
	if err != nil {
		return fmt.Errorf("creating games table: %w", err)
	}

	// expire is unix seconds so the prune job is a plain integer comparison.
	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			sid     TEXT PRIMARY KEY,
			user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			sess    TEXT NOT NULL,
			expire  INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_sessions_expire ON sessions(expire);
	`)
	if err != nil {
		return fmt.Errorf("creating sessions table: %w", err)
	}

	return nil
}

// isUniqueViolation reports whether err is a UNIQUE constraint failure.
func isUniqueViolation(err error) bool {
	var se *msqlite.Error
	if errors.As(err, &se) {
		return se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
	}
	return false
}
