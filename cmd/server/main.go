// Package main is the entry point for the game marketplace server.
//
// MAIN PACKAGE IN GO:
// The main package should be kept minimal. Its job is to:
// 1. Read configuration (internal/config: .env file + environment variables)
// 2. Create the logger
// 3. Dispatch to a subcommand, or start the application
//
// All actual logic lives in imported packages (internal/server, internal/handler, etc.).
//
// USAGE:
//
//	server                       run the HTTP server
//	server migrate up            apply pending postgres migrations
//	server migrate down [n]      roll back n migrations (default 1)
//	server migrate status        print the applied migration version
//	server hash-password <pw>    print a bcrypt hash for ADMIN_PASSWORD_HASH
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/sakif/game-market/internal/auth"
	"github.com/sakif/game-market/internal/config"
	"github.com/sakif/game-market/internal/repository/postgres"
	"github.com/sakif/game-market/internal/server"
)

func main() {
	// Subcommands log at info; the server's level comes from LOG_LEVEL.
	logger := newLogger(slog.LevelInfo)

	if len(os.Args) > 1 {
		var err error
		switch os.Args[1] {
		case "migrate":
			err = runMigrate(os.Args[2:], logger)
		case "hash-password":
			err = runHashPassword(os.Args[2:])
		default:
			err = fmt.Errorf("unknown command %q (want migrate or hash-password)", os.Args[1])
		}
		if err != nil {
			logger.Error(os.Args[1]+" failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
		return
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger = newLogger(cfg.LogLevel)

	srv, err := server.New(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start() blocks until the server is shut down (via Ctrl+C or SIGTERM)
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// newLogger writes human-readable structured logs to stdout.
func newLogger(level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}

func runMigrate(args []string, logger *slog.Logger) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: server migrate [up|down|status] [args...]")
	}

	databaseURL, err := config.DatabaseURL()
	if err != nil {
		return err
	}

	switch args[0] {
	case "up":
		return postgres.MigrateUp(databaseURL, logger)
	case "down":
		steps := 1
		if len(args) > 1 {
			if steps, err = strconv.Atoi(args[1]); err != nil {
				return fmt.Errorf("invalid step count %q", args[1])
			}
		}
		return postgres.MigrateDown(databaseURL, steps, logger)
	case "status":
		version, dirty, ok, err := postgres.MigrationStatus(databaseURL)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Println("no migrations applied")
			return nil
		}
		fmt.Printf("version %d (dirty: %t)\n", version, dirty)
		return nil
	default:
		return fmt.Errorf("unknown migrate command %q (want up, down or status)", args[0])
	}
}

func runHashPassword(args []string) error {
	if len(args) != 1 || args[0] == "" {
		return fmt.Errorf("usage: server hash-password <password>")
	}
	hash, err := auth.NewPasswordService().Hash(args[0])
	if err != nil {
		return err
	}
	fmt.Println(hash)
	return nil
}
