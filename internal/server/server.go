// Package server sets up the HTTP server, router, and all route definitions.
//
// SERVER ARCHITECTURE:
// This package is the "wiring" layer. It connects handlers, middleware, and routes,
// and it owns every long-lived resource (database, Redis client, cron scheduler):
// - Which URL patterns map to which handler functions
// - What middleware runs on which routes
// - Which optional collaborators are switched on by configuration
// - How the server starts and stops gracefully
//
// DEPENDENCY INJECTION FLOW:
// main.go loads config.Config and a logger, then:
//
//	Server.New() creates:
//	  store (sqlite or postgres) ─┬─ GameService ─ GameHandler
//	  sessions (store or redis) ──┼─ AuthService ─ AuthHandler, RequireAuth
//	                              └─ UserService ─ UserHandler
//	  image store (disk or S3) ──── GameHandler
//	  scheduler ─────────────────── AuthService.PruneSessions
//
// This is the "composition root" pattern: all dependencies are wired
// in one place (New/setupRoutes), rather than scattered across the codebase.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/sakif/game-market/internal/auth"
	"github.com/sakif/game-market/internal/config"
	"github.com/sakif/game-market/internal/handler"
	"github.com/sakif/game-market/internal/middleware"
	"github.com/sakif/game-market/internal/repository"
	"github.com/sakif/game-market/internal/repository/postgres"
	"github.com/sakif/game-market/internal/repository/redisstore"
	sqliteRepo "github.com/sakif/game-market/internal/repository/sqlite"
	"github.com/sakif/game-market/internal/scheduler"
	"github.com/sakif/game-market/internal/service"
	"github.com/sakif/game-market/internal/upload"
)

// uploadsPrefix is the URL path local-disk images are served under.
const uploadsPrefix = "/uploads"

// Server represents the HTTP server and all its dependencies.
//
// RESOURCE MANAGEMENT:
// The Server owns the store, the optional Redis client and the scheduler.
// Close releases them in reverse order of creation; Start calls it during
// graceful shutdown.
type Server struct {
	router    *chi.Mux
	config    *config.Config
	logger    *slog.Logger
	store     repository.Store
	redis     *redis.Client // nil unless REDIS_ADDR is set
	scheduler *scheduler.Scheduler

	authSvc   *service.AuthService
	images    upload.Store
	uploadDir string // empty when images go to S3
}

// New opens every backend the config asks for and builds the router.
// On error, anything already opened is closed again.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *Server, err error) {
	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
	}
	defer func() {
		if err != nil {
			s.Close()
		}
	}()

	// === 1. RECORD STORE ===
	if s.store, err = openStore(ctx, cfg.Database, logger); err != nil {
		return nil, err
	}

	// === 2. SESSIONS ===
	// Sessions live next to users and games unless Redis is configured.
	var sessions repository.SessionRepository = s.store
	if cfg.Redis.Addr != "" {
		if s.redis, err = redisstore.Connect(ctx, cfg.Redis.Addr); err != nil {
			return nil, err
		}
		sessions = redisstore.NewSessionStore(s.redis)
		logger.Info("sessions stored in redis", slog.String("addr", cfg.Redis.Addr))
	}

	// === 3. IDENTITY ===
	tokens, err := auth.NewTokenService(cfg.Auth.JWTSecret)
	if err != nil {
		return nil, fmt.Errorf("creating token service: %w", err)
	}

	// Left as a nil interface (not a typed nil pointer) when Firebase is off,
	// so AuthService can tell bearer auth is disabled.
	var bearer service.IdentityVerifier
	if cfg.Auth.FirebaseCredentialsPath != "" {
		verifier, err := auth.NewFirebaseVerifier(ctx, cfg.Auth.FirebaseCredentialsPath)
		if err != nil {
			return nil, fmt.Errorf("creating firebase verifier: %w", err)
		}
		bearer = verifier
	} else {
		logger.Warn("FIREBASE_CREDENTIALS_PATH not set, bearer tokens are rejected")
	}

	s.authSvc = service.NewAuthService(s.store, sessions, tokens, bearer, cfg.Auth.SessionTTL, logger)

	// === 4. IMAGE STORE ===
	if s.images, s.uploadDir, err = openImageStore(ctx, cfg.Uploads); err != nil {
		return nil, err
	}

	// === 5. BACKGROUND JOBS ===
	s.scheduler = scheduler.New(logger)
	if err = s.scheduler.AddSessionPruning(cfg.Server.PruneSpec, s.authSvc); err != nil {
		return nil, fmt.Errorf("scheduling session pruning: %w", err)
	}

	s.setupRoutes(sessions)
	return s, nil
}

func openStore(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) (repository.Store, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		// Schema first: the pool assumes the tables exist.
		if err := postgres.MigrateUp(cfg.URL, logger); err != nil {
			return nil, err
		}
		db, err := postgres.New(ctx, cfg.URL, postgres.Options{MaxConns: cfg.MaxConns})
		if err != nil {
			return nil, err
		}
		return db, nil

	default:
		// os.MkdirAll creates all parent directories if needed (like `mkdir -p`).
		if dir := filepath.Dir(cfg.Path); cfg.Path != ":memory:" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("creating database directory %s: %w", dir, err)
			}
		}
		db, err := sqliteRepo.New(cfg.Path)
		if err != nil {
			return nil, err
		}
		return db, nil
	}
}

func openImageStore(ctx context.Context, cfg config.UploadConfig) (upload.Store, string, error) {
	if cfg.S3Enabled() {
		store, err := upload.NewS3Store(ctx, upload.S3Options{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Endpoint:  cfg.S3Endpoint,
			PublicURL: cfg.S3PublicURL,
		})
		if err != nil {
			return nil, "", err
		}
		return store, "", nil
	}

	store, err := upload.NewDiskStore(cfg.Dir, uploadsPrefix)
	if err != nil {
		return nil, "", err
	}
	return store, store.Dir(), nil
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
// GET    /healthz                      → store (and redis) liveness
// GET    /uploads/*                    → uploaded images (disk store only)
// GET    /api/login                    → start GitHub OAuth      [GitHub only]
// GET    /api/callback                 → finish GitHub OAuth     [GitHub only]
// GET    /api/logout                   → end the session         [GitHub only]
// GET    /api/auth/user                → current user            [auth]
// GET    /api/categories               → category labels
// GET    /api/games                    → list/search/filter listings
// GET    /api/games/{id}               → single listing
// POST   /api/games                    → create listing          [auth, rate limited]
// GET    /api/users/{userId}/games     → a seller's listings
// DELETE /api/admin/users/{userId}     → remove a user           [admin, if a hash is set]
//
// MIDDLEWARE ORDER MATTERS:
// 1. RequestID: assigns unique ID to each request (for tracing)
// 2. RealIP: extracts real client IP from proxy headers (the rate limiter keys on it)
// 3. Recoverer: catches panics and returns 500 instead of crashing
// 4. Logger: logs each request with timing info
func (s *Server) setupRoutes(sessions repository.SessionRepository) {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))

	deps := map[string]handler.Pinger{"store": s.store}
	if s.redis != nil {
		deps["redis"] = redisPinger{s.redis}
	}
	health := handler.NewHealthHandler(deps, s.logger)
	s.router.Get("/healthz", health.HandleHealth)

	if s.uploadDir != "" {
		fileServer := http.FileServer(http.Dir(s.uploadDir))
		s.router.Handle(uploadsPrefix+"/*", http.StripPrefix(uploadsPrefix+"/", fileServer))
	}

	gameHandler := handler.NewGameHandler(service.NewGameService(s.store, s.logger), s.images, s.logger)
	userHandler := handler.NewUserHandler(service.NewUserService(s.store, sessions, s.logger), s.logger)
	limiter := middleware.NewRateLimiter(s.config.Limits.CreatePerMinute, s.config.Limits.CreateBurst)

	// Without GitHub the login routes stay unmounted; HandleMe still
	// serves bearer-token clients.
	var provider handler.IdentityProvider
	if s.config.Auth.GitHubEnabled() {
		provider = auth.NewGitHubProvider(
			s.config.Auth.GitHubClientID,
			s.config.Auth.GitHubClientSecret,
			s.config.Auth.GitHubCallbackURL,
		)
	} else {
		s.logger.Warn("GITHUB_CLIENT_ID not set, browser login is disabled")
	}
	authHandler := handler.NewAuthHandler(provider, s.authSvc, s.config.Server.SecureCookies, s.logger)

	s.router.Route("/api", func(r chi.Router) {
		if s.config.Auth.GitHubEnabled() {
			r.Get("/login", authHandler.HandleLogin)
			r.Get("/callback", authHandler.HandleCallback)
			r.Get("/logout", authHandler.HandleLogout)
		}

		r.Get("/categories", handler.HandleCategories)
		r.Get("/games", gameHandler.HandleList)
		r.Get("/games/{id}", gameHandler.HandleGet)
		r.Get("/users/{userId}/games", gameHandler.HandleListBySeller)

		// === Protected Routes ===
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth(s.authSvc))
			r.Get("/auth/user", authHandler.HandleMe)
			r.With(limiter.Limit).Post("/games", gameHandler.HandleCreate)
		})

		if hash := s.config.Auth.AdminPasswordHash; hash != "" {
			r.Route("/admin", func(r chi.Router) {
				r.Use(auth.RequireAdmin(auth.NewPasswordService(), hash))
				r.Delete("/users/{userId}", userHandler.HandleDelete)
			})
		}
	})
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Start starts the HTTP server and handles graceful shutdown.
//
// GRACEFUL SHUTDOWN:
// 1. Stop accepting new HTTP connections
// 2. Wait for in-flight requests to finish (30s timeout)
// 3. Stop the scheduler (waits for a running prune job)
// 4. Close Redis and the store
func (s *Server) Start() error {
	defer s.Close()

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", s.config.Server.Port),
		Handler: s.router,
		// Uploads of up to 10MB need more than the usual 15s on slow links.
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)

	s.scheduler.Start()

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Server.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Server.Port)),
			slog.String("database", s.config.Database.Driver),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.scheduler.Stop(ctx)
		s.logger.Info("server stopped gracefully")
	}

	return nil
}

// Close releases the Redis client and the store. Safe to call on a
// partially built Server.
func (s *Server) Close() error {
	var errs []error
	if s.redis != nil {
		errs = append(errs, s.redis.Close())
		s.redis = nil
	}
	if s.store != nil {
		errs = append(errs, s.store.Close())
		s.store = nil
	}
	return errors.Join(errs...)
}

type redisPinger struct{ client *redis.Client }

func (p redisPinger) Ping(ctx context.Context) error { return p.client.Ping(ctx).Err() }
