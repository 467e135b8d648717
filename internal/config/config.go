// Package config loads runtime settings from the environment.
//
// A .env file in the working directory is read first (handy in development);
// real environment variables always win over it. Every setting has a default
// except the secrets, and Validate reports every problem at once.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/sakif/game-market/internal/scheduler"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Auth     AuthConfig
	Redis    RedisConfig
	Uploads  UploadConfig
	Limits   LimitConfig
	LogLevel slog.Level
}

type ServerConfig struct {
	Port          int
	SecureCookies bool
	PruneSpec     string
}

type DatabaseConfig struct {
	Driver   string
	Path     string // sqlite
	URL      string // postgres
	MaxConns int32
}

type AuthConfig struct {
	JWTSecret               string
	SessionTTL              time.Duration
	GitHubClientID          string
	GitHubClientSecret      string
	GitHubCallbackURL       string
	FirebaseCredentialsPath string
	AdminPasswordHash       string
}

// GitHubEnabled reports whether the OAuth login routes should be mounted.
func (a AuthConfig) GitHubEnabled() bool { return a.GitHubClientID != "" }

type RedisConfig struct {
	// Addr moves sessions from the SQL store to Redis when set.
	Addr string
}

type UploadConfig struct {
	Dir         string
	S3Bucket    string
	S3Region    string
	S3AccessKey string
	S3SecretKey string
	S3Endpoint  string
	S3PublicURL string
}

// S3Enabled reports whether images go to S3 instead of the local disk.
func (u UploadConfig) S3Enabled() bool { return u.S3Bucket != "" }

type LimitConfig struct {
	CreatePerMinute float64
	CreateBurst     int
}

// Load reads .env (if present) and then the environment.
func Load() (*Config, error) {
	// A missing .env is normal in production; a malformed one is not.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config: reading .env: %w", err)
	}
	return FromEnv()
}

// DatabaseURL loads .env and returns DATABASE_URL alone, for the migrate
// subcommands that should not need the server's secrets.
func DatabaseURL() (string, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("config: reading .env: %w", err)
	}
	url := getEnv("DATABASE_URL", "")
	if url == "" {
		return "", errors.New("config: DATABASE_URL is required")
	}
	return url, nil
}

// FromEnv builds the config from environment variables only.
func FromEnv() (*Config, error) {
	var errs []error

	port, err := getEnvAsInt("PORT", 5000)
	errs = append(errs, err)
	secure, err := getEnvAsBool("SECURE_COOKIES", false)
	errs = append(errs, err)
	maxConns, err := getEnvAsInt("DB_MAX_CONNS", 10)
	errs = append(errs, err)
	ttl, err := getEnvAsDuration("SESSION_TTL", 7*24*time.Hour)
	errs = append(errs, err)
	perMinute, err := getEnvAsFloat("CREATE_RATE_PER_MIN", 10)
	errs = append(errs, err)
	burst, err := getEnvAsInt("CREATE_RATE_BURST", 5)
	errs = append(errs, err)

	var level slog.Level
	if err := level.UnmarshalText([]byte(getEnv("LOG_LEVEL", "info"))); err != nil {
		errs = append(errs, fmt.Errorf("LOG_LEVEL: %w", err))
	}

	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:          port,
			SecureCookies: secure,
			PruneSpec:     getEnv("SESSION_PRUNE_SCHEDULE", scheduler.DefaultPruneSpec),
		},
		Database: DatabaseConfig{
			Driver:   strings.ToLower(getEnv("DB_DRIVER", DriverSQLite)),
			Path:     getEnv("DB_PATH", "data/market.db"),
			URL:      getEnv("DATABASE_URL", ""),
			MaxConns: int32(maxConns),
		},
		Auth: AuthConfig{
			JWTSecret:               getEnv("JWT_SECRET", ""),
			SessionTTL:              ttl,
			GitHubClientID:          getEnv("GITHUB_CLIENT_ID", ""),
			GitHubClientSecret:      getEnv("GITHUB_CLIENT_SECRET", ""),
			GitHubCallbackURL:       getEnv("GITHUB_CALLBACK_URL", fmt.Sprintf("http://localhost:%d/api/callback", port)),
			FirebaseCredentialsPath: getEnv("FIREBASE_CREDENTIALS_PATH", ""),
			AdminPasswordHash:       getEnv("ADMIN_PASSWORD_HASH", ""),
		},
		Redis: RedisConfig{
			Addr: getEnv("REDIS_ADDR", ""),
		},
		Uploads: UploadConfig{
			Dir:         getEnv("UPLOAD_DIR", "uploads"),
			S3Bucket:    getEnv("S3_BUCKET", ""),
			S3Region:    getEnv("S3_REGION", ""),
			S3AccessKey: getEnv("S3_ACCESS_KEY_ID", ""),
			S3SecretKey: getEnv("S3_SECRET_ACCESS_KEY", ""),
			S3Endpoint:  getEnv("S3_ENDPOINT", ""),
			S3PublicURL: getEnv("S3_PUBLIC_URL", ""),
		},
		Limits: LimitConfig{
			CreatePerMinute: perMinute,
			CreateBurst:     burst,
		},
		LogLevel: level,
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field rules and reports every violation together.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Server.Port))
	}

	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.Path == "" {
			errs = append(errs, errors.New("DB_PATH is required for the sqlite driver"))
		}
	case DriverPostgres:
		if c.Database.URL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres driver"))
		}
		if c.Database.MaxConns < 1 {
			errs = append(errs, errors.New("DB_MAX_CONNS must be at least 1"))
		}
	default:
		errs = append(errs, fmt.Errorf("DB_DRIVER must be %q or %q, got %q", DriverSQLite, DriverPostgres, c.Database.Driver))
	}

	if len(c.Auth.JWTSecret) < 16 {
		errs = append(errs, errors.New("JWT_SECRET is required and must be at least 16 characters"))
	}
	if c.Auth.SessionTTL <= 0 {
		errs = append(errs, errors.New("SESSION_TTL must be positive"))
	}
	if c.Auth.GitHubEnabled() && c.Auth.GitHubClientSecret == "" {
		errs = append(errs, errors.New("GITHUB_CLIENT_SECRET is required when GITHUB_CLIENT_ID is set"))
	}
	if c.Auth.AdminPasswordHash != "" && !strings.HasPrefix(c.Auth.AdminPasswordHash, "$2") {
		errs = append(errs, errors.New("ADMIN_PASSWORD_HASH must be a bcrypt hash (see: server hash-password)"))
	}

	if c.Uploads.S3Enabled() && c.Uploads.S3Region == "" {
		errs = append(errs, errors.New("S3_REGION is required when S3_BUCKET is set"))
	}
	if !c.Uploads.S3Enabled() && c.Uploads.Dir == "" {
		errs = append(errs, errors.New("UPLOAD_DIR is required when S3 is not configured"))
	}

	if c.Limits.CreatePerMinute <= 0 {
		errs = append(errs, errors.New("CREATE_RATE_PER_MIN must be positive"))
	}
	if c.Limits.CreateBurst < 1 {
		errs = append(errs, errors.New("CREATE_RATE_BURST must be at least 1"))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) (int, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %q is not an integer", key, raw)
	}
	return v, nil
}

func getEnvAsFloat(key string, defaultValue float64) (float64, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %q is not a number", key, raw)
	}
	return v, nil
}

func getEnvAsBool(key string, defaultValue bool) (bool, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%s: %q is not a boolean", key, raw)
	}
	return v, nil
}

func getEnvAsDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %q is not a duration (e.g. 168h)", key, raw)
	}
	return v, nil
}
