// Package config builds the server configuration from defaults, an optional
// .env file and the process environment, in that order.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/goliatone/go-wms/auth"
	"github.com/goliatone/go-wms/internal/storage"
)

// DefaultSQLiteDSN is used when DB_DRIVER is sqlite and DATABASE_URL is unset
const DefaultSQLiteDSN = "file:wms.db?cache=shared"

// LookupFunc reads one variable. os.LookupEnv is the usual source.
type LookupFunc func(key string) (string, bool)

type Server struct {
	Addr            string
	APIPrefix       string
	CORSOrigins     string
	BodyLimit       int
	ShutdownTimeout time.Duration
}

type Database struct {
	Driver      string
	DSN         string
	AutoMigrate bool
	Seed        bool
}

type Log struct {
	Level  string
	Format string
}

// RateLimit applies per client IP to the credential endpoints. RPS <= 0
// disables it.
type RateLimit struct {
	RPS   float64
	Burst int
}

// Config holds runtime settings for the server
type Config struct {
	Environment string
	Server      Server
	Database    Database
	Log         Log
	RateLimit   RateLimit
	Auth        auth.Config
}

// Defaults returns a development configuration backed by in-memory SQLite
func Defaults() Config {
	return Config{
		Environment: auth.EnvironmentDevelopment,
		Server: Server{
			Addr:            ":3000",
			APIPrefix:       "/api/v1",
			CORSOrigins:     "*",
			BodyLimit:       1 << 20,
			ShutdownTimeout: 30 * time.Second,
		},
		Database: Database{
			Driver:      storage.DriverSQLite,
			DSN:         DefaultSQLiteDSN,
			AutoMigrate: true,
			Seed:        true,
		},
		Log: Log{
			Level:  "info",
			Format: "json",
		},
		RateLimit: RateLimit{
			RPS:   5,
			Burst: 10,
		},
		Auth: auth.DefaultConfig(),
	}
}

// Load reads the optional env files and then the environment. Missing
// files are skipped.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("config: load %s: %w", f, err)
		}
	}
	return FromLookup(os.LookupEnv)
}

// FromLookup builds and validates a Config from lookup
func FromLookup(lookup LookupFunc) (Config, error) {
	cfg := Defaults()
	var errs []error

	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}
	lifetime := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			d, err := auth.ParseLifetime(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}

	str("APP_ENV", &cfg.Environment)
	str("HTTP_ADDR", &cfg.Server.Addr)
	if port, ok := lookup("PORT"); ok && strings.TrimSpace(port) != "" {
		if _, set := lookup("HTTP_ADDR"); !set {
			cfg.Server.Addr = ":" + strings.TrimSpace(port)
		}
	}
	str("API_PREFIX", &cfg.Server.APIPrefix)
	str("CORS_ORIGIN", &cfg.Server.CORSOrigins)
	integer("HTTP_BODY_LIMIT", &cfg.Server.BodyLimit)
	lifetime("HTTP_SHUTDOWN_TIMEOUT", &cfg.Server.ShutdownTimeout)

	str("DB_DRIVER", &cfg.Database.Driver)
	dsn := ""
	str("DATABASE_URL", &dsn)
	switch {
	case dsn != "":
		cfg.Database.DSN = dsn
	case strings.EqualFold(cfg.Database.Driver, storage.DriverSQLite):
		cfg.Database.DSN = DefaultSQLiteDSN
	default:
		cfg.Database.DSN = ""
	}
	boolean("DB_AUTO_MIGRATE", &cfg.Database.AutoMigrate)
	boolean("DB_SEED", &cfg.Database.Seed)

	str("LOG_LEVEL", &cfg.Log.Level)
	str("LOG_FORMAT", &cfg.Log.Format)

	if v, ok := lookup("RATE_LIMIT_RPS"); ok && strings.TrimSpace(v) != "" {
		rps, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("RATE_LIMIT_RPS: %w", err))
		} else {
			cfg.RateLimit.RPS = rps
		}
	}
	integer("RATE_LIMIT_BURST", &cfg.RateLimit.Burst)

	// secrets are read raw so that production can tell "unset" apart from
	// the shipped fallbacks
	cfg.Auth.AccessTokenSecret = ""
	cfg.Auth.RefreshTokenSecret = ""
	str("JWT_SECRET", &cfg.Auth.AccessTokenSecret)
	str("REFRESH_TOKEN_SECRET", &cfg.Auth.RefreshTokenSecret)
	lifetime("JWT_EXPIRES_IN", &cfg.Auth.AccessTokenTTL)
	lifetime("REFRESH_TOKEN_EXPIRES_IN", &cfg.Auth.RefreshTokenTTL)
	str("JWT_ISSUER", &cfg.Auth.Issuer)
	integer("BCRYPT_COST", &cfg.Auth.PasswordHashCost)
	str("DEFAULT_ROLE_CODE", &cfg.Auth.DefaultRoleCode)
	str("PHONE_REGION", &cfg.Auth.PhoneRegion)

	if err := errors.Join(errs...); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}

	cfg.Auth.Environment = cfg.Environment
	cfg.Auth = cfg.Auth.WithDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the assembled configuration
func (c Config) Validate() error {
	if strings.TrimSpace(c.Server.Addr) == "" {
		return errors.New("config: HTTP_ADDR is required")
	}
	if c.Server.APIPrefix != "" && !strings.HasPrefix(c.Server.APIPrefix, "/") {
		return fmt.Errorf("config: API_PREFIX must start with /, got %q", c.Server.APIPrefix)
	}
	switch strings.ToLower(c.Database.Driver) {
	case storage.DriverPostgres, storage.DriverSQLite:
	default:
		return fmt.Errorf("config: DB_DRIVER must be postgres or sqlite, got %q", c.Database.Driver)
	}
	if strings.EqualFold(c.Database.Driver, storage.DriverPostgres) && c.Database.DSN == "" {
		return errors.New("config: DATABASE_URL is required for postgres")
	}
	if c.RateLimit.RPS > 0 && c.RateLimit.Burst <= 0 {
		return fmt.Errorf("config: RATE_LIMIT_BURST must be positive, got %d", c.RateLimit.Burst)
	}
	if err := c.Auth.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// IsProduction reports whether APP_ENV is production
func (c Config) IsProduction() bool {
	return c.Auth.IsProduction()
}

// StorageConfig returns the database settings in storage form
func (c Config) StorageConfig() storage.Config {
	return storage.Config{
		Driver: c.Database.Driver,
		DSN:    c.Database.DSN,
	}
}
