// Package config loads service settings from the environment and an optional
// .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Store backends.
const (
	StoreSQLite = "sqlite"
	StoreMongo  = "mongo"
)

// Config holds every setting the service reads at startup.
type Config struct {
	Addr      string `env:"COLLABTODO_ADDR" envDefault:":8080"`
	Store     string `env:"COLLABTODO_STORE" envDefault:"sqlite"`
	DBPath    string `env:"COLLABTODO_DB_PATH" envDefault:"data/collabtodo.db"`
	StaticDir string `env:"COLLABTODO_STATIC_DIR" envDefault:"web/dist"`

	MongoURI      string `env:"MONGO_URI"`
	MongoDatabase string `env:"MONGO_DATABASE" envDefault:"collabtodo"`
	RedisURL      string `env:"REDIS_URL"`

	FrontendURL string `env:"FRONTEND_URL" envDefault:"http://localhost:5173"`

	AuthHS256Secret      string `env:"AUTH_HS256_SECRET"`
	AuthRSAPublicKey     string `env:"AUTH_RSA_PUBLIC_KEY"`
	AuthIssuer           string `env:"AUTH_ISSUER"`
	WebhookSigningSecret string `env:"WEBHOOK_SIGNING_SECRET"`

	StoreTimeout time.Duration `env:"STORE_TIMEOUT" envDefault:"5s"`
	LockTimeout  time.Duration `env:"LOCK_TIMEOUT" envDefault:"3s"`
	LockTTL      time.Duration `env:"LOCK_TTL" envDefault:"10s"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`
	LogFile   string `env:"LOG_FILE"`
}

// Load reads envFile if it exists, then parses the environment. Variables
// already set in the environment win over the file.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// Validate checks settings that depend on each other.
func (c Config) Validate() error {
	var errs []error

	switch c.Store {
	case StoreSQLite:
		if strings.TrimSpace(c.DBPath) == "" {
			errs = append(errs, errors.New("COLLABTODO_DB_PATH is required for the sqlite store"))
		}
	case StoreMongo:
		if strings.TrimSpace(c.MongoURI) == "" {
			errs = append(errs, errors.New("MONGO_URI is required for the mongo store"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown COLLABTODO_STORE %q", c.Store))
	}

	hasSecret := strings.TrimSpace(c.AuthHS256Secret) != ""
	hasKey := strings.TrimSpace(c.AuthRSAPublicKey) != ""
	if hasSecret == hasKey {
		errs = append(errs, errors.New("set exactly one of AUTH_HS256_SECRET and AUTH_RSA_PUBLIC_KEY"))
	}

	if c.StoreTimeout <= 0 || c.LockTimeout <= 0 || c.LockTTL <= 0 {
		errs = append(errs, errors.New("timeouts must be positive"))
	}

	return errors.Join(errs...)
}
