package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env     string        `yaml:"env" env:"ENV" env-default:"local"`
	Gateway GatewayConfig `yaml:"gateway"`
	Store   StoreConfig   `yaml:"store"`
	Issuer  IssuerConfig  `yaml:"issuer"`
}

// GatewayConfig describes the REST backend the client talks to.
type GatewayConfig struct {
	BaseURL     string        `yaml:"base_url" env:"API_BASE_URL" env-default:"http://127.0.0.1:8000/api/"`
	LoginPath   string        `yaml:"login_path" env-default:"auth/login/"`
	RefreshPath string        `yaml:"refresh_path" env-default:"auth/token/refresh/"`
	LoginRoute  string        `yaml:"login_route" env-default:"/login"`
	Timeout     time.Duration `yaml:"timeout" env:"API_TIMEOUT" env-default:"0s"`

	// Concurrent 401s share one refresh call unless this is set.
	DisableSingleFlight bool `yaml:"disable_single_flight" env:"API_DISABLE_SINGLE_FLIGHT"`
}

// StoreConfig selects where the credential pair is persisted.
type StoreConfig struct {
	Kind           string `yaml:"kind" env:"STORE_KIND" env-default:"file"`
	Path           string `yaml:"path" env:"STORE_PATH" env-default:".secrets/credentials.json"`
	MigrationsPath string `yaml:"migrations_path" env:"STORE_MIGRATIONS_PATH" env-default:"./migrations"`
	MongoURI       string `yaml:"mongo_uri" env:"STORE_MONGO_URI"`
	MongoDatabase  string `yaml:"mongo_database" env:"STORE_MONGO_DATABASE" env-default:"authgate"`
}

// IssuerConfig configures the development token issuer.
type IssuerConfig struct {
	Host            string        `yaml:"host" env:"ISSUER_HOST" env-default:"127.0.0.1"`
	HTTPPort        int           `yaml:"http_port" env:"ISSUER_HTTP_PORT" env-default:"8000"`
	GRPCPort        int           `yaml:"grpc_port" env:"ISSUER_GRPC_PORT" env-default:"50051"`
	StoragePath     string        `yaml:"storage_path" env:"ISSUER_STORAGE_PATH" env-default:"./storage/issuer.db"`
	MigrationsPath  string        `yaml:"migrations_path" env:"ISSUER_MIGRATIONS_PATH" env-default:"./migrations"`
	Secret          string        `yaml:"secret" env:"ISSUER_SECRET"`
	RefreshPepper   string        `yaml:"refresh_pepper" env:"ISSUER_REFRESH_PEPPER"`
	TokenTTL        time.Duration `yaml:"token_ttl" env:"ISSUER_TOKEN_TTL" env-default:"5m"`
	RefreshTokenTTL time.Duration `yaml:"refresh_token_ttl" env:"ISSUER_REFRESH_TOKEN_TTL" env-default:"168h"`
}

// HTTPAddr returns the host:port the issuer's REST API listens on.
func (i IssuerConfig) HTTPAddr() string {
	return net.JoinHostPort(i.Host, strconv.Itoa(i.HTTPPort))
}

// Validate checks the settings the issuer cannot start without.
func (i IssuerConfig) Validate() error {
	if i.Secret == "" {
		return errors.New("issuer.secret is required")
	}
	if i.StoragePath == "" {
		return errors.New("issuer.storage_path is required")
	}
	if i.TokenTTL <= 0 || i.RefreshTokenTTL <= 0 {
		return errors.New("issuer token ttls must be positive")
	}

	return nil
}

const (
	StoreMemory  = "memory"
	StoreFile    = "file"
	StoreSQLite  = "sqlite"
	StoreMongoDB = "mongodb"
)

var ErrConfigNotFound = errors.New("config file not found")

// MustLoad reads the config at path and panics on any error.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic("failed to read config: " + err.Error())
	}

	return cfg
}

// Load reads the YAML config at path, applying env overrides. An empty
// path reads the environment only.
func Load(path string) (*Config, error) {
	var cfg Config

	if path == "" {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, err
		}
	} else {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}

		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// FetchConfigPath returns flagValue when set, otherwise the CONFIG_PATH env var.
func FetchConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}

	return os.Getenv("CONFIG_PATH")
}

func (c *Config) validate() error {
	if c.Gateway.BaseURL == "" {
		return errors.New("gateway.base_url is required")
	}
	if c.Gateway.Timeout < 0 {
		return errors.New("gateway.timeout must not be negative")
	}

	switch c.Store.Kind {
	case StoreMemory:
	case StoreFile, StoreSQLite:
		if c.Store.Path == "" {
			return fmt.Errorf("store.path is required for %s store", c.Store.Kind)
		}
	case StoreMongoDB:
		if c.Store.MongoURI == "" {
			return errors.New("store.mongo_uri is required for mongodb store")
		}
	default:
		return fmt.Errorf("unknown store kind: %q", c.Store.Kind)
	}

	return nil
}
