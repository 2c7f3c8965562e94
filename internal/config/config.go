package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the service
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Catalog  CatalogConfig  `mapstructure:"catalog"`
	Firebase FirebaseConfig `mapstructure:"firebase"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Geo      GeoConfig      `mapstructure:"geo"`
	Search   SearchConfig   `mapstructure:"search"`
	Session  SessionConfig  `mapstructure:"session"`
	Affinity AffinityConfig `mapstructure:"affinity"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// CatalogConfig selects where establishments, locations and categories come from
type CatalogConfig struct {
	Backend  string `mapstructure:"backend"`
	SeedFile string `mapstructure:"seed_file"`
}

// FirebaseConfig holds service account credentials. CredentialsJSON is
// base64 encoded and wins over CredentialsFile when both are set.
type FirebaseConfig struct {
	CredentialsFile string `mapstructure:"credentials_file"`
	CredentialsJSON string `mapstructure:"credentials_json"`
	ProjectID       string `mapstructure:"project_id"`
}

type DatabaseConfig struct {
	URL string `mapstructure:"url"`
}

// RedisConfig holds Redis connection details. An empty Addr keeps the
// toggle guard in process.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type AuthConfig struct {
	Provider       string `mapstructure:"provider"`
	ClerkSecretKey string `mapstructure:"clerk_secret_key"`
}

type GeoConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type SearchConfig struct {
	SuggestionLimit int           `mapstructure:"suggestion_limit"`
	BlurDelay       time.Duration `mapstructure:"blur_delay"`
}

type SessionConfig struct {
	IdleTTL         time.Duration `mapstructure:"idle_ttl"`
	JanitorInterval time.Duration `mapstructure:"janitor_interval"`
}

type AffinityConfig struct {
	GuardTTL time.Duration `mapstructure:"guard_ttl"`
	// CacheTTL is how long an idle user's memberships stay cached.
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

type MetricsConfig struct {
	User string `mapstructure:"user"`
	Pass string `mapstructure:"pass"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

const (
	BackendFirestore = "firestore"
	BackendPostgres  = "postgres"
	BackendMemory    = "memory"

	ProviderFirebase = "firebase"
	ProviderClerk    = "clerk"
)

// Load reads .env, an optional config.yaml from the working directory and
// environment overrides, in increasing order of precedence.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	return load(v)
}

// LoadFile is Load with an explicit config file path.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	setDefaults(v)

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate rejects combinations the service cannot start with.
func (c *Config) Validate() error {
	switch c.Catalog.Backend {
	case BackendFirestore, BackendMemory:
	case BackendPostgres:
		if c.Database.URL == "" {
			return fmt.Errorf("catalog backend %q requires database.url", c.Catalog.Backend)
		}
	default:
		return fmt.Errorf("unknown catalog backend %q", c.Catalog.Backend)
	}

	switch c.Auth.Provider {
	case ProviderFirebase:
	case ProviderClerk:
		if c.Auth.ClerkSecretKey == "" {
			return fmt.Errorf("auth provider %q requires auth.clerk_secret_key", c.Auth.Provider)
		}
	default:
		return fmt.Errorf("unknown auth provider %q", c.Auth.Provider)
	}

	if c.Search.SuggestionLimit <= 0 {
		return fmt.Errorf("search.suggestion_limit must be positive, got %d", c.Search.SuggestionLimit)
	}
	if c.Session.IdleTTL <= 0 || c.Session.JanitorInterval <= 0 {
		return fmt.Errorf("session.idle_ttl and session.janitor_interval must be positive")
	}
	if c.Affinity.CacheTTL <= 0 {
		return fmt.Errorf("affinity.cache_ttl must be positive")
	}

	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 3333)
	v.SetDefault("server.read_timeout", 5*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("server.idle_timeout", 120*time.Second)

	v.SetDefault("catalog.backend", BackendFirestore)
	v.SetDefault("catalog.seed_file", "")

	v.SetDefault("firebase.credentials_file", "./serviceAccountKey.json")
	v.SetDefault("firebase.credentials_json", "")
	v.SetDefault("firebase.project_id", "")

	v.SetDefault("database.url", "")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("auth.provider", ProviderFirebase)
	v.SetDefault("auth.clerk_secret_key", "")

	v.SetDefault("geo.base_url", "https://api.geoapify.com")
	v.SetDefault("geo.api_key", "")
	v.SetDefault("geo.timeout", 10*time.Second)

	v.SetDefault("search.suggestion_limit", 5)
	v.SetDefault("search.blur_delay", 200*time.Millisecond)

	v.SetDefault("session.idle_ttl", 30*time.Minute)
	v.SetDefault("session.janitor_interval", time.Minute)

	v.SetDefault("affinity.guard_ttl", 10*time.Second)
	v.SetDefault("affinity.cache_ttl", 30*time.Minute)

	v.SetDefault("metrics.user", "")
	v.SetDefault("metrics.pass", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}
