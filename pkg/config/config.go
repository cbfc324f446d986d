package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DatabaseConfig controls persistence.
type DatabaseConfig struct {
	Driver          string `json:"driver" yaml:"driver" env:"DATABASE_DRIVER"`
	DSN             string `json:"dsn" yaml:"dsn" env:"DATABASE_DSN"`
	Host            string `json:"host" yaml:"host" env:"DATABASE_HOST"`
	Port            int    `json:"port" yaml:"port" env:"DATABASE_PORT"`
	User            string `json:"user" yaml:"user" env:"DATABASE_USER"`
	Password        string `json:"password" yaml:"password" env:"DATABASE_PASSWORD"`
	Name            string `json:"name" yaml:"name" env:"DATABASE_NAME"`
	SSLMode         string `json:"sslmode" yaml:"sslmode" env:"DATABASE_SSLMODE"`
	MaxOpenConns    int    `json:"max_open_conns" yaml:"max_open_conns" env:"DATABASE_MAX_OPEN_CONNS"`
	MaxIdleConns    int    `json:"max_idle_conns" yaml:"max_idle_conns" env:"DATABASE_MAX_IDLE_CONNS"`
	ConnMaxLifetime int    `json:"conn_max_lifetime" yaml:"conn_max_lifetime" env:"DATABASE_CONN_MAX_LIFETIME"`
	MigrateOnStart  bool   `json:"migrate_on_start" yaml:"migrate_on_start" env:"DATABASE_MIGRATE_ON_START"`
}

// LoggingConfig controls application logging.
type LoggingConfig struct {
	Level      string `json:"level" yaml:"level" env:"LOG_LEVEL"`
	Format     string `json:"format" yaml:"format" env:"LOG_FORMAT"`
	Output     string `json:"output" yaml:"output" env:"LOG_OUTPUT"`
	FilePrefix string `json:"file_prefix" yaml:"file_prefix" env:"LOG_FILE_PREFIX"`
}

// TenantConfig controls tenant scoping defaults.
type TenantConfig struct {
	DefaultID string `json:"default_id" yaml:"default_id" env:"TENANT_DEFAULT_ID"`
}

// RoutesConfig controls route compilation and storage policy.
type RoutesConfig struct {
	AllowedURISchemes []string `json:"allowed_uri_schemes" yaml:"allowed_uri_schemes" env:"ROUTES_ALLOWED_URI_SCHEMES"`
	AllowedHTTPHosts  []string `json:"allowed_http_hosts" yaml:"allowed_http_hosts" env:"ROUTES_ALLOWED_HTTP_HOSTS"`
	SchemaVersion     int      `json:"schema_version" yaml:"schema_version" env:"ROUTES_SCHEMA_VERSION"`
}

// SSEConfig controls the event fan-out layer's bookkeeping limits.
type SSEConfig struct {
	HeartbeatIntervalMs           int `json:"heartbeat_interval_ms" yaml:"heartbeat_interval_ms" env:"SSE_HEARTBEAT_INTERVAL_MS"`
	ActivityMaxHistory            int `json:"activity_max_history" yaml:"activity_max_history" env:"SSE_ACTIVITY_MAX_HISTORY"`
	ActivityMaxEmittersPerProcess int `json:"activity_max_emitters_per_process" yaml:"activity_max_emitters_per_process" env:"SSE_ACTIVITY_MAX_EMITTERS_PER_PROCESS"`
	ActivityRetentionMs           int `json:"activity_retention_ms" yaml:"activity_retention_ms" env:"SSE_ACTIVITY_RETENTION_MS"`
	NotificationMaxEmitters       int `json:"notification_max_emitters" yaml:"notification_max_emitters" env:"SSE_NOTIFICATION_MAX_EMITTERS"`
	NotificationMaxHistory        int `json:"notification_max_history" yaml:"notification_max_history" env:"SSE_NOTIFICATION_MAX_HISTORY"`
}

// Config is the top-level configuration structure.
type Config struct {
	Database DatabaseConfig `json:"database" yaml:"database"`
	Logging  LoggingConfig  `json:"logging" yaml:"logging"`
	Tenant   TenantConfig   `json:"tenant" yaml:"tenant"`
	Routes   RoutesConfig   `json:"routes" yaml:"routes"`
	SSE      SSEConfig      `json:"sse" yaml:"sse"`
}

// New returns a configuration populated with defaults.
func New() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver:          "postgres",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 300,
			MigrateOnStart:  true,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "stdout",
			FilePrefix: "routeforge",
		},
		Tenant: TenantConfig{
			DefaultID: "default",
		},
		Routes: RoutesConfig{
			AllowedURISchemes: []string{"direct", "timer", "http", "https", "log", "mock"},
			AllowedHTTPHosts:  nil,
			SchemaVersion:     1,
		},
		SSE: SSEConfig{
			HeartbeatIntervalMs:           25000,
			ActivityMaxHistory:            200,
			ActivityMaxEmittersPerProcess: 16,
			ActivityRetentionMs:           600000,
			NotificationMaxEmitters:       16,
			NotificationMaxHistory:        200,
		},
	}
}

// ConnectionString builds a PostgreSQL connection string using host parameters.
func (c DatabaseConfig) ConnectionString() string {
	if c.DSN != "" {
		return c.DSN
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// Load loads configuration from file (if present) and environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := New()

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := loadFromFile(path, cfg); err != nil {
			return nil, err
		}
	} else {
		_ = loadFromFile("configs/config.yaml", cfg)
	}

	if err := envdecode.Decode(cfg); err != nil {
		// envdecode returns an error when no tagged fields are present in the
		// environment; treat that case as "no overrides" so local runs work
		// without exporting vars.
		if !strings.Contains(err.Error(), "none of the target fields were set") {
			return nil, fmt.Errorf("decode env: %w", err)
		}
	}

	applyDatabaseURLOverride(cfg)

	return cfg, nil
}

// LoadFile reads configuration from a YAML file, applying defaults first.
func LoadFile(path string) (*Config, error) {
	cfg := New()
	if err := loadFromFile(path, cfg); err != nil {
		return nil, err
	}
	applyDatabaseURLOverride(cfg)
	return cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	expanded, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(expanded)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return err
	}
	return nil
}

// applyDatabaseURLOverride lets DATABASE_URL override a file-based DSN, reducing
// setup friction for container deployments.
func applyDatabaseURLOverride(cfg *Config) {
	if cfg == nil {
		return
	}
	if dsn := strings.TrimSpace(os.Getenv("DATABASE_URL")); dsn != "" {
		cfg.Database.DSN = dsn
	}
}
