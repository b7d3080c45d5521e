package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type LookupFunc func(string) (string, bool)

type Profile string

const (
	ProfileDev  Profile = "dev"
	ProfileTest Profile = "test"
	ProfileProd Profile = "prod"
)

const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

type Config struct {
	Profile       Profile
	Service       ServiceConfig
	HTTP          HTTPConfig
	Database      DatabaseConfig
	Completion    CompletionConfig
	Audit         AuditConfig
	ObjectStore   ObjectStoreConfig
	Observability ObservabilityConfig
	Auth          AuthConfig
}

type ServiceConfig struct {
	Name string
}

type HTTPConfig struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type DatabaseConfig struct {
	Driver           string
	User             string
	Password         string
	Host             string
	Port             int
	Name             string
	Params           string
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxLifetime  time.Duration
	SchemaSampleRows int
}

// CompletionConfig has no temperature knob: both synthesis calls always run at 0.
type CompletionConfig struct {
	Provider  string
	BaseURL   string
	APIKey    string
	Model     string
	Timeout   time.Duration
	MaxTokens int
}

type AuditConfig struct {
	ArchiveEnabled bool
	FlushInterval  time.Duration
	FlushThreshold int
	MaxPending     int
}

type ObjectStoreConfig struct {
	Endpoint         string
	Region           string
	Bucket           string
	AccessKeyID      string
	SecretAccessKey  string
	UseSSL           bool
	Prefix           string
	AutoCreateBucket bool
}

type ObservabilityConfig struct {
	LogLevel slog.Level
	LogJSON  bool
}

type AuthConfig struct {
	Required   bool
	StaticKeys string
}

// LoadFromEnv reads an optional .env file from the working directory before
// consulting the process environment. Variables already set in the
// environment win over the file.
func LoadFromEnv(serviceName string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return Load(serviceName, os.LookupEnv)
}

func Load(serviceName string, lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}

	profile := ProfileDev
	if raw, ok := lookup("DBCHAT_PROFILE"); ok {
		profile = Profile(strings.ToLower(strings.TrimSpace(raw)))
	}
	if !isValidProfile(profile) {
		return Config{}, fmt.Errorf("invalid DBCHAT_PROFILE: %q", profile)
	}

	cfg := defaultsForProfile(profile)
	if serviceName != "" {
		cfg.Service.Name = serviceName
	}

	appliers := []func() error{
		func() error { return applyString(lookup, "DBCHAT_SERVICE_NAME", &cfg.Service.Name) },
		func() error { return applyString(lookup, "DBCHAT_HTTP_ADDR", &cfg.HTTP.Address) },
		func() error { return applyDuration(lookup, "DBCHAT_HTTP_READ_TIMEOUT", &cfg.HTTP.ReadTimeout) },
		func() error { return applyDuration(lookup, "DBCHAT_HTTP_WRITE_TIMEOUT", &cfg.HTTP.WriteTimeout) },
		func() error { return applyDuration(lookup, "DBCHAT_HTTP_IDLE_TIMEOUT", &cfg.HTTP.IdleTimeout) },
		func() error { return applyString(lookup, "DBCHAT_DB_DRIVER", &cfg.Database.Driver) },
		func() error { return applyString(lookup, "DBCHAT_DB_USER", &cfg.Database.User) },
		func() error { return applyRawString(lookup, "DBCHAT_DB_PASSWORD", &cfg.Database.Password) },
		func() error { return applyString(lookup, "DBCHAT_DB_HOST", &cfg.Database.Host) },
		func() error { return applyInt(lookup, "DBCHAT_DB_PORT", &cfg.Database.Port) },
		func() error { return applyString(lookup, "DBCHAT_DB_NAME", &cfg.Database.Name) },
		func() error { return applyString(lookup, "DBCHAT_DB_PARAMS", &cfg.Database.Params) },
		func() error { return applyInt(lookup, "DBCHAT_DB_MAX_OPEN_CONNS", &cfg.Database.MaxOpenConns) },
		func() error { return applyInt(lookup, "DBCHAT_DB_MAX_IDLE_CONNS", &cfg.Database.MaxIdleConns) },
		func() error {
			return applyDuration(lookup, "DBCHAT_DB_CONN_MAX_LIFETIME", &cfg.Database.ConnMaxLifetime)
		},
		func() error { return applyInt(lookup, "DBCHAT_DB_SCHEMA_SAMPLE_ROWS", &cfg.Database.SchemaSampleRows) },
		func() error { return applyString(lookup, "DBCHAT_COMPLETION_PROVIDER", &cfg.Completion.Provider) },
		func() error { return applyString(lookup, "DBCHAT_COMPLETION_BASE_URL", &cfg.Completion.BaseURL) },
		func() error { return applyString(lookup, "DBCHAT_COMPLETION_API_KEY", &cfg.Completion.APIKey) },
		func() error { return applyString(lookup, "DBCHAT_COMPLETION_MODEL", &cfg.Completion.Model) },
		func() error { return applyDuration(lookup, "DBCHAT_COMPLETION_TIMEOUT", &cfg.Completion.Timeout) },
		func() error { return applyInt(lookup, "DBCHAT_COMPLETION_MAX_TOKENS", &cfg.Completion.MaxTokens) },
		func() error { return applyBool(lookup, "DBCHAT_AUDIT_ARCHIVE_ENABLED", &cfg.Audit.ArchiveEnabled) },
		func() error { return applyDuration(lookup, "DBCHAT_AUDIT_FLUSH_INTERVAL", &cfg.Audit.FlushInterval) },
		func() error { return applyInt(lookup, "DBCHAT_AUDIT_FLUSH_THRESHOLD", &cfg.Audit.FlushThreshold) },
		func() error { return applyInt(lookup, "DBCHAT_AUDIT_MAX_PENDING", &cfg.Audit.MaxPending) },
		func() error { return applyString(lookup, "DBCHAT_OBJECTSTORE_ENDPOINT", &cfg.ObjectStore.Endpoint) },
		func() error { return applyString(lookup, "DBCHAT_OBJECTSTORE_REGION", &cfg.ObjectStore.Region) },
		func() error { return applyString(lookup, "DBCHAT_OBJECTSTORE_BUCKET", &cfg.ObjectStore.Bucket) },
		func() error { return applyString(lookup, "DBCHAT_OBJECTSTORE_ACCESS_KEY", &cfg.ObjectStore.AccessKeyID) },
		func() error {
			return applyString(lookup, "DBCHAT_OBJECTSTORE_SECRET_KEY", &cfg.ObjectStore.SecretAccessKey)
		},
		func() error { return applyBool(lookup, "DBCHAT_OBJECTSTORE_USE_SSL", &cfg.ObjectStore.UseSSL) },
		func() error { return applyString(lookup, "DBCHAT_OBJECTSTORE_PREFIX", &cfg.ObjectStore.Prefix) },
		func() error {
			return applyBool(lookup, "DBCHAT_OBJECTSTORE_AUTO_CREATE_BUCKET", &cfg.ObjectStore.AutoCreateBucket)
		},
		func() error { return applyBool(lookup, "DBCHAT_LOG_JSON", &cfg.Observability.LogJSON) },
		func() error { return applyLogLevel(lookup, "DBCHAT_LOG_LEVEL", &cfg.Observability.LogLevel) },
		func() error { return applyBool(lookup, "DBCHAT_AUTH_REQUIRED", &cfg.Auth.Required) },
		func() error { return applyString(lookup, "DBCHAT_AUTH_STATIC_KEYS", &cfg.Auth.StaticKeys) },
	}
	for _, apply := range appliers {
		if err := apply(); err != nil {
			return Config{}, err
		}
	}

	cfg.Database.Driver = strings.ToLower(cfg.Database.Driver)
	cfg.Completion.Provider = strings.ToLower(cfg.Completion.Provider)

	if cfg.Service.Name == "" {
		return Config{}, fmt.Errorf("service name is required")
	}
	if cfg.HTTP.Address == "" {
		return Config{}, fmt.Errorf("http address is required")
	}
	if !isValidDriver(cfg.Database.Driver) {
		return Config{}, fmt.Errorf("invalid DBCHAT_DB_DRIVER: %q", cfg.Database.Driver)
	}
	if !isValidProvider(cfg.Completion.Provider) {
		return Config{}, fmt.Errorf("invalid DBCHAT_COMPLETION_PROVIDER: %q", cfg.Completion.Provider)
	}
	applyProviderDefaults(&cfg.Completion)
	if cfg.Database.SchemaSampleRows < 0 {
		return Config{}, fmt.Errorf("DBCHAT_DB_SCHEMA_SAMPLE_ROWS must be >= 0")
	}
	if cfg.Audit.FlushThreshold <= 0 {
		return Config{}, fmt.Errorf("DBCHAT_AUDIT_FLUSH_THRESHOLD must be > 0")
	}
	if cfg.Audit.MaxPending < cfg.Audit.FlushThreshold {
		return Config{}, fmt.Errorf("DBCHAT_AUDIT_MAX_PENDING must be >= DBCHAT_AUDIT_FLUSH_THRESHOLD")
	}
	return cfg, nil
}

func defaultsForProfile(profile Profile) Config {
	cfg := Config{
		Profile: profile,
		Service: ServiceConfig{Name: "dbchat-api"},
		HTTP: HTTPConfig{
			Address:      ":8080",
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 120 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:           "mysql",
			User:             "root",
			Host:             "localhost",
			Port:             3306,
			MaxOpenConns:     10,
			MaxIdleConns:     10,
			ConnMaxLifetime:  30 * time.Minute,
			SchemaSampleRows: 3,
		},
		Completion: CompletionConfig{
			Provider:  ProviderOpenAI,
			Timeout:   60 * time.Second,
			MaxTokens: 1024,
		},
		Audit: AuditConfig{
			ArchiveEnabled: false,
			FlushInterval:  time.Minute,
			FlushThreshold: 500,
			MaxPending:     10000,
		},
		ObjectStore: ObjectStoreConfig{
			Endpoint:         "localhost:9000",
			Region:           "us-east-1",
			Bucket:           "dbchat-audit",
			AccessKeyID:      "minio",
			SecretAccessKey:  "miniostorage",
			UseSSL:           false,
			Prefix:           "",
			AutoCreateBucket: true,
		},
		Observability: ObservabilityConfig{
			LogLevel: slog.LevelDebug,
			LogJSON:  true,
		},
		Auth: AuthConfig{
			Required:   false,
			StaticKeys: "",
		},
	}

	switch profile {
	case ProfileTest:
		cfg.HTTP.Address = ":18080"
		cfg.Observability.LogLevel = slog.LevelWarn
		cfg.Auth.Required = false
	case ProfileProd:
		cfg.Observability.LogLevel = slog.LevelInfo
		cfg.Auth.Required = true
		cfg.ObjectStore.UseSSL = true
		cfg.ObjectStore.AutoCreateBucket = false
	}

	return cfg
}

func isValidProfile(profile Profile) bool {
	switch profile {
	case ProfileDev, ProfileTest, ProfileProd:
		return true
	default:
		return false
	}
}

func isValidDriver(driver string) bool {
	switch driver {
	case "mysql", "postgres", "sqlite", "duckdb":
		return true
	default:
		return false
	}
}

func isValidProvider(provider string) bool {
	switch provider {
	case ProviderOpenAI, ProviderAnthropic:
		return true
	default:
		return false
	}
}

func applyString(lookup LookupFunc, key string, dst *string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	*dst = strings.TrimSpace(raw)
	return nil
}

// applyRawString keeps surrounding whitespace; passwords may legitimately carry it.
func applyRawString(lookup LookupFunc, key string, dst *string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	*dst = raw
	return nil
}

func applyDuration(lookup LookupFunc, key string, dst *time.Duration) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyBool(lookup LookupFunc, key string, dst *bool) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyInt(lookup LookupFunc, key string, dst *int) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyLogLevel(lookup LookupFunc, key string, dst *slog.Level) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	level := strings.ToLower(strings.TrimSpace(raw))
	switch level {
	case "debug":
		*dst = slog.LevelDebug
	case "info":
		*dst = slog.LevelInfo
	case "warn", "warning":
		*dst = slog.LevelWarn
	case "error":
		*dst = slog.LevelError
	default:
		return fmt.Errorf("invalid %s: %q", key, raw)
	}
	return nil
}

// applyProviderDefaults fills base URL and model left unset for the chosen provider.
// The openai provider defaults to Groq's OpenAI-compatible endpoint.
func applyProviderDefaults(cfg *CompletionConfig) {
	switch cfg.Provider {
	case ProviderOpenAI:
		if cfg.BaseURL == "" {
			cfg.BaseURL = "https://api.groq.com/openai"
		}
		if cfg.Model == "" {
			cfg.Model = "llama3-8b-8192"
		}
	case ProviderAnthropic:
		if cfg.Model == "" {
			cfg.Model = "claude-3-5-haiku-latest"
		}
	}
}
