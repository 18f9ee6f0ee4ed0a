// Package config loads server configuration.
//
// LAYERING (lowest to highest precedence):
//  1. Struct defaults (defaultConfig)
//  2. Optional YAML file (CONFIG_PATH, or config.yaml in the working directory)
//  3. Environment variables, mapped explicitly in envMappings
//
// Everything ends up in one Config value that main.go passes down to
// server.New. No package reads environment variables on its own.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// ConfigPathEnvVar names the environment variable pointing at a YAML config file.
const ConfigPathEnvVar = "CONFIG_PATH"

// DefaultConfigPaths are probed in order when CONFIG_PATH is unset.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
}

// Media backends.
const (
	MediaBackendLocal = "local"
	MediaBackendS3    = "s3"
)

type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Auth     AuthConfig     `koanf:"auth"`
	Media    MediaConfig    `koanf:"media"`
	Security SecurityConfig `koanf:"security"`
	Logging  LoggingConfig  `koanf:"logging"`
}

type ServerConfig struct {
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	IdleTimeout     time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Path string `koanf:"path"` // SQLite file path, or ":memory:"
}

type AuthConfig struct {
	JWTSecret  string        `koanf:"jwt_secret"`
	TokenTTL   time.Duration `koanf:"token_ttl"`
	BcryptCost int           `koanf:"bcrypt_cost"`

	// GitHub login is registered only when ClientID is set.
	GitHubClientID     string `koanf:"github_client_id"`
	GitHubClientSecret string `koanf:"github_client_secret"`
	GitHubCallbackURL  string `koanf:"github_callback_url"`
}

type MediaConfig struct {
	Backend        string        `koanf:"backend"`
	MaxUploadBytes int64         `koanf:"max_upload_bytes"`
	Local          LocalConfig   `koanf:"local"`
	S3             S3Config      `koanf:"s3"`
	Breaker        BreakerConfig `koanf:"breaker"`
}

type LocalConfig struct {
	Dir       string `koanf:"dir"`
	PublicURL string `koanf:"public_url"` // e.g. http://localhost:3000/media
}

type S3Config struct {
	Bucket       string `koanf:"bucket"`
	Region       string `koanf:"region"`
	Endpoint     string `koanf:"endpoint"` // MinIO or other S3-compatible endpoint; empty for AWS
	AccessKey    string `koanf:"access_key"`
	SecretKey    string `koanf:"secret_key"`
	PublicURL    string `koanf:"public_url"` // base URL objects are served from
	Prefix       string `koanf:"prefix"`
	UsePathStyle bool   `koanf:"use_path_style"`
}

type BreakerConfig struct {
	FailureThreshold uint32        `koanf:"failure_threshold"`
	OpenTimeout      time.Duration `koanf:"open_timeout"`
}

type SecurityConfig struct {
	CORSOrigins       []string      `koanf:"cors_origins"`
	RateLimitRequests int           `koanf:"rate_limit_requests"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
}

type LoggingConfig struct {
	Level      string `koanf:"level"`  // debug, info, warn, error
	Format     string `koanf:"format"` // text or json
	File       string `koanf:"file"`   // optional; rotated with lumberjack
	MaxSizeMB  int    `koanf:"max_size_mb"`
	MaxBackups int    `koanf:"max_backups"`
	MaxAgeDays int    `koanf:"max_age_days"`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            3000,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second, // uploads to the media host happen inside the request
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Path: "data/bookworm.db",
		},
		Auth: AuthConfig{
			TokenTTL:   15 * 24 * time.Hour,
			BcryptCost: 12,
		},
		Media: MediaConfig{
			Backend:        MediaBackendLocal,
			MaxUploadBytes: 10 << 20,
			Local: LocalConfig{
				Dir:       "data/media",
				PublicURL: "http://localhost:3000/media",
			},
			S3: S3Config{
				Region: "us-east-1",
				Prefix: "bookworm",
			},
			Breaker: BreakerConfig{
				FailureThreshold: 5,
				OpenTimeout:      30 * time.Second,
			},
		},
		Security: SecurityConfig{
			CORSOrigins:       []string{"*"},
			RateLimitRequests: 20,
			RateLimitWindow:   time.Minute,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  50,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// envMappings maps lower-cased environment variable names to koanf paths.
// Unlisted variables are ignored.
var envMappings = map[string]string{
	"port":             "server.port",
	"read_timeout":     "server.read_timeout",
	"write_timeout":    "server.write_timeout",
	"idle_timeout":     "server.idle_timeout",
	"shutdown_timeout": "server.shutdown_timeout",

	"db_path": "database.path",

	"jwt_secret":           "auth.jwt_secret",
	"token_ttl":            "auth.token_ttl",
	"bcrypt_cost":          "auth.bcrypt_cost",
	"github_client_id":     "auth.github_client_id",
	"github_client_secret": "auth.github_client_secret",
	"github_callback_url":  "auth.github_callback_url",

	"media_backend":          "media.backend",
	"media_max_upload_bytes": "media.max_upload_bytes",
	"media_dir":              "media.local.dir",
	"media_public_url":       "media.local.public_url",
	"s3_bucket":              "media.s3.bucket",
	"s3_region":              "media.s3.region",
	"s3_endpoint":            "media.s3.endpoint",
	"s3_access_key":          "media.s3.access_key",
	"s3_secret_key":          "media.s3.secret_key",
	"s3_public_url":          "media.s3.public_url",
	"s3_prefix":              "media.s3.prefix",
	"s3_use_path_style":      "media.s3.use_path_style",
	"media_breaker_failures": "media.breaker.failure_threshold",
	"media_breaker_timeout":  "media.breaker.open_timeout",

	"cors_origins":        "security.cors_origins",
	"rate_limit_requests": "security.rate_limit_requests",
	"rate_limit_window":   "security.rate_limit_window",
	"disable_rate_limit":  "security.rate_limit_disabled",

	"log_level":        "logging.level",
	"log_format":       "logging.format",
	"log_file":         "logging.file",
	"log_max_size_mb":  "logging.max_size_mb",
	"log_max_backups":  "logging.max_backups",
	"log_max_age_days": "logging.max_age_days",
}

// sliceConfigPaths hold comma-separated lists when they come from the environment.
var sliceConfigPaths = []string{
	"security.cors_origins",
}

// Load builds the Config from defaults, an optional YAML file and the environment.
func Load() (*Config, error) {
	return load(findConfigFile())
}

func load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("config: loading defaults: %w", err)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("config: loading file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("config: loading environment: %w", err)
	}

	if err := splitSliceFields(k); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshalling: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Database.Path == "" {
		errs = append(errs, errors.New("database.path is required"))
	}
	if len(c.Auth.JWTSecret) < 16 {
		errs = append(errs, errors.New("auth.jwt_secret must be at least 16 characters (set JWT_SECRET)"))
	}
	if c.Auth.TokenTTL <= 0 {
		errs = append(errs, errors.New("auth.token_ttl must be positive"))
	}
	if c.Auth.BcryptCost < 4 || c.Auth.BcryptCost > 31 {
		errs = append(errs, fmt.Errorf("auth.bcrypt_cost %d out of range 4..31", c.Auth.BcryptCost))
	}
	if c.Media.MaxUploadBytes <= 0 {
		errs = append(errs, errors.New("media.max_upload_bytes must be positive"))
	}

	switch c.Media.Backend {
	case MediaBackendLocal:
		if c.Media.Local.Dir == "" || c.Media.Local.PublicURL == "" {
			errs = append(errs, errors.New("media.local.dir and media.local.public_url are required"))
		}
	case MediaBackendS3:
		if c.Media.S3.Bucket == "" || c.Media.S3.PublicURL == "" {
			errs = append(errs, errors.New("media.s3.bucket and media.s3.public_url are required"))
		}
	default:
		errs = append(errs, fmt.Errorf("media.backend %q must be %q or %q",
			c.Media.Backend, MediaBackendLocal, MediaBackendS3))
	}

	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format %q must be text or json", c.Logging.Format))
	}

	return errors.Join(errs...)
}

// GitHubEnabled reports whether the optional GitHub login is configured.
func (c *Config) GitHubEnabled() bool {
	return c.Auth.GitHubClientID != "" && c.Auth.GitHubClientSecret != ""
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

func envTransform(key string) string {
	if mapped, ok := envMappings[strings.ToLower(key)]; ok {
		return mapped
	}
	return ""
}

func splitSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		s, ok := k.Get(path).(string)
		if !ok {
			continue
		}
		parts := strings.Split(s, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		if err := k.Set(path, out); err != nil {
			return fmt.Errorf("config: setting %s: %w", path, err)
		}
	}
	return nil
}
