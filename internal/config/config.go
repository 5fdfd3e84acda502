// Package config loads and validates runtime settings for the dashboard API.
//
// Precedence, highest first: process environment, values from a .env file,
// a YAML/JSON config file, built-in defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Config is the complete set of process settings.
type Config struct {
	Env               string         `mapstructure:"env" validate:"oneof=development production staging test"`
	Port              int            `mapstructure:"port" validate:"min=1,max=65535"`
	Database          DatabaseConfig `mapstructure:"db"`
	Logging           LoggingConfig  `mapstructure:"log"`
	ShutdownTimeout   time.Duration  `mapstructure:"shutdown_timeout" validate:"gt=0"`
	KeepaliveInterval time.Duration  `mapstructure:"keepalive_interval" validate:"gte=0"`
	CORS              CORSConfig     `mapstructure:"cors"`
	// SecurityHeaders is nil when unset; see SecurityHeadersEnabled.
	SecurityHeaders *bool        `mapstructure:"security_headers"`
	Backup          BackupConfig `mapstructure:"backup"`
}

// DatabaseConfig selects and addresses the datastore.
type DatabaseConfig struct {
	Driver string `mapstructure:"driver" validate:"oneof=mongo postgres memory"`
	// ConnectionString is validated by the connector, which reports a
	// ConnectionError when it is missing.
	ConnectionString string `mapstructure:"connection_string"`
	Name             string `mapstructure:"name" validate:"required"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"omitempty,oneof=json text"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins" validate:"min=1"`
}

// BackupConfig controls the periodic export to S3-compatible storage.
type BackupConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	Interval      time.Duration `mapstructure:"interval" validate:"required_if=Enabled true"`
	RetentionDays int           `mapstructure:"retention_days" validate:"gte=0"`
	S3Endpoint    string        `mapstructure:"s3_endpoint" validate:"required_if=Enabled true"`
	S3AccessKey   string        `mapstructure:"s3_access_key" validate:"required_if=Enabled true"`
	S3SecretKey   string        `mapstructure:"s3_secret_key" validate:"required_if=Enabled true"`
	S3Bucket      string        `mapstructure:"s3_bucket" validate:"required_if=Enabled true"`
	S3Prefix      string        `mapstructure:"s3_prefix"`
	S3UseSSL      bool          `mapstructure:"s3_use_ssl"`
}

// IsProduction reports whether the process runs in production mode.
func (c *Config) IsProduction() bool { return c.Env == "production" }

// IsDevelopment reports whether error details may be exposed to clients.
func (c *Config) IsDevelopment() bool { return c.Env == "development" }

// SecurityHeadersEnabled resolves the security header policy. Unset means on
// in production only.
func (c *Config) SecurityHeadersEnabled() bool {
	if c.SecurityHeaders != nil {
		return *c.SecurityHeaders
	}
	return c.IsProduction()
}

// Addr returns the listen address for the HTTP server.
func (c *Config) Addr() string { return fmt.Sprintf(":%d", c.Port) }

// envBindings maps config keys to the environment variables that feed them.
// Earlier names win.
var envBindings = map[string][]string{
	"env":                   {"ENV", "NODE_ENV"},
	"port":                  {"PORT"},
	"db.driver":             {"DB_DRIVER"},
	"db.connection_string":  {"DB_CONNECTION_STRING", "MONGODB_URI"},
	"db.name":               {"DB_NAME"},
	"log.level":             {"LOG_LEVEL"},
	"log.format":            {"LOG_FORMAT"},
	"shutdown_timeout":      {"SHUTDOWN_TIMEOUT"},
	"keepalive_interval":    {"KEEPALIVE_INTERVAL"},
	"cors.allowed_origins":  {"CORS_ALLOWED_ORIGINS"},
	"security_headers":      {"SECURITY_HEADERS"},
	"backup.enabled":        {"BACKUP_ENABLED"},
	"backup.interval":       {"BACKUP_INTERVAL"},
	"backup.retention_days": {"BACKUP_RETENTION_DAYS"},
	"backup.s3_endpoint":    {"BACKUP_S3_ENDPOINT"},
	"backup.s3_access_key":  {"BACKUP_S3_ACCESS_KEY"},
	"backup.s3_secret_key":  {"BACKUP_S3_SECRET_KEY"},
	"backup.s3_bucket":      {"BACKUP_S3_BUCKET"},
	"backup.s3_prefix":      {"BACKUP_S3_PREFIX"},
	"backup.s3_use_ssl":     {"BACKUP_S3_USE_SSL"},
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "development")
	v.SetDefault("port", 5000)
	v.SetDefault("db.driver", "mongo")
	v.SetDefault("db.name", "CIODashboard")
	v.SetDefault("log.level", "info")
	v.SetDefault("shutdown_timeout", 5*time.Second)
	v.SetDefault("keepalive_interval", time.Duration(0))
	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("backup.enabled", false)
	v.SetDefault("backup.interval", 24*time.Hour)
	v.SetDefault("backup.retention_days", 7)
	v.SetDefault("backup.s3_prefix", "backups/")
}

// Load reads configuration. path may name a .env file or a YAML/JSON config
// file; when empty, a .env in the working directory is used if present.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	switch {
	case path == "":
		if _, err := os.Stat(".env"); err == nil {
			if err := loadDotEnv(".env"); err != nil {
				return nil, err
			}
		}
	case isDotEnv(path):
		if err := loadDotEnv(path); err != nil {
			return nil, err
		}
	default:
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for key, names := range envBindings {
		args := append([]string{key}, names...)
		if err := v.BindEnv(args...); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(decodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	normalise(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// decodeHooks replaces viper's default hook set, so the duration and
// comma-separated slice hooks are composed back in.
func decodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
}

func normalise(cfg *Config) {
	cfg.Env = strings.ToLower(strings.TrimSpace(cfg.Env))
	cfg.Database.Driver = strings.ToLower(strings.TrimSpace(cfg.Database.Driver))
	cfg.Logging.Level = strings.ToLower(strings.TrimSpace(cfg.Logging.Level))
	if cfg.Logging.Level == "warning" {
		cfg.Logging.Level = "warn"
	}
	cfg.Logging.Format = strings.ToLower(strings.TrimSpace(cfg.Logging.Format))

	origins := cfg.CORS.AllowedOrigins[:0]
	for _, o := range cfg.CORS.AllowedOrigins {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	cfg.CORS.AllowedOrigins = origins

	if cfg.Backup.S3Prefix != "" && !strings.HasSuffix(cfg.Backup.S3Prefix, "/") {
		cfg.Backup.S3Prefix += "/"
	}
}

func isDotEnv(path string) bool {
	base := filepath.Base(path)
	return base == ".env" || strings.HasSuffix(base, ".env")
}

// loadDotEnv copies KEY=VALUE pairs from a dotenv file into the process
// environment. Variables that are already set are left alone.
func loadDotEnv(path string) error {
	dv := viper.New()
	dv.SetConfigFile(path)
	dv.SetConfigType("env")
	if err := dv.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read env file %s: %w", path, err)
	}
	for _, key := range dv.AllKeys() {
		name := strings.ToUpper(key)
		if _, ok := os.LookupEnv(name); ok {
			continue
		}
		if err := os.Setenv(name, dv.GetString(key)); err != nil {
			return fmt.Errorf("set %s: %w", name, err)
		}
	}
	return nil
}

// MaskConnectionString hides credentials in a connection string so it can be
// logged.
func MaskConnectionString(s string) string {
	if s == "" {
		return ""
	}
	scheme := strings.Index(s, "://")
	at := strings.LastIndex(s, "@")
	if scheme < 0 || at < scheme {
		return s
	}
	userinfo := s[scheme+3 : at]
	user, _, hasPass := strings.Cut(userinfo, ":")
	if !hasPass {
		return s
	}
	return s[:scheme+3] + user + ":****" + s[at:]
}
