package utils

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Storage drivers.
const (
	DriverSupabase = "supabase"
	DriverS3       = "s3"
	DriverMemory   = "memory"
)

// Journal drivers.
const (
	JournalNone     = "none"
	JournalPostgres = "postgres"
	JournalRedis    = "redis"
)

// Signing failure policies.
const (
	SignFailureHard    = "hard"
	SignFailureDegrade = "degrade"
)

// Config is the full application configuration. It is loaded once at startup
// and passed around by value or pointer; nothing mutates it afterwards.
type Config struct {
	Server struct {
		Host          string `yaml:"host"`
		Port          string `yaml:"port"`
		Prefork       bool   `yaml:"prefork"`
		BodyLimit     int    `yaml:"body_limit"`
		EnableMonitor bool   `yaml:"enable_monitor"`
	} `yaml:"server"`

	Logger struct {
		File       string `yaml:"file"`
		Level      string `yaml:"level"`
		MaxSizeMB  int    `yaml:"max_size_mb"`
		MaxBackups int    `yaml:"max_backups"`
		MaxAgeDays int    `yaml:"max_age_days"`
		Compress   bool   `yaml:"compress"`
	} `yaml:"logger"`

	Redis struct {
		Addr        string `yaml:"addr"`
		RateLimitDB int    `yaml:"rate_limit_db"`
		JournalDB   int    `yaml:"journal_db"`
	} `yaml:"redis"`

	RateLimiter struct {
		EnableUserLimiter bool          `yaml:"enable_user_limiter"`
		UserLimit         int           `yaml:"user_limit"`
		Interval          time.Duration `yaml:"interval"`
	} `yaml:"rate_limiter"`

	Storage StorageConfig `yaml:"storage"`
	Export  ExportConfig  `yaml:"export"`
	Journal JournalConfig `yaml:"journal"`
}

// StorageConfig selects and configures the object-storage backend.
type StorageConfig struct {
	Driver           string   `yaml:"driver"`
	Bucket           string   `yaml:"bucket"`
	SupabaseURL      string   `yaml:"supabase_url"`
	ServiceRoleKey   string   `yaml:"service_role_key"`
	CacheControlSecs int      `yaml:"cache_control_secs"`
	S3               S3Config `yaml:"s3"`
}

// S3Config configures an S3-compatible endpoint.
type S3Config struct {
	Endpoint        string `yaml:"endpoint"`
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	UsePathStyle    bool   `yaml:"use_path_style"`
}

// ExportConfig tunes the export pipeline.
type ExportConfig struct {
	Timeout     time.Duration `yaml:"timeout"`
	SignExpiry  time.Duration `yaml:"sign_expiry"`
	SignFailure string        `yaml:"sign_failure"`
	UTF8BOM     bool          `yaml:"utf8_bom"`
}

// JournalConfig configures the optional export history.
type JournalConfig struct {
	Driver    string         `yaml:"driver"`
	Postgres  PostgresConfig `yaml:"postgres"`
	RedisKeep int            `yaml:"redis_keep"`
	RedisTTL  time.Duration  `yaml:"redis_ttl"`
}

// PostgresConfig holds connection parameters. Host may also carry a full
// postgres:// URL, in which case the other fields are ignored.
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
}

// Check reports the first missing credential required by the selected
// driver. Each missing variable yields its own message.
func (s StorageConfig) Check() error {
	switch s.Driver {
	case DriverSupabase:
		if s.SupabaseURL == "" {
			return errors.New("Missing env SUPABASE_URL")
		}
		if s.ServiceRoleKey == "" {
			return errors.New("Missing env SUPABASE_SERVICE_ROLE_KEY")
		}
	case DriverS3:
		if s.S3.Region == "" {
			return errors.New("Missing env S3_REGION")
		}
		if s.S3.AccessKeyID == "" {
			return errors.New("Missing env S3_ACCESS_KEY_ID")
		}
		if s.S3.SecretAccessKey == "" {
			return errors.New("Missing env S3_SECRET_ACCESS_KEY")
		}
	}
	if s.Bucket == "" {
		return errors.New("Missing env STORAGE_BUCKET")
	}
	return nil
}

// CacheControl renders the cache-control directive sent with uploads.
func (s StorageConfig) CacheControl() string {
	if s.CacheControlSecs <= 0 {
		return ""
	}
	return "max-age=" + strconv.Itoa(s.CacheControlSecs)
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() Config {
	var cfg Config
	cfg.Server.Host = ""
	cfg.Server.Port = ":3000"
	cfg.Server.BodyLimit = 4 * 1024 * 1024
	cfg.Logger.Level = "info"
	cfg.Logger.MaxSizeMB = 50
	cfg.Logger.MaxBackups = 3
	cfg.Logger.MaxAgeDays = 14
	cfg.RateLimiter.Interval = time.Minute
	cfg.Storage.Driver = DriverSupabase
	cfg.Storage.Bucket = "csv"
	cfg.Storage.CacheControlSecs = 3600
	cfg.Export.Timeout = 20 * time.Second
	cfg.Export.SignExpiry = time.Hour
	cfg.Export.SignFailure = SignFailureHard
	cfg.Journal.Driver = JournalNone
	cfg.Journal.RedisKeep = 50
	cfg.Journal.RedisTTL = 30 * 24 * time.Hour
	return cfg
}

// LoadConfig loads .env (if present), then the YAML file named by CONFIG_PATH
// (default config.yaml), then environment overrides.
func LoadConfig() Config {
	_ = godotenv.Load()
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config.yaml"
	}
	return LoadFrom(path)
}

// LoadFrom reads the YAML file at path on top of DefaultConfig. A missing file
// is not an error. Invalid values panic: the process must not start with them.
func LoadFrom(path string) Config {
	cfg := DefaultConfig()

	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			panic(fmt.Sprintf("config: parse %s: %v", path, err))
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		panic(fmt.Sprintf("config: read %s: %v", path, err))
	}

	applyEnv(&cfg)

	if err := validate(cfg); err != nil {
		panic("config: " + err.Error())
	}
	return cfg
}

func applyEnv(cfg *Config) {
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	set(&cfg.Storage.SupabaseURL, "SUPABASE_URL")
	set(&cfg.Storage.ServiceRoleKey, "SUPABASE_SERVICE_ROLE_KEY")
	set(&cfg.Storage.Driver, "STORAGE_DRIVER")
	set(&cfg.Storage.Bucket, "STORAGE_BUCKET")
	set(&cfg.Storage.S3.Endpoint, "S3_ENDPOINT")
	set(&cfg.Storage.S3.Region, "S3_REGION")
	set(&cfg.Storage.S3.AccessKeyID, "S3_ACCESS_KEY_ID")
	set(&cfg.Storage.S3.SecretAccessKey, "S3_SECRET_ACCESS_KEY")
	set(&cfg.Redis.Addr, "REDIS_ADDR")
	set(&cfg.Journal.Driver, "JOURNAL_DRIVER")
	set(&cfg.Journal.Postgres.Host, "JOURNAL_DSN")
	set(&cfg.Logger.Level, "LOG_LEVEL")
	if v := strings.TrimSpace(os.Getenv("PORT")); v != "" {
		cfg.Server.Port = ":" + strings.TrimPrefix(v, ":")
	}
}

func validate(cfg Config) error {
	switch cfg.Storage.Driver {
	case DriverSupabase, DriverS3, DriverMemory:
	default:
		return fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
	switch cfg.Journal.Driver {
	case JournalNone, JournalPostgres, JournalRedis:
	default:
		return fmt.Errorf("unknown journal driver %q", cfg.Journal.Driver)
	}
	switch cfg.Export.SignFailure {
	case SignFailureHard, SignFailureDegrade:
	default:
		return fmt.Errorf("unknown sign_failure policy %q", cfg.Export.SignFailure)
	}
	if cfg.Export.Timeout <= 0 {
		return errors.New("export.timeout must be positive")
	}
	if cfg.Export.SignExpiry <= 0 {
		return errors.New("export.sign_expiry must be positive")
	}
	if cfg.RateLimiter.UserLimit < 0 {
		return errors.New("rate_limiter.user_limit must not be negative")
	}
	if cfg.RateLimiter.UserLimit > 0 && cfg.RateLimiter.Interval <= 0 {
		return errors.New("rate_limiter.interval must be positive")
	}
	if cfg.Server.BodyLimit < 0 {
		return errors.New("server.body_limit must not be negative")
	}
	return nil
}
