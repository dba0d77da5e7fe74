package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App        AppConfig
	Database   DatabaseConfig
	Log        LogConfig
	Feed       FeedConfig
	Allocation AllocationConfig
	Picklist   PicklistConfig
	RunLock    RunLockConfig
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// FeedConfig holds storefront order-feed settings
type FeedConfig struct {
	BaseURL        string
	AccessToken    string
	APIVersion     string
	PageSize       int
	RequestTimeout time.Duration
	PageDelay      time.Duration
	MaxRetries     int
	RetryBackoff   time.Duration
	OrderPrefix    string // naming convention of feed order numbers
}

// AllocationConfig holds allocation engine settings
type AllocationConfig struct {
	// PartnerSupplier is the designated-supplier code that opens the
	// secondary-warehouse fallback tier. Empty disables the tier.
	PartnerSupplier string
}

// PicklistConfig holds picklist writer settings
type PicklistConfig struct {
	Dir      string
	MaxFiles int // rolling retention window, by file count
}

// RunLockConfig holds the optional cross-run advisory lock settings
type RunLockConfig struct {
	Enabled  bool
	Key      string
	TTL      time.Duration
	Host     string
	Port     int
	Password string
	DB       int
}

// Load loads configuration from TOML file and environment variables.
// Priority (highest to lowest):
// 1. Environment variables with PICKSYNC_ prefix (e.g., PICKSYNC_FEED_ACCESS_TOKEN)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	v.SetEnvPrefix("PICKSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
		},
		Database: DatabaseConfig{
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		Feed: FeedConfig{
			BaseURL:        v.GetString("feed.base_url"),
			AccessToken:    v.GetString("feed.access_token"),
			APIVersion:     v.GetString("feed.api_version"),
			PageSize:       v.GetInt("feed.page_size"),
			RequestTimeout: v.GetDuration("feed.request_timeout"),
			PageDelay:      v.GetDuration("feed.page_delay"),
			MaxRetries:     v.GetInt("feed.max_retries"),
			RetryBackoff:   v.GetDuration("feed.retry_backoff"),
			OrderPrefix:    v.GetString("feed.order_prefix"),
		},
		Allocation: AllocationConfig{
			PartnerSupplier: v.GetString("allocation.partner_supplier"),
		},
		Picklist: PicklistConfig{
			Dir:      v.GetString("picklist.dir"),
			MaxFiles: v.GetInt("picklist.max_files"),
		},
		RunLock: RunLockConfig{
			Enabled:  v.GetBool("runlock.enabled"),
			Key:      v.GetString("runlock.key"),
			TTL:      v.GetDuration("runlock.ttl"),
			Host:     v.GetString("runlock.host"),
			Port:     v.GetInt("runlock.port"),
			Password: v.GetString("runlock.password"),
			DB:       v.GetInt("runlock.db"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "picksync"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "picksync"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 10
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 2
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.Feed.APIVersion == "" {
		cfg.Feed.APIVersion = "2024-01"
	}
	if cfg.Feed.PageSize == 0 {
		cfg.Feed.PageSize = 250
	}
	if cfg.Feed.RequestTimeout == 0 {
		cfg.Feed.RequestTimeout = 30 * time.Second
	}
	if cfg.Feed.PageDelay == 0 {
		cfg.Feed.PageDelay = 500 * time.Millisecond
	}
	if cfg.Feed.MaxRetries == 0 {
		cfg.Feed.MaxRetries = 3
	}
	if cfg.Feed.RetryBackoff == 0 {
		cfg.Feed.RetryBackoff = 2 * time.Second
	}
	if cfg.Feed.OrderPrefix == "" {
		cfg.Feed.OrderPrefix = "SO"
	}
	if cfg.Allocation.PartnerSupplier == "" {
		cfg.Allocation.PartnerSupplier = "partner"
	}
	if cfg.Picklist.Dir == "" {
		cfg.Picklist.Dir = "picklists"
	}
	if cfg.Picklist.MaxFiles == 0 {
		cfg.Picklist.MaxFiles = 14
	}
	if cfg.RunLock.Key == "" {
		cfg.RunLock.Key = "picksync:run"
	}
	if cfg.RunLock.TTL == 0 {
		cfg.RunLock.TTL = 30 * time.Minute
	}
	if cfg.RunLock.Host == "" {
		cfg.RunLock.Host = "localhost"
	}
	if cfg.RunLock.Port == 0 {
		cfg.RunLock.Port = 6379
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns cannot be negative")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}
	if c.Picklist.MaxFiles < 1 {
		return fmt.Errorf("picklist.max_files must be at least 1")
	}

	if c.App.Env == "production" {
		if c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
		if c.Feed.AccessToken == "" {
			return fmt.Errorf("feed.access_token is required in production")
		}
		if c.Feed.BaseURL == "" {
			return fmt.Errorf("feed.base_url is required in production")
		}
	}

	return nil
}

// DSN returns the database connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// Addr returns the host:port address of the run-lock Redis instance
func (r *RunLockConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}
