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
	App       AppConfig
	Database  DatabaseConfig
	Log       LogConfig
	HTTP      HTTPConfig
	Meli      MeliConfig
	Sync      SyncConfig
	Reconcile ReconcileConfig
	Scheduler SchedulerConfig
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
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

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
	MaxBodySize       int64
	TrustedProxies    []string
	CORSAllowOrigins  []string
	RateLimitEnabled  bool
	RateLimitRequests int
	RateLimitWindow   time.Duration
}

// MeliConfig holds remote order-platform client settings
type MeliConfig struct {
	BaseURL      string
	Timeout      time.Duration
	MaxRetries   int
	BackoffBase  time.Duration
	PoolMaxConns int
	ClientID     string
	ClientSecret string
}

// SyncConfig holds order ingestion settings
type SyncConfig struct {
	PageSize       int
	LookbackMonths int
}

// ReconcileConfig holds ledger reconciliation settings
type ReconcileConfig struct {
	ChunkSize    int
	MaxWorkers   int
	Tolerance    float64
	WindowMonths int
}

// SchedulerConfig holds background job scheduler configuration
type SchedulerConfig struct {
	Enabled           bool
	SyncInterval      time.Duration
	DailyCronSchedule string
	DailyWindowDays   int
	DailyMaxWorkers   int
	JobTimeout        time.Duration
	RetryAttempts     int
	RetryDelay        time.Duration
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with NEXUS_ prefix (e.g., NEXUS_DATABASE_PASSWORD)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("./backend")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	v.SetEnvPrefix("NEXUS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
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
		HTTP: HTTPConfig{
			ReadTimeout:       v.GetDuration("http.read_timeout"),
			WriteTimeout:      v.GetDuration("http.write_timeout"),
			IdleTimeout:       v.GetDuration("http.idle_timeout"),
			MaxHeaderBytes:    v.GetInt("http.max_header_bytes"),
			MaxBodySize:       v.GetInt64("http.max_body_size"),
			TrustedProxies:    v.GetStringSlice("http.trusted_proxies"),
			CORSAllowOrigins:  v.GetStringSlice("http.cors_allow_origins"),
			RateLimitEnabled:  v.GetBool("http.rate_limit_enabled"),
			RateLimitRequests: v.GetInt("http.rate_limit_requests"),
			RateLimitWindow:   v.GetDuration("http.rate_limit_window"),
		},
		Meli: MeliConfig{
			BaseURL:      v.GetString("meli.base_url"),
			Timeout:      v.GetDuration("meli.timeout"),
			MaxRetries:   v.GetInt("meli.max_retries"),
			BackoffBase:  v.GetDuration("meli.backoff_base"),
			PoolMaxConns: v.GetInt("meli.pool_max_conns"),
			ClientID:     v.GetString("meli.client_id"),
			ClientSecret: v.GetString("meli.client_secret"),
		},
		Sync: SyncConfig{
			PageSize:       v.GetInt("sync.page_size"),
			LookbackMonths: v.GetInt("sync.lookback_months"),
		},
		Reconcile: ReconcileConfig{
			ChunkSize:    v.GetInt("reconcile.chunk_size"),
			MaxWorkers:   v.GetInt("reconcile.max_workers"),
			Tolerance:    v.GetFloat64("reconcile.tolerance"),
			WindowMonths: v.GetInt("reconcile.window_months"),
		},
		Scheduler: SchedulerConfig{
			Enabled:           v.GetBool("scheduler.enabled"),
			SyncInterval:      v.GetDuration("scheduler.sync_interval"),
			DailyCronSchedule: v.GetString("scheduler.daily_cron_schedule"),
			DailyWindowDays:   v.GetInt("scheduler.daily_window_days"),
			DailyMaxWorkers:   v.GetInt("scheduler.daily_max_workers"),
			JobTimeout:        v.GetDuration("scheduler.job_timeout"),
			RetryAttempts:     v.GetInt("scheduler.retry_attempts"),
			RetryDelay:        v.GetDuration("scheduler.retry_delay"),
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
		cfg.App.Name = "nexus-backend"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
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
		cfg.Database.DBName = "nexus"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 100
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 10
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
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 15 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20 // 1MB
	}
	if cfg.HTTP.MaxBodySize == 0 {
		cfg.HTTP.MaxBodySize = 4 << 20 // 4MB
	}
	if cfg.HTTP.RateLimitRequests == 0 {
		cfg.HTTP.RateLimitRequests = 300
	}
	if cfg.HTTP.RateLimitWindow == 0 {
		cfg.HTTP.RateLimitWindow = time.Minute
	}
	if cfg.Meli.BaseURL == "" {
		cfg.Meli.BaseURL = "https://api.mercadolibre.com"
	}
	if cfg.Meli.Timeout == 0 {
		cfg.Meli.Timeout = 12 * time.Second
	}
	if cfg.Meli.MaxRetries == 0 {
		cfg.Meli.MaxRetries = 5
	}
	if cfg.Meli.BackoffBase == 0 {
		cfg.Meli.BackoffBase = 1500 * time.Millisecond
	}
	if cfg.Meli.PoolMaxConns == 0 {
		cfg.Meli.PoolMaxConns = 100
	}
	if cfg.Sync.PageSize == 0 {
		cfg.Sync.PageSize = 50
	}
	if cfg.Sync.LookbackMonths == 0 {
		cfg.Sync.LookbackMonths = 12
	}
	if cfg.Reconcile.ChunkSize == 0 {
		cfg.Reconcile.ChunkSize = 1000
	}
	if cfg.Reconcile.MaxWorkers == 0 {
		cfg.Reconcile.MaxWorkers = 12
	}
	if cfg.Reconcile.Tolerance == 0 {
		cfg.Reconcile.Tolerance = 0.01
	}
	if cfg.Reconcile.WindowMonths == 0 {
		cfg.Reconcile.WindowMonths = 6
	}
	if cfg.Scheduler.SyncInterval == 0 {
		cfg.Scheduler.SyncInterval = 30 * time.Minute
	}
	if cfg.Scheduler.DailyCronSchedule == "" {
		cfg.Scheduler.DailyCronSchedule = "0 3 * * *"
	}
	if cfg.Scheduler.DailyWindowDays == 0 {
		cfg.Scheduler.DailyWindowDays = 15
	}
	if cfg.Scheduler.DailyMaxWorkers == 0 {
		cfg.Scheduler.DailyMaxWorkers = 8
	}
	if cfg.Scheduler.JobTimeout == 0 {
		cfg.Scheduler.JobTimeout = 30 * time.Minute
	}
	if cfg.Scheduler.RetryAttempts == 0 {
		cfg.Scheduler.RetryAttempts = 3
	}
	if cfg.Scheduler.RetryDelay == 0 {
		cfg.Scheduler.RetryDelay = 5 * time.Minute
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

	if c.Meli.MaxRetries < 1 {
		return fmt.Errorf("meli.max_retries must be at least 1")
	}
	if c.Reconcile.Tolerance < 0 {
		return fmt.Errorf("reconcile.tolerance cannot be negative")
	}

	// Production-specific validations
	if c.App.Env == "production" {
		if c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
		if c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
		if c.Meli.ClientID == "" || c.Meli.ClientSecret == "" {
			return fmt.Errorf("meli.client_id and meli.client_secret are required in production")
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
