package config

import (
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type DatabaseDriver string

const (
	DatabaseDriverSQLite   DatabaseDriver = "sqlite"
	DatabaseDriverPostgres DatabaseDriver = "postgres"
)

type (
	Config struct {
		HTTP
		Global
		Database
		Uploads
		Auth
		Tasks
		Sweep
		Countries
		Redis
	}

	HTTP struct {
		Port int32
		Host string
	}
	Global struct {
		ShutdownTimeoutInSeconds int
	}
	Database struct {
		Driver DatabaseDriver
		Path   string // sqlite file, also the anchor for the tasks database
		DSN    string // postgres connection string
		Debug  bool
	}
	Uploads struct {
		Root        string // directory that contains uploads/
		MaxUploadMB int64
	}
	Tasks struct {
		Enabled         bool
		Workers         int
		ReleaseAfter    time.Duration
		CleanupInterval time.Duration
	}
	Sweep struct {
		Enabled            bool
		Schedule           string // Cron format: "0 * * * *" = hourly
		AuditRetentionDays int    // audit events older than this are pruned on each sweep
	}
	Auth struct {
		SessionSecret   string
		SessionLifetime time.Duration
		TokenExpiry     time.Duration
		BcryptCost      int
		SecureCookies   bool // Set to false for local dev without HTTPS

		MaxLoginAttempts int           // burst of login attempts per client
		RateLimitWindow  time.Duration // window over which the burst refills
		LockoutDuration  time.Duration // account lockout after repeated failures
	}
	Countries struct {
		BaseURL   string
		Timeout   time.Duration
		CacheTTL  time.Duration
		RateLimit float64 // requests per second against the upstream API
	}
	Redis struct {
		Addr     string // empty disables redis and falls back to in-process caching
		Password string
		DB       int
	}
)

// NewConfig loads configuration from the environment. A .env file in the
// working directory is applied first when present.
func NewConfig() *Config {
	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		log.Printf("WARNING: failed to load .env file: %v", err)
	}

	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("port", 8188)
	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("shutdown_timeout_in_seconds", 5)

	v.SetDefault("database_driver", string(DatabaseDriverSQLite))
	v.SetDefault("database_path", DefaultDatabasePath)
	v.SetDefault("database_dsn", "")
	v.SetDefault("database_debug", false)

	v.SetDefault("uploads_root", DefaultUploadsRoot)
	v.SetDefault("uploads_max_mb", 200)

	// Auth defaults
	v.SetDefault("auth_session_secret", "")       // Auto-generated if empty
	v.SetDefault("auth_session_lifetime", "24h")  // 24 hours
	v.SetDefault("auth_token_expiry", "720h")     // 30 days
	v.SetDefault("auth_bcrypt_cost", 12)          // bcrypt cost factor
	v.SetDefault("auth_secure_cookies", true)     // HTTPS-only cookies
	v.SetDefault("auth_max_login_attempts", 5)    // Max failed attempts
	v.SetDefault("auth_rate_limit_window", "15m") // Window for counting attempts
	v.SetDefault("auth_lockout_duration", "30m")  // Lockout duration

	// Task queue defaults
	v.SetDefault("tasks_enabled", true)
	v.SetDefault("task_workers", 2)
	v.SetDefault("task_release_after", "15m")
	v.SetDefault("task_cleanup_interval", "1h")

	// Overdue borrows are expired lazily; the sweep only tidies up rows nobody reads.
	v.SetDefault("sweep_enabled", false)
	v.SetDefault("sweep_schedule", "0 * * * *")
	v.SetDefault("sweep_audit_retention_days", 90)

	v.SetDefault("countries_base_url", DefaultCountriesBaseURL)
	v.SetDefault("countries_timeout", "10s")
	v.SetDefault("countries_cache_ttl", "24h")
	v.SetDefault("countries_rate_limit", 2.0)

	v.SetDefault("redis_addr", "")
	v.SetDefault("redis_password", "")
	v.SetDefault("redis_db", 0)

	return &Config{
		HTTP: HTTP{
			Port: v.GetInt32("PORT"),
			Host: v.GetString("HOST"),
		},
		Global: Global{
			ShutdownTimeoutInSeconds: v.GetInt("SHUTDOWN_TIMEOUT_IN_SECONDS"),
		},
		Database: Database{
			Driver: DatabaseDriver(v.GetString("DATABASE_DRIVER")),
			Path:   v.GetString("DATABASE_PATH"),
			DSN:    v.GetString("DATABASE_DSN"),
			Debug:  v.GetBool("DATABASE_DEBUG"),
		},
		Uploads: Uploads{
			Root:        v.GetString("UPLOADS_ROOT"),
			MaxUploadMB: v.GetInt64("UPLOADS_MAX_MB"),
		},
		Tasks: Tasks{
			Enabled:         v.GetBool("TASKS_ENABLED"),
			Workers:         v.GetInt("TASK_WORKERS"),
			ReleaseAfter:    v.GetDuration("TASK_RELEASE_AFTER"),
			CleanupInterval: v.GetDuration("TASK_CLEANUP_INTERVAL"),
		},
		Sweep: Sweep{
			Enabled:            v.GetBool("SWEEP_ENABLED"),
			Schedule:           v.GetString("SWEEP_SCHEDULE"),
			AuditRetentionDays: v.GetInt("SWEEP_AUDIT_RETENTION_DAYS"),
		},
		Auth: Auth{
			SessionSecret:    v.GetString("AUTH_SESSION_SECRET"),
			SessionLifetime:  v.GetDuration("AUTH_SESSION_LIFETIME"),
			TokenExpiry:      v.GetDuration("AUTH_TOKEN_EXPIRY"),
			BcryptCost:       v.GetInt("AUTH_BCRYPT_COST"),
			SecureCookies:    v.GetBool("AUTH_SECURE_COOKIES"),
			MaxLoginAttempts: v.GetInt("AUTH_MAX_LOGIN_ATTEMPTS"),
			RateLimitWindow:  v.GetDuration("AUTH_RATE_LIMIT_WINDOW"),
			LockoutDuration:  v.GetDuration("AUTH_LOCKOUT_DURATION"),
		},
		Countries: Countries{
			BaseURL:   v.GetString("COUNTRIES_BASE_URL"),
			Timeout:   v.GetDuration("COUNTRIES_TIMEOUT"),
			CacheTTL:  v.GetDuration("COUNTRIES_CACHE_TTL"),
			RateLimit: v.GetFloat64("COUNTRIES_RATE_LIMIT"),
		},
		Redis: Redis{
			Addr:     v.GetString("REDIS_ADDR"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
	}
}
