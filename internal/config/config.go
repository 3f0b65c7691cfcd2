package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/Clark-Hu/tourist-hub/internal/logging"
)

// Config captures all runtime configuration derived from environment variables.
type Config struct {
	Port        string `koanf:"port"`
	DBURL       string `koanf:"db_url"`
	JWTSecret   string `koanf:"jwt_secret"`
	JWTTTLHours int    `koanf:"jwt_ttl_hours"`
	FrontendURL string `koanf:"frontend_url"`
	CORSOrigins string `koanf:"cors_origins"`
	RateLimit   int    `koanf:"rate_limit_per_minute"`

	UploadDir      string `koanf:"upload_dir"`
	UploadMaxBytes int64  `koanf:"upload_max_bytes"`

	OAuthClientID     string `koanf:"google_client_id"`
	OAuthClientSecret string `koanf:"google_client_secret"`
	OAuthRedirectURL  string `koanf:"google_redirect_url"`
	OAuthAuthURL      string `koanf:"oauth_auth_url"`
	OAuthTokenURL     string `koanf:"oauth_token_url"`
	OAuthUserInfoURL  string `koanf:"oauth_userinfo_url"`
	OAuthTimeoutSecs  int    `koanf:"oauth_timeout_secs"`
	OAuthStateTTLSecs int    `koanf:"oauth_state_ttl_secs"`

	ReadTimeoutSecs  int `koanf:"server_read_timeout"`
	WriteTimeoutSecs int `koanf:"server_write_timeout"`
	IdleTimeoutSecs  int `koanf:"server_idle_timeout"`

	DBMaxConns        int  `koanf:"db_max_conns"`
	DBMinConns        int  `koanf:"db_min_conns"`
	DBMaxIdleSecs     int  `koanf:"db_max_conn_idle_secs"`
	DBMaxLifeSecs     int  `koanf:"db_max_conn_lifetime_secs"`
	DBConnTimeoutSecs int  `koanf:"db_conn_timeout_secs"`
	DBStatementCache  int  `koanf:"db_statement_cache_capacity"`
	DBAutoMigrate     bool `koanf:"db_auto_migrate"`

	LogLevel  string `koanf:"log_level"`
	LogFormat string `koanf:"log_format"`
	LogCaller bool   `koanf:"log_caller"`
}

func defaults() Config {
	return Config{
		Port:              "8080",
		JWTTTLHours:       24 * 7,
		FrontendURL:       "http://localhost:5173",
		CORSOrigins:       "http://localhost:5173",
		RateLimit:         300,
		UploadDir:         "uploads",
		UploadMaxBytes:    5 << 20,
		OAuthAuthURL:      "https://accounts.google.com/o/oauth2/auth",
		OAuthTokenURL:     "https://oauth2.googleapis.com/token",
		OAuthUserInfoURL:  "https://www.googleapis.com/oauth2/v2/userinfo",
		OAuthTimeoutSecs:  5,
		OAuthStateTTLSecs: 600,
		ReadTimeoutSecs:   15,
		WriteTimeoutSecs:  15,
		IdleTimeoutSecs:   60,
		DBMaxConns:        20,
		DBMinConns:        2,
		DBMaxIdleSecs:     300,
		DBMaxLifeSecs:     3600,
		DBConnTimeoutSecs: 10,
		DBStatementCache:  256,
		DBAutoMigrate:     true,
		LogLevel:          "info",
		LogFormat:         "json",
	}
}

// Load reads configuration from environment variables, applying defaults and
// validation. A .env file (ENV_FILE, default ".env") is read first when
// present; variables already set in the environment win.
func Load() (Config, error) {
	if err := loadDotEnv(); err != nil {
		return Config{}, err
	}

	k := koanf.New(".")
	if err := k.Load(structs.Provider(defaults(), "koanf"), nil); err != nil {
		return Config{}, fmt.Errorf("load defaults: %w", err)
	}
	if err := k.Load(env.Provider("", ".", envTransform(k)), nil); err != nil {
		return Config{}, fmt.Errorf("load environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// envTransform keeps only variables that name a known setting. Empty values
// are treated as unset.
func envTransform(k *koanf.Koanf) func(string) string {
	return func(key string) string {
		lower := strings.ToLower(key)
		if !k.Exists(lower) || os.Getenv(key) == "" {
			return ""
		}
		return lower
	}
}

func loadDotEnv() error {
	path := os.Getenv("ENV_FILE")
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Validate reports the first invalid setting, naming its variable.
func (c Config) Validate() error {
	if c.DBURL == "" {
		return fmt.Errorf("DB_URL is required")
	}
	if len(c.JWTSecret) < 16 {
		return fmt.Errorf("JWT_SECRET must be at least 16 characters")
	}
	if c.JWTTTLHours <= 0 {
		return fmt.Errorf("JWT_TTL_HOURS must be positive")
	}
	if _, err := url.ParseRequestURI(c.FrontendURL); err != nil {
		return fmt.Errorf("FRONTEND_URL is not a valid URL: %w", err)
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE must be non-negative")
	}
	if c.UploadDir == "" {
		return fmt.Errorf("UPLOAD_DIR is required")
	}
	if c.UploadMaxBytes <= 0 {
		return fmt.Errorf("UPLOAD_MAX_BYTES must be positive")
	}
	if c.OAuthEnabled() {
		if c.OAuthClientSecret == "" {
			return fmt.Errorf("GOOGLE_CLIENT_SECRET is required when GOOGLE_CLIENT_ID is set")
		}
		if c.OAuthRedirectURL == "" {
			return fmt.Errorf("GOOGLE_REDIRECT_URL is required when GOOGLE_CLIENT_ID is set")
		}
	}
	if c.OAuthTimeoutSecs <= 0 {
		return fmt.Errorf("OAUTH_TIMEOUT_SECS must be positive")
	}
	if c.OAuthStateTTLSecs <= 0 {
		return fmt.Errorf("OAUTH_STATE_TTL_SECS must be positive")
	}
	if c.DBMaxConns <= 0 {
		return fmt.Errorf("DB_MAX_CONNS must be positive")
	}
	if c.DBMinConns < 0 {
		return fmt.Errorf("DB_MIN_CONNS must be non-negative")
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS cannot exceed DB_MAX_CONNS")
	}
	if c.DBStatementCache < 0 {
		return fmt.Errorf("DB_STATEMENT_CACHE_CAPACITY must be non-negative")
	}
	if !logging.ValidLevel(c.LogLevel) {
		return fmt.Errorf("LOG_LEVEL %q is not a known level", c.LogLevel)
	}
	if c.LogFormat != "json" && c.LogFormat != "console" {
		return fmt.Errorf("LOG_FORMAT must be json or console")
	}
	return nil
}

// OAuthEnabled reports whether Google sign-in is configured.
func (c Config) OAuthEnabled() bool {
	return c.OAuthClientID != ""
}

// AllowedOrigins splits CORS_ORIGINS on commas.
func (c Config) AllowedOrigins() []string {
	parts := strings.Split(c.CORSOrigins, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			origins = append(origins, p)
		}
	}
	return origins
}

// Logging returns the logger settings.
func (c Config) Logging() logging.Config {
	return logging.Config{Level: c.LogLevel, Format: c.LogFormat, Caller: c.LogCaller}
}
