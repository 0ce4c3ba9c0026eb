package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Backend modes
const (
	BackendPostgres = "postgres"
	BackendSupabase = "supabase"
	BackendMemory   = "memory"
)

// Config structure represents the application configuration
type Config struct {
	Server struct {
		Port        string   `yaml:"port" env:"SERVER_PORT"`
		Mode        string   `yaml:"mode" env:"SERVER_MODE"`
		CORSOrigins []string `yaml:"cors_origins" env:"SERVER_CORS_ORIGINS"`
	} `yaml:"server"`

	// Backend selects the remote data collaborator. URL and Key are the hosted
	// backend endpoint and its access credential.
	Backend struct {
		Mode string `yaml:"mode" env:"BACKEND_MODE"`
		URL  string `yaml:"url" env:"BACKEND_URL"`
		Key  string `yaml:"key" env:"BACKEND_KEY"`
	} `yaml:"backend"`

	Database struct {
		Host            string `yaml:"host" env:"DB_HOST"`
		Port            string `yaml:"port" env:"DB_PORT"`
		User            string `yaml:"user" env:"DB_USER"`
		Password        string `yaml:"password" env:"DB_PASSWORD"`
		DBName          string `yaml:"dbname" env:"DB_NAME"`
		SSLMode         string `yaml:"sslmode" env:"DB_SSLMODE"`
		MaxIdleConns    int    `yaml:"max_idle_conns" env:"DB_MAX_IDLE_CONNS"`
		MaxOpenConns    int    `yaml:"max_open_conns" env:"DB_MAX_OPEN_CONNS"`
		ConnMaxLifetime string `yaml:"conn_max_lifetime" env:"DB_CONN_MAX_LIFETIME"`
	} `yaml:"database"`

	JWT struct {
		Secret                string `yaml:"secret" env:"JWT_SECRET"`
		AccessTokenExpiration string `yaml:"access_token_expiration" env:"JWT_ACCESS_TOKEN_EXPIRATION"`
		Issuer                string `yaml:"issuer" env:"JWT_ISSUER"`
	} `yaml:"jwt"`

	Auth struct {
		AllowDevTokens   bool   `yaml:"allow_dev_tokens" env:"AUTH_ALLOW_DEV_TOKENS"`
		DefaultStudentID string `yaml:"default_student_id" env:"AUTH_DEFAULT_STUDENT_ID"`
	} `yaml:"auth"`

	Registration struct {
		MaxCourses         int    `yaml:"max_courses" env:"REGISTRATION_MAX_COURSES"`
		SessionIdleTimeout string `yaml:"session_idle_timeout" env:"REGISTRATION_SESSION_IDLE_TIMEOUT"`
	} `yaml:"registration"`

	Logging struct {
		Level  string `yaml:"level" env:"LOG_LEVEL"`
		Format string `yaml:"format" env:"LOG_FORMAT"`
	} `yaml:"logging"`
}

// LoadConfig loads configuration from a file and environment variables
func LoadConfig(configPath string) (*Config, error) {
	config := &Config{}
	setDefaults(config)

	// A missing file is fine, defaults and env still apply
	if _, err := os.Stat(configPath); err == nil {
		file, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		if err := yaml.Unmarshal(file, config); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	// Override with environment variables
	if err := loadFromEnv(config); err != nil {
		return nil, fmt.Errorf("failed to load from environment: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// setDefaults sets default values for the configuration
func setDefaults(config *Config) {
	// Server defaults
	config.Server.Port = "8080"
	config.Server.Mode = "development"
	config.Server.CORSOrigins = []string{"http://localhost:5173"}

	config.Backend.Mode = BackendMemory

	// Database defaults
	config.Database.Host = "localhost"
	config.Database.Port = "5432"
	config.Database.User = "postgres"
	config.Database.Password = "postgres"
	config.Database.DBName = "coursereg"
	config.Database.SSLMode = "disable"
	config.Database.MaxIdleConns = 2
	config.Database.MaxOpenConns = 10
	config.Database.ConnMaxLifetime = "1h"

	// JWT defaults
	config.JWT.AccessTokenExpiration = "12h"
	config.JWT.Issuer = "coursereg.app"

	config.Auth.DefaultStudentID = "student123"

	config.Registration.MaxCourses = 8
	config.Registration.SessionIdleTimeout = "30m"

	// Logging defaults
	config.Logging.Level = "info"
	config.Logging.Format = "json"
}

// loadFromEnv overrides configuration with environment variables
func loadFromEnv(config *Config) error {
	return applyEnv(config, os.LookupEnv)
}

// Validate checks the settings every entry point needs.
func (c *Config) Validate() error {
	switch c.Backend.Mode {
	case BackendSupabase:
		if c.Backend.URL == "" {
			return fmt.Errorf("backend url is required for %s mode", BackendSupabase)
		}
		if c.Backend.Key == "" {
			return fmt.Errorf("backend key is required for %s mode", BackendSupabase)
		}
	case BackendPostgres:
		if c.Database.Host == "" {
			return fmt.Errorf("database host is required for %s mode", BackendPostgres)
		}
		if _, err := time.ParseDuration(c.Database.ConnMaxLifetime); err != nil {
			return fmt.Errorf("invalid database connection max lifetime: %w", err)
		}
	case BackendMemory:
	default:
		return fmt.Errorf("unknown backend mode %q", c.Backend.Mode)
	}

	if c.Registration.MaxCourses <= 0 {
		return fmt.Errorf("registration max_courses must be positive")
	}

	if _, err := time.ParseDuration(c.Registration.SessionIdleTimeout); err != nil {
		return fmt.Errorf("invalid session idle timeout format: %w", err)
	}

	return nil
}

// ValidateServer checks the settings only the HTTP server needs.
func (c *Config) ValidateServer() error {
	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT secret is required")
	}

	if _, err := time.ParseDuration(c.JWT.AccessTokenExpiration); err != nil {
		return fmt.Errorf("invalid JWT access token expiration format: %w", err)
	}

	return nil
}

// AccessTokenTTL is the lifetime of issued access tokens.
func (c *Config) AccessTokenTTL() time.Duration {
	return durationOr(c.JWT.AccessTokenExpiration, 12*time.Hour)
}

// SessionIdleTimeout is how long an untouched student session is kept.
func (c *Config) SessionIdleTimeout() time.Duration {
	return durationOr(c.Registration.SessionIdleTimeout, 30*time.Minute)
}

// durationOr parses raw, or returns def when raw is empty or not a positive
// duration. Validate has already rejected malformed values on loaded configs.
func durationOr(raw string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// IsProduction reports whether the server runs in production mode.
func (c *Config) IsProduction() bool {
	return strings.ToLower(c.Server.Mode) == "production"
}

// GetPostgresConnectionString returns postgres connection string
func (c *Config) GetPostgresConnectionString() string {
	sslMode := c.Database.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.DBName,
		sslMode,
	)
}

// GetEnv gets an environment variable or returns a default value
func GetEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}
