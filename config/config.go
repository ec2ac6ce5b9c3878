package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the service
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Auth     AuthConfig
	Storage  StorageConfig
	Sync     SyncConfig
	Jobs     JobsConfig
	Log      LogConfig
	Points   PointsConfig

	// BadgeCatalogPath points at an optional YAML seed file for the badge catalog.
	BadgeCatalogPath string

	// EnvFileLoaded is false when no .env file was found in the working directory.
	EnvFileLoaded bool
}

type ServerConfig struct {
	Port            string
	BodyLimit       int
	AllowedOrigins  []string
	ShutdownTimeout time.Duration
}

type DatabaseConfig struct {
	Driver       string // postgres | sqlite
	DSN          string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  time.Duration
}

// AuthConfig describes how request identity is established. Either a JWT secret shared
// with the auth provider, a gateway service token, or both.
type AuthConfig struct {
	JWTSecret    string
	GatewayToken string
}

type StorageConfig struct {
	R2AccountID       string
	R2AccessKeyID     string
	R2AccessKeySecret string
	R2Bucket          string
	CDNBaseURL        string
	LocalDir          string
}

type SyncConfig struct {
	AuthAdminURL string
	ServiceKey   string
	Interval     time.Duration
}

type JobsConfig struct {
	BadgeReconcileInterval time.Duration
	VoteCloseInterval      time.Duration
}

type LogConfig struct {
	Level       string
	Development bool
}

// PointsConfig overrides the default point table.
type PointsConfig struct {
	MemberReferral    int64
	SupporterReferral int64
	VoteCast          int64
	ProfileComplete   int64
}

// Load loads configuration from .env and the environment
func Load() (*Config, error) {
	envFileLoaded := godotenv.Load() == nil

	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnv("SERVER_PORT", "5200"),
			BodyLimit:       getIntEnv("SERVER_BODY_LIMIT", 8*1024*1024),
			AllowedOrigins:  getStringSliceEnv("ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
			ShutdownTimeout: getDurationEnv("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Database: DatabaseConfig{
			Driver:       getEnv("DATABASE_DRIVER", "postgres"),
			DSN:          getEnv("DATABASE_URL", ""),
			MaxOpenConns: getIntEnv("DB_MAX_OPEN_CONNS", 20),
			MaxIdleConns: getIntEnv("DB_MAX_IDLE_CONNS", 5),
			MaxLifetime:  getDurationEnv("DB_MAX_LIFETIME", time.Hour),
		},
		Auth: AuthConfig{
			JWTSecret:    getEnv("AUTH_JWT_SECRET", ""),
			GatewayToken: getEnv("GATEWAY_SERVICE_TOKEN", ""),
		},
		Storage: StorageConfig{
			R2AccountID:       getEnv("CLOUDFLARE_ACCOUNT_ID", ""),
			R2AccessKeyID:     getEnv("R2_ACCESS_KEY_ID", ""),
			R2AccessKeySecret: getEnv("R2_ACCESS_KEY_SECRET", ""),
			R2Bucket:          getEnv("R2_BUCKET_NAME", ""),
			CDNBaseURL:        getEnv("CDN_BASE_URL", ""),
			LocalDir:          getEnv("UPLOAD_DIR", "uploads"),
		},
		Sync: SyncConfig{
			AuthAdminURL: getEnv("AUTH_ADMIN_URL", ""),
			ServiceKey:   getEnv("AUTH_SERVICE_KEY", ""),
			Interval:     getDurationEnv("AUTH_SYNC_INTERVAL", time.Minute),
		},
		Jobs: JobsConfig{
			BadgeReconcileInterval: getDurationEnv("BADGE_RECONCILE_INTERVAL", 15*time.Minute),
			VoteCloseInterval:      getDurationEnv("VOTE_CLOSE_INTERVAL", time.Minute),
		},
		Log: LogConfig{
			Level:       getEnv("LOG_LEVEL", "info"),
			Development: getBoolEnv("LOG_DEVELOPMENT", false),
		},
		Points: PointsConfig{
			MemberReferral:    getInt64Env("POINTS_MEMBER_REFERRAL", 20),
			SupporterReferral: getInt64Env("POINTS_SUPPORTER_REFERRAL", 10),
			VoteCast:          getInt64Env("POINTS_VOTE_CAST", 5),
			ProfileComplete:   getInt64Env("POINTS_PROFILE_COMPLETE", 50),
		},
		BadgeCatalogPath: getEnv("BADGE_CATALOG_PATH", ""),
		EnvFileLoaded:    envFileLoaded,
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("DATABASE_DRIVER must be postgres or sqlite, got %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.Auth.JWTSecret == "" && c.Auth.GatewayToken == "" {
		return fmt.Errorf("one of AUTH_JWT_SECRET or GATEWAY_SERVICE_TOKEN is required")
	}
	if c.Points.MemberReferral < 0 || c.Points.SupporterReferral < 0 ||
		c.Points.VoteCast < 0 || c.Points.ProfileComplete < 0 {
		return fmt.Errorf("point weights must not be negative")
	}
	return nil
}

// IsR2Configured reports whether all R2 credentials are present
func (c *Config) IsR2Configured() bool {
	s := c.Storage
	return s.R2AccountID != "" && s.R2AccessKeyID != "" && s.R2AccessKeySecret != "" && s.R2Bucket != ""
}

// IsAuthSyncConfigured reports whether the auth user sync worker can run
func (c *Config) IsAuthSyncConfigured() bool {
	return c.Sync.AuthAdminURL != "" && c.Sync.ServiceKey != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getInt64Env(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getStringSliceEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var parts []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			parts = append(parts, part)
		}
	}
	if len(parts) == 0 {
		return defaultValue
	}
	return parts
}
