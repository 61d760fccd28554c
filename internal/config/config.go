package config

import (
	"encoding/hex"
	"fmt"
	"log"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Port              string   `mapstructure:"PORT"`
	Env               string   `mapstructure:"ENV"`
	DatabasePath      string   `mapstructure:"DATABASE_PATH"`
	BaseURL           string   `mapstructure:"BASE_URL"`
	MasterKey         string   `mapstructure:"MASTER_KEY"`
	SessionSecret     string   `mapstructure:"SESSION_SECRET"`
	SessionTTLMinutes int      `mapstructure:"SESSION_TTL_MINUTES"`
	CORSOrigins       []string `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS      float64  `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst    int      `mapstructure:"RATE_LIMIT_BURST"`
	LinkMaxHours      int      `mapstructure:"LINK_MAX_DURATION_HOURS"`
	LinkDefaultViews  int      `mapstructure:"LINK_DEFAULT_MAX_VIEWS"`
	SMTPHost          string   `mapstructure:"SMTP_HOST"`
	SMTPPort          int      `mapstructure:"SMTP_PORT"`
	SMTPUsername      string   `mapstructure:"SMTP_USERNAME"`
	SMTPPassword      string   `mapstructure:"SMTP_PASSWORD"`
	FromEmail         string   `mapstructure:"FROM_EMAIL"`
	ScanConcurrency   int      `mapstructure:"SCAN_CONCURRENCY"`
	ScanTimeoutMS     int      `mapstructure:"SCAN_TIMEOUT_MS"`
	TLSEnabled        bool     `mapstructure:"TLS_ENABLED"`
	TLSCertFile       string   `mapstructure:"TLS_CERT_FILE"`
	TLSKeyFile        string   `mapstructure:"TLS_KEY_FILE"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DATABASE_PATH", "impilo.db")
	v.SetDefault("BASE_URL", "https://localhost:8000")
	v.SetDefault("SESSION_TTL_MINUTES", 480)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)
	v.SetDefault("LINK_MAX_DURATION_HOURS", 168)
	v.SetDefault("LINK_DEFAULT_MAX_VIEWS", 10)
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("FROM_EMAIL", "noreply@impilo.local")
	v.SetDefault("SCAN_CONCURRENCY", 32)
	v.SetDefault("SCAN_TIMEOUT_MS", 500)

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_PATH")
	v.BindEnv("BASE_URL")
	v.BindEnv("MASTER_KEY")
	v.BindEnv("SESSION_SECRET")
	v.BindEnv("SESSION_TTL_MINUTES")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("RATE_LIMIT_RPS")
	v.BindEnv("RATE_LIMIT_BURST")
	v.BindEnv("LINK_MAX_DURATION_HOURS")
	v.BindEnv("LINK_DEFAULT_MAX_VIEWS")
	v.BindEnv("SMTP_HOST")
	v.BindEnv("SMTP_PORT")
	v.BindEnv("SMTP_USERNAME")
	v.BindEnv("SMTP_PASSWORD")
	v.BindEnv("FROM_EMAIL")
	v.BindEnv("SCAN_CONCURRENCY")
	v.BindEnv("SCAN_TIMEOUT_MS")
	v.BindEnv("TLS_ENABLED")
	v.BindEnv("TLS_CERT_FILE")
	v.BindEnv("TLS_KEY_FILE")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.IsDev() {
		log.Println("WARNING: ============================================================")
		log.Println("WARNING: Server is running in DEVELOPMENT mode (ENV=development).")
		log.Println("WARNING: DevAuthMiddleware is active, all requests get admin access.")
		log.Println("WARNING: Do NOT use this configuration in production.")
		log.Println("WARNING: Set ENV=production, SESSION_SECRET and MASTER_KEY for production.")
		log.Println("WARNING: ============================================================")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// MasterKeyBytes decodes the configured master key. The key must be 32 bytes
// (64 hex characters); credential encryption is unavailable when it is empty.
func (c *Config) MasterKeyBytes() ([]byte, error) {
	if c.MasterKey == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(c.MasterKey)
	if err != nil {
		return nil, fmt.Errorf("MASTER_KEY is not valid hex: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("MASTER_KEY must be 32 bytes (64 hex chars), got %d bytes", len(key))
	}
	return key, nil
}

// Validate checks that the configuration is safe to run. In production the
// master key and session secret are required so that stored credentials are
// encrypted and sessions are signed with a real secret.
func (c *Config) Validate() error {
	if c.DatabasePath == "" {
		return fmt.Errorf("DATABASE_PATH is required")
	}

	if c.IsProduction() {
		if c.MasterKey == "" {
			return fmt.Errorf("MASTER_KEY is required in production")
		}
		if c.SessionSecret == "" {
			return fmt.Errorf("SESSION_SECRET is required in production")
		}
	}
	if _, err := c.MasterKeyBytes(); err != nil {
		return err
	}

	if c.LinkMaxHours <= 0 {
		return fmt.Errorf("LINK_MAX_DURATION_HOURS must be positive, got %d", c.LinkMaxHours)
	}

	// TLS validation: when TLS is enabled, cert and key files must be specified.
	if c.TLSEnabled {
		if c.TLSCertFile == "" {
			return fmt.Errorf("TLS_CERT_FILE is required when TLS_ENABLED is true")
		}
		if c.TLSKeyFile == "" {
			return fmt.Errorf("TLS_KEY_FILE is required when TLS_ENABLED is true")
		}
	}

	return nil
}
