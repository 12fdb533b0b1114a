package config

import (
	"encoding/hex"
	"fmt"
	"log"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Port             string   `mapstructure:"PORT"`
	Env              string   `mapstructure:"ENV"`
	DatabaseURL      string   `mapstructure:"DATABASE_URL"`
	DBMaxConns       int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns       int32    `mapstructure:"DB_MIN_CONNS"`
	TokenSigningKeys []string `mapstructure:"TOKEN_SIGNING_KEYS"`
	SessionTTLHours  int      `mapstructure:"SESSION_TTL_HOURS"`
	CORSOrigins      []string `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS     float64  `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst   int      `mapstructure:"RATE_LIMIT_BURST"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("SESSION_TTL_HOURS", 168)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("TOKEN_SIGNING_KEYS")
	v.BindEnv("SESSION_TTL_HOURS")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("RATE_LIMIT_RPS")
	v.BindEnv("RATE_LIMIT_BURST")

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
	if cfg.TokenSigningKeys == nil {
		keys := v.GetString("TOKEN_SIGNING_KEYS")
		if keys != "" {
			cfg.TokenSigningKeys = strings.Split(keys, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.IsDev() && len(cfg.TokenSigningKeys) == 0 {
		log.Println("WARNING: ============================================================")
		log.Println("WARNING: TOKEN_SIGNING_KEYS is not set (ENV=development).")
		log.Println("WARNING: An ephemeral signing key will be generated at startup.")
		log.Println("WARNING: All tokens become invalid when the process restarts.")
		log.Println("WARNING: Do NOT use this configuration in production.")
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

// SigningKeys decodes TOKEN_SIGNING_KEYS into raw key material. The first key
// signs newly minted tokens; every listed key is accepted during verification
// so that keys can be rotated without invalidating live tokens.
func (c *Config) SigningKeys() ([][]byte, error) {
	keys := make([][]byte, 0, len(c.TokenSigningKeys))
	for i, k := range c.TokenSigningKeys {
		raw, err := hex.DecodeString(strings.TrimSpace(k))
		if err != nil {
			return nil, fmt.Errorf("TOKEN_SIGNING_KEYS[%d] is not valid hex: %w", i, err)
		}
		if len(raw) < 32 {
			return nil, fmt.Errorf("TOKEN_SIGNING_KEYS[%d] must be at least 32 bytes (64 hex chars), got %d bytes", i, len(raw))
		}
		keys = append(keys, raw)
	}
	return keys, nil
}

// Validate checks that the configuration is safe to run. In production a
// signing key is mandatory: session, share and emergency tokens are the only
// proof of identity this service issues, so an ephemeral key is not acceptable.
func (c *Config) Validate() error {
	if c.IsProduction() && len(c.TokenSigningKeys) == 0 {
		return fmt.Errorf("TOKEN_SIGNING_KEYS is required in production")
	}
	if _, err := c.SigningKeys(); err != nil {
		return err
	}
	if c.SessionTTLHours <= 0 {
		return fmt.Errorf("SESSION_TTL_HOURS must be positive, got %d", c.SessionTTLHours)
	}
	return nil
}
