package config

import (
	"fmt"

	"github.com/spf13/viper"
)

type Config struct {
	Port                  string `mapstructure:"PORT"`
	Env                   string `mapstructure:"ENV"`
	DatabaseURL           string `mapstructure:"DATABASE_URL"`
	DBMaxConns            int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns            int32  `mapstructure:"DB_MIN_CONNS"`
	AuthSigningKey        string `mapstructure:"AUTH_SIGNING_KEY"`
	AuthIssuer            string `mapstructure:"AUTH_ISSUER"`
	AuthAudience          string `mapstructure:"AUTH_AUDIENCE"`
	FatigueDailyCap       int    `mapstructure:"FATIGUE_DAILY_CAP"`
	FatigueWeeklyCap      int    `mapstructure:"FATIGUE_WEEKLY_CAP"`
	FatigueSameTypeLimit  int    `mapstructure:"FATIGUE_SAME_TYPE_LIMIT"`
	EvalParallelism       int    `mapstructure:"EVAL_PARALLELISM"`
	RequestTimeoutSeconds int    `mapstructure:"REQUEST_TIMEOUT_SECONDS"`
}

var keys = []string{
	"PORT",
	"ENV",
	"DATABASE_URL",
	"DB_MAX_CONNS",
	"DB_MIN_CONNS",
	"AUTH_SIGNING_KEY",
	"AUTH_ISSUER",
	"AUTH_AUDIENCE",
	"FATIGUE_DAILY_CAP",
	"FATIGUE_WEEKLY_CAP",
	"FATIGUE_SAME_TYPE_LIMIT",
	"EVAL_PARALLELISM",
	"REQUEST_TIMEOUT_SECONDS",
}

// Load reads configuration from the environment and an optional .env file.
// DATABASE_URL may be empty, in which case the server keeps reviews and
// fatigue history in memory.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8010")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("FATIGUE_DAILY_CAP", 10)
	v.SetDefault("FATIGUE_WEEKLY_CAP", 50)
	v.SetDefault("FATIGUE_SAME_TYPE_LIMIT", 2)
	v.SetDefault("EVAL_PARALLELISM", 8)
	v.SetDefault("REQUEST_TIMEOUT_SECONDS", 30)

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
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

// UsesPostgres reports whether review and fatigue state should be persisted.
func (c *Config) UsesPostgres() bool {
	return c.DatabaseURL != ""
}

// Validate checks that the configuration is safe to run. Outside development
// AUTH_SIGNING_KEY must be set so that bearer tokens are verified.
func (c *Config) Validate() error {
	if !c.IsDev() && c.AuthSigningKey == "" {
		return fmt.Errorf("AUTH_SIGNING_KEY is required when ENV=%q", c.Env)
	}
	if c.AuthSigningKey != "" && len(c.AuthSigningKey) < 32 {
		return fmt.Errorf("AUTH_SIGNING_KEY must be at least 32 bytes, got %d", len(c.AuthSigningKey))
	}
	if c.FatigueDailyCap <= 0 {
		return fmt.Errorf("FATIGUE_DAILY_CAP must be positive, got %d", c.FatigueDailyCap)
	}
	if c.FatigueWeeklyCap <= 0 {
		return fmt.Errorf("FATIGUE_WEEKLY_CAP must be positive, got %d", c.FatigueWeeklyCap)
	}
	if c.FatigueSameTypeLimit <= 0 {
		return fmt.Errorf("FATIGUE_SAME_TYPE_LIMIT must be positive, got %d", c.FatigueSameTypeLimit)
	}
	if c.FatigueWeeklyCap < c.FatigueDailyCap {
		return fmt.Errorf("FATIGUE_WEEKLY_CAP (%d) must not be below FATIGUE_DAILY_CAP (%d)", c.FatigueWeeklyCap, c.FatigueDailyCap)
	}
	if c.EvalParallelism <= 0 {
		return fmt.Errorf("EVAL_PARALLELISM must be positive, got %d", c.EvalParallelism)
	}
	if c.RequestTimeoutSeconds <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT_SECONDS must be positive, got %d", c.RequestTimeoutSeconds)
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	return nil
}
