package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Port             string   `mapstructure:"PORT"`
	Env              string   `mapstructure:"ENV"`
	DatabaseURL      string   `mapstructure:"DATABASE_URL"`
	DBMaxConns       int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns       int32    `mapstructure:"DB_MIN_CONNS"`
	SchedulerEnabled bool     `mapstructure:"SCHEDULER_ENABLED"`
	DailyWindowHours int      `mapstructure:"DAILY_WINDOW_HOURS"`
	HourlyWindowMins int      `mapstructure:"HOURLY_WINDOW_MINS"`
	StatusPageSize   int      `mapstructure:"STATUS_PAGE_SIZE"`
	CORSOrigins      []string `mapstructure:"CORS_ORIGINS"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8100")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("SCHEDULER_ENABLED", true)
	v.SetDefault("DAILY_WINDOW_HOURS", 24)
	v.SetDefault("HOURLY_WINDOW_MINS", 60)
	v.SetDefault("STATUS_PAGE_SIZE", 50)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("SCHEDULER_ENABLED")
	v.BindEnv("DAILY_WINDOW_HOURS")
	v.BindEnv("HOURLY_WINDOW_MINS")
	v.BindEnv("STATUS_PAGE_SIZE")
	v.BindEnv("CORS_ORIGINS")

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

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// Validate checks that the configuration is safe to run with. Window sizes
// must be positive: a zero or negative window would make every sync a no-op
// while still reporting completed runs.
func (c *Config) Validate() error {
	if c.DailyWindowHours <= 0 {
		return fmt.Errorf("DAILY_WINDOW_HOURS must be positive, got %d", c.DailyWindowHours)
	}
	if c.HourlyWindowMins <= 0 {
		return fmt.Errorf("HOURLY_WINDOW_MINS must be positive, got %d", c.HourlyWindowMins)
	}
	if c.StatusPageSize <= 0 {
		return fmt.Errorf("STATUS_PAGE_SIZE must be positive, got %d", c.StatusPageSize)
	}
	return nil
}
