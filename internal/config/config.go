// Package config loads server settings from defaults, an optional .env file
// and INCENTIVE_* environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment key, e.g. INCENTIVE_PORT.
const EnvPrefix = "INCENTIVE"

type Config struct {
	Port            int
	DBPath          string
	LogMode         string // "dev" or "prod"
	CORSOrigins     []string
	ShutdownTimeout time.Duration
	RequestTimeout  time.Duration
}

// Addr is the listen address for Port.
func (c Config) Addr() string { return fmt.Sprintf(":%d", c.Port) }

// Load reads configuration. envFile is loaded first when it exists; a
// missing file is not an error. Real environment variables win over the
// file.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			if err := godotenv.Load(envFile); err != nil {
				return nil, fmt.Errorf("config.godotenv(%s): %w", envFile, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("config.os.Stat(%s): %w", envFile, err)
		}
	}

	v := viper.New()
	v.SetTypeByDefaultValue(true)
	v.SetDefault("port", 8080)
	v.SetDefault("db", "incentives.db")
	v.SetDefault("log_mode", "dev")
	v.SetDefault("cors_origins", []string{"*"})
	v.SetDefault("shutdown_timeout", 10*time.Second)
	v.SetDefault("request_timeout", 30*time.Second)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		Port:            v.GetInt("port"),
		DBPath:          v.GetString("db"),
		LogMode:         strings.ToLower(v.GetString("log_mode")),
		CORSOrigins:     v.GetStringSlice("cors_origins"),
		ShutdownTimeout: v.GetDuration("shutdown_timeout"),
		RequestTimeout:  v.GetDuration("request_timeout"),
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: port %d out of range", c.Port)
	}
	if c.DBPath == "" {
		return fmt.Errorf("config: db path is required")
	}
	switch c.LogMode {
	case "dev", "prod":
	default:
		return fmt.Errorf("config: log_mode must be dev or prod, got %q", c.LogMode)
	}
	return nil
}
