// Package config loads runtime settings from an optional config file plus
// ETL_-prefixed environment variables.
package config

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Config is the runtime configuration of the service
type Config struct {
	ListenAddr       string        `mapstructure:"listen_addr"`
	DBPath           string        `mapstructure:"db_path"`
	LogLevel         string        `mapstructure:"log_level"`
	HealthCacheTTL   time.Duration `mapstructure:"health_cache_ttl"`
	SilenceSweep     time.Duration `mapstructure:"silence_sweep"`
	RunRetention     time.Duration `mapstructure:"run_retention"`
	AlertMaxDuration time.Duration `mapstructure:"alert_max_duration"`
	AlertMinRecords  int           `mapstructure:"alert_min_records"`
}

// Load reads configuration from the given file (optional) and the environment
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("db_path", "etl.db")
	v.SetDefault("log_level", "info")
	v.SetDefault("health_cache_ttl", time.Minute)
	v.SetDefault("silence_sweep", time.Minute)
	v.SetDefault("run_retention", 30*24*time.Hour)
	v.SetDefault("alert_max_duration", 30*time.Minute)
	v.SetDefault("alert_min_records", 100)

	v.SetEnvPrefix("ETL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "read config %s", path)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "unmarshal config")
	}
	return &cfg, nil
}
