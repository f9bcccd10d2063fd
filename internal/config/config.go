package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Cache   CacheConfig   `yaml:"cache" mapstructure:"cache"`
	Geocode GeocodeConfig `yaml:"geocode" mapstructure:"geocode"`
	Sync    SyncConfig    `yaml:"sync" mapstructure:"sync"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// CacheConfig configures the persistent geocoding cache.
type CacheConfig struct {
	Path            string  `yaml:"path" mapstructure:"path"`
	RadiusKM        float64 `yaml:"radius_km" mapstructure:"radius_km"`
	LoadTimeoutSecs int     `yaml:"load_timeout_secs" mapstructure:"load_timeout_secs"`
	SaveTimeoutSecs int     `yaml:"save_timeout_secs" mapstructure:"save_timeout_secs"`
}

// LoadTimeout returns the lock timeout for cache loads.
func (c CacheConfig) LoadTimeout() time.Duration {
	return time.Duration(c.LoadTimeoutSecs) * time.Second
}

// SaveTimeout returns the lock timeout for cache saves.
func (c CacheConfig) SaveTimeout() time.Duration {
	return time.Duration(c.SaveTimeoutSecs) * time.Second
}

// GeocodeConfig configures the Nominatim client.
type GeocodeConfig struct {
	BaseURL           string `yaml:"base_url" mapstructure:"base_url"`
	UserAgent         string `yaml:"user_agent" mapstructure:"user_agent"`
	Language          string `yaml:"language" mapstructure:"language"`
	TimeoutSecs       int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RequestIntervalMS int    `yaml:"request_interval_ms" mapstructure:"request_interval_ms"`
}

// Timeout returns the per-request HTTP timeout.
func (c GeocodeConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// RequestInterval returns the minimum delay between outbound requests.
func (c GeocodeConfig) RequestInterval() time.Duration {
	return time.Duration(c.RequestIntervalMS) * time.Millisecond
}

// SyncConfig configures track-to-photo synchronization.
type SyncConfig struct {
	ToleranceSecs int `yaml:"tolerance_secs" mapstructure:"tolerance_secs"`
}

// Tolerance returns the maximum photo/track time difference for a match.
func (c SyncConfig) Tolerance() time.Duration {
	return time.Duration(c.ToleranceSecs) * time.Second
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("PHOTOTRACK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("cache.path", "geocoding_cache.json")
	v.SetDefault("cache.radius_km", 5.0)
	v.SetDefault("cache.load_timeout_secs", 30)
	v.SetDefault("cache.save_timeout_secs", 60)
	v.SetDefault("geocode.base_url", "https://nominatim.openstreetmap.org")
	v.SetDefault("geocode.user_agent", "phototrack/1.0")
	v.SetDefault("geocode.language", "en")
	v.SetDefault("geocode.timeout_secs", 10)
	v.SetDefault("geocode.request_interval_ms", 1000)
	v.SetDefault("sync.tolerance_secs", 3600)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
