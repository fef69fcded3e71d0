package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. RSRCPACK_LOG_LEVEL.
const EnvPrefix = "RSRCPACK"

// Config represents the rsrcpack configuration. It only tunes how the tool
// reports and behaves around a pack; bundle contents never depend on it.
type Config struct {
	Log   LogConfig   `mapstructure:"log"`
	UI    UIConfig    `mapstructure:"ui"`
	Pack  PackConfig  `mapstructure:"pack"`
	Watch WatchConfig `mapstructure:"watch"`
}

// LogConfig represents logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// UIConfig represents terminal output configuration
type UIConfig struct {
	NoColor bool `mapstructure:"no_color"`
}

// PackConfig represents pack configuration
type PackConfig struct {
	BatchSize int `mapstructure:"batch_size"`
}

// WatchConfig represents watch mode configuration
type WatchConfig struct {
	Debounce time.Duration `mapstructure:"debounce"`
	Ignore   []string      `mapstructure:"ignore"`
}

// Load loads the configuration. An explicit path must exist; otherwise
// rsrcpack.yml or rsrcpack.yaml in the working directory is used if present.
func Load(path string) (*Config, error) {
	v := viper.New()

	def := Default()
	v.SetDefault("log.level", def.Log.Level)
	v.SetDefault("log.format", def.Log.Format)
	v.SetDefault("ui.no_color", def.UI.NoColor)
	v.SetDefault("pack.batch_size", def.Pack.BatchSize)
	v.SetDefault("watch.debounce", def.Watch.Debounce)
	v.SetDefault("watch.ignore", def.Watch.Ignore)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("rsrcpack")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found - use defaults
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// Default returns the configuration used when nothing is configured.
func Default() *Config {
	return &Config{
		Log:   LogConfig{Level: "info", Format: "console"},
		Pack:  PackConfig{BatchSize: 256},
		Watch: WatchConfig{Debounce: 250 * time.Millisecond, Ignore: []string{}},
	}
}

// validateConfig validates the configuration
func validateConfig(cfg *Config) error {
	switch strings.ToLower(cfg.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error; got: %s", cfg.Log.Level)
	}
	switch cfg.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("log.format must be console or json, got: %s", cfg.Log.Format)
	}
	if cfg.Pack.BatchSize <= 0 {
		return fmt.Errorf("pack.batch_size must be positive, got: %d", cfg.Pack.BatchSize)
	}
	if cfg.Watch.Debounce <= 0 {
		return fmt.Errorf("watch.debounce must be positive, got: %s", cfg.Watch.Debounce)
	}
	return nil
}
