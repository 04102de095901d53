// Package config loads irongate settings from YAML, environment variables,
// and built-in defaults.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. IRONGATE_LISTEN_PORT.
const EnvPrefix = "IRONGATE"

// Config is the full process configuration.
type Config struct {
	Listen        ListenConfig  `mapstructure:"listen" yaml:"listen"`
	PasswordFile  string        `mapstructure:"password_file" yaml:"password_file" validate:"required"`
	AllowListFile string        `mapstructure:"allow_list_file" yaml:"allow_list_file" validate:"required"`
	PollInterval  time.Duration `mapstructure:"poll_interval" yaml:"poll_interval" validate:"gt=0"`
	IOPollWindow  time.Duration `mapstructure:"io_poll_window" yaml:"io_poll_window" validate:"gt=0"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout" yaml:"write_timeout" validate:"gt=0"`
	MaxAttempts   int           `mapstructure:"max_attempts" yaml:"max_attempts" validate:"min=1"`
	MaxLineLength int           `mapstructure:"max_line_length" yaml:"max_line_length" validate:"min=16"`
	Banner        string        `mapstructure:"banner" yaml:"banner"`
	Logging       LoggingConfig `mapstructure:"logging" yaml:"logging"`
	Events        EventsConfig  `mapstructure:"events" yaml:"events"`
	Admin         AdminConfig   `mapstructure:"admin" yaml:"admin"`
}

// ListenConfig is the client-facing socket.
type ListenConfig struct {
	Address string `mapstructure:"address" yaml:"address"`
	Port    int    `mapstructure:"port" yaml:"port" validate:"min=0,max=65535"`
}

// LoggingConfig controls the process logger.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level" validate:"oneof=DEBUG INFO WARN ERROR debug info warn error"`
	Format string `mapstructure:"format" yaml:"format" validate:"oneof=text json"`
	Output string `mapstructure:"output" yaml:"output"`
}

// EventsConfig controls the connection event sinks. Empty paths disable a sink.
type EventsConfig struct {
	File             string        `mapstructure:"file" yaml:"file"`
	Format           string        `mapstructure:"format" yaml:"format" validate:"oneof=text json"`
	BoltPath         string        `mapstructure:"bolt_path" yaml:"bolt_path"`
	FailureWindow    time.Duration `mapstructure:"failure_window" yaml:"failure_window" validate:"gt=0"`
	FailureThreshold int           `mapstructure:"failure_threshold" yaml:"failure_threshold" validate:"min=1"`
}

// AdminConfig controls the HTTP health and metrics endpoint.
type AdminConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Address string `mapstructure:"address" yaml:"address" validate:"required_if=Enabled true"`
}

// ListenAddr returns host:port for the client socket.
func (c *Config) ListenAddr() string {
	return net.JoinHostPort(c.Listen.Address, strconv.Itoa(c.Listen.Port))
}

// Load reads configuration from configPath (optional), then applies
// environment overrides and defaults, and validates the result.
//
// Precedence (highest to lowest):
//  1. Environment variables (IRONGATE_*)
//  2. Configuration file
//  3. Default values
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	if err := readConfigFile(v, configPath); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// Save writes cfg to path as YAML.
func Save(cfg *Config, path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

var validate = validator.New()

// Validate checks struct constraints.
func Validate(cfg *Config) error {
	return validate.Struct(cfg)
}

func setupViper(v *viper.Viper, configPath string) {
	// Example: IRONGATE_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	registerDefaults(v, Default())

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("irongate")
		v.SetConfigType("yaml")
	}
}

// registerDefaults makes every key known to viper so environment variables
// apply even when no config file is present.
func registerDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("listen.address", d.Listen.Address)
	v.SetDefault("listen.port", d.Listen.Port)
	v.SetDefault("password_file", d.PasswordFile)
	v.SetDefault("allow_list_file", d.AllowListFile)
	v.SetDefault("poll_interval", d.PollInterval.String())
	v.SetDefault("io_poll_window", d.IOPollWindow.String())
	v.SetDefault("write_timeout", d.WriteTimeout.String())
	v.SetDefault("max_attempts", d.MaxAttempts)
	v.SetDefault("max_line_length", d.MaxLineLength)
	v.SetDefault("banner", d.Banner)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.output", d.Logging.Output)
	v.SetDefault("events.file", d.Events.File)
	v.SetDefault("events.format", d.Events.Format)
	v.SetDefault("events.bolt_path", d.Events.BoltPath)
	v.SetDefault("events.failure_window", d.Events.FailureWindow.String())
	v.SetDefault("events.failure_threshold", d.Events.FailureThreshold)
	v.SetDefault("admin.enabled", d.Admin.Enabled)
	v.SetDefault("admin.address", d.Admin.Address)
}

// readConfigFile reads the file if there is one. A missing default file is
// fine; a missing explicit file is an error.
func readConfigFile(v *viper.Viper, configPath string) error {
	err := v.ReadInConfig()
	if err == nil {
		return nil
	}
	var notFound viper.ConfigFileNotFoundError
	if errors.As(err, &notFound) && configPath == "" {
		return nil
	}
	return fmt.Errorf("failed to read config file: %w", err)
}

func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		durationDecodeHook(),
	)
}

// durationDecodeHook converts strings like "100ms" and raw nanosecond
// counts to time.Duration.
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}
