// Package config loads livemarkdown settings with Viper from, in decreasing
// priority, command-line flags, LIVEMARKDOWN_ environment variables and an
// optional YAML config file.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/alicanerdogan/livemarkdown/internal/errors"
)

// EnvPrefix is prepended to every environment override,
// e.g. LIVEMARKDOWN_SERVER_PORT.
const EnvPrefix = "LIVEMARKDOWN"

// DefaultConfigName is the config file looked up in the working directory.
const DefaultConfigName = ".livemarkdown"

const (
	DefaultHost       = "127.0.0.1"
	DefaultPort       = 4000
	DefaultDebounce   = 300 * time.Millisecond
	DefaultBufferSize = 100
	DefaultKeepAlive  = 30 * time.Second
	DefaultRetry      = 5 * time.Second
	DefaultLogLevel   = "info"
	DefaultLogFormat  = "text"
)

type Config struct {
	Server  ServerConfig  `mapstructure:"server" yaml:"server"`
	Watch   WatchConfig   `mapstructure:"watch" yaml:"watch"`
	Events  EventsConfig  `mapstructure:"events" yaml:"events"`
	Session SessionConfig `mapstructure:"session" yaml:"session"`
	Log     LogConfig     `mapstructure:"log" yaml:"log"`
	Files   []string      `mapstructure:"-" yaml:"-"` // CLI arguments, not from config file
}

type ServerConfig struct {
	Host   string `mapstructure:"host" yaml:"host"`
	Port   int    `mapstructure:"port" yaml:"port"`
	Open   bool   `mapstructure:"open" yaml:"open"`
	NoOpen bool   `mapstructure:"no-open" yaml:"-"`
}

type WatchConfig struct {
	Debounce time.Duration `mapstructure:"debounce" yaml:"debounce"`
}

type EventsConfig struct {
	BufferSize int `mapstructure:"buffer_size" yaml:"buffer_size"`
}

type SessionConfig struct {
	KeepAlive time.Duration `mapstructure:"keep_alive" yaml:"keep_alive"`
	Retry     time.Duration `mapstructure:"retry" yaml:"retry"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// SetDefaults registers every default on v so environment variables bound
// through AutomaticEnv are visible to Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.host", DefaultHost)
	v.SetDefault("server.port", DefaultPort)
	v.SetDefault("server.open", true)
	v.SetDefault("server.no-open", false)
	v.SetDefault("watch.debounce", DefaultDebounce)
	v.SetDefault("events.buffer_size", DefaultBufferSize)
	v.SetDefault("session.keep_alive", DefaultKeepAlive)
	v.SetDefault("session.retry", DefaultRetry)
	v.SetDefault("log.level", DefaultLogLevel)
	v.SetDefault("log.format", DefaultLogFormat)
}

// Load reads the configuration from the global viper instance.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom reads and validates the configuration held by v.
func LoadFrom(v *viper.Viper) (*Config, error) {
	config, err := Decode(v)
	if err != nil {
		return nil, err
	}

	if result := Validate(config); result.HasErrors() {
		return nil, errors.NewConfigError(errors.ErrCodeConfigInvalid, "invalid configuration", result)
	}

	return config, nil
}

// Decode applies the defaults and unmarshals v without validating the
// result.
func Decode(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.NewConfigError(errors.ErrCodeConfigInvalid, "cannot decode configuration", err)
	}

	// Override open if --no-open was given
	if config.Server.NoOpen {
		config.Server.Open = false
	}
	config.Log.Level = strings.ToLower(strings.TrimSpace(config.Log.Level))
	config.Log.Format = strings.ToLower(strings.TrimSpace(config.Log.Format))

	return &config, nil
}
