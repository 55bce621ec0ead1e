// Package config loads the command-line tool's settings from a YAML file
// and SANDBOX_* environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/viper"

	"github.com/cryguy/sandbox/internal/core"
)

type LimitsConfig struct {
	Timeout          time.Duration `mapstructure:"timeout"`
	Memory           string        `mapstructure:"memory"` // e.g. "256MiB"
	PollInterval     time.Duration `mapstructure:"poll_interval"`
	MaxOutputBytes   int           `mapstructure:"max_output_bytes"`
	MaxSurfacePixels int           `mapstructure:"max_surface_pixels"`
	MaxIterItems     int           `mapstructure:"max_iter_items"`
	MaxTimers        int           `mapstructure:"max_timers"`
	InlineLimit      int           `mapstructure:"inline_limit"`
	SkipReclaim      bool          `mapstructure:"skip_reclaim"`
}

type ServerConfig struct {
	Addr          string `mapstructure:"addr"`
	MaxConcurrent int    `mapstructure:"max_concurrent"` // runs in flight per connection
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // text or json
}

type Config struct {
	Limits LimitsConfig `mapstructure:"limits"`
	Server ServerConfig `mapstructure:"server"`
	Log    LogConfig    `mapstructure:"log"`
}

// Load reads path, or sandbox.yaml from the working directory or
// $HOME/.sandbox when path is empty. A missing default file is not an
// error; a missing explicit one is.
func Load(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("sandbox")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.sandbox")
	}
	v.SetEnvPrefix("SANDBOX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("limits.timeout", core.DefaultTimeout)
	v.SetDefault("limits.memory", humanize.IBytes(core.DefaultMemoryCeiling))
	v.SetDefault("limits.poll_interval", core.DefaultPollInterval)
	v.SetDefault("limits.max_output_bytes", core.DefaultMaxOutputBytes)
	v.SetDefault("limits.max_surface_pixels", core.DefaultMaxSurfacePixels)
	v.SetDefault("limits.max_iter_items", core.DefaultMaxIterItems)
	v.SetDefault("limits.max_timers", core.DefaultMaxTimers)
	v.SetDefault("limits.inline_limit", core.DefaultInlineLimit)
	v.SetDefault("limits.skip_reclaim", false)
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.max_concurrent", 4)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if _, err := cfg.Limits.MemoryBytes(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// MemoryBytes parses Memory.
func (l LimitsConfig) MemoryBytes() (uint64, error) {
	n, err := humanize.ParseBytes(l.Memory)
	if err != nil {
		return 0, fmt.Errorf("parsing limits.memory %q: %w", l.Memory, err)
	}
	return n, nil
}

// Core converts the limits to the sandbox configuration.
func (l LimitsConfig) Core() core.Config {
	mem, _ := l.MemoryBytes()
	return core.Config{
		Timeout:          l.Timeout,
		MemoryCeiling:    mem,
		PollInterval:     l.PollInterval,
		MaxOutputBytes:   l.MaxOutputBytes,
		MaxSurfacePixels: l.MaxSurfacePixels,
		MaxIterItems:     l.MaxIterItems,
		MaxTimers:        l.MaxTimers,
		InlineLimit:      l.InlineLimit,
		SkipReclaim:      l.SkipReclaim,
	}.WithDefaults()
}

// Logger builds the process logger.
func (l LogConfig) Logger() (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return nil, fmt.Errorf("parsing log.level: %w", err)
	}
	opts := &slog.HandlerOptions{Level: level}
	switch l.Format {
	case "", "text":
		return slog.New(slog.NewTextHandler(os.Stderr, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(os.Stderr, opts)), nil
	default:
		return nil, fmt.Errorf("unknown log.format %q", l.Format)
	}
}
