// Package config loads engine settings with koanf.
//
// Settings are layered: built-in defaults, then an optional YAML file, then EYESCAN_* environment
// variables (EYESCAN_SHOW_PROGRESS=false sets show_progress).
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	eyescan "github.com/arloliu/go-eyescan"
	"github.com/arloliu/go-eyescan/internal/dispatch"
	"github.com/arloliu/go-eyescan/logger"
	"github.com/arloliu/go-eyescan/scan"
	"github.com/arloliu/go-eyescan/scandata"
	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	yml "gopkg.in/yaml.v2"
)

// EnvPrefix is the prefix of the environment variables read by Load.
const EnvPrefix = "EYESCAN_"

// Config is the file and environment form of the engine settings.
type Config struct {
	LogLevel         string        `koanf:"log_level"`
	ShowProgress     bool          `koanf:"show_progress"`
	ProgressInterval time.Duration `koanf:"progress_interval"`
	RefreshRetry     time.Duration `koanf:"refresh_retry"`
	OpenAreaMode     string        `koanf:"open_area_mode"`
	ParkedEventLimit int           `koanf:"parked_event_limit"`
	CloseTimeout     time.Duration `koanf:"close_timeout"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		LogLevel:         "info",
		ShowProgress:     true,
		ProgressInterval: scan.DefaultProgressInterval,
		RefreshRetry:     0,
		OpenAreaMode:     scandata.MaskArea.String(),
		ParkedEventLimit: dispatch.DefaultParkedLimit,
		CloseTimeout:     3 * time.Second,
	}
}

// Load reads the settings. path names an optional YAML file; an empty path or a missing file leaves
// the defaults in place.
func Load(path string) (Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return Config{}, fmt.Errorf("load defaults: %w", err)
	}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return Config{}, fmt.Errorf("load config %s: %w", path, err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("stat config %s: %w", path, err)
		}
	}

	err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	}), nil)
	if err != nil {
		return Config{}, fmt.Errorf("load environment: %w", err)
	}

	var c Config
	if err := k.Unmarshal("", &c); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	return c, c.Validate()
}

// Validate checks the values that the engine options do not check themselves.
func (c Config) Validate() error {
	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: log_level: %w", eyescan.ErrInvalidOption, err)
	}
	if _, err := scandata.ParseOpenAreaMode(c.OpenAreaMode); err != nil {
		return fmt.Errorf("%w: open_area_mode: %w", eyescan.ErrInvalidOption, err)
	}

	return nil
}

// Options converts the settings into engine options. The logger is created at the configured level.
func (c Config) Options() ([]eyescan.Option, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	level, _ := logger.ParseLevel(c.LogLevel)
	mode, _ := scandata.ParseOpenAreaMode(c.OpenAreaMode)

	return []eyescan.Option{
		eyescan.WithLogger(logger.NewSlog(level, false)),
		eyescan.WithShowProgress(c.ShowProgress),
		eyescan.WithProgressInterval(c.ProgressInterval),
		eyescan.WithRefreshRetry(c.RefreshRetry),
		eyescan.WithOpenAreaMode(mode),
		eyescan.WithParkedEventLimit(c.ParkedEventLimit),
		eyescan.WithCloseTimeout(c.CloseTimeout),
	}, nil
}

// document is the YAML layout written by Write, with durations in their text form.
type document struct {
	LogLevel         string `yaml:"log_level"`
	ShowProgress     bool   `yaml:"show_progress"`
	ProgressInterval string `yaml:"progress_interval"`
	RefreshRetry     string `yaml:"refresh_retry"`
	OpenAreaMode     string `yaml:"open_area_mode"`
	ParkedEventLimit int    `yaml:"parked_event_limit"`
	CloseTimeout     string `yaml:"close_timeout"`
}

// Write encodes c as YAML in the layout Load reads.
func Write(w io.Writer, c Config) error {
	doc := document{
		LogLevel:         c.LogLevel,
		ShowProgress:     c.ShowProgress,
		ProgressInterval: c.ProgressInterval.String(),
		RefreshRetry:     c.RefreshRetry.String(),
		OpenAreaMode:     c.OpenAreaMode,
		ParkedEventLimit: c.ParkedEventLimit,
		CloseTimeout:     c.CloseTimeout.String(),
	}

	return yml.NewEncoder(w).Encode(doc)
}
