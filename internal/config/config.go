// Package config loads the shell's settings from a YAML file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// FileName is the name of the configuration file within the
// configuration directory.
const FileName = "config.yaml"

// Config holds the shell's settings.
type Config struct {
	// Prompt is the format of the interactive prompt. It may contain
	// one `%d` verb, which is replaced by the line number.
	Prompt string `yaml:"prompt" validate:"max=256"`

	// JobControl runs each pipeline in its own foreground process
	// group when the shell is interactive.
	JobControl bool `yaml:"job_control"`

	// Color colors the prompt and the shell's own diagnostics.
	Color bool `yaml:"color"`

	LogLevel  string `yaml:"log_level" validate:"oneof=debug info warn error"`
	LogFormat string `yaml:"log_format" validate:"oneof=text json"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Prompt:     "%d: ",
		JobControl: true,
		Color:      true,
		LogLevel:   "warn",
		LogFormat:  "text",
	}
}

// DefaultPath returns the path of the configuration file that is read
// if none is specified: `$XDG_CONFIG_HOME/psh/config.yaml`, or
// `~/.config/psh/config.yaml`.
func DefaultPath() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, _ := os.UserHomeDir()
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "psh", FileName)
}

// Load reads the configuration from `path` in `fs`. If `path` is
// empty, the default path is used, and it is not an error if that
// file doesn't exist.
func Load(fs afero.Fs, path string) (*Config, error) {
	required := path != ""
	if !required {
		path = DefaultPath()
	}

	data, err := afero.ReadFile(fs, path)
	if err != nil {
		if !required && errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg, err := Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse reads a configuration from `r`. Settings that `r` doesn't
// mention keep their default values. Unknown settings are an error.
func Parse(r io.Reader) (*Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for semantic errors.
func (c *Config) Validate() error {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		return strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
	})

	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if strings.Count(c.Prompt, "%") > 1 || (strings.Contains(c.Prompt, "%") && !strings.Contains(c.Prompt, "%d")) {
		return fmt.Errorf("invalid config: prompt %q must contain at most one %%d verb", c.Prompt)
	}
	return nil
}

// Level returns the configured log level.
func (c *Config) Level() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelWarn
	}
	return level
}

// NewLogger returns a logger that writes records at or above the
// configured level to `w`, in the configured format.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.Level()}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
