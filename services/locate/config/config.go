// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the locate configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/AleutianAI/locate/services/locate/lsp"
	"github.com/AleutianAI/locate/services/locate/source"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// EnvConfigPath overrides the default config path.
const EnvConfigPath = "LOCATE_CONFIG"

// ErrInvalidConfig indicates a config file that failed validation.
var ErrInvalidConfig = errors.New("invalid config")

// Config is the contents of locate.yaml.
type Config struct {
	// Name is the source name shown in notices.
	Name string `yaml:"name" validate:"required"`

	// TimeoutMS is the default per-server timeout. Zero or less waits forever.
	TimeoutMS int `yaml:"timeout_ms"`

	// Silent is the default silence level.
	Silent source.Silence `yaml:"silent" validate:"silence"`

	// Highlights are the default highlight groups.
	Highlights source.HighlightGroups `yaml:"highlights"`

	Log       LogConfig          `yaml:"log"`
	Telemetry TelemetryConfig    `yaml:"telemetry"`
	Servers   []lsp.ServerConfig `yaml:"servers" validate:"dive"`
	API       APIConfig          `yaml:"api"`
}

// LogConfig configures pkg/logging.
type LogConfig struct {
	Level string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	JSON  bool   `yaml:"json"`
	Dir   string `yaml:"dir"`
}

// TelemetryConfig selects the OpenTelemetry exporters.
type TelemetryConfig struct {
	TraceExporter  string `yaml:"trace_exporter" validate:"omitempty,oneof=otlp stdout none"`
	MetricExporter string `yaml:"metric_exporter" validate:"omitempty,oneof=prometheus stdout none"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
}

// APIConfig configures `locate serve`.
type APIConfig struct {
	Addr string `yaml:"addr" validate:"required"`

	// RateLimit is the sustained number of gather requests per second.
	// Zero disables rate limiting.
	RateLimit float64 `yaml:"rate_limit" validate:"min=0"`
	Burst     int     `yaml:"burst" validate:"min=0"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Name:       source.DefaultName,
		TimeoutMS:  source.DefaultTimeout,
		Silent:     source.SilenceNone,
		Highlights: source.DefaultHighlights,
		Log:        LogConfig{Level: "info"},
		Telemetry:  TelemetryConfig{TraceExporter: "none", MetricExporter: "none"},
		Servers: []lsp.ServerConfig{
			{Name: "gopls", Command: "gopls", Extensions: []string{".go"}, LanguageID: "go"},
		},
		API: APIConfig{Addr: ":8080", RateLimit: 20, Burst: 40},
	}
}

// DefaultPath returns $LOCATE_CONFIG or ~/.config/locate/locate.yaml.
func DefaultPath() (string, error) {
	if path := os.Getenv(EnvConfigPath); path != "" {
		return path, nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("could not find the user's config directory: %w", err)
	}
	return filepath.Join(dir, "locate", "locate.yaml"), nil
}

// Load reads the config at path, or at DefaultPath when path is empty.
//
// Description:
//
//	Keys missing from the file keep their defaults. A missing file at the
//	default path yields Default(); a missing file given explicitly is an
//	error.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		var err error
		if path, err = DefaultPath(); err != nil {
			return nil, err
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return Default(), nil
		}
		return nil, fmt.Errorf("failed to read the config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates YAML config data over the defaults.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse the config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the config with the query validator.
func (c *Config) Validate() error {
	err := configValidate.Struct(c)
	if err == nil {
		return c.checkServerNames()
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return fmt.Errorf("%w: %s: failed %q", ErrInvalidConfig, verrs[0].Namespace(), verrs[0].Tag())
	}
	return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
}

func (c *Config) checkServerNames() error {
	seen := make(map[string]bool, len(c.Servers))
	for _, s := range c.Servers {
		if seen[s.Name] {
			return fmt.Errorf("%w: duplicate server %q", ErrInvalidConfig, s.Name)
		}
		seen[s.Name] = true
	}
	return nil
}

// Params returns query params carrying the configured defaults.
func (c *Config) Params() source.Params {
	p := source.DefaultParams()
	p.Timeout = c.TimeoutMS
	p.Silent = c.Silent
	p.Highlights = c.Highlights
	return p
}

var configValidate = source.NewValidator()
