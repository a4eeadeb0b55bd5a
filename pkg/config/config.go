// Package config defines the typed configuration surface of a vertexdb
// server process. Loading the file from disk, watching it, and binding
// flags are outside this package's scope; it only parses bytes into a
// validated struct.
package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// TLSConfig mirrors the spec's tls block.
type TLSConfig struct {
	Enabled bool   `yaml:"enabled"`
	Cert    string `yaml:"cert"`
	Key     string `yaml:"key"`
	CA      string `yaml:"ca"`
}

// DiagnosticsConfig mirrors the spec's diagnostics block.
type DiagnosticsConfig struct {
	MonitoringPort   int  `yaml:"monitoring_port"`
	ReportingEnabled bool `yaml:"reporting_enabled"`
}

// Config is the full recognized option set. Fields not listed here are
// rejected by Parse.
type Config struct {
	DataDirectory   string            `yaml:"data_directory"`
	GRPCAddress     string            `yaml:"grpc_address"`
	HTTPEnabled     bool              `yaml:"http_enabled"`
	HTTPAddress     string            `yaml:"http_address"`
	TLS             TLSConfig         `yaml:"tls"`
	Diagnostics     DiagnosticsConfig `yaml:"diagnostics"`
	DevelopmentMode bool              `yaml:"development_mode"`
}

// known holds the top-level field names recognized by Config, used to
// reject unknown options at load time.
var known = map[string]bool{
	"data_directory":   true,
	"grpc_address":     true,
	"http_enabled":     true,
	"http_address":     true,
	"tls":              true,
	"diagnostics":      true,
	"development_mode": true,
}

// Parse decodes YAML bytes into a Config, rejecting any top-level key not
// in the recognized option set.
func Parse(data []byte) (*Config, error) {
	var raw map[string]yaml.Node
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	for key := range raw {
		if !known[key] {
			return nil, fmt.Errorf("parse config: unknown option %q", key)
		}
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Default returns a Config with development-friendly defaults.
func Default() *Config {
	return &Config{
		DataDirectory: "./data",
		GRPCAddress:   "0.0.0.0:1729",
		HTTPEnabled:   false,
		HTTPAddress:   "0.0.0.0:8000",
		Diagnostics: DiagnosticsConfig{
			MonitoringPort:   4104,
			ReportingEnabled: false,
		},
	}
}
