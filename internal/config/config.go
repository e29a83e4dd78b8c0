// Package config holds runtime configuration for the gateway. Precedence is
// defaults, then config file, then environment overrides.
package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds runtime configuration for the gateway.
type Config struct {
	// Listen is the address the API server binds to.
	Listen string `json:"listen" yaml:"listen"`

	// DockerHost overrides the runtime endpoint; empty means the standard
	// environment discovery (DOCKER_HOST et al).
	DockerHost string `json:"docker_host" yaml:"docker_host"`

	LogLevel string `json:"log_level" yaml:"log_level"`
	LogFile  string `json:"log_file" yaml:"log_file"`

	// StopTimeout is how long the runtime waits for a container to exit
	// before killing it.
	StopTimeout time.Duration `json:"stop_timeout" yaml:"stop_timeout"`

	// UpstreamTimeout bounds a single proxied request to a container.
	UpstreamTimeout time.Duration `json:"upstream_timeout" yaml:"upstream_timeout"`

	// ReadinessInterval is the pause between readiness probe attempts;
	// ProbeTimeout bounds each individual attempt.
	ReadinessInterval time.Duration `json:"readiness_interval" yaml:"readiness_interval"`
	ProbeTimeout      time.Duration `json:"probe_timeout" yaml:"probe_timeout"`

	MetricsEnabled bool `json:"metrics_enabled" yaml:"metrics_enabled"`

	// CORSOrigins is the Access-Control-Allow-Origin value for the API.
	CORSOrigins string `json:"cors_origins" yaml:"cors_origins"`
}

// DefaultConfig returns a sane default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:            ":3000",
		LogLevel:          "info",
		StopTimeout:       10 * time.Second,
		UpstreamTimeout:   60 * time.Second,
		ReadinessInterval: 500 * time.Millisecond,
		ProbeTimeout:      2 * time.Second,
		MetricsEnabled:    true,
		CORSOrigins:       "*",
	}
}

// LoadFromFile loads config from a YAML file on top of the defaults.
func LoadFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
