package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// ApplyEnvOverrides reads configuration values from environment variables and
// overrides fields in the provided Config. Returns an error if parsing fails.
//
// Environment variables supported:
// - DOCKGATE_LISTEN (address, e.g. ":3000")
// - DOCKGATE_DOCKER_HOST (e.g. "unix:///var/run/docker.sock")
// - DOCKGATE_LOG_LEVEL ("debug", "info", "warn", "error")
// - DOCKGATE_LOG_FILE (path)
// - DOCKGATE_STOP_TIMEOUT (duration, e.g. "10s")
// - DOCKGATE_UPSTREAM_TIMEOUT (duration, e.g. "60s")
// - DOCKGATE_READINESS_INTERVAL (duration, e.g. "500ms")
// - DOCKGATE_PROBE_TIMEOUT (duration, e.g. "2s")
// - DOCKGATE_METRICS_ENABLED (bool)
// - DOCKGATE_CORS_ORIGINS (string)
func ApplyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("DOCKGATE_LISTEN"); v != "" {
		cfg.Listen = v
	}
	if v := os.Getenv("DOCKGATE_DOCKER_HOST"); v != "" {
		cfg.DockerHost = v
	}
	if v := os.Getenv("DOCKGATE_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("DOCKGATE_LOG_FILE"); v != "" {
		cfg.LogFile = v
	}
	if v := os.Getenv("DOCKGATE_CORS_ORIGINS"); v != "" {
		cfg.CORSOrigins = v
	}
	if err := setDurationEnv("DOCKGATE_STOP_TIMEOUT", &cfg.StopTimeout); err != nil {
		return err
	}
	if err := setDurationEnv("DOCKGATE_UPSTREAM_TIMEOUT", &cfg.UpstreamTimeout); err != nil {
		return err
	}
	if err := setDurationEnv("DOCKGATE_READINESS_INTERVAL", &cfg.ReadinessInterval); err != nil {
		return err
	}
	if err := setDurationEnv("DOCKGATE_PROBE_TIMEOUT", &cfg.ProbeTimeout); err != nil {
		return err
	}
	if err := setBoolEnv("DOCKGATE_METRICS_ENABLED", func(b bool) { cfg.MetricsEnabled = b }); err != nil {
		return err
	}
	return nil
}

func setDurationEnv(env string, dst *time.Duration) error {
	if v := os.Getenv(env); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", env, err)
		}
		*dst = d
	}
	return nil
}

// setBoolEnv is a small helper to parse boolean environment variables
func setBoolEnv(env string, setter func(bool)) error {
	if v := os.Getenv(env); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", env, err)
		}
		setter(b)
	}
	return nil
}
