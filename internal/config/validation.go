package config

import (
	"fmt"
	"strings"
)

// Validate checks config values for correctness.
// Returns an error listing every violated constraint.
func (c *Config) Validate() error {
	var errs []string

	// Orchestrator
	if c.Orchestrator.DefaultMaxIterations < 1 {
		errs = append(errs, "orchestrator.default_max_iterations must be >= 1")
	}
	if c.Orchestrator.ModelTimeoutMs < 1 {
		errs = append(errs, "orchestrator.model_timeout_ms must be >= 1")
	}
	if c.Orchestrator.RunTimeoutMs < 1 {
		errs = append(errs, "orchestrator.run_timeout_ms must be >= 1")
	}
	if c.Orchestrator.RunTimeoutMs < c.Orchestrator.ModelTimeoutMs {
		errs = append(errs, "orchestrator.run_timeout_ms must be >= orchestrator.model_timeout_ms")
	}

	// Provider
	if c.Provider.Name != "gemini" {
		errs = append(errs, fmt.Sprintf("provider.name %q is not supported", c.Provider.Name))
	}
	if strings.TrimSpace(c.Provider.Model) == "" {
		errs = append(errs, "provider.model must not be empty")
	}
	if c.Provider.RequestsPerSecond <= 0 {
		errs = append(errs, "provider.requests_per_second must be > 0")
	}
	if c.Provider.Burst < 1 {
		errs = append(errs, "provider.burst must be >= 1")
	}

	// Ledger
	switch c.Ledger.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Sprintf("ledger.driver %q must be sqlite or postgres", c.Ledger.Driver))
	}
	if strings.TrimSpace(c.Ledger.DSN) == "" {
		errs = append(errs, "ledger.dsn must not be empty")
	}

	// Notify
	if c.Notify.RedisAddr != "" && c.Notify.RedisChannel == "" {
		errs = append(errs, "notify.redis_channel must be set when notify.redis_addr is set")
	}
	if c.Notify.RedisDB < 0 {
		errs = append(errs, "notify.redis_db must be >= 0")
	}

	// Telemetry
	if c.Telemetry.Enabled && c.Telemetry.OTLPEndpoint == "" {
		errs = append(errs, "telemetry.otlp_endpoint must be set when telemetry is enabled")
	}

	// Log
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("log.level %q must be debug, info, warn or error", c.Log.Level))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Sprintf("log.format %q must be text or json", c.Log.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed: %v", errs)
	}

	return nil
}
