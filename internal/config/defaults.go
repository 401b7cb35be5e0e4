package config

// Config holds all application configuration values.
// Defaults are set in DefaultConfig() and can be overridden via dotfile.
// NOTE: Values in config files override defaults, including explicit zero values.
// Missing keys are left at their default values.
type Config struct {
	Orchestrator OrchestratorConfig `json:"orchestrator"`
	Provider     ProviderConfig     `json:"provider"`
	Ledger       LedgerConfig       `json:"ledger"`
	Notify       NotifyConfig       `json:"notify"`
	Telemetry    TelemetryConfig    `json:"telemetry"`
	Log          LogConfig          `json:"log"`
	Agents       AgentsConfig       `json:"agents"`
}

type OrchestratorConfig struct {
	// Used when an agent definition leaves max_iterations unset.
	DefaultMaxIterations int `json:"default_max_iterations"` // Default: 20

	// Per model call. A timeout here is a provider failure and is recorded.
	ModelTimeoutMs int `json:"model_timeout_ms"` // Default: 60000

	// Whole run. A run exceeding this is abandoned and nothing is recorded.
	RunTimeoutMs int `json:"run_timeout_ms"` // Default: 300000
}

type ProviderConfig struct {
	Name              string  `json:"name"`                // Default: "gemini"
	Model             string  `json:"model"`               // Default: "gemini-2.5-flash"
	APIKeyEnv         string  `json:"api_key_env"`         // Default: "GEMINI_API_KEY"
	RequestsPerSecond float64 `json:"requests_per_second"` // Default: 2
	Burst             int     `json:"burst"`               // Default: 4
}

type LedgerConfig struct {
	Driver string `json:"driver"` // "sqlite" or "postgres"
	DSN    string `json:"dsn"`
}

type NotifyConfig struct {
	RedisAddr     string `json:"redis_addr"` // Empty disables notifications
	RedisPassword string `json:"redis_password"`
	RedisDB       int    `json:"redis_db"`
	RedisChannel  string `json:"redis_channel"` // Default: "propagent.decisions"
}

type TelemetryConfig struct {
	Enabled      bool   `json:"enabled"`
	OTLPEndpoint string `json:"otlp_endpoint"` // Default: "localhost:4317"
	ServiceName  string `json:"service_name"`  // Default: "propagent"
	Insecure     bool   `json:"insecure"`
}

type LogConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // text or json
}

type AgentsConfig struct {
	// Optional YAML file adding or overriding personas.
	DefinitionsFile string `json:"definitions_file"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Orchestrator: OrchestratorConfig{
			DefaultMaxIterations: 20,
			ModelTimeoutMs:       60_000,
			RunTimeoutMs:         300_000,
		},
		Provider: ProviderConfig{
			Name:              "gemini",
			Model:             "gemini-2.5-flash",
			APIKeyEnv:         "GEMINI_API_KEY",
			RequestsPerSecond: 2,
			Burst:             4,
		},
		Ledger: LedgerConfig{
			Driver: "sqlite",
			DSN:    "file:propagent.db?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)",
		},
		Notify: NotifyConfig{
			RedisChannel: "propagent.decisions",
		},
		Telemetry: TelemetryConfig{
			Enabled:      false,
			OTLPEndpoint: "localhost:4317",
			ServiceName:  "propagent",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}
