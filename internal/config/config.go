// Package config holds the run configuration for a validation run:
// embedding provider, tier thresholds, session policy, sweep
// parameters, and output locations. Configuration is YAML on disk
// with environment-variable overrides for credentials.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"pabench/internal/embedding"
	"pabench/internal/forensic"
	"pabench/internal/tier"
)

// Config holds all pabench configuration.
type Config struct {
	// Embedding provider configuration
	Embedding embedding.Config `yaml:"embedding"`

	// Tier classification thresholds
	Thresholds tier.Thresholds `yaml:"thresholds"`

	// Validation run settings
	Validation ValidationConfig `yaml:"validation"`

	// Threshold-sensitivity sweep settings
	Sweep SweepConfig `yaml:"sweep"`

	// Output settings
	Output OutputConfig `yaml:"output"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// ValidationConfig configures the session protocol for a run.
type ValidationConfig struct {
	Mode            string `yaml:"mode"`         // adversarial, contrastive
	PrivacyMode     string `yaml:"privacy_mode"` // full, hashed, deltas_only
	Limit           int    `yaml:"limit"`        // 0 = all items
	StoreEmbeddings bool   `yaml:"store_embeddings"`
	Concurrency     int    `yaml:"concurrency"` // parallel benchmark sessions
}

// SweepConfig configures the threshold-sensitivity sweep.
type SweepConfig struct {
	Candidates []float64 `yaml:"candidates"`
	Tier2Gap   float64   `yaml:"tier2_gap"`
}

// OutputConfig configures where run artifacts land.
type OutputConfig struct {
	Dir      string `yaml:"dir"`
	TraceDir string `yaml:"trace_dir"` // defaults to Dir when empty
	Store    bool   `yaml:"store"`     // persist sessions to SQLite
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Embedding:  embedding.DefaultConfig(),
		Thresholds: tier.DefaultThresholds(),

		Validation: ValidationConfig{
			Mode:        string(tier.ModeAdversarial),
			PrivacyMode: string(forensic.PrivacyFull),
			Concurrency: 1,
		},

		Sweep: SweepConfig{
			Candidates: nil, // runner falls back to the standard candidate set
			Tier2Gap:   0,
		},

		Output: OutputConfig{
			Dir:   "results",
			Store: true,
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields
// the defaults rather than an error, so a bare invocation works
// against a local Ollama.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Validate rejects configurations that would make a run meaningless.
func (c *Config) Validate() error {
	if c.Thresholds.Tier2 > c.Thresholds.Tier1 {
		return fmt.Errorf("invalid thresholds: tier2 (%.3f) must not exceed tier1 (%.3f)",
			c.Thresholds.Tier2, c.Thresholds.Tier1)
	}
	switch tier.Mode(c.Validation.Mode) {
	case tier.ModeAdversarial, tier.ModeContrastive:
	default:
		return fmt.Errorf("unknown validation mode %q", c.Validation.Mode)
	}
	if c.Validation.Concurrency < 0 {
		return fmt.Errorf("concurrency must be non-negative")
	}
	return nil
}

// applyEnvOverrides lets credentials and endpoints come from the
// environment so they never have to live in a checked-in YAML file.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("PABENCH_GENAI_API_KEY"); v != "" {
		c.Embedding.GenAIAPIKey = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" && c.Embedding.GenAIAPIKey == "" {
		c.Embedding.GenAIAPIKey = v
	}
	if v := os.Getenv("PABENCH_OLLAMA_ENDPOINT"); v != "" {
		c.Embedding.OllamaEndpoint = v
	}
	if v := os.Getenv("PABENCH_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}
