// Package config provides configuration loading for the canoncore
// validation service.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/loomworks/canoncore/llm"
)

// Config is the complete canoncore configuration.
type Config struct {
	World      WorldConfig      `yaml:"world"`
	Generation GenerationConfig `yaml:"generation"`
	Events     EventsConfig     `yaml:"events"`
	Validation ValidationConfig `yaml:"validation"`
}

// WorldConfig locates the world data on disk.
type WorldConfig struct {
	// SchemaDir holds the template JSON files, scanned recursively.
	SchemaDir string `yaml:"schema_dir"`
	// EntityDir is the root of the entity document store.
	EntityDir string `yaml:"entity_dir"`
	// CurrentStep is the active worldbuilding step.
	CurrentStep int `yaml:"current_step"`
	// CorpusTTL bounds how long the loaded corpus is reused.
	CorpusTTL time.Duration `yaml:"corpus_ttl"`
	// WatchTemplates enables hot-reload of the schema directory.
	WatchTemplates bool `yaml:"watch_templates"`
}

// GenerationConfig configures the generation-service endpoint.
type GenerationConfig struct {
	// Provider selects the adapter: anthropic, ollama, or openai.
	Provider string `yaml:"provider"`
	// Endpoint is the base URL. Empty uses the provider default.
	Endpoint string `yaml:"endpoint"`
	// Model is the model identifier.
	Model string `yaml:"model"`
	// Temperature controls randomness (0.0-1.0).
	Temperature float64 `yaml:"temperature"`
	// MaxTokens limits response length. 0 uses the provider default.
	MaxTokens int `yaml:"max_tokens"`
	// Timeout is the per-request wall clock limit.
	Timeout time.Duration `yaml:"timeout"`
}

// EventsConfig configures the GUI event bus.
type EventsConfig struct {
	// URL is the NATS server URL; empty disables event publishing.
	URL string `yaml:"url"`
}

// ValidationConfig tunes the validation core.
type ValidationConfig struct {
	// MaxRetries bounds the regeneration loop.
	MaxRetries int `yaml:"max_retries"`
	// SimilarityTopN caps similar-claim matches per validation.
	SimilarityTopN int `yaml:"similarity_top_n"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		World: WorldConfig{
			SchemaDir:      "schemas",
			EntityDir:      "entities",
			CurrentStep:    1,
			CorpusTTL:      30 * time.Second,
			WatchTemplates: false,
		},
		Generation: GenerationConfig{
			Provider:    "ollama",
			Endpoint:    "http://localhost:11434/v1",
			Model:       "qwen2.5:14b",
			Temperature: 0.7,
			Timeout:     3 * time.Minute,
		},
		Events: EventsConfig{
			URL: "",
		},
		Validation: ValidationConfig{
			MaxRetries:     3,
			SimilarityTopN: 15,
		},
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.World.SchemaDir == "" {
		return fmt.Errorf("world.schema_dir is required")
	}
	if c.World.EntityDir == "" {
		return fmt.Errorf("world.entity_dir is required")
	}
	if c.World.CurrentStep < 1 {
		return fmt.Errorf("world.current_step must be at least 1")
	}
	if c.Generation.Provider == "" {
		return fmt.Errorf("generation.provider is required")
	}
	if c.Generation.Model == "" {
		return fmt.Errorf("generation.model is required")
	}
	if c.Generation.Temperature < 0 || c.Generation.Temperature > 1 {
		return fmt.Errorf("generation.temperature must be between 0 and 1")
	}
	if c.Validation.MaxRetries < 0 {
		return fmt.Errorf("validation.max_retries must not be negative")
	}
	return nil
}

// Endpoint converts the generation section to a client endpoint.
func (c *Config) Endpoint() llm.EndpointConfig {
	return llm.EndpointConfig{
		Provider:  c.Generation.Provider,
		URL:       c.Generation.Endpoint,
		Model:     c.Generation.Model,
		MaxTokens: c.Generation.MaxTokens,
	}
}

// LoadFromFile loads configuration from a YAML file layered over the
// defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile writes the configuration as YAML, creating parent
// directories as needed.
func (c *Config) SaveToFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	return nil
}

// Merge overlays another config; non-zero values in other win.
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	if other.World.SchemaDir != "" {
		c.World.SchemaDir = other.World.SchemaDir
	}
	if other.World.EntityDir != "" {
		c.World.EntityDir = other.World.EntityDir
	}
	if other.World.CurrentStep != 0 {
		c.World.CurrentStep = other.World.CurrentStep
	}
	if other.World.CorpusTTL != 0 {
		c.World.CorpusTTL = other.World.CorpusTTL
	}
	if other.World.WatchTemplates {
		c.World.WatchTemplates = true
	}

	if other.Generation.Provider != "" {
		c.Generation.Provider = other.Generation.Provider
	}
	if other.Generation.Endpoint != "" {
		c.Generation.Endpoint = other.Generation.Endpoint
	}
	if other.Generation.Model != "" {
		c.Generation.Model = other.Generation.Model
	}
	if other.Generation.Temperature != 0 {
		c.Generation.Temperature = other.Generation.Temperature
	}
	if other.Generation.MaxTokens != 0 {
		c.Generation.MaxTokens = other.Generation.MaxTokens
	}
	if other.Generation.Timeout != 0 {
		c.Generation.Timeout = other.Generation.Timeout
	}

	if other.Events.URL != "" {
		c.Events.URL = other.Events.URL
	}

	if other.Validation.MaxRetries != 0 {
		c.Validation.MaxRetries = other.Validation.MaxRetries
	}
	if other.Validation.SimilarityTopN != 0 {
		c.Validation.SimilarityTopN = other.Validation.SimilarityTopN
	}
}
