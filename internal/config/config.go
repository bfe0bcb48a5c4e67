// Package config loads gateway configuration from an optional YAML file with
// environment variable overrides. API key values are never logged.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v9"
	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"
)

const (
	defaultPort          = 8080
	defaultChunkInterval = 50 * time.Millisecond
)

// Config represents the full application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Auth      AuthConfig      `yaml:"auth"`
	Database  DatabaseConfig  `yaml:"database"`
	Stream    StreamConfig    `yaml:"stream"`
	Providers ProvidersConfig `yaml:"providers"`
}

// ServerConfig defines listener configuration.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// AuthConfig holds the JWT signing secret. An empty secret disables
// authentication (dev mode).
type AuthConfig struct {
	Secret string `yaml:"secret"`
}

// DatabaseConfig holds the Postgres connection string. An empty URL disables
// conversation persistence.
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// StreamConfig tunes streaming behaviour.
type StreamConfig struct {
	// SimulatedChunkInterval paces chunks for providers without native
	// streaming.
	SimulatedChunkInterval time.Duration `yaml:"simulated_chunk_interval"`
}

// ProviderConfig captures per-provider credentials and optional endpoint
// override.
type ProviderConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

// ProvidersConfig catalogues the fixed provider set.
type ProvidersConfig struct {
	OpenAI    ProviderConfig `yaml:"openai"`
	Anthropic ProviderConfig `yaml:"anthropic"`
	DeepSeek  ProviderConfig `yaml:"deepseek"`
	Gemini    ProviderConfig `yaml:"gemini"`
	Mistral   ProviderConfig `yaml:"mistral"`
}

// envOverrides mirrors the settings that may come from the environment.
// Environment values win over the YAML file.
type envOverrides struct {
	Port                   int           `env:"PORT"`
	AuthSecret             string        `env:"AUTH_SECRET"`
	DatabaseURL            string        `env:"DATABASE_URL"`
	SimulatedChunkInterval time.Duration `env:"SIMULATED_CHUNK_INTERVAL"`
	OpenAIKey              string        `env:"OPENAI_API_KEY"`
	AnthropicKey           string        `env:"ANTHROPIC_API_KEY"`
	DeepSeekKey            string        `env:"DEEPSEEK_API_KEY"`
	GeminiKey              string        `env:"GEMINI_API_KEY"`
	MistralKey             string        `env:"MISTRAL_API_KEY"`
}

// Load reads configuration from the YAML file at path (skipped when path is
// empty), applies environment overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := Config{
		Server: ServerConfig{Port: defaultPort},
		Stream: StreamConfig{SimulatedChunkInterval: defaultChunkInterval},
	}

	if path != "" {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return Config{}, fmt.Errorf("resolve config path: %w", err)
		}

		data, err := os.ReadFile(absPath)
		if err != nil {
			return Config{}, fmt.Errorf("read config file %q: %w", absPath, err)
		}

		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %q: %w", absPath, err)
		}
	}

	var overrides envOverrides
	if err := env.Parse(&overrides); err != nil {
		return Config{}, fmt.Errorf("parse env config: %w", err)
	}
	cfg.apply(overrides)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) apply(o envOverrides) {
	if o.Port != 0 {
		c.Server.Port = o.Port
	}
	if o.AuthSecret != "" {
		c.Auth.Secret = o.AuthSecret
	}
	if o.DatabaseURL != "" {
		c.Database.URL = o.DatabaseURL
	}
	if o.SimulatedChunkInterval != 0 {
		c.Stream.SimulatedChunkInterval = o.SimulatedChunkInterval
	}
	if o.OpenAIKey != "" {
		c.Providers.OpenAI.APIKey = o.OpenAIKey
	}
	if o.AnthropicKey != "" {
		c.Providers.Anthropic.APIKey = o.AnthropicKey
	}
	if o.DeepSeekKey != "" {
		c.Providers.DeepSeek.APIKey = o.DeepSeekKey
	}
	if o.GeminiKey != "" {
		c.Providers.Gemini.APIKey = o.GeminiKey
	}
	if o.MistralKey != "" {
		c.Providers.Mistral.APIKey = o.MistralKey
	}
}

// Validate checks the configuration, collecting every problem rather than
// stopping at the first.
func (c Config) Validate() error {
	var result *multierror.Error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		result = multierror.Append(result, fmt.Errorf("server.port must be a valid TCP port, got %d", c.Server.Port))
	}
	if c.Stream.SimulatedChunkInterval < 0 {
		result = multierror.Append(result, fmt.Errorf("stream.simulated_chunk_interval must not be negative, got %s", c.Stream.SimulatedChunkInterval))
	}

	for name, provider := range c.providerMap() {
		if provider.BaseURL == "" {
			continue
		}
		parsed, err := url.Parse(provider.BaseURL)
		if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
			result = multierror.Append(result, fmt.Errorf("provider %s: base_url %q must be an http(s) URL", name, provider.BaseURL))
		}
	}

	return result.ErrorOrNil()
}

func (c Config) providerMap() map[string]ProviderConfig {
	return map[string]ProviderConfig{
		"openai":    c.Providers.OpenAI,
		"anthropic": c.Providers.Anthropic,
		"deepseek":  c.Providers.DeepSeek,
		"gemini":    c.Providers.Gemini,
		"mistral":   c.Providers.Mistral,
	}
}

// BaseURLOverrides returns the configured per-provider base URL overrides,
// keyed by provider name. Empty overrides are omitted.
func (c Config) BaseURLOverrides() map[string]string {
	out := make(map[string]string)
	for name, provider := range c.providerMap() {
		if provider.BaseURL != "" {
			out[name] = provider.BaseURL
		}
	}
	return out
}
