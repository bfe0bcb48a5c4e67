package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != defaultPort {
		t.Errorf("port = %d, want %d", cfg.Server.Port, defaultPort)
	}
	if cfg.Stream.SimulatedChunkInterval != defaultChunkInterval {
		t.Errorf("interval = %s, want %s", cfg.Stream.SimulatedChunkInterval, defaultChunkInterval)
	}
}

func TestLoadYAMLFile(t *testing.T) {
	path := writeConfigFile(t, `
server:
  port: 9090
stream:
  simulated_chunk_interval: 25ms
providers:
  openai:
    api_key: file-key
    base_url: http://localhost:4000/v1
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
	if cfg.Stream.SimulatedChunkInterval != 25*time.Millisecond {
		t.Errorf("interval = %s", cfg.Stream.SimulatedChunkInterval)
	}
	if cfg.Providers.OpenAI.APIKey != "file-key" {
		t.Errorf("openai api key = %q", cfg.Providers.OpenAI.APIKey)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := writeConfigFile(t, `
server:
  port: 9090
providers:
  openai:
    api_key: file-key
`)
	t.Setenv("PORT", "7070")
	t.Setenv("OPENAI_API_KEY", "env-key")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("port = %d, want env override to win", cfg.Server.Port)
	}
	if cfg.Providers.OpenAI.APIKey != "env-key" {
		t.Errorf("openai api key = %q, want env override to win", cfg.Providers.OpenAI.APIKey)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestValidateCollectsAllProblems(t *testing.T) {
	cfg := Config{
		Server: ServerConfig{Port: -1},
		Stream: StreamConfig{SimulatedChunkInterval: -time.Second},
		Providers: ProvidersConfig{
			Gemini: ProviderConfig{BaseURL: "ftp://example.com"},
		},
	}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	msg := err.Error()
	for _, want := range []string{"server.port", "simulated_chunk_interval", "gemini"} {
		if !strings.Contains(msg, want) {
			t.Errorf("error %q missing mention of %s", msg, want)
		}
	}
}

func TestBaseURLOverrides(t *testing.T) {
	cfg := Config{
		Providers: ProvidersConfig{
			OpenAI:  ProviderConfig{BaseURL: "http://localhost:4000/v1"},
			Mistral: ProviderConfig{APIKey: "key-only"},
		},
	}

	overrides := cfg.BaseURLOverrides()
	if len(overrides) != 1 {
		t.Fatalf("overrides = %v, want only configured URLs", overrides)
	}
	if overrides["openai"] != "http://localhost:4000/v1" {
		t.Errorf("openai override = %q", overrides["openai"])
	}
}
