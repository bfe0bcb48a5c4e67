package registry

import (
	"errors"
	"reflect"
	"testing"

	"chatgateway/internal/domain"
)

func TestProvidersOrder(t *testing.T) {
	r := New(Overrides{})

	want := []string{ProviderOpenAI, ProviderAnthropic, ProviderDeepSeek, ProviderGemini, ProviderMistral}
	if got := r.Providers(); !reflect.DeepEqual(got, want) {
		t.Errorf("Providers() = %v, want %v", got, want)
	}
}

func TestLookup(t *testing.T) {
	r := New(Overrides{})

	desc, err := r.Lookup(ProviderAnthropic)
	if err != nil {
		t.Fatalf("Lookup(anthropic): %v", err)
	}
	if desc.BaseURL != "https://api.anthropic.com/v1" {
		t.Errorf("BaseURL = %q", desc.BaseURL)
	}

	_, err = r.Lookup("cohere")
	if !errors.Is(err, domain.ErrUnsupportedProvider) {
		t.Errorf("Lookup(cohere) error = %v, want ErrUnsupportedProvider", err)
	}
}

func TestLookupBaseURLOverride(t *testing.T) {
	r := New(Overrides{BaseURLs: map[string]string{
		ProviderOpenAI: "http://localhost:9999/v1",
	}})

	desc, err := r.Lookup(ProviderOpenAI)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if desc.BaseURL != "http://localhost:9999/v1" {
		t.Errorf("BaseURL = %q, want override applied", desc.BaseURL)
	}

	// Other providers keep their defaults.
	other, _ := r.Lookup(ProviderMistral)
	if other.BaseURL != "https://api.mistral.ai/v1" {
		t.Errorf("mistral BaseURL = %q", other.BaseURL)
	}
}

func TestResolveModel(t *testing.T) {
	r := New(Overrides{})

	tests := []struct {
		name     string
		provider string
		alias    string
		want     string
	}{
		{"alias maps to literal id", ProviderAnthropic, "claude-3-5-sonnet", "claude-3-5-sonnet-20241022"},
		{"literal id is idempotent", ProviderAnthropic, "claude-3-5-sonnet-20241022", "claude-3-5-sonnet-20241022"},
		{"identity alias", ProviderOpenAI, "gpt-4o", "gpt-4o"},
		{"mistral dated alias", ProviderMistral, "mistral-small", "mistral-small-latest"},
		{"uncatalogued value passes through", ProviderOpenAI, "gpt-5-preview", "gpt-5-preview"},
		{"unknown provider passes through", "cohere", "command-r", "command-r"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := r.ResolveModel(tt.provider, tt.alias); got != tt.want {
				t.Errorf("ResolveModel(%q, %q) = %q, want %q", tt.provider, tt.alias, got, tt.want)
			}
		})
	}
}

func TestModelAliases(t *testing.T) {
	r := New(Overrides{})

	tests := []struct {
		provider string
		want     []string
	}{
		// openai and anthropic expose alias keys.
		{ProviderOpenAI, []string{"gpt-4o", "gpt-4o-mini", "gpt-4-turbo", "gpt-3.5-turbo", "o3-mini"}},
		{ProviderAnthropic, []string{"claude-3-5-sonnet", "claude-3-5-haiku", "claude-3-opus", "claude-3-haiku"}},
		// The rest expose literal ids.
		{ProviderMistral, []string{"mistral-small-latest", "mistral-large-latest", "open-mistral-7b"}},
		{ProviderDeepSeek, []string{"deepseek-chat", "deepseek-reasoner"}},
	}

	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			if got := r.ModelAliases(tt.provider); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ModelAliases(%q) = %v, want %v", tt.provider, got, tt.want)
			}
		})
	}
}

func TestModelAliasesUnknownProvider(t *testing.T) {
	r := New(Overrides{})

	got := r.ModelAliases("cohere")
	if got == nil || len(got) != 0 {
		t.Errorf("ModelAliases(cohere) = %#v, want empty non-nil slice", got)
	}
}
