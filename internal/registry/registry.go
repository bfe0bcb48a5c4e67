// Package registry holds the static table of known providers and their model
// alias catalogues. The table is built once at startup and never mutated.
package registry

import "chatgateway/internal/domain"

// Provider names form a fixed, closed set.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderDeepSeek  = "deepseek"
	ProviderGemini    = "gemini"
	ProviderMistral   = "mistral"
)

// ModelAlias binds a human-friendly alias to the literal model id the
// provider's API expects. The alias may equal the literal id.
type ModelAlias struct {
	Alias string
	ID    string
}

// Descriptor captures the immutable routing facts for one provider.
// listAliasKeys controls what ModelAliases exposes: openai and anthropic
// historically listed alias keys while the remaining providers listed
// literal ids, and the surface keeps that behaviour for API compatibility.
type Descriptor struct {
	Name          string
	BaseURL       string
	Aliases       []ModelAlias
	listAliasKeys bool
}

// Registry is the process-wide provider table. It is read-only after New.
type Registry struct {
	order       []string
	descriptors map[string]Descriptor
	byAlias     map[string]map[string]string
	literalIDs  map[string]map[string]struct{}
}

// Overrides optionally replaces the built-in base URL per provider.
// Empty values keep the default.
type Overrides struct {
	BaseURLs map[string]string
}

// New builds the registry from the built-in provider table, applying any
// base-URL overrides from configuration.
func New(overrides Overrides) *Registry {
	r := &Registry{
		descriptors: make(map[string]Descriptor),
		byAlias:     make(map[string]map[string]string),
		literalIDs:  make(map[string]map[string]struct{}),
	}

	for _, desc := range defaultDescriptors() {
		if url, ok := overrides.BaseURLs[desc.Name]; ok && url != "" {
			desc.BaseURL = url
		}

		r.order = append(r.order, desc.Name)
		r.descriptors[desc.Name] = desc

		aliasMap := make(map[string]string, len(desc.Aliases))
		idSet := make(map[string]struct{}, len(desc.Aliases))
		for _, alias := range desc.Aliases {
			aliasMap[alias.Alias] = alias.ID
			idSet[alias.ID] = struct{}{}
		}
		r.byAlias[desc.Name] = aliasMap
		r.literalIDs[desc.Name] = idSet
	}

	return r
}

// Lookup returns the descriptor for a provider name.
func (r *Registry) Lookup(provider string) (Descriptor, error) {
	desc, ok := r.descriptors[provider]
	if !ok {
		return Descriptor{}, domain.ErrUnsupportedProvider
	}
	return desc, nil
}

// ResolveModel maps an alias to the provider's literal model id. A value
// that is already a catalogued literal id is returned unchanged, and an
// uncatalogued value passes through verbatim so callers may use provider
// model ids the table does not know about.
func (r *Registry) ResolveModel(provider, alias string) string {
	if _, ok := r.literalIDs[provider][alias]; ok {
		return alias
	}
	if id, ok := r.byAlias[provider][alias]; ok {
		return id
	}
	return alias
}

// Providers returns the provider names in registration order.
func (r *Registry) Providers() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// ModelAliases returns the catalogued model names for a provider, in
// registration order. For openai and anthropic these are alias keys; other
// providers expose literal ids. An unknown provider yields an empty slice.
func (r *Registry) ModelAliases(provider string) []string {
	desc, ok := r.descriptors[provider]
	if !ok {
		return []string{}
	}

	out := make([]string, 0, len(desc.Aliases))
	for _, alias := range desc.Aliases {
		if desc.listAliasKeys {
			out = append(out, alias.Alias)
		} else {
			out = append(out, alias.ID)
		}
	}
	return out
}

func defaultDescriptors() []Descriptor {
	return []Descriptor{
		{
			Name:    ProviderOpenAI,
			BaseURL: "https://api.openai.com/v1",
			Aliases: []ModelAlias{
				{Alias: "gpt-4o", ID: "gpt-4o"},
				{Alias: "gpt-4o-mini", ID: "gpt-4o-mini"},
				{Alias: "gpt-4-turbo", ID: "gpt-4-turbo"},
				{Alias: "gpt-3.5-turbo", ID: "gpt-3.5-turbo"},
				{Alias: "o3-mini", ID: "o3-mini"},
			},
			listAliasKeys: true,
		},
		{
			Name:    ProviderAnthropic,
			BaseURL: "https://api.anthropic.com/v1",
			Aliases: []ModelAlias{
				{Alias: "claude-3-5-sonnet", ID: "claude-3-5-sonnet-20241022"},
				{Alias: "claude-3-5-haiku", ID: "claude-3-5-haiku-20241022"},
				{Alias: "claude-3-opus", ID: "claude-3-opus-20240229"},
				{Alias: "claude-3-haiku", ID: "claude-3-haiku-20240307"},
			},
			listAliasKeys: true,
		},
		{
			Name:    ProviderDeepSeek,
			BaseURL: "https://api.deepseek.com",
			Aliases: []ModelAlias{
				{Alias: "deepseek-chat", ID: "deepseek-chat"},
				{Alias: "deepseek-reasoner", ID: "deepseek-reasoner"},
			},
		},
		{
			Name:    ProviderGemini,
			BaseURL: "https://generativelanguage.googleapis.com/v1beta",
			Aliases: []ModelAlias{
				{Alias: "gemini-1.5-pro", ID: "gemini-1.5-pro"},
				{Alias: "gemini-1.5-flash", ID: "gemini-1.5-flash"},
				{Alias: "gemini-2.0-flash", ID: "gemini-2.0-flash"},
			},
		},
		{
			Name:    ProviderMistral,
			BaseURL: "https://api.mistral.ai/v1",
			Aliases: []ModelAlias{
				{Alias: "mistral-small", ID: "mistral-small-latest"},
				{Alias: "mistral-large", ID: "mistral-large-latest"},
				{Alias: "open-mistral-7b", ID: "open-mistral-7b"},
			},
		},
	}
}
