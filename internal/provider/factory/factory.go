// Package factory constructs the fixed set of provider clients from
// configuration and the provider registry.
package factory

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"chatgateway/internal/config"
	"chatgateway/internal/provider"
	"chatgateway/internal/provider/anthropic"
	"chatgateway/internal/provider/gemini"
	"chatgateway/internal/provider/openaichat"
	"chatgateway/internal/registry"
)

const (
	defaultDialTimeout     = 10 * time.Second
	defaultKeepAlive       = 30 * time.Second
	defaultIdleConnTimeout = 90 * time.Second
)

// BuildClients constructs one client per registered provider, all sharing a
// tuned HTTP transport. The returned map is keyed by provider name and is
// never mutated after construction.
func BuildClients(cfg config.Config, reg *registry.Registry) (map[string]provider.Client, error) {
	if reg == nil {
		return nil, errors.New("registry must not be nil")
	}

	httpClient := newHTTPClient()
	interval := cfg.Stream.SimulatedChunkInterval

	clients := make(map[string]provider.Client)

	for _, name := range reg.Providers() {
		desc, err := reg.Lookup(name)
		if err != nil {
			return nil, fmt.Errorf("lookup provider %q: %w", name, err)
		}

		var client provider.Client
		switch name {
		case registry.ProviderOpenAI:
			client, err = openaichat.New(name, desc.BaseURL, cfg.Providers.OpenAI.APIKey, httpClient)
		case registry.ProviderDeepSeek:
			client, err = openaichat.New(name, desc.BaseURL, cfg.Providers.DeepSeek.APIKey, httpClient)
		case registry.ProviderMistral:
			client, err = openaichat.New(name, desc.BaseURL, cfg.Providers.Mistral.APIKey, httpClient)
		case registry.ProviderAnthropic:
			client, err = anthropic.New(desc.BaseURL, cfg.Providers.Anthropic.APIKey, httpClient, interval)
		case registry.ProviderGemini:
			client, err = gemini.New(desc.BaseURL, cfg.Providers.Gemini.APIKey, httpClient, interval)
		default:
			return nil, fmt.Errorf("no client implementation for provider %q", name)
		}
		if err != nil {
			return nil, fmt.Errorf("initialise %s provider: %w", name, err)
		}

		clients[name] = client
	}

	return clients, nil
}

// newHTTPClient builds the shared outbound client. No overall request
// timeout is set: streaming responses stay open for as long as the model
// generates, and per-call deadlines belong to the caller's context.
func newHTTPClient() *http.Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: defaultDialTimeout, KeepAlive: defaultKeepAlive}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          50,
		IdleConnTimeout:       defaultIdleConnTimeout,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &http.Client{Transport: transport}
}
