// Package gateway is the single entry point for generation requests. It
// resolves model aliases through the registry, dispatches to the matching
// provider client and surfaces errors uniformly.
package gateway

import (
	"context"
	"fmt"
	"strings"

	"chatgateway/internal/domain"
	"chatgateway/internal/provider"
	"chatgateway/internal/registry"
)

// Gateway routes generation requests to the configured provider clients.
// It holds no mutable state; every invocation is independent.
type Gateway struct {
	registry *registry.Registry
	clients  map[string]provider.Client
}

// New constructs a gateway over the registry and the closed client set.
func New(reg *registry.Registry, clients map[string]provider.Client) *Gateway {
	return &Gateway{
		registry: reg,
		clients:  clients,
	}
}

// Generate performs a synchronous generation call. A single attempt, no
// retries; an unknown provider fails before any network I/O.
func (g *Gateway) Generate(ctx context.Context, providerName, modelAlias string, turns []domain.Turn, opts domain.GenerationOptions) (*domain.GenerationResult, error) {
	client, model, err := g.resolve(providerName, modelAlias)
	if err != nil {
		return nil, err
	}

	result, err := client.Generate(ctx, provider.Request{
		Model:   model,
		Turns:   turns,
		Options: opts,
	})
	if err != nil {
		return nil, fmt.Errorf("provider %s generate: %w", providerName, err)
	}
	return result, nil
}

// GenerateStream performs a streaming generation call. The returned channel
// is unbuffered, so decoding proceeds only as fast as the consumer pulls
// events, and always yields one Started followed by zero or more Chunks and
// exactly one terminal Completed or Failed. Cancelling ctx abandons the
// stream and releases the underlying connection. An unknown provider fails
// synchronously before any events are produced.
func (g *Gateway) GenerateStream(ctx context.Context, providerName, modelAlias string, turns []domain.Turn, opts domain.GenerationOptions) (<-chan domain.StreamEvent, error) {
	client, model, err := g.resolve(providerName, modelAlias)
	if err != nil {
		return nil, err
	}

	events := make(chan domain.StreamEvent)

	go func() {
		defer close(events)

		if !emit(ctx, events, domain.StreamEvent{
			Type:     domain.StreamStarted,
			Provider: providerName,
			Model:    model,
		}) {
			return
		}

		deltas, err := client.Stream(ctx, provider.Request{
			Model:   model,
			Turns:   turns,
			Options: opts,
		})
		if err != nil {
			emit(ctx, events, domain.StreamEvent{Type: domain.StreamFailed, Err: err})
			return
		}

		var final strings.Builder
		for delta := range deltas {
			if delta.Err != nil {
				emit(ctx, events, domain.StreamEvent{Type: domain.StreamFailed, Err: delta.Err})
				return
			}
			final.WriteString(delta.Text)
			if !emit(ctx, events, domain.StreamEvent{Type: domain.StreamChunk, Text: delta.Text}) {
				return
			}
		}

		emit(ctx, events, domain.StreamEvent{
			Type:      domain.StreamCompleted,
			FinalText: final.String(),
			Model:     model,
		})
	}()

	return events, nil
}

// Providers exposes the registry's provider listing.
func (g *Gateway) Providers() []string {
	return g.registry.Providers()
}

// ModelAliases exposes the registry's model listing for a provider.
func (g *Gateway) ModelAliases(providerName string) []string {
	return g.registry.ModelAliases(providerName)
}

func (g *Gateway) resolve(providerName, modelAlias string) (provider.Client, string, error) {
	client, ok := g.clients[providerName]
	if !ok {
		return nil, "", fmt.Errorf("%w: %s", domain.ErrUnsupportedProvider, providerName)
	}
	return client, g.registry.ResolveModel(providerName, modelAlias), nil
}

// emit delivers one event, giving up when the consumer has gone away.
func emit(ctx context.Context, events chan<- domain.StreamEvent, event domain.StreamEvent) bool {
	select {
	case events <- event:
		return true
	case <-ctx.Done():
		return false
	}
}
