// Package provider defines the capability contract every LLM provider client
// implements, plus the helpers shared across provider wire formats.
package provider

import (
	"context"

	"chatgateway/internal/domain"
)

// Request is the provider-agnostic input for one generation call. Model is
// always the literal provider model id, resolved by the caller.
type Request struct {
	Model   string
	Turns   []domain.Turn
	Options domain.GenerationOptions
}

// Delta is one decoded text fragment from a provider stream. A non-nil Err
// terminates the stream; the channel is closed after the final delta.
type Delta struct {
	Text string
	Err  error
}

// Client is the capability interface behind which each provider hides its
// wire format: request normalization, full-response parsing and stream
// decoding.
type Client interface {
	Name() string

	// Generate performs a single synchronous completion call.
	Generate(ctx context.Context, req Request) (*domain.GenerationResult, error)

	// Stream performs a streaming completion call. Errors raised before any
	// bytes of the stream are consumed are returned directly; later failures
	// arrive as a terminal Delta.Err. The returned channel is unbuffered and
	// closed when the stream ends; the underlying connection is released when
	// ctx is cancelled, so abandoning consumers must cancel.
	Stream(ctx context.Context, req Request) (<-chan Delta, error)
}
