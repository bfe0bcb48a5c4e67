package gateway

import (
	"context"
	"errors"
	"testing"
	"time"

	"chatgateway/internal/domain"
	"chatgateway/internal/provider"
	"chatgateway/internal/registry"
)

// mockClient is a scripted provider client.
type mockClient struct {
	name string

	result *domain.GenerationResult
	err    error

	deltas    []provider.Delta
	streamErr error

	lastRequest provider.Request
}

func (m *mockClient) Name() string {
	return m.name
}

func (m *mockClient) Generate(_ context.Context, req provider.Request) (*domain.GenerationResult, error) {
	m.lastRequest = req
	return m.result, m.err
}

func (m *mockClient) Stream(ctx context.Context, req provider.Request) (<-chan provider.Delta, error) {
	m.lastRequest = req
	if m.streamErr != nil {
		return nil, m.streamErr
	}
	ch := make(chan provider.Delta)
	go func() {
		defer close(ch)
		for _, delta := range m.deltas {
			select {
			case ch <- delta:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

func newTestGateway(clients map[string]provider.Client) *Gateway {
	return New(registry.New(registry.Overrides{}), clients)
}

func collectEvents(t *testing.T, ch <-chan domain.StreamEvent) []domain.StreamEvent {
	t.Helper()
	var events []domain.StreamEvent
	timeout := time.After(5 * time.Second)
	for {
		select {
		case event, ok := <-ch:
			if !ok {
				return events
			}
			events = append(events, event)
		case <-timeout:
			t.Fatal("timed out waiting for event channel to close")
		}
	}
}

func TestGenerate(t *testing.T) {
	mock := &mockClient{
		name:   registry.ProviderAnthropic,
		result: &domain.GenerationResult{Content: "hello", Model: "claude-3-5-sonnet-20241022"},
	}
	gw := newTestGateway(map[string]provider.Client{registry.ProviderAnthropic: mock})

	turns := []domain.Turn{{Role: domain.RoleUser, Content: "hi"}}
	result, err := gw.Generate(context.Background(), registry.ProviderAnthropic, "claude-3-5-sonnet", turns, domain.GenerationOptions{})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if result.Content != "hello" {
		t.Errorf("content = %q", result.Content)
	}
	// The alias must be resolved before the client sees the request.
	if mock.lastRequest.Model != "claude-3-5-sonnet-20241022" {
		t.Errorf("client saw model %q, want resolved literal id", mock.lastRequest.Model)
	}
}

func TestGenerateUnsupportedProvider(t *testing.T) {
	gw := newTestGateway(map[string]provider.Client{})

	_, err := gw.Generate(context.Background(), "cohere", "command-r", nil, domain.GenerationOptions{})
	if !errors.Is(err, domain.ErrUnsupportedProvider) {
		t.Fatalf("error = %v, want ErrUnsupportedProvider", err)
	}
}

func TestGenerateWrapsClientError(t *testing.T) {
	cause := &domain.ProviderHTTPError{Provider: "openai", StatusCode: 500, Body: "boom"}
	mock := &mockClient{name: registry.ProviderOpenAI, err: cause}
	gw := newTestGateway(map[string]provider.Client{registry.ProviderOpenAI: mock})

	_, err := gw.Generate(context.Background(), registry.ProviderOpenAI, "gpt-4o", nil, domain.GenerationOptions{})

	var httpErr *domain.ProviderHTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("error = %v, want wrapped ProviderHTTPError", err)
	}
}

func TestGenerateStreamOrdering(t *testing.T) {
	mock := &mockClient{
		name:   registry.ProviderOpenAI,
		deltas: []provider.Delta{{Text: "Hel"}, {Text: "lo"}},
	}
	gw := newTestGateway(map[string]provider.Client{registry.ProviderOpenAI: mock})

	ch, err := gw.GenerateStream(context.Background(), registry.ProviderOpenAI, "gpt-4o", nil, domain.GenerationOptions{})
	if err != nil {
		t.Fatalf("GenerateStream: %v", err)
	}

	events := collectEvents(t, ch)
	wantTypes := []domain.StreamEventType{
		domain.StreamStarted,
		domain.StreamChunk,
		domain.StreamChunk,
		domain.StreamCompleted,
	}
	if len(events) != len(wantTypes) {
		t.Fatalf("got %d events %+v, want %d", len(events), events, len(wantTypes))
	}
	for i, want := range wantTypes {
		if events[i].Type != want {
			t.Errorf("events[%d].Type = %q, want %q", i, events[i].Type, want)
		}
	}

	started := events[0]
	if started.Provider != registry.ProviderOpenAI || started.Model != "gpt-4o" {
		t.Errorf("started = %+v", started)
	}
	if events[1].Text != "Hel" || events[2].Text != "lo" {
		t.Errorf("chunks = %q, %q", events[1].Text, events[2].Text)
	}
	completed := events[3]
	if completed.FinalText != "Hello" {
		t.Errorf("final text = %q, want accumulated chunks", completed.FinalText)
	}
	if completed.Model != "gpt-4o" {
		t.Errorf("completed model = %q", completed.Model)
	}
}

func TestGenerateStreamUnsupportedProvider(t *testing.T) {
	gw := newTestGateway(map[string]provider.Client{})

	_, err := gw.GenerateStream(context.Background(), "cohere", "command-r", nil, domain.GenerationOptions{})
	if !errors.Is(err, domain.ErrUnsupportedProvider) {
		t.Fatalf("error = %v, want synchronous ErrUnsupportedProvider", err)
	}
}

func TestGenerateStreamSetupFailure(t *testing.T) {
	cause := &domain.ProviderHTTPError{Provider: "openai", StatusCode: 401, Body: "bad key"}
	mock := &mockClient{name: registry.ProviderOpenAI, streamErr: cause}
	gw := newTestGateway(map[string]provider.Client{registry.ProviderOpenAI: mock})

	ch, err := gw.GenerateStream(context.Background(), registry.ProviderOpenAI, "gpt-4o", nil, domain.GenerationOptions{})
	if err != nil {
		t.Fatalf("GenerateStream: %v", err)
	}

	events := collectEvents(t, ch)
	if len(events) != 2 {
		t.Fatalf("events = %+v, want Started then Failed", events)
	}
	if events[0].Type != domain.StreamStarted {
		t.Errorf("events[0].Type = %q", events[0].Type)
	}
	failed := events[1]
	if failed.Type != domain.StreamFailed {
		t.Fatalf("events[1].Type = %q, want Failed", failed.Type)
	}
	var httpErr *domain.ProviderHTTPError
	if !errors.As(failed.Err, &httpErr) {
		t.Errorf("failed.Err = %v, want ProviderHTTPError", failed.Err)
	}
}

func TestGenerateStreamMidStreamFailure(t *testing.T) {
	decodeErr := &domain.StreamDecodeError{Provider: "openai", Err: errors.New("broken frame")}
	mock := &mockClient{
		name:   registry.ProviderOpenAI,
		deltas: []provider.Delta{{Text: "partial"}, {Err: decodeErr}},
	}
	gw := newTestGateway(map[string]provider.Client{registry.ProviderOpenAI: mock})

	ch, err := gw.GenerateStream(context.Background(), registry.ProviderOpenAI, "gpt-4o", nil, domain.GenerationOptions{})
	if err != nil {
		t.Fatalf("GenerateStream: %v", err)
	}

	events := collectEvents(t, ch)
	wantTypes := []domain.StreamEventType{domain.StreamStarted, domain.StreamChunk, domain.StreamFailed}
	if len(events) != len(wantTypes) {
		t.Fatalf("events = %+v, want exactly one terminal event after the chunk", events)
	}
	for i, want := range wantTypes {
		if events[i].Type != want {
			t.Errorf("events[%d].Type = %q, want %q", i, events[i].Type, want)
		}
	}
	if domain.ErrorKind(events[2].Err) != domain.KindStreamDecode {
		t.Errorf("failed kind = %q", domain.ErrorKind(events[2].Err))
	}
}

func TestGenerateStreamConsumerCancellation(t *testing.T) {
	mock := &mockClient{
		name:   registry.ProviderOpenAI,
		deltas: []provider.Delta{{Text: "a"}, {Text: "b"}, {Text: "c"}, {Text: "d"}},
	}
	gw := newTestGateway(map[string]provider.Client{registry.ProviderOpenAI: mock})

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := gw.GenerateStream(ctx, registry.ProviderOpenAI, "gpt-4o", nil, domain.GenerationOptions{})
	if err != nil {
		t.Fatalf("GenerateStream: %v", err)
	}

	// Pull the Started event, then abandon the stream.
	select {
	case event := <-ch:
		if event.Type != domain.StreamStarted {
			t.Fatalf("first event = %+v", event)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for Started")
	}

	cancel()

	deadline := time.After(5 * time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("event channel did not close after cancellation")
		}
	}
}
