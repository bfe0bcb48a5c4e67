// Package anthropic implements the Anthropic Messages wire format.
package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"chatgateway/internal/domain"
	"chatgateway/internal/provider"
)

const (
	contentTypeJSON  = "application/json"
	userAgent        = "chatgateway/0.1"
	apiVersion       = "2023-06-01"
	maxErrorBodySize = 64 * 1024
)

// Client talks to the Anthropic Messages endpoint. The API has no
// incremental delivery in this gateway's design; streaming is simulated
// from the full response.
type Client struct {
	name          string
	apiKey        string
	messagesURL   string
	client        *http.Client
	chunkInterval time.Duration
}

// New constructs an Anthropic client. chunkInterval paces simulated stream
// chunks; zero disables pacing.
func New(baseURL, apiKey string, client *http.Client, chunkInterval time.Duration) (*Client, error) {
	if client == nil {
		return nil, errors.New("http client must not be nil")
	}
	baseURL = strings.TrimRight(baseURL, "/")
	if baseURL == "" {
		return nil, errors.New("base url must not be empty")
	}

	return &Client{
		name:          "anthropic",
		apiKey:        apiKey,
		messagesURL:   baseURL + "/messages",
		client:        client,
		chunkInterval: chunkInterval,
	}, nil
}

func (c *Client) Name() string {
	return c.name
}

// Generate performs a synchronous Messages call.
func (c *Client) Generate(ctx context.Context, req provider.Request) (*domain.GenerationResult, error) {
	httpReq, err := c.newRequest(ctx, buildPayload(req))
	if err != nil {
		return nil, err
	}

	httpResp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("anthropic chat request failed: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, readHTTPError(c.name, httpResp)
	}

	var providerResp messageResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&providerResp); err != nil {
		return nil, &domain.MalformedResponseError{Provider: c.name, Detail: err.Error()}
	}

	return providerResp.toResult(c.name)
}

// Stream simulates streaming by issuing the full call and re-emitting the
// completion as paced token deltas.
func (c *Client) Stream(ctx context.Context, req provider.Request) (<-chan provider.Delta, error) {
	result, err := c.Generate(ctx, req)
	if err != nil {
		return nil, err
	}
	return provider.SimulateDeltas(ctx, result.Content, c.chunkInterval), nil
}

func (c *Client) newRequest(ctx context.Context, payload messagePayload) (*http.Request, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.messagesURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("construct request: %w", err)
	}

	req.Header.Set("Content-Type", contentTypeJSON)
	req.Header.Set("Accept", contentTypeJSON)
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", apiVersion)

	return req, nil
}

type messagePayload struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature"`
}

// message content is either a plain string or an ordered block list.
type message struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentBlock struct {
	Type   string       `json:"type"`
	Text   string       `json:"text,omitempty"`
	Source *imageSource `json:"source,omitempty"`
}

type imageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

// buildPayload normalizes turns into the Messages shape. Turns with roles
// outside user/assistant are filtered out; a single-string turn stays a
// plain string.
func buildPayload(req provider.Request) messagePayload {
	opts := req.Options.Normalized()

	messages := make([]message, 0, len(req.Turns))
	for _, turn := range req.Turns {
		if turn.Role != domain.RoleUser && turn.Role != domain.RoleAssistant {
			continue
		}
		messages = append(messages, message{
			Role:    turn.Role,
			Content: convertContent(turn),
		})
	}

	return messagePayload{
		Model:       req.Model,
		Messages:    messages,
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
	}
}

func convertContent(turn domain.Turn) any {
	if len(turn.Parts) == 0 {
		return turn.Content
	}

	blocks := make([]contentBlock, 0, len(turn.Parts))
	for _, part := range turn.Parts {
		switch part.Type {
		case domain.PartText:
			blocks = append(blocks, contentBlock{Type: "text", Text: part.Text})
		case domain.PartImage:
			mimeType, data, ok := provider.ParseImageDataURI(part.ImageURI)
			if !ok {
				continue
			}
			blocks = append(blocks, contentBlock{
				Type: "image",
				Source: &imageSource{
					Type:      "base64",
					MediaType: mimeType,
					Data:      data,
				},
			})
		}
	}
	return blocks
}

type messageResponse struct {
	Model   string          `json:"model"`
	Content []responseBlock `json:"content"`
	Usage   *responseUsage  `json:"usage,omitempty"`
}

type responseBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type responseUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

func (r messageResponse) toResult(providerName string) (*domain.GenerationResult, error) {
	if len(r.Content) == 0 {
		return nil, &domain.MalformedResponseError{Provider: providerName, Detail: "response missing content blocks"}
	}

	result := &domain.GenerationResult{
		Content: r.Content[0].Text,
		Model:   r.Model,
	}
	if r.Usage != nil {
		result.Usage = &domain.Usage{
			PromptTokens:     r.Usage.InputTokens,
			CompletionTokens: r.Usage.OutputTokens,
			TotalTokens:      r.Usage.InputTokens + r.Usage.OutputTokens,
		}
	}
	return result, nil
}

func readHTTPError(providerName string, resp *http.Response) error {
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
	if err != nil {
		body = []byte(fmt.Sprintf("failed to read body: %v", err))
	}

	return &domain.ProviderHTTPError{
		Provider:   providerName,
		StatusCode: resp.StatusCode,
		Body:       strings.TrimSpace(string(body)),
	}
}
