// Package openaichat implements the OpenAI chat-completions wire format.
// OpenAI, DeepSeek and Mistral share this schema verbatim, so one client
// parameterised by name, base URL and key serves all three.
package openaichat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"chatgateway/internal/domain"
	"chatgateway/internal/provider"
)

const (
	contentTypeJSON  = "application/json"
	userAgent        = "chatgateway/0.1"
	maxErrorBodySize = 64 * 1024
)

// Client talks to one OpenAI-compatible chat-completions endpoint.
type Client struct {
	name    string
	apiKey  string
	chatURL string
	client  *http.Client
}

// New constructs a client for an OpenAI-compatible provider.
func New(name, baseURL, apiKey string, client *http.Client) (*Client, error) {
	if client == nil {
		return nil, errors.New("http client must not be nil")
	}
	baseURL = strings.TrimRight(baseURL, "/")
	if baseURL == "" {
		return nil, errors.New("base url must not be empty")
	}

	return &Client{
		name:    name,
		apiKey:  apiKey,
		chatURL: baseURL + "/chat/completions",
		client:  client,
	}, nil
}

func (c *Client) Name() string {
	return c.name
}

// Generate performs a synchronous chat-completions call.
func (c *Client) Generate(ctx context.Context, req provider.Request) (*domain.GenerationResult, error) {
	httpReq, err := c.newRequest(ctx, buildPayload(req, false))
	if err != nil {
		return nil, err
	}

	httpResp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s chat request failed: %w", c.name, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, readHTTPError(c.name, httpResp)
	}

	var providerResp chatResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&providerResp); err != nil {
		return nil, &domain.MalformedResponseError{Provider: c.name, Detail: err.Error()}
	}

	return providerResp.toResult(c.name)
}

func (c *Client) newRequest(ctx context.Context, payload chatPayload) (*http.Request, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.chatURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("construct request: %w", err)
	}

	req.Header.Set("Content-Type", contentTypeJSON)
	req.Header.Set("Accept", contentTypeJSON)
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	return req, nil
}

type chatPayload struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
	Stream      bool          `json:"stream,omitempty"`
}

// chatMessage carries either a bare string or an ordered part list in
// Content, matching the two content encodings the schema accepts.
type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

// buildPayload normalizes the unified turn list into the chat-completions
// shape. System turns pass through untouched; this format accepts them.
func buildPayload(req provider.Request, stream bool) chatPayload {
	opts := req.Options.Normalized()

	messages := make([]chatMessage, 0, len(req.Turns))
	for _, turn := range req.Turns {
		messages = append(messages, chatMessage{
			Role:    turn.Role,
			Content: convertContent(turn),
		})
	}

	return chatPayload{
		Model:       req.Model,
		Messages:    messages,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
		Stream:      stream,
	}
}

// convertContent returns a bare string for text-only turns and a part array
// otherwise. Image parts whose URI is not a valid base64 data URI are
// dropped from the converted content.
func convertContent(turn domain.Turn) any {
	if len(turn.Parts) == 0 {
		return turn.Content
	}

	parts := make([]contentPart, 0, len(turn.Parts))
	for _, part := range turn.Parts {
		switch part.Type {
		case domain.PartText:
			parts = append(parts, contentPart{Type: "text", Text: part.Text})
		case domain.PartImage:
			if _, _, ok := provider.ParseImageDataURI(part.ImageURI); !ok {
				continue
			}
			parts = append(parts, contentPart{
				Type:     "image_url",
				ImageURL: &imageURL{URL: part.ImageURI},
			})
		}
	}
	return parts
}

type chatResponse struct {
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   *usageBlock  `json:"usage,omitempty"`
}

type chatChoice struct {
	Message responseMessage `json:"message"`
}

type responseMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type usageBlock struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

func (r chatResponse) toResult(providerName string) (*domain.GenerationResult, error) {
	if len(r.Choices) == 0 {
		return nil, &domain.MalformedResponseError{Provider: providerName, Detail: "response did not include choices"}
	}

	result := &domain.GenerationResult{
		Content: r.Choices[0].Message.Content,
		Model:   r.Model,
	}
	if r.Usage != nil {
		result.Usage = &domain.Usage{
			PromptTokens:     r.Usage.PromptTokens,
			CompletionTokens: r.Usage.CompletionTokens,
			TotalTokens:      r.Usage.TotalTokens,
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
