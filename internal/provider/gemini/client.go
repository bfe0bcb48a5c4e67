// Package gemini implements the Google Gemini generateContent wire format.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"chatgateway/internal/domain"
	"chatgateway/internal/provider"
)

const (
	contentTypeJSON  = "application/json"
	userAgent        = "chatgateway/0.1"
	maxErrorBodySize = 64 * 1024
)

// Client talks to the Gemini generateContent endpoint. The API key travels
// in the query string rather than a header, and streaming is simulated from
// the full response.
type Client struct {
	name          string
	apiKey        string
	baseURL       string
	client        *http.Client
	chunkInterval time.Duration
}

// New constructs a Gemini client. chunkInterval paces simulated stream
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
		name:          "gemini",
		apiKey:        apiKey,
		baseURL:       baseURL,
		client:        client,
		chunkInterval: chunkInterval,
	}, nil
}

func (c *Client) Name() string {
	return c.name
}

// Generate performs a synchronous generateContent call. The API does not
// echo the model id, so the result carries the requested one.
func (c *Client) Generate(ctx context.Context, req provider.Request) (*domain.GenerationResult, error) {
	httpReq, err := c.newRequest(ctx, req.Model, buildPayload(req))
	if err != nil {
		return nil, err
	}

	httpResp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("gemini chat request failed: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, readHTTPError(c.name, httpResp)
	}

	var providerResp generateResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&providerResp); err != nil {
		return nil, &domain.MalformedResponseError{Provider: c.name, Detail: err.Error()}
	}

	return providerResp.toResult(c.name, req.Model)
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

func (c *Client) newRequest(ctx context.Context, model string, payload generatePayload) (*http.Request, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, model, url.QueryEscape(c.apiKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("construct request: %w", err)
	}

	req.Header.Set("Content-Type", contentTypeJSON)
	req.Header.Set("Accept", contentTypeJSON)
	req.Header.Set("User-Agent", userAgent)

	return req, nil
}

type generatePayload struct {
	Contents         []content         `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type content struct {
	Role  string `json:"role"`
	Parts []part `json:"parts"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

// buildPayload normalizes turns into the generateContent shape. System
// turns are filtered out and the assistant role maps to "model".
func buildPayload(req provider.Request) generatePayload {
	opts := req.Options.Normalized()

	contents := make([]content, 0, len(req.Turns))
	for _, turn := range req.Turns {
		var role string
		switch turn.Role {
		case domain.RoleUser:
			role = "user"
		case domain.RoleAssistant:
			role = "model"
		default:
			continue
		}
		contents = append(contents, content{Role: role, Parts: convertParts(turn)})
	}

	return generatePayload{
		Contents: contents,
		GenerationConfig: &generationConfig{
			Temperature:     opts.Temperature,
			MaxOutputTokens: opts.MaxTokens,
		},
	}
}

func convertParts(turn domain.Turn) []part {
	if len(turn.Parts) == 0 {
		return []part{{Text: turn.Content}}
	}

	parts := make([]part, 0, len(turn.Parts))
	for _, contentPart := range turn.Parts {
		switch contentPart.Type {
		case domain.PartText:
			parts = append(parts, part{Text: contentPart.Text})
		case domain.PartImage:
			mimeType, data, ok := provider.ParseImageDataURI(contentPart.ImageURI)
			if !ok {
				continue
			}
			parts = append(parts, part{
				InlineData: &inlineData{MimeType: mimeType, Data: data},
			})
		}
	}
	return parts
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	UsageMetadata *usageMetadata `json:"usageMetadata,omitempty"`
}

type usageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

func (r generateResponse) toResult(providerName, requestedModel string) (*domain.GenerationResult, error) {
	if len(r.Candidates) == 0 || len(r.Candidates[0].Content.Parts) == 0 {
		return nil, &domain.MalformedResponseError{Provider: providerName, Detail: "response missing candidate parts"}
	}

	result := &domain.GenerationResult{
		Content: r.Candidates[0].Content.Parts[0].Text,
		Model:   requestedModel,
	}
	if r.UsageMetadata != nil {
		result.Usage = &domain.Usage{
			PromptTokens:     r.UsageMetadata.PromptTokenCount,
			CompletionTokens: r.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      r.UsageMetadata.TotalTokenCount,
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
