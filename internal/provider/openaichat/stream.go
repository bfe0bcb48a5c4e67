package openaichat

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"chatgateway/internal/domain"
	"chatgateway/internal/provider"
)

const (
	ssePrefix   = "data: "
	sseDone     = "[DONE]"
	maxLineSize = 1024 * 1024
)

// Stream performs a chat-completions call with the stream flag set and
// decodes the SSE response line by line. Lines that are not data lines or
// that carry unparseable JSON are skipped; the [DONE] sentinel ends the
// stream. The response body is closed when the stream ends or ctx is
// cancelled.
func (c *Client) Stream(ctx context.Context, req provider.Request) (<-chan provider.Delta, error) {
	httpReq, err := c.newRequest(ctx, buildPayload(req, true))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "text/event-stream")

	httpResp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s stream request failed: %w", c.name, err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		defer httpResp.Body.Close()
		return nil, readHTTPError(c.name, httpResp)
	}

	ch := make(chan provider.Delta)
	go func() {
		defer close(ch)
		defer httpResp.Body.Close()

		scanner := bufio.NewScanner(httpResp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, ssePrefix) {
				continue
			}

			payload := strings.TrimPrefix(line, ssePrefix)
			if payload == sseDone {
				return
			}

			text, ok := decodeChunkLine(payload)
			if !ok {
				continue
			}

			select {
			case ch <- provider.Delta{Text: text}:
			case <-ctx.Done():
				return
			}
		}

		if err := scanner.Err(); err != nil {
			select {
			case ch <- provider.Delta{Err: &domain.StreamDecodeError{Provider: c.name, Err: err}}:
			case <-ctx.Done():
			}
		}
	}()

	return ch, nil
}

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// decodeChunkLine extracts the content delta from one SSE data payload.
// Malformed JSON and chunks without content report !ok so the caller skips
// the line.
func decodeChunkLine(payload string) (string, bool) {
	var chunk streamChunk
	if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
		return "", false
	}
	if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
		return "", false
	}
	return chunk.Choices[0].Delta.Content, true
}
