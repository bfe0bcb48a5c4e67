package server

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"chatgateway/internal/domain"
)

// Named SSE events mirroring the internal stream event union.
const (
	sseEventStart    = "start"
	sseEventChunk    = "chunk"
	sseEventComplete = "complete"
	sseEventError    = "error"
)

type startPayload struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

type chunkPayload struct {
	Text string `json:"text"`
}

type completePayload struct {
	FinalText string `json:"final_text"`
	Model     string `json:"model"`
}

type errorPayload struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func writeSSEEvent(w io.Writer, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal SSE payload: %w", err)
	}
	if _, err := fmt.Fprintf(w, "event: %s\n", event); err != nil {
		return fmt.Errorf("write SSE event name: %w", err)
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("write SSE data: %w", err)
	}
	return nil
}

// streamResult reports how a piped stream ended. FinalText is set only when
// the stream completed.
type streamResult struct {
	Completed bool
	FinalText string
	Model     string
}

// pipeStream forwards gateway stream events to the HTTP response as named
// SSE events, preserving the Started/Chunk/terminal ordering. A consumer
// disconnect cancels the request context, which in turn shuts down the
// producer.
func pipeStream(c echo.Context, events <-chan domain.StreamEvent) (streamResult, error) {
	writer := c.Response().Writer
	flusher, ok := writer.(http.Flusher)
	if !ok {
		slog.Error("http writer does not support flushing")
		return streamResult{}, requestError{
			Status:  http.StatusInternalServerError,
			Kind:    "server_error",
			Message: "server does not support streaming responses",
		}
	}

	header := c.Response().Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")

	c.Response().WriteHeader(http.StatusOK)

	var result streamResult
	for event := range events {
		var writeErr error
		switch event.Type {
		case domain.StreamStarted:
			writeErr = writeSSEEvent(writer, sseEventStart, startPayload{
				Provider: event.Provider,
				Model:    event.Model,
			})
		case domain.StreamChunk:
			writeErr = writeSSEEvent(writer, sseEventChunk, chunkPayload{Text: event.Text})
		case domain.StreamCompleted:
			result.Completed = true
			result.FinalText = event.FinalText
			result.Model = event.Model
			writeErr = writeSSEEvent(writer, sseEventComplete, completePayload{
				FinalText: event.FinalText,
				Model:     event.Model,
			})
		case domain.StreamFailed:
			writeErr = writeSSEEvent(writer, sseEventError, errorPayload{
				Kind:    domain.ErrorKind(event.Err),
				Message: event.Err.Error(),
			})
		}

		if writeErr != nil {
			// The client is gone; stop writing and let the cancelled request
			// context unwind the producer.
			slog.Debug("stopping SSE stream", "err", writeErr)
			return result, nil
		}
		flusher.Flush()
	}

	return result, nil
}
