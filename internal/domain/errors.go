package domain

import (
	"errors"
	"fmt"
)

// ErrUnsupportedProvider indicates a provider name outside the fixed set.
// It is raised before any network I/O is attempted.
var ErrUnsupportedProvider = errors.New("unsupported provider")

// ErrNotFound indicates a missing or foreign persisted entity.
var ErrNotFound = errors.New("not found")

// ProviderHTTPError reports a non-2xx status from an upstream provider,
// raised before any response parsing is attempted.
type ProviderHTTPError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *ProviderHTTPError) Error() string {
	return fmt.Sprintf("provider %s returned status %d: %s", e.Provider, e.StatusCode, e.Body)
}

// MalformedResponseError reports a 2xx provider response whose body is
// missing fields the wire schema requires.
type MalformedResponseError struct {
	Provider string
	Detail   string
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("provider %s returned a malformed response: %s", e.Provider, e.Detail)
}

// StreamDecodeError reports broken top-level stream framing, as opposed to a
// single malformed SSE line, which decoders skip.
type StreamDecodeError struct {
	Provider string
	Err      error
}

func (e *StreamDecodeError) Error() string {
	return fmt.Sprintf("provider %s stream decode failed: %v", e.Provider, e.Err)
}

func (e *StreamDecodeError) Unwrap() error {
	return e.Err
}

// Stable error kinds surfaced on Failed events and HTTP error bodies.
const (
	KindUnsupportedProvider = "unsupported_provider"
	KindProviderHTTP        = "provider_http_error"
	KindMalformedResponse   = "malformed_response"
	KindStreamDecode        = "stream_decode_error"
	KindNetwork             = "network_error"
)

// ErrorKind maps an error from the gateway to its wire kind.
func ErrorKind(err error) string {
	var httpErr *ProviderHTTPError
	var malformedErr *MalformedResponseError
	var decodeErr *StreamDecodeError

	switch {
	case errors.Is(err, ErrUnsupportedProvider):
		return KindUnsupportedProvider
	case errors.As(err, &httpErr):
		return KindProviderHTTP
	case errors.As(err, &malformedErr):
		return KindMalformedResponse
	case errors.As(err, &decodeErr):
		return KindStreamDecode
	default:
		return KindNetwork
	}
}
