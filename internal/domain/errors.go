package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound signals a missing resource.
	ErrNotFound = errors.New("not found")
	// ErrInvalidArgument signals caller input that cannot be turned into a request.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrFormat signals a malformed identifier or numeric field in an engine response.
	ErrFormat = errors.New("format error")
	// ErrSchema signals a feature log that does not match the declared feature set.
	ErrSchema = errors.New("schema error")
	// ErrDataFormat signals a training file that cannot be parsed.
	ErrDataFormat = errors.New("data format error")
	// ErrTraining signals that the external trainer rejected its input or configuration.
	ErrTraining = errors.New("training error")

	// ErrEngine signals a search engine failure (transport or non-2xx response).
	ErrEngine = errors.New("search engine error")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrEmbeddingQuotaExceeded signals that the configured token budget is spent.
	ErrEmbeddingQuotaExceeded = errors.New("embedding quota exceeded")
)

// EngineError wraps ErrEngine with the HTTP status returned by the search engine.
type EngineError struct {
	Status int
	Body   string
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("%s: status %d: %s", ErrEngine.Error(), e.Status, e.Body)
}

func (e *EngineError) Unwrap() error { return ErrEngine }

// NewEngineError creates an engine error, truncating long response bodies.
func NewEngineError(status int, body []byte) error {
	const maxBody = 512
	if len(body) > maxBody {
		body = append(body[:maxBody:maxBody], "..."...)
	}
	return &EngineError{Status: status, Body: string(body)}
}
