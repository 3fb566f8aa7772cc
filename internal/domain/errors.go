package domain

import "errors"

var (
	// ErrInvalidInput marks malformed or empty arguments. Not retryable.
	ErrInvalidInput = errors.New("invalid input")

	// ErrEmptyIndex is returned when a query arrives before any successful ingestion.
	ErrEmptyIndex = errors.New("no documents ingested")

	// ErrEmbeddingProvider wraps any failure of the embedding provider.
	ErrEmbeddingProvider = errors.New("embedding provider error")

	// ErrGeneration wraps any failure of the text generation provider.
	ErrGeneration = errors.New("generation error")

	// ErrIndex marks an internal invariant violation inside the vector index.
	ErrIndex = errors.New("index error")
)

// ErrorKind returns a short, stable name for the error class of err.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrEmptyIndex):
		return "empty_index"
	case errors.Is(err, ErrEmbeddingProvider):
		return "embedding_provider_error"
	case errors.Is(err, ErrGeneration):
		return "generation_error"
	case errors.Is(err, ErrIndex):
		return "index_error"
	default:
		return "internal_error"
	}
}
