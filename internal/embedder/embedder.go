// Package embedder turns text into fixed-width vectors. A Service is the
// remote embedding endpoint; Client wraps one and guarantees that every
// vector it returns is exactly D wide, even for inputs the service refuses
// as too long.
package embedder

import (
	"context"
	"errors"
)

// ErrContextTooLong is returned by a Service when the input exceeds the
// model's maximum context length. It is the only error Client recovers from.
var ErrContextTooLong = errors.New("input exceeds embedding model context length")

// Service is a remote embedding endpoint.
type Service interface {
	// Embed returns one vector of length dim per text, in input order, and
	// the number of tokens the service billed.
	Embed(ctx context.Context, texts []string, dim int) ([][]float32, int, error)
	// Model is the embedding model name, recorded in the store's metadata.
	Model() string
}
