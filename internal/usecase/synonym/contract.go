package synonym

import (
	"context"

	"github.com/kailas-cloud/ltrkit/internal/embedding"
)

// Model answers nearest-neighbour queries.
type Model = embedding.Model

// Sink receives each word's accepted synonyms, for example to publish them
// to a shared store.
type Sink interface {
	Put(ctx context.Context, word string, synonyms []string) error
	Flush(ctx context.Context) error
}
