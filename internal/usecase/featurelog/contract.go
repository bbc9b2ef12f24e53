package featurelog

import (
	"context"
	"encoding/json"
)

// Searcher executes a search request body against an index.
type Searcher interface {
	Search(ctx context.Context, index string, body []byte) ([]json.RawMessage, error)
}
