package embedding

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"github.com/philippgille/chromem-go"

	"github.com/kailas-cloud/ltrkit/internal/domain"
)

const collectionName = "words"

var errNoEmbedFunc = errors.New("index only accepts precomputed vectors")

// Index is an in-memory cosine-similarity index over word vectors.
type Index struct {
	coll    *chromem.Collection
	vectors map[string][]float32
	dim     int

	// query embeds words missing from the index; nil means they have no neighbours.
	query domain.Embedder
}

// NewIndex indexes vecs[i] under words[i]. Later duplicates of a word are
// ignored. All vectors must share one dimension.
func NewIndex(ctx context.Context, words []string, vecs [][]float32) (*Index, error) {
	if len(words) != len(vecs) {
		return nil, fmt.Errorf("%d words but %d vectors: %w", len(words), len(vecs), domain.ErrInvalidArgument)
	}

	db := chromem.NewDB()
	coll, err := db.CreateCollection(collectionName, nil, func(context.Context, string) ([]float32, error) {
		return nil, errNoEmbedFunc
	})
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}

	ix := &Index{coll: coll, vectors: make(map[string][]float32, len(words))}
	docs := make([]chromem.Document, 0, len(words))
	for i, w := range words {
		if w == "" {
			continue
		}
		if _, dup := ix.vectors[w]; dup {
			continue
		}
		if ix.dim == 0 {
			ix.dim = len(vecs[i])
		}
		if len(vecs[i]) != ix.dim || ix.dim == 0 {
			return nil, fmt.Errorf("word %q has %d dimensions, want %d: %w",
				w, len(vecs[i]), ix.dim, domain.ErrInvalidArgument)
		}
		ix.vectors[w] = vecs[i]
		docs = append(docs, chromem.Document{ID: w, Embedding: vecs[i]})
	}

	if len(docs) > 0 {
		if err := coll.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
			return nil, fmt.Errorf("index vectors: %w", err)
		}
	}
	return ix, nil
}

// WithQueryEmbedder lets out-of-vocabulary words be embedded on the fly.
func (ix *Index) WithQueryEmbedder(e domain.Embedder) *Index {
	ix.query = e
	return ix
}

// Len returns the number of indexed words.
func (ix *Index) Len() int { return ix.coll.Count() }

// Dim returns the vector dimension, or 0 for an empty index.
func (ix *Index) Dim() int { return ix.dim }

// NearestNeighbors implements Model.
func (ix *Index) NearestNeighbors(ctx context.Context, word string, k int) ([]Neighbor, error) {
	total := ix.coll.Count()
	if k <= 0 || total == 0 {
		return nil, nil
	}

	vec, ok := ix.vectors[word]
	if !ok {
		if ix.query == nil {
			return nil, nil
		}
		res, err := ix.query.Embed(ctx, word)
		if err != nil {
			return nil, fmt.Errorf("embed %q: %w", word, err)
		}
		if len(res.Embedding) != ix.dim {
			return nil, fmt.Errorf("embed %q: got %d dimensions, want %d: %w",
				word, len(res.Embedding), ix.dim, domain.ErrEmbeddingProviderError)
		}
		vec = res.Embedding
	}

	// One extra result covers the word itself.
	n := min(k+1, total)

	results, err := ix.coll.QueryEmbedding(ctx, vec, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query neighbours of %q: %w", word, err)
	}

	out := make([]Neighbor, 0, k)
	for _, r := range results {
		if r.ID == word {
			continue
		}
		if len(out) == k {
			break
		}
		out = append(out, Neighbor{Word: r.ID, Score: float64(r.Similarity)})
	}
	return out, nil
}
