package embcache

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ltrkit/internal/db"
	"github.com/kailas-cloud/ltrkit/internal/domain"
)

// fakeEmbedder returns vec for every text and counts calls.
type fakeEmbedder struct {
	vec        []float32
	tokens     int
	err        error
	embedCalls int
	batchCalls int
	lastBatch  []string
}

func (f *fakeEmbedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	f.embedCalls++
	if f.err != nil {
		return domain.EmbeddingResult{}, f.err
	}
	return domain.EmbeddingResult{Embedding: f.vec, TotalTokens: f.tokens}, nil
}

func (f *fakeEmbedder) BatchEmbed(_ context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	f.batchCalls++
	f.lastBatch = append([]string(nil), texts...)
	if f.err != nil {
		return domain.BatchEmbeddingResult{}, f.err
	}
	out := domain.BatchEmbeddingResult{Embeddings: make([][]float32, len(texts))}
	for i := range texts {
		out.Embeddings[i] = f.vec
		out.TotalTokens += f.tokens
	}
	return out, nil
}

// memStore is an in-memory KV with optional failure injection.
type memStore struct {
	data   map[string][]byte
	getErr error
	setErr error
	sets   int
}

func newMemStore() *memStore { return &memStore{data: map[string][]byte{}} }

func (m *memStore) Get(_ context.Context, key string) ([]byte, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	v, ok := m.data[key]
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return v, nil
}

func (m *memStore) Set(_ context.Context, key string, value []byte) error {
	m.sets++
	if m.setErr != nil {
		return m.setErr
	}
	m.data[key] = value
	return nil
}

func newTestCache(t *testing.T, inner *fakeEmbedder) (*CachedEmbedder, *memStore) {
	t.Helper()
	ms := newMemStore()
	return New(inner, ms, "text-embedding-3-small", nil, zap.NewNop()), ms
}
