package embedding

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/kailas-cloud/ltrkit/internal/domain"
)

func testIndex(t *testing.T) *Index {
	t.Helper()
	words := []string{"laptop", "notebook", "netbook", "guitar", "bass"}
	vecs := [][]float32{
		{1, 0, 0},
		{0.95, 0.3, 0},
		{0.8, 0.6, 0},
		{0, 0, 1},
		{0, 0.5, 0.85},
	}
	ix, err := NewIndex(context.Background(), words, vecs)
	if err != nil {
		t.Fatalf("NewIndex: %v", err)
	}
	return ix
}

func TestNearestNeighbors_ExcludesWordAndOrdersBySimilarity(t *testing.T) {
	ix := testIndex(t)

	got, err := ix.NearestNeighbors(context.Background(), "laptop", 3)
	if err != nil {
		t.Fatalf("NearestNeighbors: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("neighbours = %d, want 3", len(got))
	}
	if got[0].Word != "notebook" || got[1].Word != "netbook" {
		t.Errorf("order = %v", got)
	}
	for i, n := range got {
		if n.Word == "laptop" {
			t.Error("word itself returned")
		}
		if i > 0 && n.Score > got[i-1].Score {
			t.Errorf("scores not descending: %v", got)
		}
	}
	if got[0].Score < 0.9 || got[0].Score > 1 {
		t.Errorf("cosine(laptop, notebook) = %v", got[0].Score)
	}
}

func TestNearestNeighbors_KLargerThanIndex(t *testing.T) {
	ix := testIndex(t)

	got, err := ix.NearestNeighbors(context.Background(), "guitar", 50)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 4 {
		t.Errorf("neighbours = %d, want 4", len(got))
	}
}

func TestNearestNeighbors_UnknownWord(t *testing.T) {
	ix := testIndex(t)

	got, err := ix.NearestNeighbors(context.Background(), "ukulele", 3)
	if err != nil || got != nil {
		t.Errorf("got %v, %v; want no neighbours", got, err)
	}
}

type fixedEmbedder struct {
	vec []float32
	err error
}

func (f fixedEmbedder) Embed(context.Context, string) (domain.EmbeddingResult, error) {
	return domain.EmbeddingResult{Embedding: f.vec}, f.err
}

func TestNearestNeighbors_UnknownWordWithEmbedder(t *testing.T) {
	ix := testIndex(t).WithQueryEmbedder(fixedEmbedder{vec: []float32{0, 0.1, 1}})

	got, err := ix.NearestNeighbors(context.Background(), "ukulele", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Word != "guitar" {
		t.Errorf("neighbours = %v", got)
	}

	ix.WithQueryEmbedder(fixedEmbedder{vec: []float32{1}})
	if _, err := ix.NearestNeighbors(context.Background(), "ukulele", 2); !errors.Is(err, domain.ErrEmbeddingProviderError) {
		t.Errorf("dimension mismatch: expected ErrEmbeddingProviderError, got %v", err)
	}
}

func TestNewIndex_Validation(t *testing.T) {
	ctx := context.Background()
	if _, err := NewIndex(ctx, []string{"a"}, nil); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("length mismatch: got %v", err)
	}
	if _, err := NewIndex(ctx, []string{"a", "b"}, [][]float32{{1, 0}, {1}}); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("dim mismatch: got %v", err)
	}

	ix, err := NewIndex(ctx, []string{"a", "a", ""}, [][]float32{{1, 0}, {0, 1}, {1, 1}})
	if err != nil {
		t.Fatal(err)
	}
	if ix.Len() != 1 || ix.Dim() != 2 {
		t.Errorf("len=%d dim=%d, want 1/2", ix.Len(), ix.Dim())
	}
}

func TestEmptyIndex(t *testing.T) {
	ix, err := NewIndex(context.Background(), nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	got, err := ix.NearestNeighbors(context.Background(), "x", 5)
	if err != nil || got != nil {
		t.Errorf("got %v, %v", got, err)
	}
}

func TestReadVec(t *testing.T) {
	data := "3 2\n" +
		"laptop 0.1 0.2\n" +
		"notebook -1e-2 3\n" +
		"\n" +
		"</s> 0 0\n"

	words, vecs, err := ReadVec(strings.NewReader(data), 0)
	if err != nil {
		t.Fatalf("ReadVec: %v", err)
	}
	if len(words) != 3 || words[1] != "notebook" {
		t.Errorf("words = %v", words)
	}
	if vecs[1][0] != float32(-0.01) || vecs[1][1] != 3 {
		t.Errorf("vec = %v", vecs[1])
	}

	words, _, err = ReadVec(strings.NewReader(data), 2)
	if err != nil || len(words) != 2 {
		t.Errorf("limit: words=%v err=%v", words, err)
	}
}

func TestReadVec_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"empty", ""},
		{"no header", "laptop 0.1 0.2\n"},
		{"bad dim", "1 x\n"},
		{"short row", "1 3\nlaptop 0.1 0.2\n"},
		{"bad value", "1 2\nlaptop 0.1 abc\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := ReadVec(strings.NewReader(tc.data), 0)
			if !errors.Is(err, domain.ErrDataFormat) {
				t.Errorf("expected ErrDataFormat, got %v", err)
			}
		})
	}
}

type batchCounter struct {
	calls int
}

func (b *batchCounter) Embed(_ context.Context, text string) (domain.EmbeddingResult, error) {
	return domain.EmbeddingResult{Embedding: []float32{float32(len(text)), 1}}, nil
}

func (b *batchCounter) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	b.calls++
	out := domain.BatchEmbeddingResult{}
	for _, t := range texts {
		r, _ := b.Embed(ctx, t)
		out.Embeddings = append(out.Embeddings, r.Embedding)
	}
	return out, nil
}

func TestEmbedVocabulary(t *testing.T) {
	e := &batchCounter{}
	words := []string{"a", "bb", "ccc", "dddd", "eeeee"}

	ix, err := EmbedVocabulary(context.Background(), e, words, 2)
	if err != nil {
		t.Fatalf("EmbedVocabulary: %v", err)
	}
	if e.calls != 3 {
		t.Errorf("batch calls = %d, want 3", e.calls)
	}
	if ix.Len() != 5 {
		t.Errorf("len = %d", ix.Len())
	}
	if _, err := ix.NearestNeighbors(context.Background(), "zz", 1); err != nil {
		t.Errorf("out-of-vocabulary lookup should use the embedder: %v", err)
	}
}
