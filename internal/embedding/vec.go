package embedding

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/kailas-cloud/ltrkit/internal/domain"
)

// ReadVec parses the fastText / word2vec text format: a "<count> <dim>"
// header, then one "<word> <v1> ... <vdim>" line per word. limit > 0 stops
// after that many words.
func ReadVec(r io.Reader, limit int) ([]string, [][]float32, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1<<20)

	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return nil, nil, fmt.Errorf("read vectors: %w", err)
		}
		return nil, nil, fmt.Errorf("vectors: empty file: %w", domain.ErrDataFormat)
	}
	header := strings.Fields(sc.Text())
	if len(header) != 2 {
		return nil, nil, fmt.Errorf("vectors: header %q is not \"<count> <dim>\": %w", sc.Text(), domain.ErrDataFormat)
	}
	count, err1 := strconv.Atoi(header[0])
	dim, err2 := strconv.Atoi(header[1])
	if err1 != nil || err2 != nil || count < 0 || dim <= 0 {
		return nil, nil, fmt.Errorf("vectors: bad header %q: %w", sc.Text(), domain.ErrDataFormat)
	}

	capHint := count
	if limit > 0 && limit < capHint {
		capHint = limit
	}
	words := make([]string, 0, capHint)
	vecs := make([][]float32, 0, capHint)

	line := 1
	for sc.Scan() {
		line++
		if limit > 0 && len(words) >= limit {
			break
		}
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		if len(fields) != dim+1 {
			return nil, nil, fmt.Errorf("vectors line %d: %d values, want %d: %w",
				line, len(fields)-1, dim, domain.ErrDataFormat)
		}
		vec := make([]float32, dim)
		for i, f := range fields[1:] {
			v, err := strconv.ParseFloat(f, 32)
			if err != nil {
				return nil, nil, fmt.Errorf("vectors line %d: value %q: %w", line, f, domain.ErrDataFormat)
			}
			vec[i] = float32(v)
		}
		words = append(words, fields[0])
		vecs = append(vecs, vec)
	}
	if err := sc.Err(); err != nil {
		return nil, nil, fmt.Errorf("read vectors: %w", err)
	}
	return words, vecs, nil
}

// LoadVecFile reads a .vec file and indexes it.
func LoadVecFile(ctx context.Context, path string, limit int) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open vectors: %w", err)
	}
	defer f.Close()

	words, vecs, err := ReadVec(f, limit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return NewIndex(ctx, words, vecs)
}

// EmbedVocabulary vectorizes words with e in batches of batchSize and
// indexes the result. Out-of-vocabulary lookups also go through e.
func EmbedVocabulary(ctx context.Context, e domain.Embedder, words []string, batchSize int) (*Index, error) {
	if batchSize <= 0 {
		batchSize = 256
	}
	vecs := make([][]float32, 0, len(words))
	for start := 0; start < len(words); start += batchSize {
		end := min(start+batchSize, len(words))
		res, err := domain.EmbedAll(ctx, e, words[start:end])
		if err != nil {
			return nil, fmt.Errorf("embed vocabulary [%d:%d]: %w", start, end, err)
		}
		vecs = append(vecs, res.Embeddings...)
	}

	ix, err := NewIndex(ctx, words, vecs)
	if err != nil {
		return nil, err
	}
	return ix.WithQueryEmbedder(e), nil
}
