// Package synonym generates synonym lists from a word-embedding model.
package synonym

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Defaults for Config.
const (
	DefaultThreshold = 0.75
	DefaultNeighbors = 10
)

// Config tunes neighbour selection.
type Config struct {
	Threshold *float64 // minimum similarity; nil means DefaultThreshold
	Neighbors int     // neighbours requested per word; <= 0 means DefaultNeighbors
}

// Stats summarizes a run.
type Stats struct {
	Words    int
	Synonyms int
	Alone    int // words written without any synonym
}

// Service writes one synonym line per vocabulary word.
type Service struct {
	model     Model
	threshold float64
	neighbors int
	sink      Sink
	words     prometheus.Counter
	synonyms  prometheus.Counter
	logger    *zap.Logger
}

// New creates a Service around an already loaded model.
func New(model Model, cfg Config, logger *zap.Logger) *Service {
	threshold := DefaultThreshold
	if cfg.Threshold != nil {
		threshold = *cfg.Threshold
	}
	if cfg.Neighbors <= 0 {
		cfg.Neighbors = DefaultNeighbors
	}
	return &Service{
		model:     model,
		threshold: threshold,
		neighbors: cfg.Neighbors,
		logger:    logger,
	}
}

// WithSink also hands every line to s.
func (s *Service) WithSink(sink Sink) *Service {
	s.sink = sink
	return s
}

// WithCounters counts processed words and accepted synonyms.
func (s *Service) WithCounters(words, synonyms prometheus.Counter) *Service {
	s.words = words
	s.synonyms = synonyms
	return s
}

// Run reads one word per line from in and writes "word[,synonym...]" lines to
// out, in input order. Synonyms keep the model's order. A model or write error
// stops the run; lines already written stay written.
func (s *Service) Run(ctx context.Context, in io.Reader, out io.Writer) (Stats, error) {
	var st Stats
	sc := bufio.NewScanner(in)
	w := bufio.NewWriter(out)

	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return st, flushOn(w, err)
		}
		word := strings.TrimRight(sc.Text(), "\r")

		syns, err := s.Synonyms(ctx, word)
		if err != nil {
			return st, flushOn(w, fmt.Errorf("word %d (%q): %w", st.Words+1, word, err))
		}

		if _, err := w.WriteString(Line(word, syns)); err != nil {
			return st, fmt.Errorf("write synonyms: %w", err)
		}
		if s.sink != nil {
			if err := s.sink.Put(ctx, word, syns); err != nil {
				return st, flushOn(w, fmt.Errorf("publish %q: %w", word, err))
			}
		}

		st.Words++
		st.Synonyms += len(syns)
		if len(syns) == 0 {
			st.Alone++
		}
		if s.words != nil {
			s.words.Inc()
		}
		if s.synonyms != nil {
			s.synonyms.Add(float64(len(syns)))
		}
	}
	if err := sc.Err(); err != nil {
		return st, flushOn(w, fmt.Errorf("read vocabulary: %w", err))
	}

	if err := w.Flush(); err != nil {
		return st, fmt.Errorf("flush synonyms: %w", err)
	}
	if s.sink != nil {
		if err := s.sink.Flush(ctx); err != nil {
			return st, fmt.Errorf("flush sink: %w", err)
		}
	}

	s.logger.Info("Synonym extraction finished",
		zap.Int("words", st.Words),
		zap.Int("synonyms", st.Synonyms),
		zap.Int("without_synonyms", st.Alone),
		zap.Float64("threshold", s.threshold),
	)
	return st, nil
}

// Synonyms returns the neighbours of word scoring at least the threshold.
// Blank words have none.
func (s *Service) Synonyms(ctx context.Context, word string) ([]string, error) {
	if strings.TrimSpace(word) == "" {
		return nil, nil
	}
	neighbors, err := s.model.NearestNeighbors(ctx, word, s.neighbors)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, n := range neighbors {
		if n.Score >= s.threshold {
			out = append(out, n.Word)
		}
	}
	return out, nil
}

// Line renders one output line including the trailing newline.
func Line(word string, synonyms []string) string {
	if len(synonyms) == 0 {
		return word + "\n"
	}
	return word + "," + strings.Join(synonyms, ",") + "\n"
}

// flushOn writes out what was produced so far and returns err.
func flushOn(w *bufio.Writer, err error) error {
	_ = w.Flush()
	return err
}
