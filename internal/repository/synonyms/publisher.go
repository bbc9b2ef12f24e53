// Package synonyms publishes synonym lists to Valkey hashes so query-time
// expansion can read them without the generated file.
package synonyms

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ltrkit/internal/db"
	"github.com/kailas-cloud/ltrkit/internal/domain"
)

const (
	// Buckets is the number of hashes a synonym set is spread over.
	Buckets          = 16
	defaultBatchSize = 500
)

var keyPrefix = domain.KeyPrefix + "synonyms:"

type hashStore interface {
	HSetMulti(ctx context.Context, items []db.HashSetItem) error
	HGet(ctx context.Context, key, field string) (string, bool, error)
	Del(ctx context.Context, key string) error
}

// Publisher buffers word -> synonyms entries and writes them in pipelined
// batches. Each word is a field of one of Buckets hashes named
// ltrkit:synonyms:<set>:<bucket>; the value is the comma-joined list.
type Publisher struct {
	store     hashStore
	set       string
	batchSize int
	pending   map[string]map[string]string
	buffered  int
	published int
	logger    *zap.Logger
}

// New creates a Publisher for the named synonym set.
func New(store hashStore, set string, logger *zap.Logger) *Publisher {
	return &Publisher{
		store:     store,
		set:       set,
		batchSize: defaultBatchSize,
		pending:   make(map[string]map[string]string),
		logger:    logger,
	}
}

// WithBatchSize sets how many words are buffered before a write.
func (p *Publisher) WithBatchSize(n int) *Publisher {
	if n > 0 {
		p.batchSize = n
	}
	return p
}

// Put buffers one entry. Words without synonyms are stored with an empty
// value so lookups can tell them from unknown words.
func (p *Publisher) Put(ctx context.Context, word string, syns []string) error {
	if word == "" {
		return nil
	}
	key := p.key(word)
	fields, ok := p.pending[key]
	if !ok {
		fields = make(map[string]string)
		p.pending[key] = fields
	}
	if _, dup := fields[word]; !dup {
		p.buffered++
	}
	fields[word] = strings.Join(syns, ",")

	if p.buffered >= p.batchSize {
		return p.Flush(ctx)
	}
	return nil
}

// Flush writes everything buffered.
func (p *Publisher) Flush(ctx context.Context) error {
	if p.buffered == 0 {
		return nil
	}
	items := make([]db.HashSetItem, 0, len(p.pending))
	for key, fields := range p.pending {
		items = append(items, db.HashSetItem{Key: key, Fields: fields})
	}
	if err := p.store.HSetMulti(ctx, items); err != nil {
		return fmt.Errorf("publish synonyms: %w", err)
	}

	p.published += p.buffered
	p.logger.Debug("Synonyms published",
		zap.String("set", p.set),
		zap.Int("words", p.buffered),
		zap.Int("total", p.published),
	)
	p.pending = make(map[string]map[string]string)
	p.buffered = 0
	return nil
}

// Published returns the number of words written so far.
func (p *Publisher) Published() int { return p.published }

// Reset deletes every bucket of the set and drops buffered entries.
func (p *Publisher) Reset(ctx context.Context) error {
	for i := range Buckets {
		if err := p.store.Del(ctx, p.bucketKey(i)); err != nil {
			return fmt.Errorf("reset synonyms: %w", err)
		}
	}
	p.pending = make(map[string]map[string]string)
	p.buffered = 0
	p.published = 0
	return nil
}

// Lookup returns the published synonyms of word. ok is false for words that
// were never published.
func (p *Publisher) Lookup(ctx context.Context, word string) (syns []string, ok bool, err error) {
	v, ok, err := p.store.HGet(ctx, p.key(word), word)
	if err != nil {
		return nil, false, fmt.Errorf("lookup synonyms: %w", err)
	}
	if !ok {
		return nil, false, nil
	}
	if v == "" {
		return nil, true, nil
	}
	return strings.Split(v, ","), true, nil
}

func (p *Publisher) key(word string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(word))
	return p.bucketKey(int(h.Sum32() % Buckets))
}

func (p *Publisher) bucketKey(i int) string {
	return fmt.Sprintf("%s%s:%02d", keyPrefix, p.set, i)
}
