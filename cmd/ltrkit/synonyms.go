package main

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kailas-cloud/ltrkit/internal/db"
	"github.com/kailas-cloud/ltrkit/internal/domain"
	"github.com/kailas-cloud/ltrkit/internal/embedding"
	"github.com/kailas-cloud/ltrkit/internal/metrics"
	"github.com/kailas-cloud/ltrkit/internal/repository/budget"
	"github.com/kailas-cloud/ltrkit/internal/repository/embcache"
	"github.com/kailas-cloud/ltrkit/internal/repository/synonyms"
	openaiEmb "github.com/kailas-cloud/ltrkit/internal/transport/openai"
	embeddingUC "github.com/kailas-cloud/ltrkit/internal/usecase/embedding"
	"github.com/kailas-cloud/ltrkit/internal/usecase/synonym"
)

func newSynonymsCmd(a *app) *cobra.Command {
	sc := &a.cfg.Synonyms
	var (
		modelPath, vocabPath, outPath, format string
		threshold                             float64
		neighbors                             int
		publish                               bool
	)
	cmd := &cobra.Command{
		Use:   "synonyms",
		Short: "Write a synonym line for every vocabulary word using an embedding model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			flags := cmd.Flags()
			if flags.Changed("model") {
				sc.ModelPath = modelPath
			}
			if flags.Changed("vocabulary") {
				sc.VocabularyPath = vocabPath
			}
			if flags.Changed("output") {
				sc.OutputPath = outPath
			}
			if flags.Changed("model-format") {
				sc.ModelFormat = format
			}
			if flags.Changed("threshold") {
				sc.Threshold = &threshold
			}
			if flags.Changed("neighbors") {
				sc.Neighbors = neighbors
			}
			if flags.Changed("publish") {
				sc.Publish = publish
			}
			if err := a.cfg.Validate(); err != nil {
				return err
			}
			return a.runSynonyms(cmd)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&modelPath, "model", "m", "", "word vectors in .vec text format (overrides synonyms.model_path)")
	f.StringVar(&format, "model-format", "", "vec or openai (overrides synonyms.model_format)")
	f.StringVarP(&vocabPath, "vocabulary", "i", "", "one word per line (overrides synonyms.vocabulary_path)")
	f.StringVarP(&outPath, "output", "o", "", "output file, - for stdout (overrides synonyms.output_path)")
	f.Float64Var(&threshold, "threshold", 0, "minimum similarity (overrides synonyms.threshold)")
	f.IntVar(&neighbors, "neighbors", 0, "neighbours considered per word (overrides synonyms.neighbors)")
	f.BoolVar(&publish, "publish", false, "also publish synonyms to Valkey (overrides synonyms.publish)")
	return cmd
}

func (a *app) runSynonyms(cmd *cobra.Command) error {
	ctx := cmd.Context()
	sc := a.cfg.Synonyms

	in, err := openInput(cmd, sc.VocabularyPath)
	if err != nil {
		return err
	}
	vocab, err := io.ReadAll(in)
	_ = in.Close()
	if err != nil {
		return fmt.Errorf("read vocabulary: %w", err)
	}

	var store db.Store
	if sc.Publish || (sc.ModelFormat == "openai" && len(a.cfg.Database.Addrs) > 0) {
		s, err := a.openStore(ctx)
		if err != nil {
			return err
		}
		if s != nil {
			defer s.Close()
			store = s
		}
	}

	model, err := a.loadWordModel(ctx, store, vocab)
	if err != nil {
		return err
	}

	svc := synonym.New(model, synonym.Config{Threshold: sc.Threshold, Neighbors: sc.Neighbors}, a.logger).
		WithCounters(metrics.SynonymWordsTotal, metrics.SynonymsTotal)
	var pub *synonyms.Publisher
	if sc.Publish && store != nil {
		pub = synonyms.New(store, sc.Set, a.logger)
		if err := pub.Reset(ctx); err != nil {
			return err
		}
		svc.WithSink(pub)
	}

	out, err := createOutput(cmd, sc.OutputPath)
	if err != nil {
		return err
	}
	st, err := svc.Run(ctx, bytes.NewReader(vocab), out)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}

	a.logger.Info("Synonyms written",
		zap.String("output", sc.OutputPath),
		zap.Int("words", st.Words),
		zap.Int("synonyms", st.Synonyms),
	)
	if pub != nil {
		a.logger.Info("Synonyms published", zap.String("set", sc.Set), zap.Int("words", pub.Published()))
	}
	return nil
}

// loadWordModel builds the nearest-neighbour index: from a .vec file, or by
// embedding the vocabulary through the configured provider.
func (a *app) loadWordModel(ctx context.Context, store db.Store, vocab []byte) (*embedding.Index, error) {
	sc := a.cfg.Synonyms
	if sc.ModelFormat == "vec" {
		if sc.ModelPath == "" {
			return nil, fmt.Errorf("%w: synonyms.model_path is required for vec models", domain.ErrInvalidArgument)
		}
		ix, err := embedding.LoadVecFile(ctx, sc.ModelPath, sc.VectorLimit)
		if err != nil {
			return nil, err
		}
		a.logger.Info("Word vectors loaded", zap.Int("words", ix.Len()), zap.Int("dim", ix.Dim()))
		return ix, nil
	}

	embedder, err := a.buildEmbedder(ctx, store)
	if err != nil {
		return nil, err
	}
	ix, err := embedding.EmbedVocabulary(ctx, embedder, vocabularyWords(vocab), 0)
	if err != nil {
		return nil, err
	}
	ix.WithQueryEmbedder(embedder)
	a.logger.Info("Vocabulary embedded",
		zap.String("model", a.cfg.Embedding.Model),
		zap.Int("words", ix.Len()),
		zap.Int("dim", ix.Dim()),
	)
	return ix, nil
}

// buildEmbedder assembles OpenAI -> budget guard -> cache. The guard and the
// cache counters persist in Valkey when a store is available.
func (a *app) buildEmbedder(ctx context.Context, store db.Store) (domain.Embedder, error) {
	ec := a.cfg.Embedding
	var embedder domain.Embedder = a.providerEmbedder()

	action, err := embeddingUC.ParseBudgetAction(ec.Budget.Action)
	if err != nil {
		return nil, err
	}
	tracker := embeddingUC.NewBudgetTracker(
		ec.Provider, ec.Budget.DailyTokenLimit, ec.Budget.MonthlyTokenLimit, action, a.logger,
	)
	if store != nil {
		tracker.WithStore(ctx, budget.New(store, budget.DefaultDailyTTL, budget.DefaultMonthlyTTL))
	}
	embedder = embeddingUC.NewInstrumentedEmbedder(embedder, ec.Provider, ec.Model, tracker, a.logger)

	if store != nil {
		embedder = embcache.New(embedder, store, ec.Model, metrics.EmbeddingCacheTotal, a.logger)
	}
	return embedder, nil
}

func (a *app) providerEmbedder() *openaiEmb.Embedder {
	ec := a.cfg.Embedding
	return openaiEmb.NewEmbedder(&openaiEmb.Config{
		APIKey:     ec.APIKey,
		BaseURL:    ec.BaseURL,
		Model:      ec.Model,
		Dimensions: ec.Dimensions,
		Provider:   ec.Provider,
		Logger:     a.logger,
	})
}

// vocabularyWords returns the distinct non-blank words of a vocabulary file.
func vocabularyWords(vocab []byte) []string {
	seen := make(map[string]struct{})
	var words []string
	sc := bufio.NewScanner(bytes.NewReader(vocab))
	for sc.Scan() {
		w := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(w) == "" {
			continue
		}
		if _, ok := seen[w]; ok {
			continue
		}
		seen[w] = struct{}{}
		words = append(words, w)
	}
	return words
}
