// Package featurelog turns a judgment list into a training set: it logs
// feature values for every judged document through the search engine and
// pairs them with the grades.
package featurelog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kailas-cloud/ltrkit/internal/domain"
	"github.com/kailas-cloud/ltrkit/internal/domain/ltr/features"
	"github.com/kailas-cloud/ltrkit/internal/domain/ltr/query"
	"github.com/kailas-cloud/ltrkit/internal/svmlight"
)

// Config names the index and feature set to log against.
type Config struct {
	Index      string
	Store      string
	FeatureSet string
	Names      []string // declared feature order; nil means features.DefaultNames
	LogSize    int
	TermsField string // must be "" or "_id"; hits are joined to judgments on _id
}

// Result is a logged training set. Grades[i] belongs to Table.Rows[i].
type Result struct {
	Table  *features.Table
	Grades []float64
}

// Service logs features for judgments.
type Service struct {
	searcher Searcher
	cfg      Config
	rows     prometheus.Counter
	logger   *zap.Logger
}

// New creates a Service.
func New(searcher Searcher, cfg Config, logger *zap.Logger) *Service {
	if cfg.Names == nil {
		cfg.Names = features.DefaultNames
	}
	return &Service{searcher: searcher, cfg: cfg, logger: logger}
}

// WithRowsCounter counts extracted rows.
func (s *Service) WithRowsCounter(c prometheus.Counter) *Service {
	s.rows = c
	return s
}

// Log runs one feature-logging query per judged query and returns the
// combined table. Documents the engine does not return are skipped. Any
// engine or extraction error aborts the batch.
func (s *Service) Log(ctx context.Context, judgments []Judgment) (*Result, error) {
	if s.cfg.TermsField != "" && s.cfg.TermsField != query.DefaultTermsField {
		return nil, fmt.Errorf("terms field %q: judgments are matched on %s: %w",
			s.cfg.TermsField, query.DefaultTermsField, domain.ErrInvalidArgument)
	}
	if err := features.ValidateNames(s.cfg.Names); err != nil {
		return nil, err
	}

	res := &Result{Table: features.NewTable(s.cfg.Names)}

	for _, g := range Group(judgments) {
		params := query.FeatureLogParams{
			Query:      g.Query,
			DocIDs:     g.DocIDs,
			FeatureSet: s.cfg.FeatureSet,
			Store:      s.cfg.Store,
			Size:       s.cfg.LogSize,
			TermsField: s.cfg.TermsField,
		}
		if params.Truncates() {
			s.logger.Warn("Feature log size smaller than judged documents",
				zap.Int64("query_id", g.QueryID),
				zap.Int("judged", len(g.DocIDs)),
				zap.Int("size", params.Size),
			)
		}

		body, err := json.Marshal(query.BuildFeatureLog(params))
		if err != nil {
			return nil, fmt.Errorf("encode query %d: %w", g.QueryID, err)
		}
		hits, err := s.searcher.Search(ctx, s.cfg.Index, body)
		if err != nil {
			return nil, fmt.Errorf("query %d: %w", g.QueryID, err)
		}
		table, err := features.Extract(hits, g.QueryID, s.cfg.Names)
		if err != nil {
			return nil, fmt.Errorf("query %d: %w", g.QueryID, err)
		}

		kept := 0
		for _, row := range table.Rows {
			grade, ok := g.Grades[row.ID]
			if !ok {
				continue
			}
			res.Table.Rows = append(res.Table.Rows, row)
			res.Grades = append(res.Grades, grade)
			kept++
		}
		if s.rows != nil {
			s.rows.Add(float64(kept))
		}

		s.logger.Debug("Logged features",
			zap.Int64("query_id", g.QueryID),
			zap.Int("judged", len(g.DocIDs)),
			zap.Int("hits", len(hits)),
			zap.Int("rows", kept),
		)
	}

	s.logger.Info("Feature logging finished",
		zap.Int("judgments", len(judgments)),
		zap.Int("rows", res.Table.Len()),
	)
	return res, nil
}

// WriteSVMRank writes the training set as "grade qid:N 1:v ... # doc_id".
func (r *Result) WriteSVMRank(w io.Writer) error {
	sw := svmlight.NewWriter(w)
	for i, row := range r.Table.Rows {
		rec := svmlight.Record{
			Label:    r.Grades[i],
			QID:      row.QueryID,
			HasQID:   true,
			Features: svmlight.Dense(row.Values),
			Comment:  docLabel(row),
		}
		if err := sw.Write(rec); err != nil {
			return err
		}
	}
	return sw.Flush()
}

func docLabel(row features.Row) string {
	if row.ID != "" {
		return row.ID
	}
	return strconv.FormatInt(row.DocID, 10)
}
