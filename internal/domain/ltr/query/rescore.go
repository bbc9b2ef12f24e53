package query

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/kailas-cloud/ltrkit/internal/domain"
)

// Rescore defaults.
const (
	DefaultRescoreWindow      = 500
	DefaultMainQueryWeight    = 1.0
	DefaultRescoreQueryWeight = 2.0

	// ScoreModeTotal sums the weighted baseline and rescore scores.
	ScoreModeTotal = "total"

	rescoreKey = "rescore"
)

// Rescore is the second-stage clause stored under the request's "rescore" key.
type Rescore struct {
	WindowSize int          `json:"window_size"`
	Query      RescoreQuery `json:"query"`
}

// RescoreQuery combines the baseline score with the model score.
type RescoreQuery struct {
	RescoreQuery       RescoreSLTR `json:"rescore_query"`
	ScoreMode          string      `json:"score_mode"`
	QueryWeight        float64     `json:"query_weight"`
	RescoreQueryWeight float64     `json:"rescore_query_weight"`
}

// RescoreSLTR wraps the model-scoring sltr query.
type RescoreSLTR struct {
	SLTR SLTR `json:"sltr"`
}

type rescoreOptions struct {
	window        int
	queryWeight   float64
	rescoreWeight float64
}

// RescoreOption overrides a rescore default.
type RescoreOption func(*rescoreOptions)

// WithWindowSize sets how many top baseline hits are rescored.
func WithWindowSize(n int) RescoreOption {
	return func(o *rescoreOptions) { o.window = n }
}

// WithQueryWeight sets the baseline query weight.
func WithQueryWeight(w float64) RescoreOption {
	return func(o *rescoreOptions) { o.queryWeight = w }
}

// WithRescoreQueryWeight sets the model query weight.
func WithRescoreQueryWeight(w float64) RescoreOption {
	return func(o *rescoreOptions) { o.rescoreWeight = w }
}

// NewRescore builds a rescore stage scoring the window with model from store.
// The user query is passed as keywords and, split on whitespace, as skus.
// Model and store names are resolved by the engine.
func NewRescore(userQuery, clickPriorQuery, model, store string, opts ...RescoreOption) (Rescore, error) {
	o := rescoreOptions{
		window:        DefaultRescoreWindow,
		queryWeight:   DefaultMainQueryWeight,
		rescoreWeight: DefaultRescoreQueryWeight,
	}
	for _, opt := range opts {
		opt(&o)
	}

	if strings.TrimSpace(userQuery) == "" {
		return Rescore{}, fmt.Errorf("%w: user query is required", domain.ErrInvalidArgument)
	}
	if o.window <= 0 {
		return Rescore{}, fmt.Errorf("%w: window size must be positive, got %d", domain.ErrInvalidArgument, o.window)
	}
	if err := checkWeight("query_weight", o.queryWeight); err != nil {
		return Rescore{}, err
	}
	if err := checkWeight("rescore_query_weight", o.rescoreWeight); err != nil {
		return Rescore{}, err
	}

	return Rescore{
		WindowSize: o.window,
		Query: RescoreQuery{
			RescoreQuery: RescoreSLTR{SLTR: SLTR{
				Model: model,
				Store: store,
				Params: map[string]any{
					"keywords":          userQuery,
					"skus":              strings.Fields(userQuery),
					"click_prior_query": clickPriorQuery,
				},
			}},
			ScoreMode:          ScoreModeTotal,
			QueryWeight:        o.queryWeight,
			RescoreQueryWeight: o.rescoreWeight,
		},
	}, nil
}

func checkWeight(name string, w float64) error {
	if math.IsNaN(w) || math.IsInf(w, 0) || w < 0 {
		return fmt.Errorf("%w: %s must be a finite non-negative number, got %v", domain.ErrInvalidArgument, name, w)
	}
	return nil
}

// WithRescore returns a copy of r whose rescore stage is rs. Any previous
// rescore stage is replaced, and r itself is left unchanged.
func (r Request) WithRescore(rs Rescore) Request {
	out := r.clone()
	rs.Query.RescoreQuery.SLTR.Params = cloneParams(rs.Query.RescoreQuery.SLTR.Params)
	out.Rescore = &rs
	return out
}

// AddRescore installs rs under the top-level "rescore" key of an arbitrary
// JSON request body, replacing any existing value. body is not modified.
func AddRescore(body []byte, rs Rescore) ([]byte, error) {
	if !gjson.ValidBytes(body) || !gjson.ParseBytes(body).IsObject() {
		return nil, fmt.Errorf("%w: request body must be a JSON object", domain.ErrInvalidArgument)
	}

	raw, err := json.Marshal(rs)
	if err != nil {
		return nil, fmt.Errorf("marshal rescore: %w", err)
	}

	in := make([]byte, len(body))
	copy(in, body)

	out, err := sjson.SetRawBytes(in, rescoreKey, raw)
	if err != nil {
		return nil, fmt.Errorf("set rescore: %w", err)
	}
	return out, nil
}
