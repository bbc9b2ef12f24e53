// Package chi exposes the query builders and the feature extractor over HTTP.
package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	chirouter "github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/ltrkit/internal/domain"
	"github.com/kailas-cloud/ltrkit/internal/domain/ltr/features"
	"github.com/kailas-cloud/ltrkit/internal/domain/ltr/query"
	logpkg "github.com/kailas-cloud/ltrkit/internal/logger"
	"github.com/kailas-cloud/ltrkit/internal/usecase/featurelog"
	healthuc "github.com/kailas-cloud/ltrkit/internal/usecase/health"
)

const maxBodyBytes = 32 << 20

// Error codes returned in ErrorResponse.Code.
const (
	CodeBadRequest       = "bad_request"
	CodeUnauthorized     = "unauthorized"
	CodeValidationFailed = "validation_failed"
	CodeFormatError      = "format_error"
	CodeSchemaError      = "schema_error"
	CodeDataFormatError  = "data_format_error"
	CodeTrainingError    = "training_error"
	CodeEngineError      = "engine_error"
	CodeEmbeddingError   = "embedding_provider_error"
	CodeQuotaExceeded    = "embedding_quota_exceeded"
	CodeNotFound         = "not_found"
	CodeNotImplemented   = "not_implemented"
	CodeInternalError    = "internal_error"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Defaults fill request fields the caller leaves empty. A zero RescoreWindow
// means query.DefaultRescoreWindow; weights are used as given.
type Defaults struct {
	Store         string
	FeatureSet    string
	Model         string
	FeatureNames  []string
	LogSize       int
	TermsField    string
	RescoreWindow int
	QueryWeight   float64
	RescoreWeight float64
}

// FeatureLogger runs feature logging for a judgment batch.
type FeatureLogger interface {
	Log(ctx context.Context, judgments []featurelog.Judgment) (*featurelog.Result, error)
}

// SynonymLookup reads a published synonym set.
type SynonymLookup interface {
	Lookup(ctx context.Context, word string) (syns []string, ok bool, err error)
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server holds the HTTP handlers.
type Server struct {
	defaults      Defaults
	featureLog    FeatureLogger
	synonyms      SynonymLookup
	health        *healthuc.Service
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(defaults Defaults, health *healthuc.Service, logger *zap.Logger) *Server {
	if defaults.RescoreWindow <= 0 {
		defaults.RescoreWindow = query.DefaultRescoreWindow
	}
	s := &Server{
		defaults: defaults,
		health:   health,
		logger:   logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrInvalidArgument, http.StatusBadRequest, CodeValidationFailed),
		sentinelHandler(domain.ErrFormat, http.StatusBadRequest, CodeFormatError),
		sentinelHandler(domain.ErrSchema, http.StatusBadRequest, CodeSchemaError),
		sentinelHandler(domain.ErrDataFormat, http.StatusUnprocessableEntity, CodeDataFormatError),
		sentinelHandler(domain.ErrNotFound, http.StatusNotFound, CodeNotFound),
		sentinelHandler(domain.ErrTraining, http.StatusBadGateway, CodeTrainingError),
		sentinelHandler(domain.ErrEngine, http.StatusBadGateway, CodeEngineError),
		sentinelHandler(domain.ErrEmbeddingProviderError, http.StatusBadGateway, CodeEmbeddingError),
		sentinelHandler(domain.ErrEmbeddingQuotaExceeded, http.StatusTooManyRequests, CodeQuotaExceeded),
	}
	return s
}

// WithFeatureLogger enables POST /v1/features/log.
func (s *Server) WithFeatureLogger(fl FeatureLogger) *Server {
	s.featureLog = fl
	return s
}

// WithSynonyms enables GET /v1/synonyms/{word}.
func (s *Server) WithSynonyms(l SynonymLookup) *Server {
	s.synonyms = l
	return s
}

// BuildFeatureLogQuery handles POST /v1/queries/feature-log.
func (s *Server) BuildFeatureLogQuery(w http.ResponseWriter, r *http.Request) {
	var p query.FeatureLogParams
	if !s.decode(w, r, &p) {
		return
	}
	if p.FeatureSet == "" {
		p.FeatureSet = s.defaults.FeatureSet
	}
	if p.Store == "" {
		p.Store = s.defaults.Store
	}
	if p.Size <= 0 {
		p.Size = s.defaults.LogSize
	}
	if p.TermsField == "" {
		p.TermsField = s.defaults.TermsField
	}
	if p.Truncates() {
		logpkg.FromContext(r.Context(), s.logger).Warn("Feature log size smaller than candidate list",
			zap.Int("size", p.Size),
			zap.Int("doc_ids", len(p.DocIDs)),
		)
	}

	writeJSON(w, http.StatusOK, query.BuildFeatureLog(p))
}

// RescoreRequest is the body of POST /v1/queries/rescore.
type RescoreRequest struct {
	Query              json.RawMessage `json:"query"`
	UserQuery          string          `json:"user_query"`
	ClickPriorQuery    string          `json:"click_prior_query"`
	Model              string          `json:"model"`
	Store              string          `json:"store"`
	WindowSize         *int            `json:"window_size"`
	QueryWeight        *float64        `json:"query_weight"`
	RescoreQueryWeight *float64        `json:"rescore_query_weight"`
}

// AddRescore handles POST /v1/queries/rescore.
func (s *Server) AddRescore(w http.ResponseWriter, r *http.Request) {
	var req RescoreRequest
	if !s.decode(w, r, &req) {
		return
	}
	if len(req.Query) == 0 {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, "query is required")
		return
	}
	if req.Model == "" {
		req.Model = s.defaults.Model
	}
	if req.Store == "" {
		req.Store = s.defaults.Store
	}

	opts := []query.RescoreOption{
		query.WithWindowSize(s.defaults.RescoreWindow),
		query.WithQueryWeight(s.defaults.QueryWeight),
		query.WithRescoreQueryWeight(s.defaults.RescoreWeight),
	}
	if req.WindowSize != nil {
		opts = append(opts, query.WithWindowSize(*req.WindowSize))
	}
	if req.QueryWeight != nil {
		opts = append(opts, query.WithQueryWeight(*req.QueryWeight))
	}
	if req.RescoreQueryWeight != nil {
		opts = append(opts, query.WithRescoreQueryWeight(*req.RescoreQueryWeight))
	}

	rs, err := query.NewRescore(req.UserQuery, req.ClickPriorQuery, req.Model, req.Store, opts...)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	out, err := query.AddRescore(req.Query, rs)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out)
}

// ExtractRequest is the body of POST /v1/features/extract.
type ExtractRequest struct {
	QueryID      int64             `json:"query_id"`
	Hits         []json.RawMessage `json:"hits"`
	FeatureNames []string          `json:"feature_names"`
}

// RowResponse is one extracted feature row.
type RowResponse struct {
	DocID   int64     `json:"doc_id"`
	QueryID int64     `json:"query_id"`
	SKU     int64     `json:"sku"`
	Values  []float64 `json:"values"`
	Grade   *float64  `json:"grade,omitempty"`
}

// TableResponse is a feature table in JSON form.
type TableResponse struct {
	Columns []string      `json:"columns"`
	Rows    []RowResponse `json:"rows"`
}

// ExtractFeatures handles POST /v1/features/extract. With ?format=csv the
// table is returned as CSV.
func (s *Server) ExtractFeatures(w http.ResponseWriter, r *http.Request) {
	var req ExtractRequest
	if !s.decode(w, r, &req) {
		return
	}
	names := req.FeatureNames
	if len(names) == 0 {
		names = s.defaults.FeatureNames
	}

	table, err := features.Extract(req.Hits, req.QueryID, names)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	if r.URL.Query().Get("format") == "csv" {
		w.Header().Set("Content-Type", "text/csv")
		w.WriteHeader(http.StatusOK)
		if err := table.WriteCSV(w); err != nil {
			s.logger.Error("write csv", zap.Error(err))
		}
		return
	}
	writeJSON(w, http.StatusOK, tableToResponse(table, nil))
}

// LogRequest is the body of POST /v1/features/log.
type LogRequest struct {
	Judgments []JudgmentRequest `json:"judgments"`
}

// JudgmentRequest is one graded (query, document) pair.
type JudgmentRequest struct {
	QueryID int64   `json:"query_id"`
	Query   string  `json:"query"`
	DocID   string  `json:"doc_id"`
	Grade   float64 `json:"grade"`
}

// LogFeatures handles POST /v1/features/log: it runs the feature-logging
// queries against the search engine and returns graded rows.
func (s *Server) LogFeatures(w http.ResponseWriter, r *http.Request) {
	if s.featureLog == nil {
		writeError(w, http.StatusNotImplemented, CodeNotImplemented, "feature logging is not configured")
		return
	}
	var req LogRequest
	if !s.decode(w, r, &req) {
		return
	}
	if len(req.Judgments) == 0 {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, "judgments are required")
		return
	}

	js := make([]featurelog.Judgment, len(req.Judgments))
	for i, j := range req.Judgments {
		if j.DocID == "" || j.Query == "" {
			writeError(w, http.StatusBadRequest, CodeValidationFailed, "every judgment needs query and doc_id")
			return
		}
		js[i] = featurelog.Judgment{QueryID: j.QueryID, Query: j.Query, DocID: j.DocID, Grade: j.Grade}
	}

	res, err := s.featureLog.Log(r.Context(), js)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tableToResponse(res.Table, res.Grades))
}

// SynonymsResponse is the body of GET /v1/synonyms/{word}.
type SynonymsResponse struct {
	Word     string   `json:"word"`
	Synonyms []string `json:"synonyms"`
}

// GetSynonyms handles GET /v1/synonyms/{word}.
func (s *Server) GetSynonyms(w http.ResponseWriter, r *http.Request) {
	if s.synonyms == nil {
		writeError(w, http.StatusNotImplemented, CodeNotImplemented, "synonym lookup is not configured")
		return
	}
	word := chirouter.URLParam(r, "word")
	syns, ok, err := s.synonyms.Lookup(r.Context(), word)
	if err != nil {
		s.logger.Error("synonym lookup failed", zap.String("word", word), zap.Error(err))
		writeError(w, http.StatusInternalServerError, CodeInternalError, "internal error")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, CodeNotFound, "word "+word+" has no published synonyms")
		return
	}
	if syns == nil {
		syns = []string{}
	}
	writeJSON(w, http.StatusOK, SynonymsResponse{Word: word, Synonyms: syns})
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}
	writeJSON(w, httpStatus, HealthResponse{Status: string(report.Status), Checks: checks})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func tableToResponse(t *features.Table, grades []float64) TableResponse {
	resp := TableResponse{Columns: t.Columns(), Rows: make([]RowResponse, len(t.Rows))}
	for i, row := range t.Rows {
		resp.Rows[i] = RowResponse{
			DocID:   row.DocID,
			QueryID: row.QueryID,
			SKU:     row.SKU,
			Values:  row.Values,
		}
		if grades != nil {
			g := grades[i]
			resp.Rows[i].Grade = &g
		}
	}
	return resp
}

// decode reads a JSON body into v, writing a 400 on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Code: code, Message: message})
}

// clientMessage returns the error text for client-side failures and the bare
// sentinel for upstream ones so engine bodies and stderr stay in the logs.
func clientMessage(err error) string {
	for _, s := range []error{domain.ErrInvalidArgument, domain.ErrFormat, domain.ErrSchema, domain.ErrDataFormat} {
		if errors.Is(err, s) {
			return err.Error()
		}
	}
	for _, s := range []error{
		domain.ErrNotFound,
		domain.ErrTraining,
		domain.ErrEngine,
		domain.ErrEmbeddingProviderError,
		domain.ErrEmbeddingQuotaExceeded,
	} {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := clientMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, CodeInternalError, "internal error")
}
