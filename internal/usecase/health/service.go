package health

import (
	"context"

	"go.uber.org/zap"
)

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates an optional component is failing.
	Degraded Status = "degraded"
	// Unhealthy indicates the search engine is unreachable.
	Unhealthy Status = "error"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// Component names reported in Report.Checks.
const (
	ComponentSearch    = "opensearch"
	ComponentDatabase  = "database"
	ComponentEmbedding = "embedding"
)

// Report aggregates health check results.
type Report struct {
	Status Status
	Checks map[string]CheckResult
}

// Service coordinates health checks.
type Service struct {
	search    Pinger
	db        Pinger
	embedding EmbeddingChecker
	logger    *zap.Logger
}

// New creates a Service. search is required; the rest is wired with the
// With* options when configured.
func New(search Pinger, logger *zap.Logger) *Service {
	return &Service{search: search, logger: logger}
}

// WithDatabase adds the Valkey check.
func (s *Service) WithDatabase(db Pinger) *Service {
	s.db = db
	return s
}

// WithEmbedding adds the embedding provider check.
func (s *Service) WithEmbedding(e EmbeddingChecker) *Service {
	s.embedding = e
	return s
}

// Check runs health checks against all components.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult)

	checks[ComponentSearch] = s.result(ComponentSearch, s.search.Ping(ctx))
	if s.db != nil {
		checks[ComponentDatabase] = s.result(ComponentDatabase, s.db.Ping(ctx))
	}
	if s.embedding != nil {
		checks[ComponentEmbedding] = s.result(ComponentEmbedding, s.embedding.HealthCheck(ctx))
	}

	status := Healthy
	for _, v := range checks {
		if v == CheckError {
			status = Degraded
			break
		}
	}
	if checks[ComponentSearch] == CheckError {
		status = Unhealthy
	}

	return Report{Status: status, Checks: checks}
}

func (s *Service) result(component string, err error) CheckResult {
	if err != nil {
		s.logger.Warn("Health check failed", zap.String("component", component), zap.Error(err))
		return CheckError
	}
	return CheckOK
}
