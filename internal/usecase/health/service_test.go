package health

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
)

// --- Mocks ---

type mockPinger struct {
	err error
}

func (m *mockPinger) Ping(_ context.Context) error { return m.err }

type mockEmbeddingChecker struct {
	err error
}

func (m *mockEmbeddingChecker) HealthCheck(_ context.Context) error { return m.err }

// --- Tests ---

func TestCheck(t *testing.T) {
	down := errors.New("conn refused")

	tests := []struct {
		name      string
		search    error
		db        *mockPinger
		embedding *mockEmbeddingChecker
		want      Status
		checks    map[string]CheckResult
	}{
		{
			name:      "all healthy",
			db:        &mockPinger{},
			embedding: &mockEmbeddingChecker{},
			want:      Healthy,
			checks: map[string]CheckResult{
				ComponentSearch: CheckOK, ComponentDatabase: CheckOK, ComponentEmbedding: CheckOK,
			},
		},
		{
			name:   "search only",
			want:   Healthy,
			checks: map[string]CheckResult{ComponentSearch: CheckOK},
		},
		{
			name:   "search down",
			search: down,
			db:     &mockPinger{},
			want:   Unhealthy,
			checks: map[string]CheckResult{ComponentSearch: CheckError, ComponentDatabase: CheckOK},
		},
		{
			name:   "database down",
			db:     &mockPinger{err: down},
			want:   Degraded,
			checks: map[string]CheckResult{ComponentSearch: CheckOK, ComponentDatabase: CheckError},
		},
		{
			name:      "embedding down",
			embedding: &mockEmbeddingChecker{err: errors.New("timeout")},
			want:      Degraded,
			checks:    map[string]CheckResult{ComponentSearch: CheckOK, ComponentEmbedding: CheckError},
		},
		{
			name:      "everything down",
			search:    down,
			db:        &mockPinger{err: down},
			embedding: &mockEmbeddingChecker{err: down},
			want:      Unhealthy,
			checks: map[string]CheckResult{
				ComponentSearch: CheckError, ComponentDatabase: CheckError, ComponentEmbedding: CheckError,
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc := New(&mockPinger{err: tc.search}, zap.NewNop())
			if tc.db != nil {
				svc.WithDatabase(tc.db)
			}
			if tc.embedding != nil {
				svc.WithEmbedding(tc.embedding)
			}

			r := svc.Check(context.Background())
			if r.Status != tc.want {
				t.Errorf("status = %q, want %q", r.Status, tc.want)
			}
			if len(r.Checks) != len(tc.checks) {
				t.Errorf("checks = %v, want %v", r.Checks, tc.checks)
			}
			for k, v := range tc.checks {
				if r.Checks[k] != v {
					t.Errorf("%s = %q, want %q", k, r.Checks[k], v)
				}
			}
		})
	}
}
