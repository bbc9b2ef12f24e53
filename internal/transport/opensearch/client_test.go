package opensearch

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/tidwall/gjson"

	"github.com/kailas-cloud/ltrkit/internal/domain"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c, err := NewClient(Config{Addrs: []string{srv.URL}})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

const searchResponse = `{
  "took": 3,
  "hits": {
    "total": {"value": 2, "relation": "eq"},
    "hits": [
      {"_id": "42", "fields": {"_ltrlog": [{"log_entry": [{"name": "name_match"}]}]}},
      {"_id": "43", "fields": {"_ltrlog": [{"log_entry": [{"name": "name_match", "value": 1.5}]}]}}
    ]
  }
}`

func TestSearch_ReturnsHitsInOrder(t *testing.T) {
	var gotPath string
	var gotBody []byte
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(searchResponse))
	})

	body := []byte(`{"size":2,"query":{"match_all":{}}}`)
	hits, err := c.Search(context.Background(), "bbuy_products", body)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	if gotPath != "/bbuy_products/_search" {
		t.Errorf("path = %q", gotPath)
	}
	if string(gotBody) != string(body) {
		t.Errorf("body = %s", gotBody)
	}
	if len(hits) != 2 {
		t.Fatalf("hits = %d, want 2", len(hits))
	}
	if id := gjson.GetBytes(hits[1], "_id").String(); id != "43" {
		t.Errorf("second hit id = %q", id)
	}
	if !json.Valid(hits[0]) {
		t.Error("hit is not valid JSON")
	}
}

func TestSearch_EngineError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"type":"illegal_argument_exception","reason":"Unknown featureset [nope]"}}`))
	})

	_, err := c.Search(context.Background(), "bbuy_products", []byte(`{}`))
	if !errors.Is(err, domain.ErrEngine) {
		t.Fatalf("expected ErrEngine, got %v", err)
	}
	var ee *domain.EngineError
	if !errors.As(err, &ee) || ee.Status != http.StatusBadRequest {
		t.Fatalf("expected EngineError with 400, got %v", err)
	}
	if gjson.Get(ee.Body, "error.reason").String() != "Unknown featureset [nope]" {
		t.Errorf("body = %s", ee.Body)
	}
}

func TestSearch_NoHits(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"acknowledged":true}`))
	})

	_, err := c.Search(context.Background(), "idx", []byte(`{}`))
	if !errors.Is(err, domain.ErrFormat) {
		t.Errorf("expected ErrFormat, got %v", err)
	}
}

func TestSearch_EmptyHits(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"hits":{"hits":[]}}`))
	})

	hits, err := c.Search(context.Background(), "idx", []byte(`{}`))
	if err != nil {
		t.Fatal(err)
	}
	if hits == nil || len(hits) != 0 {
		t.Errorf("hits = %v, want empty slice", hits)
	}
}

func TestSearch_RecordsDuration(t *testing.T) {
	h := prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: "test_engine_seconds"}, []string{"op", "status"})
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"hits":{"hits":[]}}`))
	}).WithDurationMetric(h)

	if _, err := c.Search(context.Background(), "idx", []byte(`{}`)); err != nil {
		t.Fatal(err)
	}
	if n := testutil.CollectAndCount(h); n != 1 {
		t.Errorf("series = %d, want 1", n)
	}
}

func TestCreateModel(t *testing.T) {
	var gotPath, gotMethod string
	var payload []byte
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotMethod = r.URL.Path, r.Method
		payload, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"_id":"model-ltr_model","result":"created"}`))
	})

	def := []byte(`[{"nodeid":0,"leaf":0.1}]`)
	err := c.CreateModel(context.Background(), "week1", "bbuy_main_featureset", "ltr_model", ModelTypeXGBoost, def)
	if err != nil {
		t.Fatalf("CreateModel: %v", err)
	}

	if gotMethod != http.MethodPost || gotPath != "/_ltr/week1/_featureset/bbuy_main_featureset/_createmodel" {
		t.Errorf("request = %s %s", gotMethod, gotPath)
	}
	doc := gjson.ParseBytes(payload)
	if doc.Get("model.name").String() != "ltr_model" {
		t.Errorf("name = %s", doc.Get("model.name").Raw)
	}
	if doc.Get("model.model.type").String() != ModelTypeXGBoost {
		t.Errorf("type = %s", doc.Get("model.model.type").Raw)
	}
	if doc.Get("model.model.definition").String() != string(def) {
		t.Errorf("definition = %s", doc.Get("model.model.definition").Raw)
	}
}

func TestCreateModel_Conflict(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error":"version_conflict_engine_exception"}`))
	})

	err := c.CreateModel(context.Background(), "week1", "fs", "m", ModelTypeXGBoost, []byte(`[]`))
	var ee *domain.EngineError
	if !errors.As(err, &ee) || ee.Status != http.StatusConflict {
		t.Fatalf("expected EngineError 409, got %v", err)
	}
}

func TestPing(t *testing.T) {
	healthy := true
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodHead || r.URL.Path != "/" {
			t.Errorf("unexpected ping %s %s", r.Method, r.URL.Path)
		}
		if !healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	})

	if err := c.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	healthy = false
	if err := c.Ping(context.Background()); !errors.Is(err, domain.ErrEngine) {
		t.Errorf("expected ErrEngine, got %v", err)
	}
}

func TestNewClient_RequiresAddrs(t *testing.T) {
	if _, err := NewClient(Config{}); err == nil {
		t.Fatal("expected error")
	}
}
