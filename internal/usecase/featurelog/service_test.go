package featurelog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/kailas-cloud/ltrkit/internal/domain"
	"github.com/kailas-cloud/ltrkit/internal/svmlight"
)

// --- Mocks ---

// mockSearcher answers every query with hits for the requested ids that it
// knows about, logging value = doc id for each of the feature names.
type mockSearcher struct {
	known  map[string]bool
	names  int
	err    error
	bodies []string
	index  string
}

func (m *mockSearcher) Search(_ context.Context, index string, body []byte) ([]json.RawMessage, error) {
	m.index = index
	m.bodies = append(m.bodies, string(body))
	if m.err != nil {
		return nil, m.err
	}

	var hits []json.RawMessage
	for _, id := range gjson.GetBytes(body, "query.bool.filter.0.terms._id").Array() {
		if !m.known[id.String()] {
			continue
		}
		entries := make([]string, m.names)
		for i := range entries {
			entries[i] = fmt.Sprintf(`{"value":%s}`, id.String())
		}
		hits = append(hits, json.RawMessage(fmt.Sprintf(
			`{"_id":%q,"fields":{"_ltrlog":[{"log_entry":[%s]}]}}`, id.String(), strings.Join(entries, ","))))
	}
	return hits, nil
}

var names = []string{"f1", "f2"}

func newTestService(s Searcher) *Service {
	return New(s, Config{
		Index:      "bbuy_products",
		Store:      "week1",
		FeatureSet: "bbuy_main_featureset",
		Names:      names,
	}, zap.NewNop())
}

// --- Tests ---

func TestLog_PairsRowsWithGrades(t *testing.T) {
	searcher := &mockSearcher{known: map[string]bool{"10": true, "11": true, "20": true}, names: 2}
	svc := newTestService(searcher)

	res, err := svc.Log(context.Background(), []Judgment{
		{QueryID: 1, Query: "ipad", DocID: "10", Grade: 3},
		{QueryID: 1, Query: "ipad", DocID: "11", Grade: 0},
		{QueryID: 2, Query: "tv", DocID: "20", Grade: 1},
	})
	if err != nil {
		t.Fatalf("Log: %v", err)
	}

	if len(searcher.bodies) != 2 {
		t.Fatalf("queries = %d, want one per query id", len(searcher.bodies))
	}
	if searcher.index != "bbuy_products" {
		t.Errorf("index = %q", searcher.index)
	}
	first := gjson.Parse(searcher.bodies[0])
	if first.Get("query.bool.filter.1.sltr.params.keywords").String() != "ipad" {
		t.Errorf("keywords = %s", first.Get("query.bool.filter.1.sltr.params.keywords").Raw)
	}
	if first.Get("query.bool.filter.1.sltr.featureset").String() != "bbuy_main_featureset" {
		t.Error("featureset not set")
	}

	if res.Table.Len() != 3 || len(res.Grades) != 3 {
		t.Fatalf("rows = %d grades = %d", res.Table.Len(), len(res.Grades))
	}
	if res.Table.Rows[2].QueryID != 2 || res.Grades[2] != 1 {
		t.Errorf("row 2 = %+v grade %v", res.Table.Rows[2], res.Grades[2])
	}
	if res.Table.Rows[0].Values[1] != 10 {
		t.Errorf("values = %v", res.Table.Rows[0].Values)
	}
}

func TestLog_SkipsDocsNotReturned(t *testing.T) {
	searcher := &mockSearcher{known: map[string]bool{"10": true}, names: 2}
	svc := newTestService(searcher)

	res, err := svc.Log(context.Background(), []Judgment{
		{QueryID: 1, Query: "ipad", DocID: "10", Grade: 3},
		{QueryID: 1, Query: "ipad", DocID: "99", Grade: 2},
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Table.Len() != 1 || res.Table.Rows[0].DocID != 10 {
		t.Errorf("rows = %+v", res.Table.Rows)
	}
}

func TestLog_SearchErrorAborts(t *testing.T) {
	searcher := &mockSearcher{err: domain.NewEngineError(400, []byte("bad featureset"))}
	svc := newTestService(searcher)

	_, err := svc.Log(context.Background(), []Judgment{{QueryID: 1, Query: "x", DocID: "1"}})
	if !errors.Is(err, domain.ErrEngine) {
		t.Errorf("expected ErrEngine, got %v", err)
	}
}

func TestLog_SchemaErrorAborts(t *testing.T) {
	searcher := &mockSearcher{known: map[string]bool{"1": true}, names: 1}
	svc := newTestService(searcher)

	_, err := svc.Log(context.Background(), []Judgment{{QueryID: 1, Query: "x", DocID: "1"}})
	if !errors.Is(err, domain.ErrSchema) {
		t.Errorf("expected ErrSchema, got %v", err)
	}
}

func TestLog_CountsRows(t *testing.T) {
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "test_rows_total"})
	searcher := &mockSearcher{known: map[string]bool{"1": true, "2": true}, names: 2}
	svc := newTestService(searcher).WithRowsCounter(counter)

	_, err := svc.Log(context.Background(), []Judgment{
		{QueryID: 1, Query: "a", DocID: "1"},
		{QueryID: 2, Query: "b", DocID: "2"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if got := testutil.ToFloat64(counter); got != 2 {
		t.Errorf("rows counter = %v, want 2", got)
	}
}

func TestResult_WriteSVMRank(t *testing.T) {
	searcher := &mockSearcher{known: map[string]bool{"10": true, "20": true}, names: 2}
	res, err := newTestService(searcher).Log(context.Background(), []Judgment{
		{QueryID: 7, Query: "a", DocID: "10", Grade: 3},
		{QueryID: 8, Query: "b", DocID: "20", Grade: 0},
	})
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := res.WriteSVMRank(&buf); err != nil {
		t.Fatal(err)
	}

	want := "3 qid:7 1:10 2:10 # 10\n0 qid:8 1:20 2:20 # 20\n"
	if buf.String() != want {
		t.Errorf("output =\n%s\nwant\n%s", buf.String(), want)
	}

	st, err := svmlight.Scan(&buf, nil)
	if err != nil {
		t.Fatalf("output does not parse: %v", err)
	}
	if st.Queries != 2 || st.MaxIndex != 2 {
		t.Errorf("stats = %+v", st)
	}
}

func TestLog_JoinsOnRawID(t *testing.T) {
	searcher := &mockSearcher{known: map[string]bool{"0042": true}, names: 2}
	svc := newTestService(searcher)

	res, err := svc.Log(context.Background(), []Judgment{
		{QueryID: 1, Query: "ipad", DocID: "0042", Grade: 2},
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Table.Len() != 1 || res.Grades[0] != 2 {
		t.Fatalf("rows = %+v grades = %v", res.Table.Rows, res.Grades)
	}
	if res.Table.Rows[0].DocID != 42 {
		t.Errorf("doc_id = %d", res.Table.Rows[0].DocID)
	}

	var buf bytes.Buffer
	if err := res.WriteSVMRank(&buf); err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(buf.String(), "# 0042\n") {
		t.Errorf("comment lost raw id: %q", buf.String())
	}
}

func TestLog_RejectsNonIDTermsField(t *testing.T) {
	searcher := &mockSearcher{known: map[string]bool{"1": true}, names: 2}
	svc := New(searcher, Config{Index: "bbuy_products", Names: names, TermsField: "sku"}, zap.NewNop())

	_, err := svc.Log(context.Background(), []Judgment{{QueryID: 1, Query: "x", DocID: "1"}})
	if !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
	if len(searcher.bodies) != 0 {
		t.Errorf("engine queried %d times", len(searcher.bodies))
	}
}

func TestLog_RejectsReservedFeatureName(t *testing.T) {
	searcher := &mockSearcher{known: map[string]bool{"1": true}, names: 2}
	svc := New(searcher, Config{Index: "bbuy_products", Names: []string{"sku", "f"}}, zap.NewNop())

	_, err := svc.Log(context.Background(), []Judgment{{QueryID: 1, Query: "x", DocID: "1"}})
	if !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
}
