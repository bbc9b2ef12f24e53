package featurelog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/kailas-cloud/ltrkit/internal/domain"
)

var judgmentHeader = []string{"query_id", "query", "doc_id", "grade"}

// Judgment is one graded (query, document) pair.
type Judgment struct {
	QueryID int64
	Query   string
	DocID   string
	Grade   float64
}

// QueryGroup is the set of judged documents for one query, in file order.
type QueryGroup struct {
	QueryID int64
	Query   string
	Grades  map[string]float64
	DocIDs  []string
}

// ParseJudgments reads a CSV file with header query_id,query,doc_id,grade.
func ParseJudgments(r io.Reader) ([]Judgment, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(judgmentHeader)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("judgments: empty file: %w", domain.ErrDataFormat)
	}
	if err != nil {
		return nil, fmt.Errorf("judgments: %w: %w", domain.ErrDataFormat, err)
	}
	for i, col := range judgmentHeader {
		if strings.TrimSpace(header[i]) != col {
			return nil, fmt.Errorf("judgments: header column %d is %q, want %q: %w",
				i+1, header[i], col, domain.ErrDataFormat)
		}
	}

	var out []Judgment
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("judgments: %w: %w", domain.ErrDataFormat, err)
		}
		line, _ := cr.FieldPos(0)

		qid, err := strconv.ParseInt(rec[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("judgments line %d: query_id %q: %w", line, rec[0], domain.ErrDataFormat)
		}
		grade, err := strconv.ParseFloat(rec[3], 64)
		if err != nil {
			return nil, fmt.Errorf("judgments line %d: grade %q: %w", line, rec[3], domain.ErrDataFormat)
		}
		if rec[2] == "" {
			return nil, fmt.Errorf("judgments line %d: empty doc_id: %w", line, domain.ErrDataFormat)
		}
		out = append(out, Judgment{QueryID: qid, Query: rec[1], DocID: rec[2], Grade: grade})
	}
	return out, nil
}

// Group collects judgments per query id, in order of first appearance.
// A repeated (query, doc) pair keeps the last grade.
func Group(js []Judgment) []QueryGroup {
	index := make(map[int64]int)
	var groups []QueryGroup
	for _, j := range js {
		i, ok := index[j.QueryID]
		if !ok {
			i = len(groups)
			index[j.QueryID] = i
			groups = append(groups, QueryGroup{
				QueryID: j.QueryID,
				Query:   j.Query,
				Grades:  make(map[string]float64),
			})
		}
		g := &groups[i]
		if _, seen := g.Grades[j.DocID]; !seen {
			g.DocIDs = append(g.DocIDs, j.DocID)
		}
		g.Grades[j.DocID] = j.Grade
	}
	return groups
}
