// Package svmlight reads and writes the SVMlight / libsvm sparse text format
// used for ranking training data:
//
//	<label> [qid:<n>] <index>:<value> ... [# comment]
package svmlight

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/kailas-cloud/ltrkit/internal/domain"
)

const maxLineBytes = 4 << 20

// Feature is one sparse index:value pair.
type Feature struct {
	Index int
	Value float64
}

// Record is one training example.
type Record struct {
	Label    float64
	QID      int64
	HasQID   bool
	Features []Feature
	Comment  string
}

// Stats summarizes a parsed file.
type Stats struct {
	Records  int
	Queries  int
	MaxIndex int
}

// ParseError reports the first malformed line.
type ParseError struct {
	Line   int
	Reason string
}

func (e *ParseError) Error() string {
	if e.Line == 0 {
		return "svmlight: " + e.Reason
	}
	return fmt.Sprintf("svmlight: line %d: %s", e.Line, e.Reason)
}

func (e *ParseError) Unwrap() error { return domain.ErrDataFormat }

// Scan calls fn for every record in r. Blank and comment-only lines are skipped.
// A file without records is an error.
func Scan(r io.Reader, fn func(Record) error) (Stats, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineBytes)

	var (
		st      Stats
		lineNo  int
		lastQID int64
		seenQID bool
	)
	for sc.Scan() {
		lineNo++
		rec, ok, err := ParseLine(sc.Text())
		if err != nil {
			return st, &ParseError{Line: lineNo, Reason: err.Error()}
		}
		if !ok {
			continue
		}

		st.Records++
		if rec.HasQID && (!seenQID || rec.QID != lastQID) {
			st.Queries++
			lastQID, seenQID = rec.QID, true
		}
		if n := len(rec.Features); n > 0 && rec.Features[n-1].Index > st.MaxIndex {
			st.MaxIndex = rec.Features[n-1].Index
		}
		if fn != nil {
			if err := fn(rec); err != nil {
				return st, err
			}
		}
	}
	if err := sc.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return st, &ParseError{Line: lineNo + 1, Reason: "line too long"}
		}
		return st, fmt.Errorf("read training data: %w", err)
	}
	if st.Records == 0 {
		return st, &ParseError{Reason: "no records"}
	}
	return st, nil
}

// ReadAll parses every record in r.
func ReadAll(r io.Reader) ([]Record, error) {
	var out []Record
	_, err := Scan(r, func(rec Record) error {
		out = append(out, rec)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ParseLine parses a single line. ok is false for blank or comment-only lines.
// Feature indices must be non-negative and strictly increasing.
func ParseLine(line string) (rec Record, ok bool, err error) {
	line = strings.TrimRight(line, "\r")
	if i := strings.IndexByte(line, '#'); i >= 0 {
		rec.Comment = strings.TrimSpace(line[i+1:])
		line = line[:i]
	}
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Record{}, false, nil
	}

	rec.Label, err = parseFloat(fields[0])
	if err != nil {
		return Record{}, false, fmt.Errorf("label %q: %w", fields[0], err)
	}

	rest := fields[1:]
	if len(rest) > 0 && strings.HasPrefix(rest[0], "qid:") {
		rec.QID, err = strconv.ParseInt(rest[0][len("qid:"):], 10, 64)
		if err != nil {
			return Record{}, false, fmt.Errorf("qid %q is not an integer", rest[0])
		}
		rec.HasQID = true
		rest = rest[1:]
	}

	rec.Features = make([]Feature, 0, len(rest))
	prev := -1
	for _, tok := range rest {
		idx, val, found := strings.Cut(tok, ":")
		if !found {
			return Record{}, false, fmt.Errorf("feature %q is not index:value", tok)
		}
		n, err := strconv.Atoi(idx)
		if err != nil || n < 0 {
			return Record{}, false, fmt.Errorf("feature index %q is not a non-negative integer", idx)
		}
		if n <= prev {
			return Record{}, false, fmt.Errorf("feature index %d after %d is not increasing", n, prev)
		}
		v, err := parseFloat(val)
		if err != nil {
			return Record{}, false, fmt.Errorf("feature %d value %q: %w", n, val, err)
		}
		rec.Features = append(rec.Features, Feature{Index: n, Value: v})
		prev = n
	}
	return rec, true, nil
}

func parseFloat(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, errors.New("not a number")
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, errors.New("not finite")
	}
	return v, nil
}
