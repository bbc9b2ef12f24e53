// Package features turns LTR feature-logging hits into training rows.
//
// Extraction is positional: the i-th logged entry of a hit fills the i-th
// feature name. The names must therefore follow the feature set's declared
// order in the engine. When the engine echoes entry names they are checked
// against the expected ones, so a reordered feature set fails loudly instead of
// shifting columns.
package features

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/tidwall/gjson"

	"github.com/kailas-cloud/ltrkit/internal/domain"
)

// logEntriesPath is where the LTR plugin attaches logged values to a hit.
const logEntriesPath = "fields._ltrlog.0.log_entry"

// DefaultNames is the declared order of the bbuy_main_featureset feature set.
var DefaultNames = []string{
	"name_match",
	"name_match_phrase",
	"customer_review_average",
	"customer_review_count",
	"artist_name_match",
	"short_description_match",
	"long_description_match",
	"sales_rank_short_term",
	"sales_rank_medium_term",
	"sales_rank_long_term",
}

// Extract builds one row per hit, in hit order, tagging every row with queryID.
// names lists the feature columns in declared order; nil means DefaultNames.
// A missing or null value is recorded as 0. Names must be non-empty, unique
// and distinct from the identifier columns.
func Extract(hits []json.RawMessage, queryID int64, names []string) (*Table, error) {
	if names == nil {
		names = DefaultNames
	}
	if err := ValidateNames(names); err != nil {
		return nil, err
	}

	table := NewTable(names)
	table.Rows = make([]Row, 0, len(hits))

	for i, raw := range hits {
		row, err := extractHit(i, gjson.ParseBytes(raw), queryID, names)
		if err != nil {
			return nil, err
		}
		table.Rows = append(table.Rows, row)
	}

	return table, nil
}

// ValidateNames checks that names can be used as feature columns.
func ValidateNames(names []string) error {
	seen := make(map[string]bool, len(names))
	for i, name := range names {
		switch {
		case name == "":
			return fmt.Errorf("feature %d: empty name: %w", i, domain.ErrInvalidArgument)
		case name == ColumnDocID || name == ColumnQueryID || name == ColumnSKU:
			return fmt.Errorf("feature %d: %q is an identifier column: %w", i, name, domain.ErrInvalidArgument)
		case seen[name]:
			return fmt.Errorf("feature %d: duplicate name %q: %w", i, name, domain.ErrInvalidArgument)
		}
		seen[name] = true
	}
	return nil
}

func extractHit(idx int, hit gjson.Result, queryID int64, names []string) (Row, error) {
	id := hit.Get("_id")
	docID, err := parseDocID(idx, id)
	if err != nil {
		return Row{}, err
	}

	entries := hit.Get(logEntriesPath)
	if !entries.IsArray() {
		return Row{}, &SchemaError{Hit: idx, Reason: "no logged features at " + logEntriesPath}
	}
	logged := entries.Array()
	if len(logged) < len(names) {
		return Row{}, &SchemaError{
			Hit:    idx,
			Reason: fmt.Sprintf("got %d logged features, want %d", len(logged), len(names)),
		}
	}

	values := make([]float64, len(names))
	for pos, name := range names {
		entry := logged[pos]
		if n := entry.Get("name"); n.Exists() && n.String() != name {
			return Row{}, &SchemaError{
				Hit:    idx,
				Reason: fmt.Sprintf("feature %d is %q, want %q", pos, n.String(), name),
			}
		}
		v, err := parseValue(idx, name, entry.Get("value"))
		if err != nil {
			return Row{}, err
		}
		values[pos] = v
	}

	return Row{ID: rawID(id), DocID: docID, QueryID: queryID, SKU: docID, Values: values}, nil
}

func parseDocID(idx int, id gjson.Result) (int64, error) {
	switch id.Type {
	case gjson.String:
		n, err := strconv.ParseInt(id.Str, 10, 64)
		if err != nil {
			return 0, &FormatError{Hit: idx, Field: "_id", Reason: fmt.Sprintf("%q is not an integer", id.Str)}
		}
		return n, nil
	case gjson.Number:
		if id.Num != math.Trunc(id.Num) {
			return 0, &FormatError{Hit: idx, Field: "_id", Reason: id.Raw + " is not an integer"}
		}
		return id.Int(), nil
	default:
		return 0, &FormatError{Hit: idx, Field: "_id", Reason: "missing or not a string"}
	}
}

// rawID is the _id exactly as the engine returned it.
func rawID(id gjson.Result) string {
	if id.Type == gjson.String {
		return id.Str
	}
	return id.Raw
}

func parseValue(idx int, name string, v gjson.Result) (float64, error) {
	switch v.Type {
	case gjson.Null:
		return 0, nil
	case gjson.Number:
		return v.Num, nil
	default:
		return 0, &FormatError{Hit: idx, Field: name, Reason: "value " + v.Raw + " is not a number"}
	}
}
