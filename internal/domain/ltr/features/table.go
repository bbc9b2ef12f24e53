package features

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
)

// Identifier columns, in output order, ahead of the feature columns.
const (
	ColumnDocID   = "doc_id"
	ColumnQueryID = "query_id"
	ColumnSKU     = "sku"
)

// Row is one logged (document, query) pair.
type Row struct {
	ID      string // _id as returned by the engine; not written out
	DocID   int64
	QueryID int64
	SKU     int64
	Values  []float64 // aligned with Table.Names
}

// Table is a row-oriented feature table with a fixed column contract:
// doc_id, query_id, sku, then Names in order.
type Table struct {
	Names []string
	Rows  []Row
}

// NewTable creates an empty table for the given feature names.
func NewTable(names []string) *Table {
	return &Table{Names: append([]string(nil), names...)}
}

// Columns returns the column names in output order.
func (t *Table) Columns() []string {
	cols := make([]string, 0, 3+len(t.Names))
	cols = append(cols, ColumnDocID, ColumnQueryID, ColumnSKU)
	return append(cols, t.Names...)
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.Rows) }

// Append adds the rows of other. Both tables must share the same feature names.
func (t *Table) Append(other *Table) error {
	if len(other.Names) != len(t.Names) {
		return fmt.Errorf("append: %d feature columns, want %d", len(other.Names), len(t.Names))
	}
	for i := range t.Names {
		if other.Names[i] != t.Names[i] {
			return fmt.Errorf("append: column %d is %q, want %q", i, other.Names[i], t.Names[i])
		}
	}
	t.Rows = append(t.Rows, other.Rows...)
	return nil
}

// Feature returns the values of a named feature column.
func (t *Table) Feature(name string) ([]float64, bool) {
	pos := -1
	for i, n := range t.Names {
		if n == name {
			pos = i
			break
		}
	}
	if pos < 0 {
		return nil, false
	}
	out := make([]float64, len(t.Rows))
	for i, r := range t.Rows {
		out[i] = r.Values[pos]
	}
	return out, true
}

// WriteCSV writes a header line with Columns() followed by one line per row.
func (t *Table) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Columns()); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	record := make([]string, 3+len(t.Names))
	for _, r := range t.Rows {
		record[0] = strconv.FormatInt(r.DocID, 10)
		record[1] = strconv.FormatInt(r.QueryID, 10)
		record[2] = strconv.FormatInt(r.SKU, 10)
		for i, v := range r.Values {
			record[3+i] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write row %d: %w", r.DocID, err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}
