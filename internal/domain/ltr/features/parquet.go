package features

import (
	"fmt"
	"io"

	"github.com/parquet-go/parquet-go"
)

// parquetSchema builds a flat schema with int64 id columns and double feature columns.
func (t *Table) parquetSchema() *parquet.Schema {
	group := parquet.Group{
		ColumnDocID:   parquet.Int(64),
		ColumnQueryID: parquet.Int(64),
		ColumnSKU:     parquet.Int(64),
	}
	for _, name := range t.Names {
		group[name] = parquet.Leaf(parquet.DoubleType)
	}
	return parquet.NewSchema("ltr_features", group)
}

// WriteParquet writes the table as a single parquet file.
func (t *Table) WriteParquet(w io.Writer) error {
	schema := t.parquetSchema()

	// Group fields are stored sorted by name, so map each column to its leaf index.
	index := make(map[string]int)
	for i, path := range schema.Columns() {
		if len(path) > 0 {
			index[path[0]] = i
		}
	}

	pw := parquet.NewWriter(w, schema)

	rows := make([]parquet.Row, 0, len(t.Rows))
	for _, r := range t.Rows {
		row := make(parquet.Row, len(index))
		row[index[ColumnDocID]] = parquet.Int64Value(r.DocID).Level(0, 0, index[ColumnDocID])
		row[index[ColumnQueryID]] = parquet.Int64Value(r.QueryID).Level(0, 0, index[ColumnQueryID])
		row[index[ColumnSKU]] = parquet.Int64Value(r.SKU).Level(0, 0, index[ColumnSKU])
		for i, name := range t.Names {
			col := index[name]
			row[col] = parquet.DoubleValue(r.Values[i]).Level(0, 0, col)
		}
		rows = append(rows, row)
	}

	if _, err := pw.WriteRows(rows); err != nil {
		return fmt.Errorf("write parquet rows: %w", err)
	}
	if err := pw.Close(); err != nil {
		return fmt.Errorf("close parquet writer: %w", err)
	}
	return nil
}
