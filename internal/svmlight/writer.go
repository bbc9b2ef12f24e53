package svmlight

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
)

// Writer emits records one per line.
type Writer struct {
	w *bufio.Writer
}

// NewWriter wraps w. Call Flush when done.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

// Write appends one record. Zero-valued features are written too so every
// line carries the full feature vector.
func (w *Writer) Write(rec Record) error {
	buf := make([]byte, 0, 16+len(rec.Features)*12)
	buf = strconv.AppendFloat(buf, rec.Label, 'g', -1, 64)
	if rec.HasQID {
		buf = append(buf, " qid:"...)
		buf = strconv.AppendInt(buf, rec.QID, 10)
	}
	for _, f := range rec.Features {
		buf = append(buf, ' ')
		buf = strconv.AppendInt(buf, int64(f.Index), 10)
		buf = append(buf, ':')
		buf = strconv.AppendFloat(buf, f.Value, 'g', -1, 64)
	}
	if rec.Comment != "" {
		buf = append(buf, " # "...)
		buf = append(buf, rec.Comment...)
	}
	buf = append(buf, '\n')

	if _, err := w.w.Write(buf); err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	return nil
}

// Flush writes buffered data to the underlying writer.
func (w *Writer) Flush() error {
	if err := w.w.Flush(); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	return nil
}

// Dense converts an ordered value vector into 1-based features.
func Dense(values []float64) []Feature {
	out := make([]Feature, len(values))
	for i, v := range values {
		out[i] = Feature{Index: i + 1, Value: v}
	}
	return out
}
