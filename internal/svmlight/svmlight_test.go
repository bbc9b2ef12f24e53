package svmlight

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/kailas-cloud/ltrkit/internal/domain"
)

func TestParseLine(t *testing.T) {
	rec, ok, err := ParseLine("3 qid:12 1:0.5 2:1e-3 10:7 # sku 4821\r")
	if err != nil || !ok {
		t.Fatalf("ParseLine: ok=%v err=%v", ok, err)
	}
	if rec.Label != 3 || !rec.HasQID || rec.QID != 12 {
		t.Errorf("label/qid = %v/%v/%d", rec.Label, rec.HasQID, rec.QID)
	}
	if len(rec.Features) != 3 || rec.Features[2].Index != 10 || rec.Features[1].Value != 0.001 {
		t.Errorf("features = %+v", rec.Features)
	}
	if rec.Comment != "sku 4821" {
		t.Errorf("comment = %q", rec.Comment)
	}
}

func TestParseLine_Skips(t *testing.T) {
	for _, line := range []string{"", "   ", "# header", "\t# x"} {
		if _, ok, err := ParseLine(line); ok || err != nil {
			t.Errorf("%q: ok=%v err=%v", line, ok, err)
		}
	}
}

func TestParseLine_NoQID(t *testing.T) {
	rec, ok, err := ParseLine("1 0:2 1:3")
	if err != nil || !ok {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
	if rec.HasQID {
		t.Error("unexpected qid")
	}
	if rec.Features[0].Index != 0 {
		t.Errorf("zero-based index lost: %+v", rec.Features)
	}
}

func TestParseLine_Errors(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{"label not number", "good 1:1"},
		{"nan label", "NaN 1:1"},
		{"bad qid", "1 qid:x 1:1"},
		{"missing colon", "1 qid:1 11"},
		{"negative index", "1 -1:2"},
		{"index not int", "1 a:2"},
		{"value not number", "1 1:abc"},
		{"inf value", "1 1:Inf"},
		{"decreasing index", "1 2:1 1:1"},
		{"duplicate index", "1 1:1 1:2"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, _, err := ParseLine(tc.line); err == nil {
				t.Errorf("expected error for %q", tc.line)
			}
		})
	}
}

func TestScan_Stats(t *testing.T) {
	data := "# judgments\n" +
		"2 qid:1 1:1 2:3\n" +
		"0 qid:1 1:0 2:1\n" +
		"\n" +
		"1 qid:2 1:4 5:1\n"

	st, err := Scan(strings.NewReader(data), nil)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if st.Records != 3 || st.Queries != 2 || st.MaxIndex != 5 {
		t.Errorf("stats = %+v, want {3 2 5}", st)
	}
}

func TestScan_ReportsLine(t *testing.T) {
	data := "2 qid:1 1:1\n\n1 qid:1 1:oops\n"

	_, err := Scan(strings.NewReader(data), nil)
	if !errors.Is(err, domain.ErrDataFormat) {
		t.Fatalf("expected ErrDataFormat, got %v", err)
	}
	var pe *ParseError
	if !errors.As(err, &pe) || pe.Line != 3 {
		t.Errorf("expected ParseError at line 3, got %v", err)
	}
}

func TestScan_Empty(t *testing.T) {
	for _, data := range []string{"", "\n\n", "# only a comment\n"} {
		_, err := Scan(strings.NewReader(data), nil)
		if !errors.Is(err, domain.ErrDataFormat) {
			t.Errorf("%q: expected ErrDataFormat, got %v", data, err)
		}
	}
}

func TestScan_CallbackError(t *testing.T) {
	stop := errors.New("stop")
	_, err := Scan(strings.NewReader("1 1:1\n1 1:1\n"), func(Record) error { return stop })
	if !errors.Is(err, stop) {
		t.Errorf("expected callback error, got %v", err)
	}
}

func TestWriter_RoundTrip(t *testing.T) {
	in := []Record{
		{Label: 3, QID: 7, HasQID: true, Features: Dense([]float64{0, 3.2, 1}), Comment: "42"},
		{Label: 0, QID: 7, HasQID: true, Features: Dense([]float64{1.5, 0, 0}), Comment: "43"},
	}

	var buf bytes.Buffer
	w := NewWriter(&buf)
	for _, rec := range in {
		if err := w.Write(rec); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Flush(); err != nil {
		t.Fatal(err)
	}

	wantFirst := "3 qid:7 1:0 2:3.2 3:1 # 42"
	if first := strings.SplitN(buf.String(), "\n", 2)[0]; first != wantFirst {
		t.Errorf("first line = %q, want %q", first, wantFirst)
	}

	out, err := ReadAll(&buf)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(out) != 2 || out[1].Comment != "43" || out[1].Features[0].Value != 1.5 {
		t.Errorf("round trip = %+v", out)
	}
}
