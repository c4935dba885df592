package csvutil

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

var ErrMissingHeader = errors.New("missing header")

// NewReader returns a lenient reader over r with any UTF-8 BOM removed.
func NewReader(r io.Reader) *csv.Reader {
	br := stripUTF8BOM(bufio.NewReader(r))
	cr := csv.NewReader(br)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = false
	cr.ReuseRecord = false
	return cr
}

func stripUTF8BOM(r *bufio.Reader) *bufio.Reader {
	b, err := r.Peek(3)
	if err == nil && len(b) == 3 && b[0] == 0xEF && b[1] == 0xBB && b[2] == 0xBF {
		_, _ = r.Discard(3)
	}
	return r
}

// CleanHeader lower-cases a column name and joins its words with underscores,
// so "Responding Agency " becomes "responding_agency".
func CleanHeader(h string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(h))), "_")
}

// ReadHeader reads the first record and cleans every column name.
func ReadHeader(r *csv.Reader) ([]string, error) {
	h, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrMissingHeader
		}
		return nil, err
	}
	for i := range h {
		if !utf8.ValidString(h[i]) {
			return nil, fmt.Errorf("invalid header encoding in column %d", i+1)
		}
		h[i] = CleanHeader(h[i])
	}
	return h, nil
}

// Index maps column names to positions; the first occurrence wins.
func Index(header []string) map[string]int {
	m := make(map[string]int, len(header))
	for i, name := range header {
		if _, ok := m[name]; !ok {
			m[name] = i
		}
	}
	return m
}

// Missing lists required columns absent from header, in required order.
func Missing(header []string, required []string) []string {
	idx := Index(header)
	var out []string
	for _, req := range required {
		if _, ok := idx[req]; !ok {
			out = append(out, req)
		}
	}
	return out
}

// Field returns the trimmed cell for column, or "" when the row is short.
func Field(row []string, idx map[string]int, column string) string {
	i, ok := idx[column]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}
