package staging

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/iota-uz/payroll-reconciler/pkg/csvutil"
	"github.com/iota-uz/payroll-reconciler/pkg/serrors"
)

// Columns is the fixed raw record schema, in table order.
var Columns = []string{
	"responding_agency",
	"employer",
	"department",
	"first_name",
	"last_name",
	"title",
	"salary",
	"extra_pay",
	"date_started",
	"data_year",
}

var (
	ErrNotText        = serrors.NewError("IMPORT_NOT_TEXT", "file is not a text CSV")
	ErrMissingColumns = serrors.NewError("IMPORT_MISSING_COLUMNS", "missing required columns")
)

const sniffLen = 64 * 1024

// Meta describes an uploaded CSV before it is staged.
type Meta struct {
	MimeType string
	Encoding string
	Header   []string
	Missing  []string
}

// ReadMeta sniffs the content type and encoding of the file at path and
// reads its cleaned header.
func ReadMeta(path string) (*Meta, error) {
	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return nil, err
	}
	if !isText(mt) {
		return nil, fmt.Errorf("%w: detected %s", ErrNotText, mt.String())
	}

	r, name, closeFn, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = closeFn() }()

	header, err := csvutil.ReadHeader(csvutil.NewReader(r))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotText, err)
	}
	return &Meta{
		MimeType: mt.String(),
		Encoding: name,
		Header:   header,
		Missing:  csvutil.Missing(header, Columns),
	}, nil
}

// Validate fails when required columns are missing.
func (m *Meta) Validate() error {
	if len(m.Missing) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrMissingColumns, m.Missing)
}

func isText(mt *mimetype.MIME) bool {
	for m := mt; m != nil; m = m.Parent() {
		if m.Is("text/plain") || m.Is("text/csv") {
			return true
		}
	}
	return false
}

// Open returns a UTF-8 reader over the file at path. UTF-8 (with or without
// BOM) and UTF-16 with a BOM are decoded as such; anything else is read as
// Windows-1252.
func Open(path string) (io.Reader, string, func() error, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", nil, err
	}
	br := bufio.NewReaderSize(f, sniffLen)
	sample, err := br.Peek(sniffLen)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		_ = f.Close()
		return nil, "", nil, err
	}

	enc, name := detectEncoding(sample, len(sample) == sniffLen)
	return transform.NewReader(br, enc.NewDecoder()), name, f.Close, nil
}

func detectEncoding(sample []byte, truncated bool) (encoding.Encoding, string) {
	switch {
	case bytes.HasPrefix(sample, []byte{0xEF, 0xBB, 0xBF}):
		return unicode.UTF8BOM, "utf-8-sig"
	case bytes.HasPrefix(sample, []byte{0xFF, 0xFE}):
		return unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM), "utf-16le"
	case bytes.HasPrefix(sample, []byte{0xFE, 0xFF}):
		return unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM), "utf-16be"
	case looksUTF8(sample, truncated):
		return unicode.UTF8, "utf-8"
	default:
		return charmap.Windows1252, "windows-1252"
	}
}

// looksUTF8 tolerates a rune cut at the end of a truncated sample.
func looksUTF8(b []byte, truncated bool) bool {
	if utf8.Valid(b) {
		return true
	}
	if !truncated {
		return false
	}
	for i := 1; i < utf8.UTFMax && i < len(b); i++ {
		if utf8.Valid(b[:len(b)-i]) {
			return true
		}
	}
	return false
}
