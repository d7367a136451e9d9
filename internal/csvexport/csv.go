// Package csvexport renders export requests as fully quoted CSV documents.
package csvexport

import (
	"bytes"
	"strconv"
	"strings"

	"savecsv/internal/domain"
)

// ContentType is declared on every upload.
const ContentType = "text/csv; charset=utf-8"

const lineSep = "\r\n"

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Header is the fixed first row.
var Header = []string{"member_code", "seq", "item_id"}

// Document is an ordered table whose first row is Header.
type Document struct {
	rows [][]string
}

// EncodeOptions controls byte-level output.
type EncodeOptions struct {
	// BOM prefixes a UTF-8 byte-order mark.
	BOM bool
}

// Build maps each selected item to [member_code, seq, item_id], keeping the
// caller's order. A missing seq becomes the 1-based position; a missing
// item_id becomes empty.
func Build(req domain.ExportRequest) Document {
	rows := make([][]string, 0, len(req.Selected)+1)
	rows = append(rows, append([]string(nil), Header...))
	for i, item := range req.Selected {
		seq := item.Seq.Text()
		if item.Seq.IsZero() {
			seq = strconv.Itoa(i + 1)
		}
		rows = append(rows, []string{req.MemberCode, seq, item.ItemID.Text()})
	}
	return Document{rows: rows}
}

// Rows returns a copy of the table.
func (d Document) Rows() [][]string {
	out := make([][]string, len(d.rows))
	for i, r := range d.rows {
		out[i] = append([]string(nil), r...)
	}
	return out
}

// Lines is the number of rows including the header.
func (d Document) Lines() int { return len(d.rows) }

// Encode quotes every field, doubles embedded quotes and joins rows with
// CRLF. There is no trailing line separator.
func (d Document) Encode(opts EncodeOptions) []byte {
	var buf bytes.Buffer
	if opts.BOM {
		buf.Write(utf8BOM)
	}
	for i, row := range d.rows {
		if i > 0 {
			buf.WriteString(lineSep)
		}
		for j, field := range row {
			if j > 0 {
				buf.WriteByte(',')
			}
			buf.WriteString(Escape(field))
		}
	}
	return buf.Bytes()
}

// Escape wraps s in quotes and doubles any quote inside it.
func Escape(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
