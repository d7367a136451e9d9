package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// PathPrefix is the folder under which member exports are stored.
const PathPrefix = "recgo"

// ExportRequest is a validated request body.
type ExportRequest struct {
	MemberCode string
	Selected   []SelectionItem
}

// SelectionItem is one selected row. Both fields keep the caller's raw JSON
// value so any scalar round-trips as text.
type SelectionItem struct {
	Seq    Scalar `json:"seq"`
	ItemID Scalar `json:"item_id"`
}

// Scalar holds a raw JSON value. The zero value means "absent".
type Scalar struct {
	raw json.RawMessage
}

// ScalarOf builds a Scalar from a Go value; used by tests and callers that
// construct requests directly.
func ScalarOf(v interface{}) Scalar {
	b, err := json.Marshal(v)
	if err != nil {
		return Scalar{}
	}
	return Scalar{raw: b}
}

func (s *Scalar) UnmarshalJSON(b []byte) error {
	s.raw = append(s.raw[:0], b...)
	return nil
}

func (s Scalar) MarshalJSON() ([]byte, error) {
	if s.IsZero() {
		return []byte("null"), nil
	}
	return s.raw, nil
}

// IsZero reports whether the value is absent or JSON null.
func (s Scalar) IsZero() bool {
	v := bytes.TrimSpace(s.raw)
	return len(v) == 0 || bytes.Equal(v, []byte("null"))
}

// Text coerces the value to text: strings verbatim, numbers by their JSON
// literal, booleans as true/false, null as "", composites as compact JSON.
func (s Scalar) Text() string {
	if s.IsZero() {
		return ""
	}
	v := bytes.TrimSpace(s.raw)
	switch v[0] {
	case '"':
		var str string
		if err := json.Unmarshal(v, &str); err == nil {
			return str
		}
		return string(v)
	case '{', '[':
		var buf bytes.Buffer
		if err := json.Compact(&buf, v); err == nil {
			return buf.String()
		}
		return string(v)
	default:
		return string(v)
	}
}

type wireRequest struct {
	MemberCode json.RawMessage `json:"member_code"`
	Selected   json.RawMessage `json:"selected"`
}

// ParseExportRequest is the parse-and-validate boundary for request bodies.
// An empty body counts as {}. A body that is itself a JSON string is decoded
// once more. Malformed JSON yields ErrInvalidJSON; a missing or wrongly typed
// member_code or selected yields ErrMissingFields.
func ParseExportRequest(body []byte) (ExportRequest, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		body = []byte("{}")
	}
	if !json.Valid(body) {
		return ExportRequest{}, ErrInvalidJSON
	}
	if body[0] == '"' {
		var inner string
		if err := json.Unmarshal(body, &inner); err != nil {
			return ExportRequest{}, Wrap(err, KindParse, ErrInvalidJSON.Message)
		}
		return parseObject(bytes.TrimSpace([]byte(inner)))
	}
	return parseObject(body)
}

func parseObject(body []byte) (ExportRequest, error) {
	if len(body) == 0 {
		body = []byte("{}")
	}
	if !json.Valid(body) {
		return ExportRequest{}, ErrInvalidJSON
	}
	if body[0] != '{' {
		return ExportRequest{}, ErrMissingFields
	}

	var w wireRequest
	if err := json.Unmarshal(body, &w); err != nil {
		return ExportRequest{}, Wrap(err, KindParse, ErrInvalidJSON.Message)
	}

	memberCode, ok := memberCodeText(w.MemberCode)
	if !ok {
		return ExportRequest{}, ErrMissingFields
	}

	sel := bytes.TrimSpace(w.Selected)
	if len(sel) == 0 || sel[0] != '[' {
		return ExportRequest{}, ErrMissingFields
	}
	var elems []json.RawMessage
	if err := json.Unmarshal(sel, &elems); err != nil {
		return ExportRequest{}, ErrMissingFields
	}

	items := make([]SelectionItem, 0, len(elems))
	for i, el := range elems {
		el = bytes.TrimSpace(el)
		if len(el) == 0 || el[0] != '{' {
			return ExportRequest{}, New(KindValidation, fmt.Sprintf("Invalid selected[] item at index %d", i))
		}
		var item SelectionItem
		if err := json.Unmarshal(el, &item); err != nil {
			return ExportRequest{}, Wrap(err, KindValidation, fmt.Sprintf("Invalid selected[] item at index %d", i))
		}
		items = append(items, item)
	}

	return ExportRequest{MemberCode: memberCode, Selected: items}, nil
}

// memberCodeText accepts a non-empty string or a non-zero number; numbers
// keep their JSON literal as text.
func memberCodeText(raw json.RawMessage) (string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return "", false
	}
	switch c := raw[0]; {
	case c == '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil || s == "" {
			return "", false
		}
		return s, true
	case c == '-' || (c >= '0' && c <= '9'):
		f, err := strconv.ParseFloat(string(raw), 64)
		if err != nil || f == 0 {
			return "", false
		}
		return string(raw), true
	default:
		return "", false
	}
}

// ObjectPath is the deterministic storage path for a member's export.
func ObjectPath(memberCode string) string {
	return PathPrefix + "/" + memberCode + ".csv"
}
