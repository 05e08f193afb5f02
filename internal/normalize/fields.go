// Package normalize maps raw API records onto the canonical ingestion types.
// Each field is decoded on its own: a value of the wrong shape becomes a null
// plus a FieldError in the record's diagnostics, and never fails the record.
package normalize

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/vlikcc/yargisalzeka.V2/internal/ingestion"
	apperrors "github.com/vlikcc/yargisalzeka.V2/pkg/errors"
)

var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTimestamp parses the API's ISO-8601 timestamps. A trailing Z is read
// as UTC and everything from the first '.' on (sub-second precision) is
// dropped before parsing.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	s = strings.Replace(s, "Z", "+00:00", 1)
	if i := strings.IndexByte(s, '.'); i >= 0 {
		s = s[:i]
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}

// DateOf returns the calendar date of t, as written in t's own offset.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// fieldReader decodes raw fields and collects the failures.
type fieldReader struct {
	diags ingestion.Diagnostics
}

func (r *fieldReader) fail(field string, raw json.RawMessage, err error) {
	r.diags = append(r.diags, ingestion.FieldError{
		Field: field,
		Raw:   truncate(string(raw), 120),
		Err:   fmt.Errorf("%w: %v", apperrors.ErrMalformedField, err),
	})
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// str accepts strings and scalars; numbers and booleans are formatted.
func (r *fieldReader) str(field string, raw json.RawMessage) *string {
	if isNull(raw) {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		r.fail(field, raw, err)
		return nil
	}
	switch t := v.(type) {
	case string:
		return ingestion.NonEmpty(strings.TrimSpace(t))
	case float64:
		s := strconv.FormatFloat(t, 'f', -1, 64)
		return &s
	case bool:
		s := strconv.FormatBool(t)
		return &s
	default:
		r.fail(field, raw, fmt.Errorf("expected a string, got %T", v))
		return nil
	}
}

// integer accepts JSON integers and strings holding an integer.
func (r *fieldReader) integer(field string, raw json.RawMessage) *int {
	if isNull(raw) {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		r.fail(field, raw, err)
		return nil
	}
	switch t := v.(type) {
	case float64:
		if t != math.Trunc(t) || t > math.MaxInt32 || t < math.MinInt32 {
			r.fail(field, raw, fmt.Errorf("%v is not a 32-bit integer", t))
			return nil
		}
		n := int(t)
		return &n
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return nil
		}
		n, err := strconv.ParseInt(s, 10, 32)
		if err != nil {
			r.fail(field, raw, err)
			return nil
		}
		i := int(n)
		return &i
	default:
		r.fail(field, raw, fmt.Errorf("expected an integer, got %T", v))
		return nil
	}
}

// classification decodes a nested {name, description} object.
func (r *fieldReader) classification(field string, raw json.RawMessage) (name, description *string) {
	if isNull(raw) {
		return nil, nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		r.fail(field, raw, errors.New("expected a {name, description} object"))
		return nil, nil
	}
	return r.str(field+".name", obj["name"]), r.str(field+".description", obj["description"])
}

// timestamp parses a timestamp field. The unparsed text is returned alongside
// so callers can keep it when parsing fails.
func (r *fieldReader) timestamp(field string, raw json.RawMessage) (*time.Time, *string) {
	s := r.str(field, raw)
	if s == nil {
		return nil, nil
	}
	t, err := ParseTimestamp(*s)
	if err != nil {
		r.fail(field, raw, err)
		return nil, s
	}
	return &t, s
}

// truncate keeps at most n bytes of s without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
