package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Date is a date-like request field. It remembers whether the key was sent
// and whether it was null, so updates can tell "clear" from "leave alone".
type Date struct {
	Set  bool
	raw  json.RawMessage
	null bool
}

// DateOf builds a Date from a string value, for callers that construct
// payloads in code.
func DateOf(s string) Date {
	raw, _ := json.Marshal(s)
	return Date{Set: true, raw: raw}
}

func (d *Date) UnmarshalJSON(b []byte) error {
	d.Set = true
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		d.null = true
		d.raw = nil
		return nil
	}
	if len(b) == 0 || (b[0] != '"' && (b[0] < '0' || b[0] > '9') && b[0] != '-') {
		return fmt.Errorf("date must be a string or number, got %s", b)
	}
	d.raw = append(d.raw[:0], b...)
	return nil
}

// Empty reports whether the value is absent, null, or an empty string.
func (d Date) Empty() bool {
	if !d.Set || d.null || len(d.raw) == 0 {
		return true
	}
	return bytes.Equal(d.raw, []byte(`""`))
}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Parse returns the value as a UTC timestamp. Numbers are Unix milliseconds.
// Zone-less strings are read as UTC.
func (d Date) Parse(field string) (time.Time, error) {
	if d.Empty() {
		return time.Time{}, invalidDate(field)
	}
	if d.raw[0] != '"' {
		ms, err := strconv.ParseInt(string(d.raw), 10, 64)
		if err != nil {
			return time.Time{}, invalidDate(field)
		}
		return normaliseTime(time.UnixMilli(ms)), nil
	}

	var s string
	if err := json.Unmarshal(d.raw, &s); err != nil {
		return time.Time{}, invalidDate(field)
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return normaliseTime(t), nil
		}
	}
	return time.Time{}, invalidDate(field)
}

// Optional parses an optional date: empty values give nil.
func (d Date) Optional(field string) (*time.Time, error) {
	if d.Empty() {
		return nil, nil
	}
	t, err := d.Parse(field)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func invalidDate(field string) error {
	return &ValidationError{Message: fmt.Sprintf("Invalid date for %s", field)}
}
