// Package field implements tolerant per-field coercion for untrusted
// spreadsheet cells.
//
// Every parser returns the typed value (as `any`, suitable for positional
// bulk-insert rows) plus an explicit *Error instead of panicking or silently
// swallowing bad input. An empty cell is not an error: it coerces to nil so
// optional columns degrade gracefully. Callers decide which errors are
// row-fatal and which merely null out a field.
package field

import (
	"fmt"
	"strconv"
	"strings"
)

// Error describes a single cell that failed coercion.
type Error struct {
	Field  string
	Value  string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s=%q: %s", e.Field, e.Value, e.Reason)
}

// CleanNumber strips display formatting that source systems add to numeric
// cells: thousands separators, percent signs, currency markers, padding.
func CleanNumber(raw string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ',', '%', '$', ' ', ' ':
			return -1
		}
		return r
	}, strings.TrimSpace(raw))
}

// Int coerces a cell to int64. Empty cells coerce to nil without error.
func Int(name, raw string) (any, *Error) {
	clean := CleanNumber(raw)
	if clean == "" {
		return nil, nil
	}
	n, err := strconv.ParseInt(clean, 10, 64)
	if err != nil {
		// Exports sometimes write integral counts as "1234.0".
		if f, ferr := strconv.ParseFloat(clean, 64); ferr == nil && f == float64(int64(f)) {
			return int64(f), nil
		}
		return nil, &Error{Field: name, Value: strings.TrimSpace(raw), Reason: "not an integer"}
	}
	return n, nil
}

// Float coerces a cell to float64. Empty cells coerce to nil without error.
func Float(name, raw string) (any, *Error) {
	clean := CleanNumber(raw)
	if clean == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(clean, 64)
	if err != nil {
		return nil, &Error{Field: name, Value: strings.TrimSpace(raw), Reason: "not a number"}
	}
	return f, nil
}

// Text trims a cell and coerces empty to nil.
func Text(raw string) any {
	v := strings.TrimSpace(raw)
	if v == "" {
		return nil
	}
	return v
}

// Zip validates a 5-digit ZIP code. A ZIP+4 value ("27587-6789") is reduced
// to its 5-digit prefix. Empty cells coerce to nil without error; anything
// else that is not exactly 5 digits is an error.
func Zip(name, raw string) (any, *Error) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return nil, nil
	}
	if i := strings.IndexByte(v, '-'); i >= 0 {
		v = v[:i]
	}
	if len(v) != 5 || !allDigits(v) {
		return nil, &Error{Field: name, Value: strings.TrimSpace(raw), Reason: "not a 5-digit ZIP"}
	}
	return v, nil
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}

// Errs accumulates cell errors for one row.
type Errs struct {
	list []*Error
}

// Add records err when non-nil and reports whether it did.
func (e *Errs) Add(err *Error) bool {
	if err == nil {
		return false
	}
	e.list = append(e.list, err)
	return true
}

// Addf records a formatted row-level problem not tied to a single parser.
func (e *Errs) Addf(field, value, format string, a ...any) {
	e.list = append(e.list, &Error{Field: field, Value: value, Reason: fmt.Sprintf(format, a...)})
}

// Empty reports whether no errors were recorded.
func (e *Errs) Empty() bool { return len(e.list) == 0 }

// Messages renders the accumulated errors for persistence.
func (e *Errs) Messages() []string {
	if len(e.list) == 0 {
		return nil
	}
	out := make([]string, 0, len(e.list))
	for _, err := range e.list {
		out = append(out, err.Error())
	}
	return out
}
