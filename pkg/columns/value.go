// Package columns decodes and encodes the dual text/JSON column values of the
// work-management API.
//
// Every column value arrives as a rendered text plus an optional structured
// JSON payload. When the payload is present and well formed it wins; the text
// is the fallback. Decoding never fails: malformed input resolves to zero,
// empty string or unchecked.
package columns

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
)

// ColumnValue is one column of one item as returned by the API.
type ColumnValue struct {
	ID    string `json:"id"`
	Text  string `json:"text"`
	Value string `json:"value,omitempty"`
}

const dateLayoutOnly = "2006-01-02"

var (
	numberPrefix  = regexp.MustCompile(`^[+-]?(\d+(\.\d+)?|\.\d+)`)
	checkedTokens = map[string]bool{"v": true, "true": true, "evet": true, "checked": true, "yes": true}
)

// structured returns the parsed JSON payload when it is present and valid.
func (cv *ColumnValue) structured() (gjson.Result, bool) {
	if cv == nil {
		return gjson.Result{}, false
	}
	raw := strings.TrimSpace(cv.Value)
	if raw == "" || raw == "null" || !gjson.Valid(raw) {
		return gjson.Result{}, false
	}
	return gjson.Parse(raw), true
}

// HasStructured reports whether the value carries a usable JSON payload.
func (cv *ColumnValue) HasStructured() bool {
	_, ok := cv.structured()
	return ok
}

// ParseNumber reads a leading decimal number from s. A comma is accepted as
// the decimal separator.
func ParseNumber(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, false
	}
	s = strings.Replace(s, ",", ".", 1)
	m := numberPrefix.FindString(s)
	if m == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(m)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// NumberOf returns the numeric value of cv, or zero.
func NumberOf(cv *ColumnValue) decimal.Decimal {
	if r, ok := cv.structured(); ok {
		if d, ok := numberFromResult(r); ok {
			return d
		}
	}
	if cv == nil {
		return decimal.Zero
	}
	d, _ := ParseNumber(cv.Text)
	return d
}

func numberFromResult(r gjson.Result) (decimal.Decimal, bool) {
	switch r.Type {
	case gjson.Number:
		d, err := decimal.NewFromString(r.Raw)
		if err != nil {
			return ParseNumber(r.Raw)
		}
		return d, true
	case gjson.String:
		return ParseNumber(r.Str)
	case gjson.JSON:
		for _, key := range []string{"number", "value", "text"} {
			f := r.Get(key)
			if !f.Exists() {
				continue
			}
			if d, ok := ParseNumber(f.String()); ok {
				return d, true
			}
		}
	}
	return decimal.Zero, false
}

// TextOf returns the display text of cv, or "".
func TextOf(cv *ColumnValue) string {
	if r, ok := cv.structured(); ok {
		switch r.Type {
		case gjson.String, gjson.Number:
			if s := strings.TrimSpace(r.String()); s != "" {
				return s
			}
		case gjson.JSON:
			for _, key := range []string{"display_value", "text", "value"} {
				f := r.Get(key)
				if f.Type == gjson.String || f.Type == gjson.Number {
					if s := strings.TrimSpace(f.String()); s != "" {
						return s
					}
				}
			}
		}
	}
	if cv == nil {
		return ""
	}
	return strings.TrimSpace(cv.Text)
}

// IsChecked decodes a checkbox. Absent or malformed input is unchecked.
func IsChecked(cv *ColumnValue) bool {
	if cv == nil {
		return false
	}
	if r, ok := cv.structured(); ok && r.IsObject() {
		c := r.Get("checked")
		switch c.Type {
		case gjson.True:
			return true
		case gjson.False:
			return false
		case gjson.String:
			return strings.EqualFold(strings.TrimSpace(c.Str), "true")
		}
	}
	return checkedToken(cv.Text)
}

func checkedToken(s string) bool {
	return checkedTokens[strings.ToLower(strings.TrimSpace(s))]
}

// LinkedIDs returns the item ids referenced by a relation column.
func LinkedIDs(cv *ColumnValue) []int64 {
	r, ok := cv.structured()
	if !ok {
		return nil
	}
	var ids []int64
	for _, id := range r.Get("linkedPulseIds.#.linkedPulseId").Array() {
		if n := id.Int(); n > 0 {
			ids = append(ids, n)
		}
	}
	return ids
}

func personIDs(cv *ColumnValue) []int64 {
	r, ok := cv.structured()
	if !ok {
		return nil
	}
	var ids []int64
	for _, p := range r.Get("personsAndTeams").Array() {
		if k := p.Get("kind").String(); k != "" && k != "person" {
			continue
		}
		if n := p.Get("id").Int(); n > 0 {
			ids = append(ids, n)
		}
	}
	return ids
}

func dateOf(cv *ColumnValue) string {
	if r, ok := cv.structured(); ok {
		if d := r.Get("date").String(); isDate(d) {
			return d
		}
	}
	if cv == nil {
		return ""
	}
	return leadingDate(cv.Text)
}

func leadingDate(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= len(dateLayoutOnly) && isDate(s[:len(dateLayoutOnly)]) {
		return s[:len(dateLayoutOnly)]
	}
	return ""
}
