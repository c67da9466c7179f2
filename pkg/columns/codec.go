package columns

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Value is a decoded column value. The concrete types are Number, Text,
// Checkbox, LinkSet, Date, People and Raw.
type Value interface {
	isValue()
}

type (
	// Number is a numeric column value.
	Number struct{ decimal.Decimal }
	// Text is a rendered or plain string value.
	Text string
	// Checkbox is a checkbox state.
	Checkbox bool
	// LinkSet references other items by id.
	LinkSet []int64
	// Date is a calendar date in YYYY-MM-DD form.
	Date string
	// People references users by id.
	People []int64
	// Raw is a structured payload passed through untouched.
	Raw json.RawMessage
)

func (Number) isValue()   {}
func (Text) isValue()     {}
func (Checkbox) isValue() {}
func (LinkSet) isValue()  {}
func (Date) isValue()     {}
func (People) isValue()   {}
func (Raw) isValue()      {}

// Decode reads cv as a value of the given kind. It returns nil for
// unsupported kinds and absent values.
func Decode(cv *ColumnValue, kind Kind) Value {
	if cv == nil {
		return nil
	}
	switch kind {
	case KindNumber:
		return Number{NumberOf(cv)}
	case KindCheckbox:
		return Checkbox(IsChecked(cv))
	case KindRelation:
		return LinkSet(LinkedIDs(cv))
	case KindPeople:
		return People(personIDs(cv))
	case KindDate:
		return Date(dateOf(cv))
	case KindText, KindLongText, KindStatus, KindDropdown, KindOther:
		return Text(TextOf(cv))
	case KindUnsupported:
		return nil
	}
	return nil
}

// Encode renders v as a payload writable to a column of the given kind. It
// returns false when v cannot be expressed for that kind; callers skip the
// column rather than write garbage.
func Encode(v Value, kind Kind) (json.RawMessage, bool) {
	if !kind.Copyable() {
		return nil, false
	}
	switch x := v.(type) {
	case Raw:
		if len(x) == 0 {
			return nil, false
		}
		return json.RawMessage(x), true
	case Number:
		switch kind {
		case KindNumber, KindText, KindOther:
			return marshal(x.String())
		}
	case Text:
		return encodeText(strings.TrimSpace(string(x)), kind)
	case Checkbox:
		if kind == KindCheckbox {
			if x {
				return marshal(map[string]string{"checked": "true"})
			}
			return json.RawMessage("null"), true
		}
	case LinkSet:
		if kind == KindRelation {
			return LinkPayload(x...), true
		}
	case Date:
		switch kind {
		case KindDate:
			if isDate(string(x)) {
				return marshal(map[string]string{"date": string(x)})
			}
		case KindText, KindOther:
			return marshal(string(x))
		}
	case People:
		if kind == KindPeople && len(x) > 0 {
			return PeoplePayload(x...), true
		}
	}
	return nil, false
}

func encodeText(s string, kind Kind) (json.RawMessage, bool) {
	if s == "" {
		return nil, false
	}
	switch kind {
	case KindText, KindOther:
		return marshal(s)
	case KindLongText:
		return marshal(map[string]string{"text": s})
	case KindStatus:
		return marshal(map[string]string{"label": s})
	case KindDropdown:
		return marshal(map[string][]string{"labels": {s}})
	case KindDate:
		if d := leadingDate(s); d != "" {
			return marshal(map[string]string{"date": d})
		}
	case KindNumber:
		if n, ok := ParseNumber(s); ok {
			return marshal(n.String())
		}
	case KindCheckbox:
		return Encode(Checkbox(checkedToken(s)), kind)
	}
	return nil, false
}

// ForTarget converts a source column value into a payload for a target column
// of the given kind. A well-formed structured payload is forwarded verbatim;
// otherwise the rendered text is decoded as the target kind and re-encoded.
func ForTarget(cv *ColumnValue, kind Kind) (json.RawMessage, bool) {
	if cv == nil || !kind.Copyable() {
		return nil, false
	}
	if cv.HasStructured() {
		return Encode(Raw(strings.TrimSpace(cv.Value)), kind)
	}
	text := strings.TrimSpace(cv.Text)
	if text == "" || kind == KindRelation || kind == KindPeople {
		return nil, false
	}
	// Decode reads a bad number as zero; a copy must skip it instead.
	if _, ok := ParseNumber(text); kind == KindNumber && !ok {
		return nil, false
	}
	return Encode(Decode(&ColumnValue{ID: cv.ID, Text: text}, kind), kind)
}

// LinkPayload builds a relation payload pointing at the given items.
func LinkPayload(ids ...int64) json.RawMessage {
	type link struct {
		LinkedPulseID int64 `json:"linkedPulseId"`
	}
	links := make([]link, 0, len(ids))
	for _, id := range ids {
		links = append(links, link{LinkedPulseID: id})
	}
	b, _ := json.Marshal(map[string][]link{"linkedPulseIds": links})
	return b
}

// PeoplePayload builds a people column payload assigning the given users.
func PeoplePayload(ids ...int64) json.RawMessage {
	type person struct {
		ID   int64  `json:"id"`
		Kind string `json:"kind"`
	}
	people := make([]person, 0, len(ids))
	for _, id := range ids {
		people = append(people, person{ID: id, Kind: "person"})
	}
	b, _ := json.Marshal(map[string][]person{"personsAndTeams": people})
	return b
}

// NumberPayload is the plain numeric-string payload used for stock writes.
func NumberPayload(d decimal.Decimal) json.RawMessage {
	b, _ := json.Marshal(d.String())
	return b
}

// DatePayload stamps a date column with the calendar day of t.
func DatePayload(t time.Time) json.RawMessage {
	b, _ := json.Marshal(map[string]string{"date": t.Format(dateLayoutOnly)})
	return b
}

func isDate(s string) bool {
	if len(s) != len(dateLayoutOnly) {
		return false
	}
	_, err := time.Parse(dateLayoutOnly, s)
	return err == nil
}

func marshal(v interface{}) (json.RawMessage, bool) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, false
	}
	return b, true
}
