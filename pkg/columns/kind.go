package columns

import "strings"

// Kind is the closed set of column kinds the engine knows how to route.
type Kind int

const (
	KindUnsupported Kind = iota
	KindText
	KindLongText
	KindNumber
	KindStatus
	KindDropdown
	KindDate
	KindCheckbox
	KindRelation
	KindPeople
	KindOther
)

// ParseKind maps a vendor column type string to a Kind. Unknown types are
// copyable but only after the item exists (KindOther).
func ParseKind(columnType string) Kind {
	switch strings.ToLower(strings.TrimSpace(columnType)) {
	case "text", "name", "short_text":
		return KindText
	case "long_text", "long-text":
		return KindLongText
	case "numbers", "numeric", "number":
		return KindNumber
	case "status", "color":
		return KindStatus
	case "dropdown":
		return KindDropdown
	case "date":
		return KindDate
	case "checkbox", "boolean":
		return KindCheckbox
	case "board_relation", "board-relation", "board_relation_column":
		return KindRelation
	case "people", "multiple-person", "person":
		return KindPeople
	case "mirror", "lookup", "formula", "auto", "auto_number", "creation_log", "last_updated",
		"file", "subtasks", "subitems", "item_id", "button":
		return KindUnsupported
	default:
		return KindOther
	}
}

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindLongText:
		return "long_text"
	case KindNumber:
		return "numbers"
	case KindStatus:
		return "status"
	case KindDropdown:
		return "dropdown"
	case KindDate:
		return "date"
	case KindCheckbox:
		return "checkbox"
	case KindRelation:
		return "board_relation"
	case KindPeople:
		return "people"
	case KindOther:
		return "other"
	default:
		return "unsupported"
	}
}

// Creatable reports whether a value of this kind may be sent with the
// create_item call. Everything else has to go through a follow-up update.
func (k Kind) Creatable() bool {
	switch k {
	case KindText, KindLongText, KindNumber, KindStatus, KindDropdown, KindDate, KindCheckbox:
		return true
	case KindRelation, KindPeople, KindOther, KindUnsupported:
		return false
	}
	return false
}

// Copyable is false for computed and file-like columns.
func (k Kind) Copyable() bool {
	return k != KindUnsupported
}
