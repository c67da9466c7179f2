package monday

import (
	"encoding/json"
	"strings"

	"github.com/acostock/stocksuite/pkg/columns"
	"github.com/tidwall/gjson"
)

type Item struct {
	ID         int64                 `json:"id"`
	Name       string                `json:"name"`
	BoardID    int64                 `json:"boardId,omitempty"`
	GroupID    string                `json:"groupId,omitempty"`
	GroupTitle string                `json:"groupTitle,omitempty"`
	Values     []columns.ColumnValue `json:"columnValues,omitempty"`
}

// Value returns the column value with the given id, or nil.
func (it *Item) Value(columnID string) *columns.ColumnValue {
	if it == nil || columnID == "" {
		return nil
	}
	for i := range it.Values {
		if it.Values[i].ID == columnID {
			return &it.Values[i]
		}
	}
	return nil
}

type Column struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Type  string `json:"type"`
}

func (c Column) Kind() columns.Kind { return columns.ParseKind(c.Type) }

type Group struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type Board struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	State         string `json:"state,omitempty"`
	Kind          string `json:"kind,omitempty"`
	WorkspaceID   int64  `json:"workspaceId,omitempty"`
	WorkspaceName string `json:"workspaceName,omitempty"`
}

type User struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// ItemsPage is one page of a cursor walk. An empty Cursor means the walk is done.
type ItemsPage struct {
	Items  []Item
	Cursor string
}

// ColumnValues maps column ids to writable payloads.
type ColumnValues map[string]json.RawMessage

// encode renders the map as the JSON string the column_values argument expects.
func (cv ColumnValues) encode() (string, error) {
	if len(cv) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(map[string]json.RawMessage(cv))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

type NotificationTarget string

const (
	TargetProject NotificationTarget = "Project"
	TargetPost    NotificationTarget = "Post"
)

func parseItem(r gjson.Result) Item {
	it := Item{
		ID:         r.Get("id").Int(),
		Name:       strings.TrimSpace(r.Get("name").String()),
		BoardID:    r.Get("board.id").Int(),
		GroupID:    r.Get("group.id").String(),
		GroupTitle: r.Get("group.title").String(),
	}
	for _, cv := range r.Get("column_values").Array() {
		value := cv.Get("value")
		v := ""
		if value.Exists() && value.Type != gjson.Null {
			v = value.String()
		}
		it.Values = append(it.Values, columns.ColumnValue{
			ID:    cv.Get("id").String(),
			Text:  cv.Get("text").String(),
			Value: v,
		})
	}
	return it
}

func parseItems(r gjson.Result) []Item {
	arr := r.Array()
	items := make([]Item, 0, len(arr))
	for _, it := range arr {
		items = append(items, parseItem(it))
	}
	return items
}

func parseBoard(r gjson.Result) Board {
	return Board{
		ID:            r.Get("id").Int(),
		Name:          r.Get("name").String(),
		State:         r.Get("state").String(),
		Kind:          r.Get("board_kind").String(),
		WorkspaceID:   r.Get("workspace.id").Int(),
		WorkspaceName: r.Get("workspace.name").String(),
	}
}
