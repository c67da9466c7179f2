// Package mondaytest provides an in-memory stand-in for the monday API
// client. It keeps boards, groups and items in maps, renders written column
// payloads back into text/value pairs and records every mutation.
package mondaytest

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/acostock/stocksuite/pkg/columns"
	"github.com/acostock/stocksuite/pkg/monday"
	"github.com/tidwall/gjson"
)

type Created struct {
	BoardID int64
	GroupID string
	Name    string
	ItemID  int64
	Values  monday.ColumnValues
}

type Change struct {
	BoardID int64
	ItemID  int64
	Values  monday.ColumnValues
}

type Update struct {
	ItemID int64
	Body   string
}

type Notification struct {
	UserID   int64
	TargetID int64
	Text     string
	Target   monday.NotificationTarget
}

type board struct {
	id      int64
	name    string
	columns []monday.Column
	groups  []monday.Group
	items   []int64
}

// Fake implements the same methods as *monday.Client.
type Fake struct {
	mu     sync.Mutex
	nextID int64
	boards map[int64]*board
	items  map[int64]*monday.Item

	// PageSize overrides the page size callers ask for when > 0.
	PageSize int

	Created       []Created
	Changes       []Change
	Updates       []Update
	Notifications []Notification
	Deleted       []int64
	Archived      []int64
	GroupsCreated []string
	Calls         map[string]int

	fail     map[string]error
	failItem map[string]map[int64]error
}

func New() *Fake {
	return &Fake{
		nextID:   1000,
		boards:   make(map[int64]*board),
		items:    make(map[int64]*monday.Item),
		Calls:    make(map[string]int),
		fail:     make(map[string]error),
		failItem: make(map[string]map[int64]error),
	}
}

// FailOn makes every call to op return err.
func (f *Fake) FailOn(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[op] = err
}

// FailFor makes calls to op that touch itemID return err.
func (f *Fake) FailFor(op string, itemID int64, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failItem[op] == nil {
		f.failItem[op] = make(map[int64]error)
	}
	f.failItem[op][itemID] = err
}

// AddBoard registers a board with its columns. The default group "topics"
// is always present.
func (f *Fake) AddBoard(id int64, name string, cols ...monday.Column) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.boards[id] = &board{id: id, name: name, columns: cols, groups: []monday.Group{{ID: "topics", Title: "Group Title"}}}
}

func (f *Fake) AddGroup(boardID int64, groupID, title string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b := f.mustBoard(boardID)
	b.groups = append(b.groups, monday.Group{ID: groupID, Title: title})
}

// AddItem seeds an item. Values are given as column id to ColumnValue.
func (f *Fake) AddItem(boardID int64, groupID, name string, values ...columns.ColumnValue) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	b := f.mustBoard(boardID)
	f.nextID++
	id := f.nextID
	it := &monday.Item{ID: id, Name: name, BoardID: boardID, GroupID: groupID}
	it.Values = append(it.Values, values...)
	f.items[id] = it
	b.items = append(b.items, id)
	return id
}

// Get returns a copy of a stored item, or nil once it is deleted or archived.
func (f *Fake) Get(itemID int64) *monday.Item {
	f.mu.Lock()
	defer f.mu.Unlock()
	it, ok := f.items[itemID]
	if !ok {
		return nil
	}
	cp := copyItem(it)
	return &cp
}

// Text returns the rendered text of one column of a stored item.
func (f *Fake) Text(itemID int64, columnID string) string {
	it := f.Get(itemID)
	if v := it.Value(columnID); v != nil {
		return v.Text
	}
	return ""
}

func (f *Fake) mustBoard(id int64) *board {
	b, ok := f.boards[id]
	if !ok {
		panic(fmt.Sprintf("mondaytest: unknown board %d", id))
	}
	return b
}

func (f *Fake) enter(op string, itemID int64) error {
	f.Calls[op]++
	if err := f.fail[op]; err != nil {
		return err
	}
	if m := f.failItem[op]; m != nil {
		if err := m[itemID]; err != nil {
			return err
		}
	}
	return nil
}

func (f *Fake) Me(ctx context.Context) (*monday.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("Me", 0); err != nil {
		return nil, err
	}
	return &monday.User{ID: 1, Name: "Test User", Email: "test@example.com"}, nil
}

func (f *Fake) Boards(ctx context.Context, search string) ([]monday.Board, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("Boards", 0); err != nil {
		return nil, err
	}
	var out []monday.Board
	for _, b := range f.boards {
		if search != "" && !strings.Contains(strings.ToLower(b.name), strings.ToLower(search)) {
			continue
		}
		out = append(out, monday.Board{ID: b.id, Name: b.name, State: "active"})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *Fake) Groups(ctx context.Context, boardID int64) ([]monday.Group, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("Groups", 0); err != nil {
		return nil, err
	}
	b, ok := f.boards[boardID]
	if !ok {
		return nil, nil
	}
	return append([]monday.Group(nil), b.groups...), nil
}

func (f *Fake) Columns(ctx context.Context, boardID int64) ([]monday.Column, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("Columns", 0); err != nil {
		return nil, err
	}
	b, ok := f.boards[boardID]
	if !ok {
		return nil, nil
	}
	return append([]monday.Column(nil), b.columns...), nil
}

func (f *Fake) Item(ctx context.Context, itemID int64) (*monday.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("Item", itemID); err != nil {
		return nil, err
	}
	it, ok := f.items[itemID]
	if !ok {
		return nil, nil
	}
	cp := copyItem(it)
	return &cp, nil
}

func (f *Fake) ItemsPage(ctx context.Context, boardID int64, cursor string, limit int) (monday.ItemsPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("ItemsPage", 0); err != nil {
		return monday.ItemsPage{}, err
	}
	return f.page(boardID, "", cursor, limit)
}

func (f *Fake) GroupItemsPage(ctx context.Context, boardID int64, groupID, cursor string, limit int) (monday.ItemsPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("GroupItemsPage", 0); err != nil {
		return monday.ItemsPage{}, err
	}
	return f.page(boardID, groupID, cursor, limit)
}

func (f *Fake) GroupItems(ctx context.Context, boardID int64, groupID string) ([]monday.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("GroupItems", 0); err != nil {
		return nil, err
	}
	var (
		all    []monday.Item
		cursor string
	)
	for page := 0; page < monday.MaxPages; page++ {
		p, err := f.page(boardID, groupID, cursor, monday.PageSize)
		if err != nil {
			return nil, err
		}
		all = append(all, p.Items...)
		if p.Cursor == "" {
			break
		}
		cursor = p.Cursor
	}
	return all, nil
}

// page serves items in insertion order. Cursors are "c:<offset>".
func (f *Fake) page(boardID int64, groupID, cursor string, limit int) (monday.ItemsPage, error) {
	b, ok := f.boards[boardID]
	if !ok {
		return monday.ItemsPage{}, nil
	}
	if f.PageSize > 0 {
		limit = f.PageSize
	}
	if limit <= 0 {
		limit = monday.PageSize
	}
	offset := 0
	if cursor != "" {
		n, err := strconv.Atoi(strings.TrimPrefix(cursor, "c:"))
		if err != nil {
			return monday.ItemsPage{}, &monday.APIError{Messages: []string{"invalid cursor " + cursor}}
		}
		offset = n
	}

	var ids []int64
	for _, id := range b.items {
		it, ok := f.items[id]
		if !ok {
			continue
		}
		if groupID != "" && it.GroupID != groupID {
			continue
		}
		ids = append(ids, id)
	}

	var out monday.ItemsPage
	end := offset + limit
	if end > len(ids) {
		end = len(ids)
	}
	for _, id := range ids[min(offset, len(ids)):end] {
		out.Items = append(out.Items, copyItem(f.items[id]))
	}
	if end < len(ids) {
		out.Cursor = "c:" + strconv.Itoa(end)
	}
	return out, nil
}

func (f *Fake) CreateItem(ctx context.Context, boardID int64, groupID, name string, values monday.ColumnValues) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("CreateItem", 0); err != nil {
		return 0, err
	}
	b, ok := f.boards[boardID]
	if !ok {
		return 0, &monday.APIError{Messages: []string{fmt.Sprintf("board %d not found", boardID)}}
	}
	if groupID == "" {
		groupID = b.groups[0].ID
	}
	for colID := range values {
		if k := f.kind(b, colID); !k.Creatable() {
			return 0, &monday.APIError{Messages: []string{fmt.Sprintf("column %s (%s) cannot be set on create", colID, k)}}
		}
	}
	f.nextID++
	id := f.nextID
	it := &monday.Item{ID: id, Name: name, BoardID: boardID, GroupID: groupID}
	f.items[id] = it
	b.items = append(b.items, id)
	f.apply(b, it, values)
	f.Created = append(f.Created, Created{BoardID: boardID, GroupID: groupID, Name: name, ItemID: id, Values: cloneValues(values)})
	return id, nil
}

func (f *Fake) ChangeColumnValues(ctx context.Context, boardID, itemID int64, values monday.ColumnValues) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("ChangeColumnValues", itemID); err != nil {
		return err
	}
	it, ok := f.items[itemID]
	if !ok {
		return &monday.APIError{Messages: []string{fmt.Sprintf("item %d not found", itemID)}}
	}
	f.apply(f.boards[boardID], it, values)
	f.Changes = append(f.Changes, Change{BoardID: boardID, ItemID: itemID, Values: cloneValues(values)})
	return nil
}

func (f *Fake) CreateGroup(ctx context.Context, boardID int64, name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("CreateGroup", 0); err != nil {
		return "", err
	}
	b, ok := f.boards[boardID]
	if !ok {
		return "", &monday.APIError{Messages: []string{fmt.Sprintf("board %d not found", boardID)}}
	}
	id := fmt.Sprintf("group_%d", len(b.groups))
	b.groups = append(b.groups, monday.Group{ID: id, Title: name})
	f.GroupsCreated = append(f.GroupsCreated, name)
	return id, nil
}

func (f *Fake) DeleteItem(ctx context.Context, itemID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("DeleteItem", itemID); err != nil {
		return err
	}
	delete(f.items, itemID)
	f.Deleted = append(f.Deleted, itemID)
	return nil
}

func (f *Fake) ArchiveItem(ctx context.Context, itemID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("ArchiveItem", itemID); err != nil {
		return err
	}
	delete(f.items, itemID)
	f.Archived = append(f.Archived, itemID)
	return nil
}

func (f *Fake) CreateUpdate(ctx context.Context, itemID int64, body string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("CreateUpdate", itemID); err != nil {
		return 0, err
	}
	f.Updates = append(f.Updates, Update{ItemID: itemID, Body: body})
	f.nextID++
	return f.nextID, nil
}

func (f *Fake) CreateNotification(ctx context.Context, userID, targetID int64, text string, target monday.NotificationTarget) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("CreateNotification", userID); err != nil {
		return err
	}
	f.Notifications = append(f.Notifications, Notification{UserID: userID, TargetID: targetID, Text: text, Target: target})
	return nil
}

// Removed reports whether the item was deleted or archived.
func (f *Fake) Removed(itemID int64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range append(append([]int64(nil), f.Deleted...), f.Archived...) {
		if id == itemID {
			return true
		}
	}
	return false
}

func (f *Fake) kind(b *board, colID string) columns.Kind {
	if b == nil {
		return columns.KindOther
	}
	for _, c := range b.columns {
		if c.ID == colID {
			return c.Kind()
		}
	}
	return columns.KindOther
}

func (f *Fake) apply(b *board, it *monday.Item, values monday.ColumnValues) {
	for colID, raw := range values {
		cv := columns.ColumnValue{ID: colID, Text: Render(raw)}
		if s := strings.TrimSpace(string(raw)); s != "null" {
			cv.Value = s
		}
		if cur := it.Value(colID); cur != nil {
			*cur = cv
		} else {
			it.Values = append(it.Values, cv)
		}
	}
}

// Render produces the display text the API would show for a written payload.
func Render(raw json.RawMessage) string {
	r := gjson.ParseBytes(raw)
	switch r.Type {
	case gjson.String, gjson.Number:
		return r.String()
	case gjson.Null:
		return ""
	case gjson.JSON:
		if c := r.Get("checked"); c.Exists() {
			if c.String() == "true" {
				return "v"
			}
			return ""
		}
		for _, key := range []string{"label", "text", "date"} {
			if v := r.Get(key); v.Exists() {
				return v.String()
			}
		}
		if l := r.Get("labels"); l.IsArray() {
			var parts []string
			for _, p := range l.Array() {
				parts = append(parts, p.String())
			}
			return strings.Join(parts, ", ")
		}
		if ids := r.Get("linkedPulseIds.#.linkedPulseId"); ids.IsArray() {
			var parts []string
			for _, p := range ids.Array() {
				parts = append(parts, p.String())
			}
			return strings.Join(parts, ", ")
		}
		if ids := r.Get("personsAndTeams.#.id"); ids.IsArray() {
			var parts []string
			for _, p := range ids.Array() {
				parts = append(parts, p.String())
			}
			return strings.Join(parts, ", ")
		}
	}
	return ""
}

// Value builds a seed column value from a payload, rendering its text.
func Value(columnID string, payload string) columns.ColumnValue {
	return columns.ColumnValue{ID: columnID, Text: Render(json.RawMessage(payload)), Value: payload}
}

// TextValue builds a seed column value with rendered text only.
func TextValue(columnID, text string) columns.ColumnValue {
	return columns.ColumnValue{ID: columnID, Text: text}
}

// Checked builds a checkbox column value.
func Checked(columnID string, checked bool) columns.ColumnValue {
	if checked {
		return Value(columnID, `{"checked":"true"}`)
	}
	return columns.ColumnValue{ID: columnID}
}

func copyItem(it *monday.Item) monday.Item {
	cp := *it
	cp.Values = append([]columns.ColumnValue(nil), it.Values...)
	return cp
}

func cloneValues(v monday.ColumnValues) monday.ColumnValues {
	out := make(monday.ColumnValues, len(v))
	for k, raw := range v {
		out[k] = append(json.RawMessage(nil), raw...)
	}
	return out
}
