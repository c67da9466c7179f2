package monday

import (
	"context"
	"fmt"
	"strings"

	"github.com/acostock/stocksuite/internal/utils"
)

// Me returns the owner of the API token. Used as a token check.
func (c *Client) Me(ctx context.Context) (*User, error) {
	data, err := c.Do(ctx, Request{Query: queryMe, Versioned: true})
	if err != nil {
		return nil, err
	}
	me := data.Get("me")
	if !me.Exists() {
		return nil, &APIError{Messages: []string{"empty me response"}}
	}
	return &User{ID: me.Get("id").Int(), Name: me.Get("name").String(), Email: me.Get("email").String()}, nil
}

// Boards lists boards visible to the token, optionally filtered by a
// case-insensitive name substring. Some accounts only expose boards through
// me.boards, so that is tried when the top-level listing comes back empty.
func (c *Client) Boards(ctx context.Context, search string) ([]Board, error) {
	data, err := c.Do(ctx, Request{Query: queryBoards, Variables: map[string]interface{}{"limit": 500}})
	if err != nil && !IsAPI(err) {
		return nil, err
	}
	raw := data.Get("boards").Array()
	if len(raw) == 0 {
		data, err = c.Do(ctx, Request{Query: queryMyBoards})
		if err != nil {
			return nil, err
		}
		raw = data.Get("me.boards").Array()
	}

	search = strings.ToLower(strings.TrimSpace(search))
	boards := make([]Board, 0, len(raw))
	for _, b := range raw {
		board := parseBoard(b)
		if search != "" && !strings.Contains(strings.ToLower(board.Name), search) {
			continue
		}
		boards = append(boards, board)
	}
	return boards, nil
}

func (c *Client) Groups(ctx context.Context, boardID int64) ([]Group, error) {
	data, err := c.Do(ctx, Request{
		Query:     queryGroups,
		Variables: map[string]interface{}{"boardId": []int64{boardID}},
		Versioned: true,
	})
	if err != nil {
		return nil, err
	}
	var groups []Group
	for _, g := range data.Get("boards.0.groups").Array() {
		groups = append(groups, Group{ID: g.Get("id").String(), Title: g.Get("title").String()})
	}
	return groups, nil
}

func (c *Client) Columns(ctx context.Context, boardID int64) ([]Column, error) {
	data, err := c.Do(ctx, Request{
		Query:     queryColumns,
		Variables: map[string]interface{}{"boardId": []int64{boardID}},
	})
	if err != nil {
		return nil, err
	}
	var cols []Column
	for _, col := range data.Get("boards.0.columns").Array() {
		cols = append(cols, Column{
			ID:    col.Get("id").String(),
			Title: col.Get("title").String(),
			Type:  col.Get("type").String(),
		})
	}
	return cols, nil
}

// Item fetches one item with all of its column values. A missing item
// returns (nil, nil).
func (c *Client) Item(ctx context.Context, itemID int64) (*Item, error) {
	data, err := c.Do(ctx, Request{
		Query:     queryItem,
		Variables: map[string]interface{}{"id": []int64{itemID}},
	})
	if err != nil {
		return nil, err
	}
	r := data.Get("items.0")
	if !r.Exists() {
		return nil, nil
	}
	it := parseItem(r)
	return &it, nil
}

// ItemsPage returns one page of a board's items. Pass the cursor of the
// previous page to continue; an empty cursor starts from the beginning.
func (c *Client) ItemsPage(ctx context.Context, boardID int64, cursor string, limit int) (ItemsPage, error) {
	if limit <= 0 {
		limit = PageSize
	}
	if cursor != "" {
		return c.nextItemsPage(ctx, cursor, limit)
	}
	data, err := c.Do(ctx, Request{
		Query:     queryBoardItemsPage,
		Variables: map[string]interface{}{"boardId": []int64{boardID}, "limit": limit},
		Versioned: true,
	})
	if err != nil {
		return ItemsPage{}, err
	}
	page := data.Get("boards.0.items_page")
	items := parseItems(page.Get("items"))
	for i := range items {
		items[i].BoardID = boardID
	}
	return ItemsPage{Items: items, Cursor: page.Get("cursor").String()}, nil
}

// GroupItemsPage is ItemsPage restricted to one group.
func (c *Client) GroupItemsPage(ctx context.Context, boardID int64, groupID, cursor string, limit int) (ItemsPage, error) {
	if limit <= 0 {
		limit = PageSize
	}
	if cursor != "" {
		return c.nextItemsPage(ctx, cursor, limit)
	}
	data, err := c.Do(ctx, Request{
		Query: queryGroupItemsPage,
		Variables: map[string]interface{}{
			"boardId": []int64{boardID},
			"groupId": []string{groupID},
			"limit":   limit,
		},
		Versioned: true,
	})
	if err != nil {
		return ItemsPage{}, err
	}
	page := data.Get("boards.0.groups.0.items_page")
	items := parseItems(page.Get("items"))
	for i := range items {
		items[i].BoardID = boardID
		if items[i].GroupID == "" {
			items[i].GroupID = groupID
		}
	}
	return ItemsPage{Items: items, Cursor: page.Get("cursor").String()}, nil
}

func (c *Client) nextItemsPage(ctx context.Context, cursor string, limit int) (ItemsPage, error) {
	data, err := c.Do(ctx, Request{
		Query:     queryNextItemsPage,
		Variables: map[string]interface{}{"cursor": cursor, "limit": limit},
		Versioned: true,
	})
	if err != nil {
		return ItemsPage{}, err
	}
	page := data.Get("next_items_page")
	return ItemsPage{Items: parseItems(page.Get("items")), Cursor: page.Get("cursor").String()}, nil
}

// GroupItems loads every item of a group, following the cursor for at most
// MaxPages pages. Items past the ceiling are left out with a warning.
func (c *Client) GroupItems(ctx context.Context, boardID int64, groupID string) ([]Item, error) {
	var (
		all    []Item
		cursor string
	)
	for page := 0; page < MaxPages; page++ {
		p, err := c.GroupItemsPage(ctx, boardID, groupID, cursor, PageSize)
		if err != nil {
			return nil, err
		}
		for i := range p.Items {
			p.Items[i].BoardID = boardID
		}
		all = append(all, p.Items...)
		cursor = p.Cursor
		if cursor == "" {
			break
		}
	}
	if cursor != "" {
		utils.Log.Warnf("Group %s of board %d has more than %d pages, only %d items loaded", groupID, boardID, MaxPages, len(all))
	}
	return all, nil
}

// CreateItem creates an item and returns its id. Relation and people
// columns are rejected by the API at creation time and must be written
// afterwards with ChangeColumnValues.
func (c *Client) CreateItem(ctx context.Context, boardID int64, groupID, name string, values ColumnValues) (int64, error) {
	vars := map[string]interface{}{"boardId": boardID, "name": name}
	if groupID != "" {
		vars["groupId"] = groupID
	}
	if len(values) > 0 {
		enc, err := values.encode()
		if err != nil {
			return 0, fmt.Errorf("encoding column values: %w", err)
		}
		vars["values"] = enc
	}
	data, err := c.Do(ctx, Request{Query: mutationCreateItem, Variables: vars})
	if err != nil {
		return 0, err
	}
	id := data.Get("create_item.id").Int()
	if id == 0 {
		return 0, &APIError{Messages: []string{"create_item returned no id"}}
	}
	return id, nil
}

func (c *Client) ChangeColumnValues(ctx context.Context, boardID, itemID int64, values ColumnValues) error {
	enc, err := values.encode()
	if err != nil {
		return fmt.Errorf("encoding column values: %w", err)
	}
	_, err = c.Do(ctx, Request{
		Query:     mutationChangeValues,
		Variables: map[string]interface{}{"itemId": itemID, "boardId": boardID, "values": enc},
	})
	return err
}

func (c *Client) CreateGroup(ctx context.Context, boardID int64, name string) (string, error) {
	data, err := c.Do(ctx, Request{
		Query:     mutationCreateGroup,
		Variables: map[string]interface{}{"boardId": boardID, "name": name},
		Versioned: true,
	})
	if err != nil {
		return "", err
	}
	id := data.Get("create_group.id").String()
	if id == "" {
		return "", &APIError{Messages: []string{"create_group returned no id"}}
	}
	return id, nil
}

func (c *Client) DeleteItem(ctx context.Context, itemID int64) error {
	_, err := c.Do(ctx, Request{Query: mutationDeleteItem, Variables: map[string]interface{}{"id": itemID}})
	return err
}

func (c *Client) ArchiveItem(ctx context.Context, itemID int64) error {
	_, err := c.Do(ctx, Request{Query: mutationArchiveItem, Variables: map[string]interface{}{"id": itemID}})
	return err
}

// CreateUpdate posts a comment on an item and returns the update id.
func (c *Client) CreateUpdate(ctx context.Context, itemID int64, body string) (int64, error) {
	data, err := c.Do(ctx, Request{
		Query:     mutationCreateUpdate,
		Variables: map[string]interface{}{"itemId": itemID, "body": body},
	})
	if err != nil {
		return 0, err
	}
	return data.Get("create_update.id").Int(), nil
}

func (c *Client) CreateNotification(ctx context.Context, userID, targetID int64, text string, target NotificationTarget) error {
	if target == "" {
		target = TargetProject
	}
	_, err := c.Do(ctx, Request{
		Query: mutationCreateNotification,
		Variables: map[string]interface{}{
			"userId":     userID,
			"targetId":   targetID,
			"text":       text,
			"targetType": string(target),
		},
	})
	return err
}
