// Package report mirrors processed batch rows onto a report board.
//
// Values are mapped in two passes. Explicit overrides (target column id to
// source column id) come first and are never overwritten. Remaining source
// columns are matched to target columns by normalized title. Values for
// creatable kinds go into the create_item payload; everything else is
// written in a follow-up update once the item exists.
package report

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/acostock/stocksuite/pkg/columns"
	"github.com/acostock/stocksuite/pkg/diag"
	"github.com/acostock/stocksuite/pkg/monday"
	"golang.org/x/sync/errgroup"
)

type Gateway interface {
	Columns(ctx context.Context, boardID int64) ([]monday.Column, error)
	CreateItem(ctx context.Context, boardID int64, groupID, name string, values monday.ColumnValues) (int64, error)
	ChangeColumnValues(ctx context.Context, boardID, itemID int64, values monday.ColumnValues) error
}

// Override pins a target column to a source column. TypeHint is used when
// the target column cannot be found on the board.
type Override struct {
	SourceColumnID string
	TypeHint       string
}

// RelationHint keeps the mirrored item linked to ItemID. The target column
// is TargetColumnID, or the relation column titled like SourceTitle.
type RelationHint struct {
	TargetColumnID string
	SourceTitle    string
	ItemID         int64
}

type Extras struct {
	DateColumnID   string
	Date           time.Time
	PersonColumnID string
	UserID         int64
}

type Request struct {
	Source        *monday.Item
	SourceBoardID int64
	TargetBoardID int64
	TargetGroupID string
	Overrides     map[string]Override
	Relations     []RelationHint
	Extras        Extras
}

type Result struct {
	ItemID   int64
	Initial  monday.ColumnValues
	Post     monday.ColumnValues
	Warnings []diag.Warning
}

type Mirror struct {
	api Gateway
	now func() time.Time
}

func NewMirror(api Gateway) *Mirror {
	return &Mirror{api: api, now: time.Now}
}

// NormalizeTitle lowercases s, strips everything but letters, digits and
// spaces and collapses runs of whitespace.
func NormalizeTitle(s string) string {
	s = strings.ToLower(s)
	s = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsNumber(r) || unicode.IsSpace(r) {
			return r
		}
		return -1
	}, s)
	return strings.Join(strings.Fields(s), " ")
}

// Plan builds the creation and follow-up payloads for req against the given
// board columns, and resolves the relation hints to target column ids.
func Plan(req Request, srcCols, tgtCols []monday.Column) (initial, post monday.ColumnValues, links map[string]int64) {
	initial = monday.ColumnValues{}
	post = monday.ColumnValues{}
	links = map[string]int64{}

	tgtByID := make(map[string]monday.Column, len(tgtCols))
	tgtByTitle := make(map[string]monday.Column, len(tgtCols))
	for _, c := range tgtCols {
		tgtByID[c.ID] = c
		if key := NormalizeTitle(c.Title); key != "" {
			if _, dup := tgtByTitle[key]; !dup {
				tgtByTitle[key] = c
			}
		}
	}
	srcTitle := make(map[string]string, len(srcCols))
	for _, c := range srcCols {
		srcTitle[c.ID] = c.Title
	}

	for _, h := range req.Relations {
		if h.ItemID == 0 {
			continue
		}
		if h.TargetColumnID != "" {
			links[h.TargetColumnID] = h.ItemID
			continue
		}
		if c, ok := tgtByTitle[NormalizeTitle(h.SourceTitle)]; ok && c.Kind() == columns.KindRelation {
			links[c.ID] = h.ItemID
		}
	}

	put := func(id string, kind columns.Kind, payload []byte) {
		if kind.Creatable() {
			initial[id] = payload
		} else {
			post[id] = payload
		}
	}

	pinned := map[string]bool{}
	consumed := map[string]bool{}
	targets := make([]string, 0, len(req.Overrides))
	for id := range req.Overrides {
		targets = append(targets, id)
	}
	sort.Strings(targets)
	// A target is pinned only once its override writes a value. An override
	// whose source is missing or empty leaves the target to the title match.
	for _, tgtID := range targets {
		ov := req.Overrides[tgtID]
		if ov.SourceColumnID == "" {
			continue
		}
		consumed[ov.SourceColumnID] = true
		cv := req.Source.Value(ov.SourceColumnID)
		if cv == nil {
			continue
		}
		kind := columns.ParseKind(ov.TypeHint)
		if c, ok := tgtByID[tgtID]; ok {
			kind = c.Kind()
		}
		if payload, ok := columns.ForTarget(cv, kind); ok {
			put(tgtID, kind, payload)
			pinned[tgtID] = true
		}
	}

	for i := range req.Source.Values {
		cv := &req.Source.Values[i]
		if consumed[cv.ID] {
			continue
		}
		title, ok := srcTitle[cv.ID]
		if !ok {
			continue
		}
		tgt, ok := tgtByTitle[NormalizeTitle(title)]
		if !ok || pinned[tgt.ID] || tgt.Type == "name" {
			continue
		}
		kind := tgt.Kind()
		switch kind {
		case columns.KindUnsupported:
			continue
		case columns.KindRelation:
			if cv.HasStructured() {
				post[tgt.ID] = []byte(strings.TrimSpace(cv.Value))
			} else if id, ok := links[tgt.ID]; ok {
				post[tgt.ID] = columns.LinkPayload(id)
			}
			continue
		}
		if payload, ok := columns.ForTarget(cv, kind); ok {
			put(tgt.ID, kind, payload)
		}
	}

	// Hinted relations the source had no value for. Overrides win over hints.
	for colID, id := range links {
		if pinned[colID] {
			delete(links, colID)
			continue
		}
		if _, ok := post[colID]; !ok {
			post[colID] = columns.LinkPayload(id)
		}
	}

	if ex := req.Extras; ex.DateColumnID != "" && !ex.Date.IsZero() {
		initial[ex.DateColumnID] = columns.DatePayload(ex.Date)
	}
	if ex := req.Extras; ex.PersonColumnID != "" && ex.UserID != 0 {
		post[ex.PersonColumnID] = columns.PeoplePayload(ex.UserID)
	}
	return initial, post, links
}

// Copy creates the mirrored item. Only a failure to create the item is an
// error; failures while filling in relations afterwards are warnings and the
// partially filled item is kept.
func (m *Mirror) Copy(ctx context.Context, req Request) (Result, error) {
	if req.Source == nil {
		return Result{}, fmt.Errorf("report copy: no source item")
	}
	srcBoard := req.SourceBoardID
	if srcBoard == 0 {
		srcBoard = req.Source.BoardID
	}
	if req.Extras.Date.IsZero() {
		req.Extras.Date = m.now()
	}

	var srcCols, tgtCols []monday.Column
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		srcCols, err = m.api.Columns(gctx, srcBoard)
		if err != nil {
			return fmt.Errorf("source board %d columns: %w", srcBoard, err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		tgtCols, err = m.api.Columns(gctx, req.TargetBoardID)
		if err != nil {
			return fmt.Errorf("report board %d columns: %w", req.TargetBoardID, err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	initial, post, links := Plan(req, srcCols, tgtCols)
	res := Result{Initial: initial, Post: post}

	id, err := m.api.CreateItem(ctx, req.TargetBoardID, req.TargetGroupID, req.Source.Name, initial)
	if err != nil {
		return res, fmt.Errorf("creating report item: %w", err)
	}
	res.ItemID = id

	var warns diag.List
	if len(post) > 0 {
		warns.Add("report-post", id, m.api.ChangeColumnValues(ctx, req.TargetBoardID, id, post))
	}

	// Write the hinted links once more on their own, in case the follow-up
	// payload was rejected or title matching filled the column differently.
	colIDs := make([]string, 0, len(links))
	for colID := range links {
		colIDs = append(colIDs, colID)
	}
	sort.Strings(colIDs)
	for _, colID := range colIDs {
		err := m.api.ChangeColumnValues(ctx, req.TargetBoardID, id, monday.ColumnValues{colID: columns.LinkPayload(links[colID])})
		warns.Add("report-relation", id, err)
	}

	res.Warnings = warns.Warnings()
	return res, nil
}
