// Package catalog looks up product rows on the catalog board.
package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/acostock/stocksuite/pkg/columns"
	"github.com/acostock/stocksuite/pkg/monday"
)

// Pager is the part of the gateway the resolver needs.
type Pager interface {
	ItemsPage(ctx context.Context, boardID int64, cursor string, limit int) (monday.ItemsPage, error)
}

type Resolver struct {
	api      Pager
	pageSize int
	maxPages int
}

func NewResolver(api Pager) *Resolver {
	return &Resolver{api: api, pageSize: monday.PageSize, maxPages: monday.MaxPages}
}

// FindByBarcode returns the first item whose barcode column text equals
// barcode after trimming. Comparison is case-sensitive. (nil, nil) means not
// found, including when the page ceiling is hit.
func (r *Resolver) FindByBarcode(ctx context.Context, boardID int64, barcodeColumnID, barcode string) (*monday.Item, error) {
	target := strings.TrimSpace(barcode)
	if target == "" {
		return nil, nil
	}
	return r.scan(ctx, boardID, func(it *monday.Item) bool {
		bc := columns.TextOf(it.Value(barcodeColumnID))
		return bc != "" && bc == target
	})
}

// FindByExactName returns the first item whose trimmed name equals name,
// ignoring case.
func (r *Resolver) FindByExactName(ctx context.Context, boardID int64, name string) (*monday.Item, error) {
	target := strings.TrimSpace(name)
	if target == "" {
		return nil, nil
	}
	return r.scan(ctx, boardID, func(it *monday.Item) bool {
		return strings.EqualFold(strings.TrimSpace(it.Name), target)
	})
}

func (r *Resolver) scan(ctx context.Context, boardID int64, match func(*monday.Item) bool) (*monday.Item, error) {
	cursor := ""
	for page := 0; page < r.maxPages; page++ {
		p, err := r.api.ItemsPage(ctx, boardID, cursor, r.pageSize)
		if err != nil {
			return nil, fmt.Errorf("catalog page %d of board %d: %w", page+1, boardID, err)
		}
		for i := range p.Items {
			if match(&p.Items[i]) {
				it := p.Items[i]
				if it.BoardID == 0 {
					it.BoardID = boardID
				}
				return &it, nil
			}
		}
		if p.Cursor == "" {
			return nil, nil
		}
		cursor = p.Cursor
	}
	return nil, nil
}
