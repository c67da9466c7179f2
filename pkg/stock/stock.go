// Package stock applies signed quantity changes to catalog stock columns.
package stock

import (
	"context"
	"fmt"
	"strconv"

	"github.com/acostock/stocksuite/pkg/columns"
	"github.com/acostock/stocksuite/pkg/monday"
	"github.com/shopspring/decimal"
)

type Direction int

const (
	Inbound Direction = iota
	Outbound
)

func (d Direction) String() string {
	if d == Outbound {
		return "outbound"
	}
	return "inbound"
}

// Gateway is the part of the API client the mutator needs.
type Gateway interface {
	Item(ctx context.Context, itemID int64) (*monday.Item, error)
	ChangeColumnValues(ctx context.Context, boardID, itemID int64, values monday.ColumnValues) error
}

type Mutation struct {
	BoardID   int64
	ItemID    int64
	ColumnID  string
	Quantity  decimal.Decimal
	Direction Direction
}

type Change struct {
	From decimal.Decimal
	To   decimal.Decimal
}

// Next computes the new stock level. Outbound never goes below zero.
func Next(current, qty decimal.Decimal, dir Direction) decimal.Decimal {
	if dir == Outbound {
		next := current.Sub(qty)
		if next.IsNegative() {
			return decimal.Zero
		}
		return next
	}
	return current.Add(qty)
}

type Mutator struct {
	api    Gateway
	locker Locker
}

// NewMutator returns a mutator that serializes writes per catalog item with
// locker. A nil locker gets a process-wide KeyedMutex.
func NewMutator(api Gateway, locker Locker) *Mutator {
	if locker == nil {
		locker = NewKeyedMutex()
	}
	return &Mutator{api: api, locker: locker}
}

// Apply reads the current stock of the catalog item, computes the new level
// and writes it back. The read happens under the item's lock so that two
// batches touching the same product cannot lose an update.
func (m *Mutator) Apply(ctx context.Context, mut Mutation) (Change, error) {
	unlock, err := m.locker.Lock(ctx, strconv.FormatInt(mut.ItemID, 10))
	if err != nil {
		return Change{}, fmt.Errorf("locking catalog item %d: %w", mut.ItemID, err)
	}
	defer unlock()

	it, err := m.api.Item(ctx, mut.ItemID)
	if err != nil {
		return Change{}, fmt.Errorf("reading catalog item %d: %w", mut.ItemID, err)
	}
	if it == nil {
		return Change{}, fmt.Errorf("catalog item %d not found", mut.ItemID)
	}

	current := columns.NumberOf(it.Value(mut.ColumnID))
	next := Next(current, mut.Quantity, mut.Direction)

	err = m.api.ChangeColumnValues(ctx, mut.BoardID, mut.ItemID, monday.ColumnValues{
		mut.ColumnID: columns.NumberPayload(next),
	})
	if err != nil {
		return Change{From: current}, fmt.Errorf("writing stock of catalog item %d: %w", mut.ItemID, err)
	}
	return Change{From: current, To: next}, nil
}
