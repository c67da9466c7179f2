package batch

import (
	"context"
	"fmt"

	"github.com/acostock/stocksuite/pkg/columns"
	"github.com/acostock/stocksuite/pkg/config"
	"github.com/acostock/stocksuite/pkg/monday"
	"github.com/acostock/stocksuite/pkg/qc"
)

// dispose archives or deletes a row. ModeKeep leaves it alone.
func (o *Orchestrator) dispose(ctx context.Context, itemID int64, mode string) error {
	switch mode {
	case config.ModeKeep:
		return nil
	case config.ModeDelete:
		return o.api.DeleteItem(ctx, itemID)
	default:
		return o.api.ArchiveItem(ctx, itemID)
	}
}

// RemoveSentinel disposes of a batch's completion row according to the
// board's complete_mode.
func (o *Orchestrator) RemoveSentinel(ctx context.Context, kind Kind, itemID int64) error {
	if itemID == 0 {
		return nil
	}
	mode := o.cfg.Entry.CompleteMode
	if kind == KindExit {
		mode = o.cfg.Exit.CompleteMode
	}
	if err := o.dispose(ctx, itemID, mode); err != nil {
		return fmt.Errorf("removing %s row %d: %w", Sentinel, itemID, err)
	}
	o.log.Infof("COMPLETE removed: %d mode=%s", itemID, mode)
	return nil
}

// AutoLink points a freshly created row's product relation at the catalog
// item matching its barcode. It returns the linked catalog id, or 0 when
// the row is not barcode-shaped, has no catalog match or the board has no
// product column.
func (o *Orchestrator) AutoLink(ctx context.Context, kind Kind, itemID int64) (int64, error) {
	boardID, source, column := o.cfg.Entry.BoardID, o.cfg.Entry.BarcodeSource, o.cfg.Entry.ProductLinkColumn
	if kind == KindExit {
		boardID, source, column = o.cfg.Exit.BoardID, o.cfg.Exit.BarcodeSource, o.cfg.Exit.ProductLinkColumn
	}
	if boardID == 0 || column == "" || itemID == 0 {
		return 0, nil
	}

	it, err := o.api.Item(ctx, itemID)
	if err != nil {
		return 0, fmt.Errorf("reading item %d: %w", itemID, err)
	}
	if it == nil || it.BoardID != boardID {
		return 0, nil
	}
	barcode := barcodeOf(it, source)
	if qc.IsSentinel(barcode) || !qc.LooksLikeBarcode(barcode) {
		return 0, nil
	}

	cat, err := o.resolver.FindByBarcode(ctx, o.cfg.Catalog.BoardID, o.cfg.Catalog.BarcodeColumn, barcode)
	if err != nil {
		return 0, err
	}
	if cat == nil {
		o.log.Infof("AUTO-LINK SKIP: barcode=%q is not in the catalog", barcode)
		return 0, nil
	}

	err = o.api.ChangeColumnValues(ctx, boardID, itemID, monday.ColumnValues{column: columns.LinkPayload(cat.ID)})
	if err != nil {
		return 0, fmt.Errorf("linking item %d to catalog item %d: %w", itemID, cat.ID, err)
	}
	o.log.Infof("%s AUTO-LINK: %d -> catalog %d (%s)", kind, itemID, cat.ID, barcode)
	return cat.ID, nil
}
