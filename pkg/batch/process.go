package batch

import (
	"context"
	"fmt"

	"github.com/acostock/stocksuite/pkg/columns"
	"github.com/acostock/stocksuite/pkg/diag"
	"github.com/acostock/stocksuite/pkg/monday"
	"github.com/acostock/stocksuite/pkg/qc"
	"github.com/acostock/stocksuite/pkg/report"
	"github.com/acostock/stocksuite/pkg/stock"
)

// mirrorFunc copies a processed row to the report board.
type mirrorFunc func(ctx context.Context, it *monday.Item, catalogID int64) (report.Result, error)

// flow holds what differs between entry and exit rows.
type flow struct {
	kind          Kind
	boardID       int64
	barcodeSource string
	qtyColumn     string
	direction     stock.Direction
	notFound      string
	disposeMode   string
	mirror        mirrorFunc // nil when there is no report board
}

// ProcessEntry runs the entry batch of the trigger's group: QC gate, then
// for every row resolve, add stock, mirror and dispose.
func (o *Orchestrator) ProcessEntry(ctx context.Context, tr Trigger) (*Result, error) {
	ec := o.cfg.Entry
	if ec.BoardID == 0 {
		return nil, fmt.Errorf("entry: %w", ErrNotConfigured)
	}
	res := o.begin(KindEntry, ec.BoardID, ec.GroupID, tr)
	var warns diag.List

	err := func() error {
		items, err := o.api.GroupItems(ctx, ec.BoardID, res.GroupID)
		if err != nil {
			return fmt.Errorf("loading entry group %s: %w", res.GroupID, err)
		}

		gate := qc.NewGate(o.api, qc.Config{
			BoardID:             ec.BoardID,
			QCColumnID:          ec.QCColumn,
			CountColumnID:       ec.CountColumn,
			AlertPeopleColumnID: ec.AlertPeopleColumn,
			AlertUserIDs:        o.cfg.QC.AlertUserIDs,
			UpdateMessage:       o.cfg.QC.UpdateMessage,
			NotifyMessage:       o.cfg.QC.NotifyMessage,
		})
		gate.RemoveSentinel = func(ctx context.Context, itemID int64) error {
			return o.dispose(ctx, itemID, ec.CompleteMode)
		}
		if out := gate.Run(ctx, items, tr.SentinelItemID); out.Blocked {
			res.Blocked = true
			res.Reason = ReasonQCMissing
			res.MissingCount = out.MissingCount
			warns.Extend(out.Warnings)
			o.log.Warnf("ALERT & BLOCK: %d rows are missing QC or count, batch stopped", out.MissingCount)
			return nil
		}

		groupID, err := o.reportGroup(ctx, o.cfg.Report.BoardID, o.cfg.Report.CreateGroup)
		if err != nil {
			return err
		}
		res.ReportGroupID = groupID

		f := flow{
			kind:          KindEntry,
			boardID:       ec.BoardID,
			barcodeSource: ec.BarcodeSource,
			qtyColumn:     ec.QtyColumn,
			direction:     stock.Inbound,
			notFound:      ReasonNoCatalog,
			disposeMode:   ec.DisposeMode,
			mirror:        o.entryMirror(ctx, groupID, tr.UserID),
		}
		if err := o.rows(ctx, f, items, res, &warns); err != nil {
			return err
		}
		res.OK = true
		return nil
	}()
	return o.finish(ctx, res, &warns, err)
}

// ProcessExit runs the exit batch of the trigger's group. There is no QC
// gate; stock is taken out and floored at zero.
func (o *Orchestrator) ProcessExit(ctx context.Context, tr Trigger) (*Result, error) {
	xc := o.cfg.Exit
	if xc.BoardID == 0 {
		return nil, fmt.Errorf("exit: %w", ErrNotConfigured)
	}
	res := o.begin(KindExit, xc.BoardID, xc.GroupID, tr)
	var warns diag.List

	err := func() error {
		items, err := o.api.GroupItems(ctx, xc.BoardID, res.GroupID)
		if err != nil {
			return fmt.Errorf("loading exit group %s: %w", res.GroupID, err)
		}

		groupID, err := o.reportGroup(ctx, o.cfg.ExitReport.BoardID, o.cfg.ExitReport.CreateGroup)
		if err != nil {
			return err
		}
		res.ReportGroupID = groupID

		f := flow{
			kind:          KindExit,
			boardID:       xc.BoardID,
			barcodeSource: xc.BarcodeSource,
			qtyColumn:     xc.QtyColumn,
			direction:     stock.Outbound,
			notFound:      ReasonCatalogNotFound,
			disposeMode:   xc.DisposeMode,
			mirror:        o.exitMirror(groupID, tr.UserID),
		}
		if err := o.rows(ctx, f, items, res, &warns); err != nil {
			return err
		}
		res.OK = true
		return nil
	}()
	return o.finish(ctx, res, &warns, err)
}

func (o *Orchestrator) rows(ctx context.Context, f flow, items []monday.Item, res *Result, warns *diag.List) error {
	for _, it := range eligible(items) {
		out, err := o.row(ctx, f, &it, warns)
		res.Results = append(res.Results, out)
		if err != nil {
			return fmt.Errorf("%s item %d: %w", f.kind, it.ID, err)
		}
	}
	return nil
}

func (o *Orchestrator) row(ctx context.Context, f flow, it *monday.Item, warns *diag.List) (Outcome, error) {
	out := Outcome{ItemID: it.ID}
	barcode := barcodeOf(it, f.barcodeSource)
	qty := columns.NumberOf(it.Value(f.qtyColumn))
	out.Barcode = barcode
	if !qty.IsZero() {
		out.Qty = amount(qty)
	}
	if barcode == "" || !qty.IsPositive() {
		out.Reason = ReasonMissingInput
		o.log.Infof("SKIP: item %d barcode=%q qty=%s", it.ID, barcode, qty)
		return out, nil
	}

	cat, err := o.resolver.FindByBarcode(ctx, o.cfg.Catalog.BoardID, o.cfg.Catalog.BarcodeColumn, barcode)
	if err != nil {
		o.log.Warnf("Catalog lookup for %s failed: %v", barcode, err)
		return out, rowFailed(&out, ReasonCatalogError, err)
	}
	if cat == nil {
		out.Reason = f.notFound
		o.log.Warnf("NOT FOUND: %s", barcode)
		return out, nil
	}
	out.CatalogID = cat.ID

	change, err := o.mutator.Apply(ctx, stock.Mutation{
		BoardID:   o.cfg.Catalog.BoardID,
		ItemID:    cat.ID,
		ColumnID:  o.cfg.Catalog.StockColumn,
		Quantity:  qty,
		Direction: f.direction,
	})
	if err != nil {
		o.log.Warnf("Stock update for %s failed: %v", barcode, err)
		return out, rowFailed(&out, ReasonStockError, err)
	}
	out.From = amount(change.From)
	out.To = amount(change.To)

	if f.mirror != nil {
		mr, err := f.mirror(ctx, it, cat.ID)
		warns.Extend(mr.Warnings)
		for _, w := range mr.Warnings {
			o.log.Warnf("Report item %d: %v", mr.ItemID, w)
		}
		if err != nil {
			o.log.Warnf("Mirroring %s failed: %v", barcode, err)
			return out, rowFailed(&out, ReasonMirrorError, err)
		}
		out.ReportItemID = mr.ItemID
	}

	if err := o.dispose(ctx, it.ID, f.disposeMode); err != nil {
		o.log.Warnf("Disposing item %d failed: %v", it.ID, err)
		return out, rowFailed(&out, ReasonDisposeError, err)
	}

	out.OK = true
	sign := "+"
	if f.direction == stock.Outbound {
		sign = "-"
	}
	o.log.Infof("OK: %s %s%s [%s→%s]", barcode, sign, qty, change.From, change.To)
	return out, nil
}

// entryMirror builds the report copy for entry rows, or nil when there is
// no report board. The product relation hint is matched by the title of the
// entry board's product column.
func (o *Orchestrator) entryMirror(ctx context.Context, groupID string, userID int64) mirrorFunc {
	rc, ec := o.cfg.Report, o.cfg.Entry
	if rc.BoardID == 0 {
		return nil
	}
	overrides := map[string]report.Override{}
	pin(overrides, rc.LastPriceColumn, ec.LastPriceColumn, "numeric")
	pin(overrides, rc.QCColumn, ec.QCColumn, "checkbox")
	pin(overrides, rc.CountColumn, ec.CountColumn, "checkbox")
	pin(overrides, rc.NotesColumn, ec.NotesColumn, "text")
	title := o.productTitle(ctx)

	return func(ctx context.Context, it *monday.Item, catalogID int64) (report.Result, error) {
		return o.mirror.Copy(ctx, report.Request{
			Source:        it,
			SourceBoardID: ec.BoardID,
			TargetBoardID: rc.BoardID,
			TargetGroupID: groupID,
			Overrides:     overrides,
			Relations:     []report.RelationHint{{TargetColumnID: rc.ProductColumn, SourceTitle: title, ItemID: catalogID}},
			Extras: report.Extras{
				DateColumnID:   rc.DateColumn,
				Date:           o.now(),
				PersonColumnID: rc.PersonColumn,
				UserID:         userID,
			},
		})
	}
}

// exitMirror builds the report copy for exit rows. Besides the product, the
// row's own target relation is carried over as a second link.
func (o *Orchestrator) exitMirror(groupID string, userID int64) mirrorFunc {
	rc, xc := o.cfg.ExitReport, o.cfg.Exit
	if rc.BoardID == 0 {
		return nil
	}
	overrides := map[string]report.Override{}
	pin(overrides, rc.QtyColumn, xc.QtyColumn, "numeric")
	pin(overrides, rc.UnitColumn, xc.UnitColumn, "dropdown")

	return func(ctx context.Context, it *monday.Item, catalogID int64) (report.Result, error) {
		relations := []report.RelationHint{{TargetColumnID: rc.ProductColumn, ItemID: catalogID}}
		if ids := columns.LinkedIDs(it.Value(xc.TargetColumn)); len(ids) > 0 {
			relations = append(relations, report.RelationHint{TargetColumnID: rc.TargetColumn, ItemID: ids[0]})
		}
		return o.mirror.Copy(ctx, report.Request{
			Source:        it,
			SourceBoardID: xc.BoardID,
			TargetBoardID: rc.BoardID,
			TargetGroupID: groupID,
			Overrides:     overrides,
			Relations:     relations,
			Extras: report.Extras{
				DateColumnID:   rc.DateColumn,
				Date:           o.now(),
				PersonColumnID: rc.PersonColumn,
				UserID:         userID,
			},
		})
	}
}

func pin(overrides map[string]report.Override, target, source, hint string) {
	if target == "" || source == "" {
		return
	}
	overrides[target] = report.Override{SourceColumnID: source, TypeHint: hint}
}

// productTitle is the title of the entry board's product link column,
// falling back to the configured title.
func (o *Orchestrator) productTitle(ctx context.Context) string {
	title := o.cfg.Report.ProductSourceTitle
	if o.cfg.Entry.ProductLinkColumn == "" {
		return title
	}
	cols, err := o.api.Columns(ctx, o.cfg.Entry.BoardID)
	if err != nil {
		o.log.Debugf("Could not read entry board columns: %v", err)
		return title
	}
	for _, c := range cols {
		if c.ID == o.cfg.Entry.ProductLinkColumn && c.Title != "" {
			return c.Title
		}
	}
	return title
}
