package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

const (
	runsSheet    = "Runs"
	resultsSheet = "Results"
)

var (
	runHeadings    = []string{"Run", "Kind", "Board", "Group", "Report group", "OK", "Blocked", "Reason", "Missing", "Rows", "Started", "Finished", "Error"}
	resultHeadings = []string{"Run", "Item", "OK", "Barcode", "Qty", "From", "To", "Catalog item", "Report item", "Reason", "Error"}
)

// ExportRuns writes the most recent runs and their row results as an xlsx
// workbook with one sheet for runs and one for results.
func (d *DB) ExportRuns(ctx context.Context, w io.Writer, limit int) error {
	runs, err := d.ListRecentRuns(ctx, limit)
	if err != nil {
		return err
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", runsSheet); err != nil {
		return err
	}
	if _, err := f.NewSheet(resultsSheet); err != nil {
		return err
	}
	if err := writeRow(f, runsSheet, 1, toCells(runHeadings)); err != nil {
		return err
	}
	if err := writeRow(f, resultsSheet, 1, toCells(resultHeadings)); err != nil {
		return err
	}

	resultRow := 2
	for i, r := range runs {
		err := writeRow(f, runsSheet, i+2, []interface{}{
			r.ID, r.Kind, r.BoardID, r.GroupID, r.ReportGroupID, r.OK, r.Blocked, r.Reason,
			r.MissingCount, r.Count, r.StartedAt.Format("2006-01-02 15:04:05"), r.FinishedAt.Format("2006-01-02 15:04:05"), r.Error,
		})
		if err != nil {
			return err
		}

		full, err := d.GetRun(ctx, r.ID)
		if err != nil {
			return fmt.Errorf("loading run %s: %w", r.ID, err)
		}
		for _, res := range full.Results {
			err := writeRow(f, resultsSheet, resultRow, []interface{}{
				r.ID, res.ItemID, res.OK, res.Barcode, res.Qty, res.From, res.To,
				res.CatalogID, res.ReportItemID, res.Reason, res.Error,
			})
			if err != nil {
				return err
			}
			resultRow++
		}
	}

	return f.Write(w)
}

func writeRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, cell, &values)
}

func toCells(ss []string) []interface{} {
	out := make([]interface{}, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
