package storage

import "time"

// Run is one recorded batch run.
type Run struct {
	ID            string    `json:"id"`
	Kind          string    `json:"kind"` // entry | exit
	BoardID       int64     `json:"boardId"`
	GroupID       string    `json:"groupId"`
	ReportGroupID string    `json:"reportGroupId,omitempty"`
	TriggerUserID int64     `json:"triggerUserId,omitempty"`
	OK            bool      `json:"ok"`
	Blocked       bool      `json:"blocked"`
	Reason        string    `json:"reason,omitempty"`
	MissingCount  int       `json:"missingCount,omitempty"`
	Count         int       `json:"count"`
	Warnings      []string  `json:"warnings,omitempty"`
	Error         string    `json:"error,omitempty"`
	StartedAt     time.Time `json:"startedAt"`
	FinishedAt    time.Time `json:"finishedAt"`

	// Results is only filled by GetRun.
	Results []RunResult `json:"results,omitempty"`
}

// RunResult is the outcome of one row. Quantities are decimal strings.
type RunResult struct {
	ItemID       int64  `json:"itemId"`
	OK           bool   `json:"ok"`
	Barcode      string `json:"barcode,omitempty"`
	Qty          string `json:"qty,omitempty"`
	From         string `json:"from,omitempty"`
	To           string `json:"to,omitempty"`
	CatalogID    int64  `json:"catalogId,omitempty"`
	ReportItemID int64  `json:"reportItemId,omitempty"`
	Reason       string `json:"reason,omitempty"`
	Error        string `json:"error,omitempty"`
}

type KindStats struct {
	Kind       string `json:"kind"`
	Runs       int    `json:"runs"`
	Blocked    int    `json:"blocked"`
	Failed     int    `json:"failed"`
	RowsOK     int    `json:"rowsOk"`
	RowsFailed int    `json:"rowsFailed"`
}
