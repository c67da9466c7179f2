// Package batch reconciles the rows of an entry or exit group against the
// catalog: it runs the QC gate for entry batches, resolves every row's
// product, moves its stock, mirrors it to the report board and disposes of
// it. Rows are processed one after the other in group order.
package batch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/acostock/stocksuite/pkg/catalog"
	"github.com/acostock/stocksuite/pkg/columns"
	"github.com/acostock/stocksuite/pkg/config"
	"github.com/acostock/stocksuite/pkg/diag"
	"github.com/acostock/stocksuite/pkg/monday"
	"github.com/acostock/stocksuite/pkg/qc"
	"github.com/acostock/stocksuite/pkg/report"
	"github.com/acostock/stocksuite/pkg/stock"
	"github.com/acostock/stocksuite/pkg/storage"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Kind string

const (
	KindEntry Kind = "entry"
	KindExit  Kind = "exit"
)

// Row and batch reason codes.
const (
	ReasonMissingInput    = "missing-barcode-or-qty"
	ReasonNoCatalog       = "no-catalog"
	ReasonCatalogNotFound = "catalog-not-found"
	ReasonCatalogError    = "catalog-error"
	ReasonStockError      = "stock-error"
	ReasonMirrorError     = "mirror-error"
	ReasonDisposeError    = "dispose-error"
	ReasonQCMissing       = "qc_or_count_missing"
)

// Sentinel is the row name that completes a batch.
const Sentinel = qc.Sentinel

// GroupNameLayout names the report group created for each run.
const GroupNameLayout = "02.01.2006 15:04:05"

var ErrNotConfigured = errors.New("board is not configured")

// Gateway is the subset of the monday client the orchestrator drives.
type Gateway interface {
	GroupItems(ctx context.Context, boardID int64, groupID string) ([]monday.Item, error)
	Item(ctx context.Context, itemID int64) (*monday.Item, error)
	ItemsPage(ctx context.Context, boardID int64, cursor string, limit int) (monday.ItemsPage, error)
	Columns(ctx context.Context, boardID int64) ([]monday.Column, error)
	CreateItem(ctx context.Context, boardID int64, groupID, name string, values monday.ColumnValues) (int64, error)
	ChangeColumnValues(ctx context.Context, boardID, itemID int64, values monday.ColumnValues) error
	CreateGroup(ctx context.Context, boardID int64, name string) (string, error)
	DeleteItem(ctx context.Context, itemID int64) error
	ArchiveItem(ctx context.Context, itemID int64) error
	CreateUpdate(ctx context.Context, itemID int64, body string) (int64, error)
	CreateNotification(ctx context.Context, userID, targetID int64, text string, target monday.NotificationTarget) error
}

// Recorder persists finished runs.
type Recorder interface {
	RecordRun(ctx context.Context, r storage.Run) error
}

// Trigger carries what started a run. An empty GroupID falls back to the
// configured group. SentinelItemID is the completion row that fired the
// trigger, if known.
type Trigger struct {
	GroupID        string
	UserID         int64
	SentinelItemID int64
}

// Amount is a decimal that marshals as a bare JSON number.
type Amount struct {
	decimal.Decimal
}

func amount(d decimal.Decimal) *Amount { return &Amount{d} }

func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.Decimal.String()), nil
}

// Outcome is the result of one row.
type Outcome struct {
	ItemID       int64   `json:"itemId"`
	OK           bool    `json:"ok"`
	Barcode      string  `json:"barcode,omitempty"`
	Qty          *Amount `json:"qty,omitempty"`
	From         *Amount `json:"from,omitempty"`
	To           *Amount `json:"to,omitempty"`
	CatalogID    int64   `json:"catalogId,omitempty"`
	ReportItemID int64   `json:"reportItemId,omitempty"`
	Reason       string  `json:"reason,omitempty"`
	Error        string  `json:"error,omitempty"`
}

type Result struct {
	OK            bool           `json:"ok"`
	Blocked       bool           `json:"blocked,omitempty"`
	Reason        string         `json:"reason,omitempty"`
	MissingCount  int            `json:"missingCount,omitempty"`
	RunID         string         `json:"runId"`
	Kind          Kind           `json:"kind"`
	BoardID       int64          `json:"boardId"`
	GroupID       string         `json:"groupId"`
	ReportGroupID string         `json:"reportGroupId,omitempty"`
	Count         int            `json:"count"`
	Results       []Outcome      `json:"results"`
	Warnings      []diag.Warning `json:"warnings,omitempty"`

	TriggerUserID int64     `json:"-"`
	StartedAt     time.Time `json:"-"`
	FinishedAt    time.Time `json:"-"`
	Err           string    `json:"-"`
}

// Run converts the result into its stored form.
func (r *Result) Run() storage.Run {
	run := storage.Run{
		ID:            r.RunID,
		Kind:          string(r.Kind),
		BoardID:       r.BoardID,
		GroupID:       r.GroupID,
		ReportGroupID: r.ReportGroupID,
		TriggerUserID: r.TriggerUserID,
		OK:            r.OK,
		Blocked:       r.Blocked,
		Reason:        r.Reason,
		MissingCount:  r.MissingCount,
		Count:         r.Count,
		Error:         r.Err,
		StartedAt:     r.StartedAt,
		FinishedAt:    r.FinishedAt,
	}
	for _, w := range r.Warnings {
		run.Warnings = append(run.Warnings, w.Error())
	}
	for _, o := range r.Results {
		run.Results = append(run.Results, storage.RunResult{
			ItemID:       o.ItemID,
			OK:           o.OK,
			Barcode:      o.Barcode,
			Qty:          o.Qty.text(),
			From:         o.From.text(),
			To:           o.To.text(),
			CatalogID:    o.CatalogID,
			ReportItemID: o.ReportItemID,
			Reason:       o.Reason,
			Error:        o.Error,
		})
	}
	return run
}

func (a *Amount) text() string {
	if a == nil {
		return ""
	}
	return a.Decimal.String()
}

type Options struct {
	Log    Logger           // optional; nil = no logging
	Now    func() time.Time // optional; defaults to time.Now
	Locker stock.Locker     // optional; defaults to an in-process keyed mutex
	Store  Recorder         // optional; finished runs are recorded when set
}

type Orchestrator struct {
	cfg      *config.Config
	api      Gateway
	log      Logger
	now      func() time.Time
	store    Recorder
	resolver *catalog.Resolver
	mutator  *stock.Mutator
	mirror   *report.Mirror
}

func New(cfg *config.Config, api Gateway, opts Options) *Orchestrator {
	o := &Orchestrator{
		cfg:      cfg,
		api:      api,
		log:      opts.Log,
		now:      opts.Now,
		store:    opts.Store,
		resolver: catalog.NewResolver(api),
		mutator:  stock.NewMutator(api, opts.Locker),
		mirror:   report.NewMirror(api),
	}
	if o.log == nil {
		o.log = nopLogger{}
	}
	if o.now == nil {
		o.now = time.Now
	}
	return o
}

// KindOf reports which batch the board feeds.
func (o *Orchestrator) KindOf(boardID int64) (Kind, bool) {
	switch {
	case boardID == 0:
		return "", false
	case boardID == o.cfg.Entry.BoardID:
		return KindEntry, true
	case boardID == o.cfg.Exit.BoardID:
		return KindExit, true
	}
	return "", false
}

// Process runs the batch of the given kind.
func (o *Orchestrator) Process(ctx context.Context, kind Kind, tr Trigger) (*Result, error) {
	if kind == KindExit {
		return o.ProcessExit(ctx, tr)
	}
	return o.ProcessEntry(ctx, tr)
}

func (o *Orchestrator) begin(kind Kind, boardID int64, groupID string, tr Trigger) *Result {
	if tr.GroupID != "" {
		groupID = tr.GroupID
	}
	return &Result{
		RunID:         uuid.NewString(),
		Kind:          kind,
		BoardID:       boardID,
		GroupID:       groupID,
		Results:       []Outcome{},
		TriggerUserID: tr.UserID,
		StartedAt:     o.now(),
	}
}

// finish stamps and records the run. A hard error still returns the partial
// result so that callers can report what happened before it.
func (o *Orchestrator) finish(ctx context.Context, res *Result, warns *diag.List, err error) (*Result, error) {
	res.FinishedAt = o.now()
	res.Count = len(res.Results)
	res.Warnings = warns.Warnings()
	if err != nil {
		res.OK = false
		res.Err = err.Error()
		o.log.Errorf("%s batch %s on group %s failed: %v", res.Kind, res.RunID, res.GroupID, err)
	}
	if o.store != nil {
		if rerr := o.store.RecordRun(context.WithoutCancel(ctx), res.Run()); rerr != nil {
			o.log.Warnf("Could not record run %s: %v", res.RunID, rerr)
		}
	}
	return res, err
}

// eligible drops blank rows and the sentinel row.
func eligible(items []monday.Item) []monday.Item {
	out := make([]monday.Item, 0, len(items))
	for _, it := range items {
		if strings.TrimSpace(it.Name) == "" || qc.IsSentinel(it.Name) {
			continue
		}
		out = append(out, it)
	}
	return out
}

// barcodeOf reads the barcode from the item name or from a column.
func barcodeOf(it *monday.Item, source string) string {
	if source == "" || source == config.BarcodeFromName {
		return strings.TrimSpace(it.Name)
	}
	return columns.TextOf(it.Value(source))
}

func (o *Orchestrator) reportGroup(ctx context.Context, boardID int64, create bool) (string, error) {
	if boardID == 0 || !create {
		return "", nil
	}
	name := o.now().Format(GroupNameLayout)
	id, err := o.api.CreateGroup(ctx, boardID, name)
	if err != nil {
		return "", fmt.Errorf("creating report group on board %d: %w", boardID, err)
	}
	o.log.Debugf("Created report group %s (%s) on board %d", id, name, boardID)
	return id, nil
}

// fatal reports whether err must stop the whole batch rather than fail a
// single row.
func fatal(err error) bool {
	return monday.IsTransport(err) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// rowFailed marks out as failed. The error is returned when the batch
// cannot go on.
func rowFailed(out *Outcome, reason string, err error) error {
	out.OK = false
	out.Reason = reason
	out.Error = err.Error()
	if fatal(err) {
		return err
	}
	return nil
}
