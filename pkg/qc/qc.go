// Package qc blocks entry batches whose rows are missing their quality
// control or count confirmation.
package qc

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/acostock/stocksuite/pkg/columns"
	"github.com/acostock/stocksuite/pkg/diag"
	"github.com/acostock/stocksuite/pkg/monday"
)

// Sentinel is the row name that marks a batch as complete.
const Sentinel = "tamamla"

const (
	DefaultUpdateMessage = "Bu item için “Kontrol” ve/veya “Sayım” işaretlenmemiş. Lütfen tamamlayın."
	// DefaultNotifyMessage takes the number of rows missing a checkmark.
	DefaultNotifyMessage = "Toplam %d itemde eksik kontrol tespit edildi. İlk örnek için lütfen iteme bakın."
)

var barcodeShape = regexp.MustCompile(`^[A-Za-z0-9._-]{3,}$`)

// IsSentinel reports whether name is the completion marker.
func IsSentinel(name string) bool {
	return strings.EqualFold(strings.TrimSpace(name), Sentinel)
}

// LooksLikeBarcode reports whether s is a single token of at least three
// letters, digits, dots, underscores or dashes.
func LooksLikeBarcode(s string) bool {
	return barcodeShape.MatchString(strings.TrimSpace(s))
}

type Gateway interface {
	CreateUpdate(ctx context.Context, itemID int64, body string) (int64, error)
	CreateNotification(ctx context.Context, userID, targetID int64, text string, target monday.NotificationTarget) error
	ChangeColumnValues(ctx context.Context, boardID, itemID int64, values monday.ColumnValues) error
}

type Config struct {
	BoardID             int64
	QCColumnID          string
	CountColumnID       string
	AlertPeopleColumnID string
	AlertUserIDs        []int64
	UpdateMessage       string
	NotifyMessage       string
}

type Outcome struct {
	Blocked      bool
	MissingCount int
	Missing      []int64
	Warnings     []diag.Warning
}

type Gate struct {
	api Gateway
	cfg Config
	// RemoveSentinel disposes of the completion row of a blocked batch.
	// Nil leaves it in place.
	RemoveSentinel func(ctx context.Context, itemID int64) error
}

func NewGate(api Gateway, cfg Config) *Gate {
	if cfg.UpdateMessage == "" {
		cfg.UpdateMessage = DefaultUpdateMessage
	}
	if cfg.NotifyMessage == "" {
		cfg.NotifyMessage = DefaultNotifyMessage
	}
	return &Gate{api: api, cfg: cfg}
}

// Missing returns the barcode-shaped, non-sentinel rows that lack either
// checkmark, in batch order. A checkmark whose column is not configured is
// not required.
func (g *Gate) Missing(items []monday.Item) []monday.Item {
	var out []monday.Item
	for i := range items {
		it := &items[i]
		if strings.TrimSpace(it.Name) == "" || IsSentinel(it.Name) || !LooksLikeBarcode(it.Name) {
			continue
		}
		qcOK := g.cfg.QCColumnID == "" || columns.IsChecked(it.Value(g.cfg.QCColumnID))
		countOK := g.cfg.CountColumnID == "" || columns.IsChecked(it.Value(g.cfg.CountColumnID))
		if !qcOK || !countOK {
			out = append(out, *it)
		}
	}
	return out
}

// Run checks the batch. When any row is missing a checkmark it raises the
// alert, removes the sentinel row and reports the batch as blocked. Every
// side effect here is best-effort; failures end up in Outcome.Warnings.
func (g *Gate) Run(ctx context.Context, items []monday.Item, sentinelID int64) Outcome {
	missing := g.Missing(items)
	if len(missing) == 0 {
		return Outcome{}
	}

	var warns diag.List
	out := Outcome{Blocked: true, MissingCount: len(missing)}
	for _, it := range missing {
		out.Missing = append(out.Missing, it.ID)
	}

	for _, it := range missing {
		_, err := g.api.CreateUpdate(ctx, it.ID, g.cfg.UpdateMessage)
		warns.Add("qc-update", it.ID, err)
	}

	// One notification per recipient, pointing at the first offending row.
	text := g.cfg.NotifyMessage
	if strings.Contains(text, "%d") {
		text = fmt.Sprintf(text, len(missing))
	}
	first := missing[0].ID
	for _, uid := range g.cfg.AlertUserIDs {
		err := g.api.CreateNotification(ctx, uid, first, text, monday.TargetProject)
		warns.Add("qc-notify", first, err)
	}

	if g.cfg.AlertPeopleColumnID != "" && len(g.cfg.AlertUserIDs) > 0 {
		payload := columns.PeoplePayload(g.cfg.AlertUserIDs...)
		for _, it := range missing {
			err := g.api.ChangeColumnValues(ctx, g.cfg.BoardID, it.ID, monday.ColumnValues{g.cfg.AlertPeopleColumnID: payload})
			warns.Add("qc-assign-people", it.ID, err)
		}
	}

	if g.RemoveSentinel != nil {
		if id := sentinelOf(items, sentinelID); id != 0 {
			warns.Add("remove-sentinel", id, g.RemoveSentinel(ctx, id))
		}
	}

	out.Warnings = warns.Warnings()
	return out
}

func sentinelOf(items []monday.Item, fallback int64) int64 {
	for _, it := range items {
		if IsSentinel(it.Name) {
			return it.ID
		}
	}
	return fallback
}
