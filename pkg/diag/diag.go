// Package diag collects the outcome of best-effort calls that must not abort
// a batch.
package diag

import (
	"encoding/json"
	"fmt"
	"sync"
)

// Warning records one failed best-effort call.
type Warning struct {
	Step   string `json:"step"`
	ItemID int64  `json:"itemId,omitempty"`
	Err    error  `json:"-"`
}

func (w Warning) Error() string {
	if w.ItemID != 0 {
		return fmt.Sprintf("%s (item %d): %v", w.Step, w.ItemID, w.Err)
	}
	return fmt.Sprintf("%s: %v", w.Step, w.Err)
}

func (w Warning) Unwrap() error { return w.Err }

func (w Warning) MarshalJSON() ([]byte, error) {
	msg := ""
	if w.Err != nil {
		msg = w.Err.Error()
	}
	return json.Marshal(struct {
		Step   string `json:"step"`
		ItemID int64  `json:"itemId,omitempty"`
		Error  string `json:"error"`
	}{w.Step, w.ItemID, msg})
}

// List is safe for concurrent use.
type List struct {
	mu       sync.Mutex
	warnings []Warning
}

// Add records err under step. A nil err is ignored so callers can pass the
// result of a call straight through.
func (l *List) Add(step string, itemID int64, err error) bool {
	if err == nil {
		return false
	}
	l.mu.Lock()
	l.warnings = append(l.warnings, Warning{Step: step, ItemID: itemID, Err: err})
	l.mu.Unlock()
	return true
}

func (l *List) Extend(ws []Warning) {
	if len(ws) == 0 {
		return
	}
	l.mu.Lock()
	l.warnings = append(l.warnings, ws...)
	l.mu.Unlock()
}

func (l *List) Warnings() []Warning {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Warning(nil), l.warnings...)
}

func (l *List) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.warnings)
}
