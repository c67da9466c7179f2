package cmd

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/acostock/stocksuite/pkg/storage"
)

func TestBuiltinShell(t *testing.T) {
	db, err := storage.Open(filepath.Join(t.TempDir(), "runs.sqlite"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	now := time.Date(2024, 5, 6, 10, 0, 0, 0, time.UTC)
	err = db.RecordRun(context.Background(), storage.Run{ID: "r1", Kind: "entry", BoardID: 10, GroupID: "topics", OK: true, StartedAt: now, FinishedAt: now})
	if err != nil {
		t.Fatal(err)
	}

	in := strings.NewReader("SELECT id, kind\nFROM batch_runs;\nUPDATE batch_runs SET ok = 0;\nSELEC nonsense;\n")
	var out bytes.Buffer
	if err := builtinShell(context.Background(), db, in, &out); err != nil {
		t.Fatalf("builtinShell: %v", err)
	}

	got := out.String()
	for _, want := range []string{"id  kind", "r1  entry", "1 rows affected", "Error:"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
}

func TestRunStatus(t *testing.T) {
	tests := []struct {
		ok, blocked bool
		reason, err string
		want        string
	}{
		{ok: true, want: "ok"},
		{blocked: true, reason: "qc_or_count_missing", want: "blocked (qc_or_count_missing)"},
		{err: "boom", want: "failed: boom"},
		{want: "failed"},
	}
	for _, tt := range tests {
		if got := runStatus(tt.ok, tt.blocked, tt.reason, tt.err); got != tt.want {
			t.Errorf("runStatus(%v, %v, %q, %q) = %q, want %q", tt.ok, tt.blocked, tt.reason, tt.err, got, tt.want)
		}
	}
}
