package qc

import (
	"context"
	"errors"
	"testing"

	"github.com/acostock/stocksuite/pkg/columns"
	"github.com/acostock/stocksuite/pkg/monday"
	"github.com/acostock/stocksuite/pkg/monday/mondaytest"
	"github.com/google/go-cmp/cmp"
)

const (
	entryBoard = 10
	qcCol      = "qc"
	countCol   = "count"
	peopleCol  = "alert"
)

func TestIsSentinel(t *testing.T) {
	for name, want := range map[string]bool{
		"tamamla":     true,
		"  TAMAMLA  ": true,
		"Tamamla":     true,
		"tamamlandi":  false,
		"":            false,
	} {
		if got := IsSentinel(name); got != want {
			t.Errorf("IsSentinel(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestLooksLikeBarcode(t *testing.T) {
	for s, want := range map[string]bool{
		"ABC123":      true,
		"8690-12.3_x": true,
		" AB1 ":       true,
		"ab":          false,
		"two words":   false,
		"ürün":        false,
		"":            false,
	} {
		if got := LooksLikeBarcode(s); got != want {
			t.Errorf("LooksLikeBarcode(%q) = %v, want %v", s, got, want)
		}
	}
}

type fixture struct {
	fake *mondaytest.Fake
	ids  map[string]int64
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	f := mondaytest.New()
	f.AddBoard(entryBoard, "Entry",
		monday.Column{ID: qcCol, Title: "Kontrol", Type: "checkbox"},
		monday.Column{ID: countCol, Title: "Sayım", Type: "checkbox"},
		monday.Column{ID: peopleCol, Title: "Sorumlu", Type: "people"},
	)
	return fixture{fake: f, ids: map[string]int64{}}
}

func (fx fixture) add(name string, qc, count bool) {
	fx.ids[name] = fx.fake.AddItem(entryBoard, "topics", name, mondaytest.Checked(qcCol, qc), mondaytest.Checked(countCol, count))
}

func (fx fixture) items(t *testing.T) []monday.Item {
	items, err := fx.fake.GroupItems(context.Background(), entryBoard, "topics")
	if err != nil {
		t.Fatal(err)
	}
	return items
}

func TestRunPassesCompleteBatch(t *testing.T) {
	fx := newFixture(t)
	fx.add("ABC123", true, true)
	fx.add("free text row", false, false) // not barcode-shaped, never checked
	fx.add("tamamla", false, false)

	g := NewGate(fx.fake, Config{BoardID: entryBoard, QCColumnID: qcCol, CountColumnID: countCol, AlertUserIDs: []int64{7}})
	out := g.Run(context.Background(), fx.items(t), 0)
	if out.Blocked {
		t.Fatalf("expected the batch to pass, got %+v", out)
	}
	if len(fx.fake.Updates)+len(fx.fake.Notifications) != 0 {
		t.Fatal("a passing batch must not raise alerts")
	}
}

func TestRunBlocksAndAlertsOnce(t *testing.T) {
	fx := newFixture(t)
	fx.add("ABC123", true, false)
	fx.add("DEF456", true, true)
	fx.add("GHI789", false, true)
	fx.add("tamamla", false, false)

	var removed []int64
	g := NewGate(fx.fake, Config{
		BoardID:             entryBoard,
		QCColumnID:          qcCol,
		CountColumnID:       countCol,
		AlertPeopleColumnID: peopleCol,
		AlertUserIDs:        []int64{7, 8},
	})
	g.RemoveSentinel = func(ctx context.Context, id int64) error {
		removed = append(removed, id)
		return nil
	}

	out := g.Run(context.Background(), fx.items(t), 0)
	if !out.Blocked || out.MissingCount != 2 {
		t.Fatalf("expected blocked with 2 missing, got %+v", out)
	}
	if diff := cmp.Diff([]int64{fx.ids["ABC123"], fx.ids["GHI789"]}, out.Missing); diff != "" {
		t.Errorf("missing rows (-want +got):\n%s", diff)
	}

	if len(fx.fake.Updates) != 2 {
		t.Errorf("expected an update on each missing row, got %d", len(fx.fake.Updates))
	}

	want := []mondaytest.Notification{
		{UserID: 7, TargetID: fx.ids["ABC123"], Text: "Toplam 2 itemde eksik kontrol tespit edildi. İlk örnek için lütfen iteme bakın.", Target: monday.TargetProject},
		{UserID: 8, TargetID: fx.ids["ABC123"], Text: "Toplam 2 itemde eksik kontrol tespit edildi. İlk örnek için lütfen iteme bakın.", Target: monday.TargetProject},
	}
	if diff := cmp.Diff(want, fx.fake.Notifications); diff != "" {
		t.Errorf("notifications (-want +got):\n%s", diff)
	}

	if len(fx.fake.Changes) != 2 {
		t.Fatalf("expected people assignment on both missing rows, got %d changes", len(fx.fake.Changes))
	}
	if got := fx.fake.Get(fx.ids["GHI789"]).Value(peopleCol); got == nil || got.Value != string(columns.PeoplePayload(7, 8)) {
		t.Errorf("people column = %+v", got)
	}
	if diff := cmp.Diff([]int64{fx.ids["tamamla"]}, removed); diff != "" {
		t.Errorf("sentinel removal (-want +got):\n%s", diff)
	}
	if len(out.Warnings) != 0 {
		t.Errorf("unexpected warnings: %v", out.Warnings)
	}
}

func TestRunCollectsWarnings(t *testing.T) {
	fx := newFixture(t)
	fx.add("ABC123", false, false)

	fx.fake.FailOn("CreateUpdate", errors.New("update down"))
	fx.fake.FailOn("CreateNotification", errors.New("notify down"))

	g := NewGate(fx.fake, Config{BoardID: entryBoard, QCColumnID: qcCol, CountColumnID: countCol, AlertUserIDs: []int64{7}})
	g.RemoveSentinel = func(ctx context.Context, id int64) error { return errors.New("gone already") }

	out := g.Run(context.Background(), fx.items(t), 555)
	if !out.Blocked {
		t.Fatal("failures in best-effort calls must not unblock the batch")
	}
	var steps []string
	for _, w := range out.Warnings {
		steps = append(steps, w.Step)
	}
	if diff := cmp.Diff([]string{"qc-update", "qc-notify", "remove-sentinel"}, steps); diff != "" {
		t.Errorf("warning steps (-want +got):\n%s", diff)
	}
	if out.Warnings[2].ItemID != 555 {
		t.Errorf("sentinel id should fall back to the trigger's item, got %d", out.Warnings[2].ItemID)
	}
}

func TestMissingIgnoresUnconfiguredColumns(t *testing.T) {
	fx := newFixture(t)
	fx.add("ABC123", true, false)

	g := NewGate(fx.fake, Config{BoardID: entryBoard, QCColumnID: qcCol})
	if got := g.Missing(fx.items(t)); len(got) != 0 {
		t.Fatalf("count column is not configured, expected no missing rows, got %d", len(got))
	}
	g = NewGate(fx.fake, Config{BoardID: entryBoard, QCColumnID: qcCol, CountColumnID: countCol})
	if got := g.Missing(fx.items(t)); len(got) != 1 {
		t.Fatalf("expected 1 missing row, got %d", len(got))
	}
}
