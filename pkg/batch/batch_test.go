package batch

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/acostock/stocksuite/pkg/columns"
	"github.com/acostock/stocksuite/pkg/config"
	"github.com/acostock/stocksuite/pkg/monday"
	"github.com/acostock/stocksuite/pkg/monday/mondaytest"
	"github.com/acostock/stocksuite/pkg/storage"
	"github.com/google/go-cmp/cmp"
)

const (
	entryBoard      = 10
	exitBoard       = 11
	catalogBoard    = 100
	reportBoard     = 200
	exitReportBoard = 210
)

var fixedNow = time.Date(2024, 5, 6, 15, 4, 5, 0, time.UTC)

func testConfig() *config.Config {
	return &config.Config{
		Entry: config.Entry{
			BoardID:       entryBoard,
			GroupID:       "topics",
			QtyColumn:     "qty",
			BarcodeSource: config.BarcodeFromName,
			QCColumn:      "qc",
			CountColumn:   "count",
			DisposeMode:   config.ModeArchive,
			CompleteMode:  config.ModeDelete,
		},
		Exit: config.Exit{
			BoardID:       exitBoard,
			GroupID:       "topics",
			QtyColumn:     "qty",
			BarcodeSource: config.BarcodeFromName,
			TargetColumn:  "target",
			UnitColumn:    "unit",
			DisposeMode:   config.ModeDelete,
			CompleteMode:  config.ModeDelete,
		},
		Catalog: config.Catalog{BoardID: catalogBoard, BarcodeColumn: "barcode", StockColumn: "stock"},
		Report:  config.Report{CreateGroup: true, ProductSourceTitle: "Ürün"},
		QC:      config.QC{AlertUserIDs: []int64{7}},
	}
}

type fixture struct {
	fake *mondaytest.Fake
	cfg  *config.Config
	orch *Orchestrator
}

func newFixture(t *testing.T, mutate ...func(*config.Config)) *fixture {
	t.Helper()
	f := mondaytest.New()
	f.AddBoard(catalogBoard, "Catalog",
		monday.Column{ID: "barcode", Title: "Barkod", Type: "text"},
		monday.Column{ID: "stock", Title: "Stok", Type: "numbers"},
	)
	f.AddBoard(entryBoard, "Entry",
		monday.Column{ID: "qty", Title: "Adet", Type: "numbers"},
		monday.Column{ID: "qc", Title: "Kontrol", Type: "checkbox"},
		monday.Column{ID: "count", Title: "Sayım", Type: "checkbox"},
		monday.Column{ID: "prod", Title: "Ürün", Type: "board_relation"},
		monday.Column{ID: "price", Title: "Fiyat", Type: "numbers"},
	)
	f.AddBoard(exitBoard, "Exit",
		monday.Column{ID: "qty", Title: "Adet", Type: "numbers"},
		monday.Column{ID: "unit", Title: "Birim", Type: "dropdown"},
		monday.Column{ID: "prod", Title: "Ürün", Type: "board_relation"},
		monday.Column{ID: "target", Title: "Çıkış Noktası", Type: "board_relation"},
	)
	f.AddBoard(reportBoard, "Entry report",
		monday.Column{ID: "name", Title: "Name", Type: "name"},
		monday.Column{ID: "r_qty", Title: "Adet", Type: "numbers"},
		monday.Column{ID: "r_prod", Title: "Ürün", Type: "board_relation"},
		monday.Column{ID: "r_price", Title: "Son Alış Fiyatı", Type: "numbers"},
		monday.Column{ID: "r_qc", Title: "QC", Type: "checkbox"},
		monday.Column{ID: "r_date", Title: "Tarih", Type: "date"},
		monday.Column{ID: "r_person", Title: "Kişi", Type: "people"},
	)
	f.AddBoard(exitReportBoard, "Exit report",
		monday.Column{ID: "x_qty", Title: "Miktar", Type: "numbers"},
		monday.Column{ID: "x_unit", Title: "Ölçü", Type: "dropdown"},
		monday.Column{ID: "x_prod", Title: "Ürün", Type: "board_relation"},
		monday.Column{ID: "x_target", Title: "Hedef", Type: "board_relation"},
	)

	cfg := testConfig()
	for _, m := range mutate {
		m(cfg)
	}
	orch := New(cfg, f, Options{Now: func() time.Time { return fixedNow }})
	return &fixture{fake: f, cfg: cfg, orch: orch}
}

func (fx *fixture) product(barcode, stock string) int64 {
	return fx.fake.AddItem(catalogBoard, "topics", "Product "+barcode,
		mondaytest.TextValue("barcode", barcode),
		mondaytest.TextValue("stock", stock),
	)
}

func (fx *fixture) entry(name, qty string, qcOK, countOK bool, extra ...columns.ColumnValue) int64 {
	values := append([]columns.ColumnValue{
		mondaytest.TextValue("qty", qty),
		mondaytest.Checked("qc", qcOK),
		mondaytest.Checked("count", countOK),
	}, extra...)
	return fx.fake.AddItem(entryBoard, "topics", name, values...)
}

func (fx *fixture) stock(catalogID int64) string {
	return columns.NumberOf(fx.fake.Get(catalogID).Value("stock")).String()
}

func TestEntryScenario(t *testing.T) {
	fx := newFixture(t)
	cat := fx.product("ABC123", "10")
	row := fx.entry("ABC123", "5", true, true)
	sentinel := fx.entry("tamamla", "", false, false)

	res, err := fx.orch.ProcessEntry(context.Background(), Trigger{})
	if err != nil {
		t.Fatalf("ProcessEntry: %v", err)
	}
	if !res.OK || res.Blocked || res.Count != 1 || res.GroupID != "topics" {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.RunID == "" {
		t.Error("expected a run id")
	}

	out := res.Results[0]
	if !out.OK || out.Barcode != "ABC123" || out.CatalogID != cat || out.ItemID != row {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if got := fx.stock(cat); got != "15" {
		t.Errorf("stock = %s, want 15", got)
	}
	if diff := cmp.Diff([]int64{row}, fx.fake.Archived); diff != "" {
		t.Errorf("archived rows (-want +got):\n%s", diff)
	}
	if fx.fake.Removed(sentinel) {
		t.Error("the batch itself must not remove the sentinel of an unblocked run")
	}

	b, err := json.Marshal(res)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(b), `"barcode":"ABC123","qty":5,"from":10,"to":15`) {
		t.Errorf("unexpected JSON %s", b)
	}
}

func TestEntryBlockedByQCGate(t *testing.T) {
	fx := newFixture(t)
	cat := fx.product("ABC123", "10")
	row := fx.entry("ABC123", "5", true, false)
	sentinel := fx.entry("tamamla", "", false, false)

	res, err := fx.orch.ProcessEntry(context.Background(), Trigger{})
	if err != nil {
		t.Fatalf("ProcessEntry: %v", err)
	}
	if res.OK || !res.Blocked || res.MissingCount != 1 || res.Reason != ReasonQCMissing {
		t.Fatalf("expected a blocked batch, got %+v", res)
	}
	if len(res.Results) != 0 {
		t.Errorf("a blocked batch must not process rows, got %d outcomes", len(res.Results))
	}
	if got := fx.stock(cat); got != "10" {
		t.Errorf("stock = %s, want it unchanged at 10", got)
	}
	if fx.fake.Removed(row) {
		t.Error("data rows of a blocked batch must stay")
	}
	if diff := cmp.Diff([]int64{sentinel}, fx.fake.Deleted); diff != "" {
		t.Errorf("deleted rows (-want +got):\n%s", diff)
	}
	if len(fx.fake.Notifications) != 1 {
		t.Errorf("expected exactly one notification, got %d", len(fx.fake.Notifications))
	}
	if len(fx.fake.GroupsCreated) != 0 {
		t.Error("no report group may be created for a blocked batch")
	}
}

func TestExitFloorsAtZero(t *testing.T) {
	fx := newFixture(t)
	cat := fx.product("XYZ789", "10")
	row := fx.fake.AddItem(exitBoard, "topics", "XYZ789", mondaytest.TextValue("qty", "12"))

	res, err := fx.orch.ProcessExit(context.Background(), Trigger{})
	if err != nil {
		t.Fatalf("ProcessExit: %v", err)
	}
	out := res.Results[0]
	if !out.OK || out.From.String() != "10" || out.To.String() != "0" {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if got := fx.stock(cat); got != "0" {
		t.Errorf("stock = %s, want 0", got)
	}
	if diff := cmp.Diff([]int64{row}, fx.fake.Deleted); diff != "" {
		t.Errorf("deleted rows (-want +got):\n%s", diff)
	}
}

func TestInvalidRowsAreLeftInPlace(t *testing.T) {
	fx := newFixture(t)
	cat := fx.product("ABC123", "10")
	noQty := fx.entry("ABC123", "", true, true)
	zeroQty := fx.entry("ABC123", "0", true, true)
	negative := fx.entry("ABC123", "-3", true, true)
	unknown := fx.entry("UNKNOWN1", "2", true, true)
	fx.entry("  ", "4", true, true)

	res, err := fx.orch.ProcessEntry(context.Background(), Trigger{})
	if err != nil {
		t.Fatalf("ProcessEntry: %v", err)
	}
	if !res.OK || res.Count != 4 {
		t.Fatalf("expected 4 outcomes, got %+v", res)
	}
	want := map[int64]string{
		noQty:    ReasonMissingInput,
		zeroQty:  ReasonMissingInput,
		negative: ReasonMissingInput,
		unknown:  ReasonNoCatalog,
	}
	for _, out := range res.Results {
		if out.OK || out.Reason != want[out.ItemID] {
			t.Errorf("item %d: got ok=%v reason=%q, want reason %q", out.ItemID, out.OK, out.Reason, want[out.ItemID])
		}
		if fx.fake.Removed(out.ItemID) {
			t.Errorf("item %d must not be disposed", out.ItemID)
		}
	}
	if got := fx.stock(cat); got != "10" {
		t.Errorf("stock = %s, want 10", got)
	}
}

func TestExitCatalogMissReason(t *testing.T) {
	fx := newFixture(t)
	row := fx.fake.AddItem(exitBoard, "topics", "NOPE42", mondaytest.TextValue("qty", "1"))

	res, err := fx.orch.ProcessExit(context.Background(), Trigger{})
	if err != nil {
		t.Fatalf("ProcessExit: %v", err)
	}
	if out := res.Results[0]; out.OK || out.Reason != ReasonCatalogNotFound {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if fx.fake.Removed(row) {
		t.Fatal("a row without catalog match must not be disposed")
	}
}

func TestBarcodeFromColumn(t *testing.T) {
	fx := newFixture(t, func(c *config.Config) { c.Exit.BarcodeSource = "code" })
	cat := fx.product("ABC123", "3")
	fx.fake.AddItem(exitBoard, "topics", "free text", mondaytest.TextValue("qty", "1"), mondaytest.TextValue("code", " ABC123 "))

	res, err := fx.orch.ProcessExit(context.Background(), Trigger{})
	if err != nil {
		t.Fatalf("ProcessExit: %v", err)
	}
	if !res.Results[0].OK || fx.stock(cat) != "2" {
		t.Fatalf("unexpected outcome %+v, stock %s", res.Results[0], fx.stock(cat))
	}
}

func TestEntryMirrorsToReport(t *testing.T) {
	fx := newFixture(t, func(c *config.Config) {
		c.Entry.ProductLinkColumn = "prod"
		c.Entry.LastPriceColumn = "price"
		c.Report.BoardID = reportBoard
		c.Report.DateColumn = "r_date"
		c.Report.PersonColumn = "r_person"
		c.Report.QCColumn = "r_qc"
		c.Report.LastPriceColumn = "r_price"
	})
	cat := fx.product("ABC123", "10")
	row := fx.entry("ABC123", "5", true, true, mondaytest.Value("price", `"9.5"`))

	res, err := fx.orch.ProcessEntry(context.Background(), Trigger{GroupID: "topics", UserID: 42})
	if err != nil {
		t.Fatalf("ProcessEntry: %v", err)
	}
	if diff := cmp.Diff([]string{"06.05.2024 15:04:05"}, fx.fake.GroupsCreated); diff != "" {
		t.Errorf("report groups (-want +got):\n%s", diff)
	}
	out := res.Results[0]
	if !out.OK || out.ReportItemID == 0 {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if res.ReportGroupID == "" {
		t.Fatal("expected a report group id")
	}

	created := fx.fake.Created[0]
	if created.GroupID != res.ReportGroupID || created.Name != "ABC123" {
		t.Errorf("unexpected created item %+v", created)
	}
	for _, col := range []string{"r_qty", "r_price", "r_qc", "r_date"} {
		if _, ok := created.Values[col]; !ok {
			t.Errorf("expected %s in the creation payload", col)
		}
	}
	if got := string(created.Values["r_price"]); got != `"9.5"` {
		t.Errorf("r_price = %s", got)
	}

	mirrored := fx.fake.Get(out.ReportItemID)
	if got := columns.LinkedIDs(mirrored.Value("r_prod")); len(got) != 1 || got[0] != cat {
		t.Errorf("product link = %v, want [%d]", got, cat)
	}
	if got := fx.fake.Text(out.ReportItemID, "r_person"); got != "42" {
		t.Errorf("person = %q, want 42", got)
	}
	if !fx.fake.Removed(row) {
		t.Error("mirrored row should be disposed")
	}
}

func TestExitMirrorCarriesTarget(t *testing.T) {
	fx := newFixture(t, func(c *config.Config) {
		c.ExitReport = config.ExitReport{
			BoardID:       exitReportBoard,
			CreateGroup:   false,
			ProductColumn: "x_prod",
			TargetColumn:  "x_target",
			QtyColumn:     "x_qty",
			UnitColumn:    "x_unit",
		}
	})
	cat := fx.product("XYZ789", "10")
	fx.fake.AddItem(exitBoard, "topics", "XYZ789",
		mondaytest.TextValue("qty", "4"),
		mondaytest.Value("unit", `{"ids":[2]}`),
		mondaytest.Value("target", `{"linkedPulseIds":[{"linkedPulseId":555}]}`),
	)

	res, err := fx.orch.ProcessExit(context.Background(), Trigger{})
	if err != nil {
		t.Fatalf("ProcessExit: %v", err)
	}
	if len(fx.fake.GroupsCreated) != 0 {
		t.Error("create_group is off for the exit report")
	}
	out := res.Results[0]
	mirrored := fx.fake.Get(out.ReportItemID)
	if mirrored == nil {
		t.Fatalf("no mirrored item for %+v", out)
	}
	if got := columns.LinkedIDs(mirrored.Value("x_prod")); len(got) != 1 || got[0] != cat {
		t.Errorf("product link = %v", got)
	}
	if got := columns.LinkedIDs(mirrored.Value("x_target")); len(got) != 1 || got[0] != 555 {
		t.Errorf("target link = %v", got)
	}
	if got := string(fx.fake.Created[0].Values["x_qty"]); got != `"4"` {
		t.Errorf("x_qty = %s", got)
	}
	if got := string(fx.fake.Created[0].Values["x_unit"]); got != `{"ids":[2]}` {
		t.Errorf("x_unit = %s", got)
	}
}

func TestRowErrorsAreAttributed(t *testing.T) {
	fx := newFixture(t)
	bad := fx.product("BAD001", "1")
	good := fx.product("GOOD01", "1")
	badRow := fx.entry("BAD001", "1", true, true)
	goodRow := fx.entry("GOOD01", "1", true, true)
	fx.fake.FailFor("ChangeColumnValues", bad, &monday.APIError{Messages: []string{"column locked"}})

	res, err := fx.orch.ProcessEntry(context.Background(), Trigger{})
	if err != nil {
		t.Fatalf("application errors must not abort the batch: %v", err)
	}
	if out := res.Results[0]; out.OK || out.Reason != ReasonStockError || out.Error == "" || out.ItemID != badRow {
		t.Errorf("unexpected failed outcome %+v", out)
	}
	if out := res.Results[1]; !out.OK || out.ItemID != goodRow {
		t.Errorf("unexpected outcome %+v", out)
	}
	if fx.fake.Removed(badRow) || !fx.fake.Removed(goodRow) {
		t.Error("only the successful row may be disposed")
	}
	if fx.stock(good) != "2" {
		t.Errorf("good stock = %s", fx.stock(good))
	}
}

func TestTransportErrorAbortsBatch(t *testing.T) {
	store := &memStore{}
	fx := newFixture(t)
	fx.orch = New(fx.cfg, fx.fake, Options{Now: func() time.Time { return fixedNow }, Store: store})

	first := fx.product("AAA111", "1")
	fx.product("BBB222", "1")
	fx.entry("AAA111", "1", true, true)
	second := fx.entry("BBB222", "1", true, true)
	fx.fake.FailFor("ChangeColumnValues", first, &monday.TransportError{StatusCode: 503})

	res, err := fx.orch.ProcessEntry(context.Background(), Trigger{})
	if !monday.IsTransport(err) {
		t.Fatalf("expected a transport error, got %v", err)
	}
	if res == nil || res.OK || len(res.Results) != 1 || res.Results[0].Reason != ReasonStockError {
		t.Fatalf("unexpected partial result %+v", res)
	}
	if fx.fake.Removed(second) {
		t.Error("rows after a transport failure must not be touched")
	}
	if len(store.runs) != 1 || store.runs[0].Error == "" || store.runs[0].OK {
		t.Fatalf("expected the failed run to be recorded, got %+v", store.runs)
	}
}

func TestLoadFailureAborts(t *testing.T) {
	fx := newFixture(t)
	fx.fake.FailOn("GroupItems", &monday.APIError{Messages: []string{"board not found"}})
	if _, err := fx.orch.ProcessEntry(context.Background(), Trigger{}); !monday.IsAPI(err) {
		t.Fatalf("expected the load error, got %v", err)
	}
}

func TestMirrorFailureKeepsRow(t *testing.T) {
	fx := newFixture(t, func(c *config.Config) {
		c.Report.BoardID = reportBoard
		c.Report.CreateGroup = false
	})
	cat := fx.product("ABC123", "10")
	row := fx.entry("ABC123", "5", true, true)
	fx.fake.FailOn("CreateItem", &monday.APIError{Messages: []string{"invalid value"}})

	res, err := fx.orch.ProcessEntry(context.Background(), Trigger{})
	if err != nil {
		t.Fatalf("ProcessEntry: %v", err)
	}
	if out := res.Results[0]; out.OK || out.Reason != ReasonMirrorError || out.To == nil {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if fx.fake.Removed(row) {
		t.Fatal("a row that failed to mirror must not be disposed")
	}
	if fx.stock(cat) != "15" {
		t.Errorf("stock = %s, the stock change is not rolled back", fx.stock(cat))
	}
}

func TestNotConfigured(t *testing.T) {
	fx := newFixture(t, func(c *config.Config) { c.Exit.BoardID = 0 })
	if _, err := fx.orch.ProcessExit(context.Background(), Trigger{}); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestRecordedRun(t *testing.T) {
	store := &memStore{}
	fx := newFixture(t)
	fx.orch = New(fx.cfg, fx.fake, Options{Now: func() time.Time { return fixedNow }, Store: store})
	fx.product("ABC123", "10")
	fx.entry("ABC123", "2.5", true, true)

	res, err := fx.orch.ProcessEntry(context.Background(), Trigger{UserID: 9})
	if err != nil {
		t.Fatal(err)
	}
	if len(store.runs) != 1 {
		t.Fatalf("expected one recorded run, got %d", len(store.runs))
	}
	run := store.runs[0]
	if run.ID != res.RunID || run.Kind != "entry" || run.TriggerUserID != 9 || !run.OK {
		t.Errorf("unexpected run %+v", run)
	}
	want := storage.RunResult{ItemID: res.Results[0].ItemID, OK: true, Barcode: "ABC123", Qty: "2.5", From: "10", To: "12.5", CatalogID: res.Results[0].CatalogID}
	if diff := cmp.Diff([]storage.RunResult{want}, run.Results); diff != "" {
		t.Errorf("recorded results (-want +got):\n%s", diff)
	}
}

func TestAutoLink(t *testing.T) {
	fx := newFixture(t, func(c *config.Config) { c.Entry.ProductLinkColumn = "prod" })
	cat := fx.product("ABC123", "1")
	row := fx.entry("ABC123", "1", false, false)
	text := fx.entry("not a barcode", "1", false, false)
	sentinel := fx.entry("tamamla", "", false, false)
	missing := fx.entry("ZZZ999", "1", false, false)

	got, err := fx.orch.AutoLink(context.Background(), KindEntry, row)
	if err != nil || got != cat {
		t.Fatalf("AutoLink = %d, %v; want %d", got, err, cat)
	}
	if ids := columns.LinkedIDs(fx.fake.Get(row).Value("prod")); len(ids) != 1 || ids[0] != cat {
		t.Errorf("product link = %v", ids)
	}

	for _, id := range []int64{text, sentinel, missing} {
		if got, err := fx.orch.AutoLink(context.Background(), KindEntry, id); err != nil || got != 0 {
			t.Errorf("item %d: AutoLink = %d, %v; want no link", id, got, err)
		}
	}

	// The exit board has no product column configured.
	if got, _ := fx.orch.AutoLink(context.Background(), KindExit, row); got != 0 {
		t.Errorf("exit auto-link without a column linked %d", got)
	}
	// An item from another board is ignored.
	if got, _ := fx.orch.AutoLink(context.Background(), KindEntry, cat); got != 0 {
		t.Errorf("catalog item linked to %d", got)
	}
}

func TestRemoveSentinelModes(t *testing.T) {
	fx := newFixture(t, func(c *config.Config) {
		c.Entry.CompleteMode = config.ModeArchive
		c.Exit.CompleteMode = config.ModeKeep
	})
	entry := fx.entry("tamamla", "", false, false)
	exit := fx.fake.AddItem(exitBoard, "topics", "tamamla")

	if err := fx.orch.RemoveSentinel(context.Background(), KindEntry, entry); err != nil {
		t.Fatal(err)
	}
	if err := fx.orch.RemoveSentinel(context.Background(), KindExit, exit); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]int64{entry}, fx.fake.Archived); diff != "" {
		t.Errorf("archived (-want +got):\n%s", diff)
	}
	if fx.fake.Removed(exit) {
		t.Error("keep mode must leave the row")
	}
}

func TestKindOf(t *testing.T) {
	fx := newFixture(t)
	for board, want := range map[int64]Kind{entryBoard: KindEntry, exitBoard: KindExit, catalogBoard: "", 0: ""} {
		got, ok := fx.orch.KindOf(board)
		if got != want || ok != (want != "") {
			t.Errorf("KindOf(%d) = %q, %v", board, got, ok)
		}
	}
}

type memStore struct {
	runs []storage.Run
}

func (m *memStore) RecordRun(ctx context.Context, r storage.Run) error {
	m.runs = append(m.runs, r)
	return nil
}
