package monday

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/acostock/stocksuite/internal/utils"
	"github.com/google/go-cmp/cmp"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
)

type recordedRequest struct {
	Query      string                 `json:"query"`
	Variables  map[string]interface{} `json:"variables"`
	APIVersion string                 `json:"-"`
	Auth       string                 `json:"-"`
}

// newTestClient starts a server that answers every call with the next
// response from responses and records what it received.
func newTestClient(t *testing.T, responses ...string) (*Client, *[]recordedRequest) {
	t.Helper()
	var (
		mu   sync.Mutex
		reqs []recordedRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var rr recordedRequest
		if err := json.Unmarshal(body, &rr); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		rr.APIVersion = r.Header.Get("API-Version")
		rr.Auth = r.Header.Get("Authorization")

		mu.Lock()
		n := len(reqs)
		reqs = append(reqs, rr)
		mu.Unlock()

		if n >= len(responses) {
			t.Errorf("unexpected request #%d: %s", n+1, rr.Query)
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, responses[n])
	}))
	t.Cleanup(srv.Close)

	c, err := NewClient(Options{Token: "tok", URL: srv.URL, RetryMax: 0})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c, &reqs
}

func TestNewClientRequiresToken(t *testing.T) {
	if _, err := NewClient(Options{Token: "  "}); !errors.Is(err, ErrMissingToken) {
		t.Fatalf("expected ErrMissingToken, got %v", err)
	}
}

func TestDoHeaders(t *testing.T) {
	c, reqs := newTestClient(t, `{"data":{"me":{"id":"1"}}}`, `{"data":{"me":{"id":"1"}}}`)

	if _, err := c.Do(context.Background(), Request{Query: "q1", Versioned: true}); err != nil {
		t.Fatalf("Do: %v", err)
	}
	if _, err := c.Do(context.Background(), Request{Query: "q2"}); err != nil {
		t.Fatalf("Do: %v", err)
	}

	got := *reqs
	if got[0].APIVersion != DefaultAPIVersion {
		t.Errorf("versioned call sent API-Version %q", got[0].APIVersion)
	}
	if got[1].APIVersion != "" {
		t.Errorf("unversioned call sent API-Version %q", got[1].APIVersion)
	}
	if got[0].Auth != "tok" {
		t.Errorf("Authorization = %q", got[0].Auth)
	}
}

func TestDoErrors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		transport bool
		api       bool
	}{
		{"graphql errors", 200, `{"errors":[{"message":"boom","extensions":{"code":"X"}}]}`, false, true},
		{"error_message", 200, `{"error_message":"not allowed","error_code":"Forbidden"}`, false, true},
		{"http 400", 400, `{"error_message":"bad"}`, true, false},
		{"http 401", 401, `not json`, true, false},
		{"malformed", 200, `{"data":`, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			c, _ := NewClient(Options{Token: "tok", URL: srv.URL})
			_, err := c.Do(context.Background(), Request{Query: "q"})
			if err == nil {
				t.Fatal("expected an error")
			}
			if IsTransport(err) != tt.transport || IsAPI(err) != tt.api {
				t.Fatalf("IsTransport=%v IsAPI=%v for %v", IsTransport(err), IsAPI(err), err)
			}
		})
	}
}

func TestDoServerErrorIsTransport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c, _ := NewClient(Options{Token: "tok", URL: srv.URL, RetryMax: 0})
	_, err := c.Do(context.Background(), Request{Query: "q"})
	if !IsTransport(err) {
		t.Fatalf("expected transport error, got %v", err)
	}
}

func TestItemParsing(t *testing.T) {
	c, _ := newTestClient(t, `{"data":{"items":[{
		"id":"42","name":" ABC123 ","board":{"id":"7"},"group":{"id":"topics","title":"Incoming"},
		"column_values":[{"id":"qty","text":"5","value":"\"5\""},{"id":"chk","text":"","value":null}]
	}]}}`, `{"data":{"items":[]}}`)

	it, err := c.Item(context.Background(), 42)
	if err != nil {
		t.Fatalf("Item: %v", err)
	}
	if it.ID != 42 || it.Name != "ABC123" || it.BoardID != 7 || it.GroupID != "topics" {
		t.Fatalf("unexpected item %+v", it)
	}
	if v := it.Value("qty"); v == nil || v.Value != `"5"` {
		t.Fatalf("qty value = %+v", v)
	}
	if v := it.Value("chk"); v == nil || v.Value != "" {
		t.Fatalf("null value should decode to empty, got %+v", v)
	}
	if it.Value("missing") != nil {
		t.Fatal("expected nil for unknown column")
	}

	missing, err := c.Item(context.Background(), 1)
	if err != nil || missing != nil {
		t.Fatalf("expected (nil, nil) for missing item, got %v %v", missing, err)
	}
}

func TestItemsPageCursor(t *testing.T) {
	c, reqs := newTestClient(t,
		`{"data":{"boards":[{"id":"1","items_page":{"cursor":"abc","items":[{"id":"1","name":"a","column_values":[]}]}}]}}`,
		`{"data":{"next_items_page":{"cursor":null,"items":[{"id":"2","name":"b","column_values":[]}]}}}`,
	)
	first, err := c.ItemsPage(context.Background(), 1, "", 0)
	if err != nil {
		t.Fatal(err)
	}
	if first.Cursor != "abc" || len(first.Items) != 1 || first.Items[0].BoardID != 1 {
		t.Fatalf("unexpected first page %+v", first)
	}
	second, err := c.ItemsPage(context.Background(), 1, first.Cursor, 0)
	if err != nil {
		t.Fatal(err)
	}
	if second.Cursor != "" || second.Items[0].ID != 2 {
		t.Fatalf("unexpected second page %+v", second)
	}
	if got := (*reqs)[1].Variables["cursor"]; got != "abc" {
		t.Fatalf("cursor variable = %v", got)
	}
	if got := (*reqs)[0].Variables["limit"]; got != float64(PageSize) {
		t.Fatalf("limit variable = %v", got)
	}
}

func TestGroupItemsFollowsCursor(t *testing.T) {
	c, _ := newTestClient(t,
		`{"data":{"boards":[{"id":"1","groups":[{"id":"g","items_page":{"cursor":"n1","items":[{"id":"1","name":"a","column_values":[]}]}}]}]}}`,
		`{"data":{"next_items_page":{"cursor":"","items":[{"id":"2","name":"b","column_values":[]}]}}}`,
	)
	items, err := c.GroupItems(context.Background(), 1, "g")
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 2 || items[1].BoardID != 1 {
		t.Fatalf("unexpected items %+v", items)
	}
}

func TestGroupItemsWarnsAtPageCeiling(t *testing.T) {
	hook := logtest.NewLocal(utils.Log)
	t.Cleanup(func() { utils.Log.ReplaceHooks(make(logrus.LevelHooks)) })

	responses := []string{
		`{"data":{"boards":[{"id":"1","groups":[{"id":"g","items_page":{"cursor":"more","items":[{"id":"1","name":"a","column_values":[]}]}}]}]}}`,
	}
	for len(responses) < MaxPages {
		responses = append(responses, `{"data":{"next_items_page":{"cursor":"more","items":[{"id":"2","name":"b","column_values":[]}]}}}`)
	}
	c, reqs := newTestClient(t, responses...)

	items, err := c.GroupItems(context.Background(), 1, "g")
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != MaxPages || len(*reqs) != MaxPages {
		t.Fatalf("got %d items over %d requests, want %d", len(items), len(*reqs), MaxPages)
	}
	entry := hook.LastEntry()
	if entry == nil || entry.Level != logrus.WarnLevel || !strings.Contains(entry.Message, "Group g of board 1") {
		t.Fatalf("expected a truncation warning, got %+v", entry)
	}
}

func TestMutationsEncodeColumnValues(t *testing.T) {
	c, reqs := newTestClient(t,
		`{"data":{"create_item":{"id":"99"}}}`,
		`{"data":{"change_multiple_column_values":{"id":"99"}}}`,
	)
	id, err := c.CreateItem(context.Background(), 5, "grp", "ABC", ColumnValues{"num": json.RawMessage(`"15"`)})
	if err != nil || id != 99 {
		t.Fatalf("CreateItem = %d, %v", id, err)
	}
	err = c.ChangeColumnValues(context.Background(), 5, 99, ColumnValues{"rel": json.RawMessage(`{"linkedPulseIds":[{"linkedPulseId":3}]}`)})
	if err != nil {
		t.Fatal(err)
	}

	got := *reqs
	want := map[string]interface{}{"boardId": float64(5), "groupId": "grp", "name": "ABC", "values": `{"num":"15"}`}
	if diff := cmp.Diff(want, got[0].Variables); diff != "" {
		t.Errorf("create_item variables mismatch (-want +got):\n%s", diff)
	}
	if v := got[1].Variables["values"]; v != `{"rel":{"linkedPulseIds":[{"linkedPulseId":3}]}}` {
		t.Errorf("change values = %v", v)
	}
}

func TestBoardsFallsBackToMe(t *testing.T) {
	c, _ := newTestClient(t,
		`{"data":{"boards":[]}}`,
		`{"data":{"me":{"boards":[{"id":"3","name":"Stock Entry","workspace":{"id":"8","name":"Ops"}},{"id":"4","name":"Catalog"}]}}}`,
	)
	boards, err := c.Boards(context.Background(), "entry")
	if err != nil {
		t.Fatal(err)
	}
	want := []Board{{ID: 3, Name: "Stock Entry", WorkspaceID: 8, WorkspaceName: "Ops"}}
	if diff := cmp.Diff(want, boards); diff != "" {
		t.Fatalf("boards mismatch (-want +got):\n%s", diff)
	}
}
