package google

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	goption "google.golang.org/api/option"

	"halfmonth/internal/core"
)

// fakeSheets serves the handful of Sheets endpoints the mirror calls.
type fakeSheets struct {
	mu      sync.Mutex
	nextID  int64
	sheets  map[string]int64
	values  map[string][][]any
	cleared []string
	gets    int
}

func newFakeSheets() *fakeSheets {
	return &fakeSheets{nextID: 1, sheets: map[string]int64{"Sheet1": 0}, values: map[string][][]any{}}
}

func (f *fakeSheets) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	path := r.URL.Path

	switch {
	case r.Method == http.MethodGet && strings.HasSuffix(path, "/spreadsheets/sid"):
		f.gets++
		type props struct {
			SheetID int64  `json:"sheetId"`
			Title   string `json:"title"`
		}
		var out struct {
			Sheets []struct {
				Properties props `json:"properties"`
			} `json:"sheets"`
		}
		for title, id := range f.sheets {
			out.Sheets = append(out.Sheets, struct {
				Properties props `json:"properties"`
			}{props{id, title}})
		}
		json.NewEncoder(w).Encode(out)

	case r.Method == http.MethodPost && strings.HasSuffix(path, ":batchUpdate"):
		var req struct {
			Requests []struct {
				AddSheet *struct {
					Properties struct {
						Title string `json:"title"`
					} `json:"properties"`
				} `json:"addSheet"`
				DeleteSheet *struct {
					SheetID int64 `json:"sheetId"`
				} `json:"deleteSheet"`
			} `json:"requests"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		first := req.Requests[0]
		if first.AddSheet != nil {
			id := f.nextID
			f.nextID++
			f.sheets[first.AddSheet.Properties.Title] = id
			json.NewEncoder(w).Encode(map[string]any{"replies": []any{
				map[string]any{"addSheet": map[string]any{"properties": map[string]any{"sheetId": id, "title": first.AddSheet.Properties.Title}}},
			}})
			return
		}
		for title, id := range f.sheets {
			if id == first.DeleteSheet.SheetID {
				delete(f.sheets, title)
			}
		}
		w.Write([]byte(`{}`))

	case strings.HasSuffix(path, ":clear"):
		f.cleared = append(f.cleared, path)
		w.Write([]byte(`{}`))

	case r.Method == http.MethodPut && strings.Contains(path, "/values/"):
		var vr struct {
			Values [][]any `json:"values"`
		}
		json.NewDecoder(r.Body).Decode(&vr)
		f.values[path[strings.Index(path, "/values/")+len("/values/"):]] = vr.Values
		w.Write([]byte(`{}`))

	default:
		http.Error(w, "unexpected "+r.Method+" "+path, http.StatusNotFound)
	}
}

func newTestClient(t *testing.T) (*Client, *fakeSheets) {
	t.Helper()
	fake := newFakeSheets()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	c, err := New(context.Background(), "sid",
		goption.WithEndpoint(srv.URL+"/"),
		goption.WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c, fake
}

func samplePeriod() core.Period {
	p := core.NewPeriod(core.MustParsePeriodKey("2024-12-2"))
	p.BankBalance = decimal.RequireFromString("3000")
	p.Expenses = []core.Expense{
		{ID: 1, Description: "Rent", Amount: decimal.RequireFromString("1500"), Category: core.Housing},
		{ID: 2, Description: "Fund", Amount: decimal.RequireFromString("200"), Category: core.Savings},
	}
	return p
}

func TestNew_MissingSpreadsheetID(t *testing.T) {
	if _, err := New(context.Background(), "  "); err == nil {
		t.Fatal("expected error for missing spreadsheet id")
	}
}

func TestNewFromServiceAccount_MissingCredentials(t *testing.T) {
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")
	_, err := NewFromServiceAccount(context.Background(), "sid", "", "")
	if err == nil || !strings.Contains(err.Error(), "missing service account credentials") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNewFromServiceAccount_InvalidJSON(t *testing.T) {
	_, err := NewFromServiceAccount(context.Background(), "sid", "not-json", "")
	if err == nil || !strings.Contains(err.Error(), "parse service account credentials") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestTabTitle(t *testing.T) {
	key := core.MustParsePeriodKey("2024-5-1")
	if got := tabTitle("alice", key); got != "2024-5-1 alice" {
		t.Errorf("tabTitle() = %q", got)
	}
	long := tabTitle(strings.Repeat("x", 200), key)
	if n := len([]rune(long)); n != maxTitleLen {
		t.Errorf("long title has %d runes", n)
	}
}

func TestA1Range(t *testing.T) {
	if got := a1Range("2024-5-1 o'brien", "A:C"); got != "'2024-5-1 o''brien'!A:C" {
		t.Errorf("a1Range() = %q", got)
	}
}

func TestPeriodRows(t *testing.T) {
	rows := periodRows(samplePeriod())
	if len(rows) != 8 {
		t.Fatalf("expected 8 rows, got %d", len(rows))
	}
	if rows[0][0] != "Dec 2nd '24" {
		t.Errorf("title row = %v", rows[0])
	}
	if rows[3][2] != "Savings" {
		t.Errorf("expense row = %v", rows[3])
	}
	if rows[5][1] != 1700.0 || rows[6][1] != 3000.0 || rows[7][1] != 1300.0 {
		t.Errorf("totals = %v %v %v", rows[5], rows[6], rows[7])
	}
}

func TestMirrorAndRemove(t *testing.T) {
	ctx := context.Background()
	c, fake := newTestClient(t)
	p := samplePeriod()

	if err := c.MirrorPeriod(ctx, "alice", p); err != nil {
		t.Fatalf("MirrorPeriod() error = %v", err)
	}
	if _, ok := fake.sheets["2024-12-2 alice"]; !ok {
		t.Fatalf("tab not created: %v", fake.sheets)
	}
	written := fake.values["'2024-12-2 alice'!A1"]
	if len(written) != 8 || written[2][0] != "Rent" {
		t.Fatalf("written rows = %v", written)
	}

	// Second mirror reuses the cached sheet id.
	if err := c.MirrorPeriod(ctx, "alice", p); err != nil {
		t.Fatal(err)
	}
	if fake.gets != 1 {
		t.Errorf("expected one spreadsheet read, got %d", fake.gets)
	}
	if len(fake.cleared) != 2 {
		t.Errorf("expected the tab cleared before each write, got %d", len(fake.cleared))
	}

	if err := c.RemovePeriod(ctx, "alice", p.Key); err != nil {
		t.Fatalf("RemovePeriod() error = %v", err)
	}
	if _, ok := fake.sheets["2024-12-2 alice"]; ok {
		t.Fatal("tab should be deleted")
	}
	if err := c.RemovePeriod(ctx, "alice", p.Key); err != nil {
		t.Fatalf("removing a missing tab should succeed, got %v", err)
	}
}
