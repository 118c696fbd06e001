package http

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"fintrack/internal/cache"
	"fintrack/internal/core"
	"fintrack/internal/identity"
	"fintrack/internal/services"
	"fintrack/internal/store/memory"
)

// tokenVerifier maps tokens straight to user ids.
type tokenVerifier map[string]string

func (v tokenVerifier) Verify(_ context.Context, token string) (string, error) {
	if token == "" {
		return "", identity.ErrMissingToken
	}
	userID, ok := v[token]
	if !ok {
		return "", identity.ErrInvalidToken
	}
	return userID, nil
}

type fixture struct {
	srv *Server
	mem *memory.Store
}

func newFixture(t *testing.T, perMinute int) fixture {
	t.Helper()
	mem := memory.New(nil)
	summaries := services.NewSummaryService(mem, cache.NewLRUCache[services.Snapshot](16, time.Minute), time.UTC, nil)
	srv := NewServer(":0", Deps{
		Summaries:          summaries,
		Ledger:             services.NewLedgerService(mem, summaries, nil),
		Watcher:            mem,
		Verifier:           tokenVerifier{"alice-token": "alice", "bob-token": "bob"},
		RateLimitPerMinute: perMinute,
	})
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return fixture{srv: srv, mem: mem}
}

func (f fixture) do(method, target, token, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	f.srv.Handler.ServeHTTP(rr, req)
	return rr
}

func (f fixture) seed(t *testing.T, userID string, amount int64, when time.Time) {
	t.Helper()
	_, err := f.mem.CreateTransaction(context.Background(), core.Transaction{
		UserID: userID, Description: "Groceries", Category: "Food", Kind: core.Expense,
		Amount: decimal.NewFromInt(amount), CreatedAt: when,
	})
	if err != nil {
		t.Fatal(err)
	}
}

type summaryJSON struct {
	Filter struct {
		Mode  string `json:"mode"`
		Year  int    `json:"year"`
		Month int    `json:"month"`
	} `json:"filter"`
	Totals struct {
		TotalIncome    string            `json:"totalIncome"`
		TotalExpense   string            `json:"totalExpense"`
		CategoryTotals map[string]string `json:"categoryTotals"`
		Count          int               `json:"transactionCount"`
	} `json:"totals"`
	Projection struct {
		Total string `json:"total"`
		Basis string `json:"basis"`
	} `json:"projectedIncome"`
	ActiveStreams []struct {
		Name string `json:"name"`
	} `json:"activeStreams"`
	FellBack bool `json:"fellBack"`
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return v
}

func TestHealthAndReady(t *testing.T) {
	f := newFixture(t, 60)
	for _, path := range []string{"/healthz", "/readyz"} {
		rr := f.do(http.MethodGet, path, "", "")
		if rr.Code != http.StatusOK {
			t.Fatalf("%s status=%d", path, rr.Code)
		}
		if rr.Header().Get("X-Content-Type-Options") != "nosniff" {
			t.Errorf("%s missing security headers", path)
		}
	}

	f.srv.ready = func(context.Context) error { return errors.New("db down") }
	if rr := f.do(http.MethodGet, "/readyz", "", ""); rr.Code != http.StatusServiceUnavailable {
		t.Errorf("readyz with failing check = %d", rr.Code)
	}
}

func TestAPIRequiresToken(t *testing.T) {
	f := newFixture(t, 60)
	for _, token := range []string{"", "stolen"} {
		rr := f.do(http.MethodGet, "/api/summary", token, "")
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("token %q: status=%d", token, rr.Code)
		}
		if got := decode[map[string]string](t, rr)["error"]; got != "unauthorized" {
			t.Errorf("error = %q", got)
		}
	}
}

func TestSummaryIsScopedToCaller(t *testing.T) {
	f := newFixture(t, 60)
	jan := time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)
	f.seed(t, "alice", 40, jan)
	f.seed(t, "bob", 999, jan)

	rr := f.do(http.MethodGet, "/api/summary?mode=month&year=2024&month=0", "alice-token", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	got := decode[summaryJSON](t, rr)
	if got.Totals.TotalExpense != "40" || got.Totals.Count != 1 {
		t.Errorf("alice totals = %+v", got.Totals)
	}
	if got.Totals.CategoryTotals["Food"] != "40" {
		t.Errorf("category totals = %v", got.Totals.CategoryTotals)
	}
	if got.Filter.Mode != "month" || got.Filter.Year != 2024 || got.Filter.Month != 0 {
		t.Errorf("filter = %+v", got.Filter)
	}
}

func TestSummaryModes(t *testing.T) {
	f := newFixture(t, 60)
	_, err := f.mem.CreateIncomeStream(context.Background(), core.IncomeStream{
		UserID: "alice", Name: "Salary", Cadence: core.Monthly, Amount: decimal.NewFromInt(3000),
		StartDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		query     string
		wantTotal string
		wantBasis string
		fellBack  bool
	}{
		{"mode=month&year=2024&month=5", "3000", "monthly", false},
		{"mode=year&year=2024", "36000", "yearly", false},
		{"mode=custom&start=2024-01-01&end=2024-01-31", "3057.53", "prorated", false},
		{"mode=custom&start=2024-01-01", "3000", "monthly", true},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rr := f.do(http.MethodGet, "/api/summary?"+tt.query, "alice-token", "")
			if rr.Code != http.StatusOK {
				t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
			}
			got := decode[summaryJSON](t, rr)
			if got.Projection.Total != tt.wantTotal || got.Projection.Basis != tt.wantBasis {
				t.Errorf("projection = %+v, want %s/%s", got.Projection, tt.wantTotal, tt.wantBasis)
			}
			if got.FellBack != tt.fellBack {
				t.Errorf("fellBack = %v", got.FellBack)
			}
			if len(got.ActiveStreams) != 1 {
				t.Errorf("active streams = %d", len(got.ActiveStreams))
			}
		})
	}
}

func TestSummaryBadQuery(t *testing.T) {
	f := newFixture(t, 60)
	for _, q := range []string{"mode=week", "month=12", "year=abc", "mode=custom&start=yesterday"} {
		if rr := f.do(http.MethodGet, "/api/summary?"+q, "alice-token", ""); rr.Code != http.StatusBadRequest {
			t.Errorf("%s: status=%d", q, rr.Code)
		}
	}
}

func TestTransactionCRUD(t *testing.T) {
	f := newFixture(t, 60)

	rr := f.do(http.MethodPost, "/api/transactions", "alice-token",
		`{"description":"Coffee","category":"Food","amount":"3.50","type":"expense","createdAt":"2024-03-01T08:00:00Z"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create status=%d body=%s", rr.Code, rr.Body.String())
	}
	created := decode[map[string]any](t, rr)
	id, _ := created["id"].(string)
	if id == "" || created["amount"] != "3.5" {
		t.Fatalf("created = %v", created)
	}
	if rr.Header().Get("Location") != "/api/transactions/"+id {
		t.Errorf("Location = %q", rr.Header().Get("Location"))
	}

	if rr := f.do(http.MethodGet, "/api/transactions/"+id, "bob-token", ""); rr.Code != http.StatusNotFound {
		t.Errorf("bob read alice's transaction: status=%d", rr.Code)
	}

	rr = f.do(http.MethodPut, "/api/transactions/"+id, "alice-token",
		`{"description":"Espresso","category":"Food","amount":4,"type":"expense"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("update status=%d body=%s", rr.Code, rr.Body.String())
	}
	updated := decode[map[string]any](t, rr)
	if updated["description"] != "Espresso" || updated["createdAt"] != "2024-03-01T08:00:00Z" {
		t.Errorf("updated = %v", updated)
	}

	rr = f.do(http.MethodGet, "/api/transactions", "alice-token", "")
	if list := decode[[]map[string]any](t, rr); len(list) != 1 {
		t.Fatalf("list = %v", list)
	}

	if rr := f.do(http.MethodDelete, "/api/transactions/"+id, "alice-token", ""); rr.Code != http.StatusNoContent {
		t.Fatalf("delete status=%d", rr.Code)
	}
	if rr := f.do(http.MethodDelete, "/api/transactions/"+id, "alice-token", ""); rr.Code != http.StatusNotFound {
		t.Errorf("second delete status=%d", rr.Code)
	}
}

func TestTransactionErrors(t *testing.T) {
	f := newFixture(t, 60)
	tests := []struct {
		name string
		body string
		want int
	}{
		{"not json", `description=x`, http.StatusBadRequest},
		{"bad amount", `{"description":"x","category":"Food","amount":"lots","type":"expense"}`, http.StatusBadRequest},
		{"missing category", `{"description":"x","amount":1,"type":"expense"}`, http.StatusUnprocessableEntity},
		{"negative amount", `{"description":"x","category":"Food","amount":-1,"type":"expense"}`, http.StatusUnprocessableEntity},
		{"empty description", `{"description":"  ","category":"Food","amount":1,"type":"expense"}`, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := f.do(http.MethodPost, "/api/transactions", "alice-token", tt.body)
			if rr.Code != tt.want {
				t.Fatalf("status=%d want %d body=%s", rr.Code, tt.want, rr.Body.String())
			}
			if decode[map[string]string](t, rr)["error"] == "" {
				t.Error("error message missing")
			}
		})
	}
}

func TestIncomeStreamCRUD(t *testing.T) {
	f := newFixture(t, 60)

	rr := f.do(http.MethodPost, "/api/income-streams", "alice-token",
		`{"name":"Salary","type":"biweekly","amount":1200,"startDate":"2024-01-01"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create status=%d body=%s", rr.Code, rr.Body.String())
	}
	created := decode[map[string]any](t, rr)
	id := created["id"].(string)
	if created["monthlyAmount"] != "2400" {
		t.Errorf("monthlyAmount = %v", created["monthlyAmount"])
	}
	if _, ok := created["endDate"]; ok {
		t.Error("ongoing stream should not carry endDate")
	}

	rr = f.do(http.MethodPut, "/api/income-streams/"+id, "alice-token",
		`{"name":"Salary","type":"biweekly","amount":1200,"startDate":"2024-01-01","endDate":"2023-12-01"}`)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("end before start: status=%d", rr.Code)
	}

	rr = f.do(http.MethodPut, "/api/income-streams/"+id, "alice-token",
		`{"name":"Salary","type":"biweekly","amount":1200,"startDate":"2024-01-01","endDate":"2024-06-30"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("update status=%d body=%s", rr.Code, rr.Body.String())
	}

	rr = f.do(http.MethodGet, "/api/summary?mode=month&year=2024&month=6", "alice-token", "")
	if got := decode[summaryJSON](t, rr); got.Projection.Total != "0" {
		t.Errorf("ended stream still projected in July: %+v", got.Projection)
	}

	if rr := f.do(http.MethodGet, "/api/income-streams", "bob-token", ""); len(decode[[]any](t, rr)) != 0 {
		t.Error("bob should see no streams")
	}
	if rr := f.do(http.MethodDelete, "/api/income-streams/"+id, "alice-token", ""); rr.Code != http.StatusNoContent {
		t.Errorf("delete status=%d", rr.Code)
	}
}

func TestSummaryReflectsWritesThroughCache(t *testing.T) {
	f := newFixture(t, 60)
	query := "/api/summary?mode=year&year=2024"

	if got := decode[summaryJSON](t, f.do(http.MethodGet, query, "alice-token", "")); got.Totals.Count != 0 {
		t.Fatalf("count = %d", got.Totals.Count)
	}
	f.do(http.MethodPost, "/api/transactions", "alice-token",
		`{"description":"Book","category":"Other","amount":12,"type":"expense","createdAt":"2024-05-05T10:00:00Z"}`)
	if got := decode[summaryJSON](t, f.do(http.MethodGet, query, "alice-token", "")); got.Totals.TotalExpense != "12" {
		t.Errorf("summary after write = %+v", got.Totals)
	}
}

func TestMutationsAreRateLimited(t *testing.T) {
	f := newFixture(t, 2)
	body := `{"description":"x","category":"Food","amount":1,"type":"expense"}`

	for i := 0; i < 2; i++ {
		if rr := f.do(http.MethodPost, "/api/transactions", "alice-token", body); rr.Code != http.StatusCreated {
			t.Fatalf("request %d status=%d", i+1, rr.Code)
		}
	}
	rr := f.do(http.MethodPost, "/api/transactions", "alice-token", body)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("third POST status=%d", rr.Code)
	}
	if decode[map[string]string](t, rr)["error"] != "rate limit exceeded" {
		t.Errorf("body = %s", rr.Body.String())
	}
	if rr := f.do(http.MethodGet, "/api/transactions", "alice-token", ""); rr.Code != http.StatusOK {
		t.Errorf("reads must not be limited, got %d", rr.Code)
	}
	if rr := f.do(http.MethodPost, "/api/transactions", "bob-token", body); rr.Code != http.StatusCreated {
		t.Errorf("bob has a separate budget, got %d", rr.Code)
	}
}

func TestUnknownRoutes(t *testing.T) {
	f := newFixture(t, 60)
	if rr := f.do(http.MethodGet, "/api/nope", "alice-token", ""); rr.Code != http.StatusNotFound {
		t.Errorf("unknown path status=%d", rr.Code)
	}
	rr := f.do(http.MethodPatch, "/api/transactions", "alice-token", "")
	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("PATCH status=%d", rr.Code)
	}
	if got := rr.Header().Get("Allow"); got != "GET, POST" {
		t.Errorf("Allow = %q", got)
	}
	rr = f.do(http.MethodPost, "/api/transactions/abc", "alice-token", "")
	if got := rr.Header().Get("Allow"); got != "GET, PUT, DELETE" {
		t.Errorf("Allow = %q", got)
	}
}

func TestSummaryStream(t *testing.T) {
	f := newFixture(t, 60)
	ts := httptest.NewServer(f.srv.Handler)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet,
		ts.URL+"/api/summary/stream?mode=year&year=2024&access_token=alice-token", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q", ct)
	}

	events := make(chan summaryJSON, 8)
	go func() {
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			data, ok := strings.CutPrefix(sc.Text(), "data: ")
			if !ok {
				continue
			}
			var s summaryJSON
			if json.Unmarshal([]byte(data), &s) == nil {
				events <- s
			}
		}
		close(events)
	}()

	first, ok := <-events
	if !ok || first.Totals.Count != 0 {
		t.Fatalf("first event = %+v", first)
	}

	f.seed(t, "alice", 25, time.Date(2024, 8, 1, 0, 0, 0, 0, time.UTC))
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				t.Fatal("stream closed before the write arrived")
			}
			if ev.Totals.TotalExpense == "25" {
				return
			}
		case <-ctx.Done():
			t.Fatal("no event after write")
		}
	}
}
