package memory

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"fintrack/internal/core"
	"fintrack/internal/store"
)

func tx(user, desc string, created time.Time) core.Transaction {
	return core.Transaction{
		UserID:      user,
		Description: desc,
		Category:    "Food",
		Amount:      decimal.NewFromInt(10),
		Kind:        core.Expense,
		CreatedAt:   created,
	}
}

func TestStore_TransactionCRUD(t *testing.T) {
	ctx := context.Background()
	s := New(nil)

	created, err := s.CreateTransaction(ctx, tx("u1", "Lunch", time.Date(2024, 1, 5, 12, 0, 0, 0, time.UTC)))
	if err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}
	if created.ID == "" {
		t.Fatal("expected an id to be assigned")
	}

	got, err := s.GetTransaction(ctx, "u1", created.ID)
	if err != nil || got.Description != "Lunch" {
		t.Fatalf("GetTransaction = %+v, %v", got, err)
	}

	got.Description = "Dinner"
	got.CreatedAt = time.Time{}
	updated, err := s.UpdateTransaction(ctx, got)
	if err != nil {
		t.Fatalf("UpdateTransaction: %v", err)
	}
	if !updated.CreatedAt.Equal(created.CreatedAt) {
		t.Errorf("update should keep the original creation time, got %v", updated.CreatedAt)
	}

	if err := s.DeleteTransaction(ctx, "u1", created.ID); err != nil {
		t.Fatalf("DeleteTransaction: %v", err)
	}
	if _, err := s.GetTransaction(ctx, "u1", created.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("after delete err = %v, want ErrNotFound", err)
	}
}

func TestStore_ForeignRecordsAreNotFound(t *testing.T) {
	ctx := context.Background()
	s := New(nil)
	created, _ := s.CreateTransaction(ctx, tx("u1", "Mine", time.Now()))

	if _, err := s.GetTransaction(ctx, "u2", created.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Get by other user err = %v", err)
	}
	foreign := created
	foreign.UserID = "u2"
	if _, err := s.UpdateTransaction(ctx, foreign); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Update by other user err = %v", err)
	}
	if err := s.DeleteTransaction(ctx, "u2", created.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Delete by other user err = %v", err)
	}
}

func TestStore_ListTransactionsNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := New(nil)
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	for i, d := range []string{"a", "b", "c"} {
		if _, err := s.CreateTransaction(ctx, tx("u1", d, base.AddDate(0, 0, i))); err != nil {
			t.Fatal(err)
		}
	}
	_, _ = s.CreateTransaction(ctx, tx("u2", "other", base))

	list, err := s.ListTransactions(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 3 {
		t.Fatalf("len = %d, want 3", len(list))
	}
	if list[0].Description != "c" || list[2].Description != "a" {
		t.Errorf("order = %s,%s,%s", list[0].Description, list[1].Description, list[2].Description)
	}
}

func TestStore_IncomeStreamCRUD(t *testing.T) {
	ctx := context.Background()
	s := New(nil)

	is, err := s.CreateIncomeStream(ctx, core.IncomeStream{
		UserID:    "u1",
		Name:      "Salary",
		Cadence:   core.Monthly,
		Amount:    decimal.NewFromInt(3000),
		StartDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("CreateIncomeStream: %v", err)
	}

	end := time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC)
	is.EndDate = &end
	if _, err := s.UpdateIncomeStream(ctx, is); err != nil {
		t.Fatalf("UpdateIncomeStream: %v", err)
	}
	got, err := s.GetIncomeStream(ctx, "u1", is.ID)
	if err != nil || got.EndDate == nil || !got.EndDate.Equal(end) {
		t.Fatalf("GetIncomeStream = %+v, %v", got, err)
	}

	if err := s.DeleteIncomeStream(ctx, "u1", is.ID); err != nil {
		t.Fatalf("DeleteIncomeStream: %v", err)
	}
	list, _ := s.ListIncomeStreams(ctx, "u1")
	if len(list) != 0 {
		t.Errorf("list after delete = %v", list)
	}
}

func TestStore_WatchEmitsOnlyForOwner(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := New(nil)

	u1, err := s.WatchTransactions(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	u2, err := s.WatchTransactions(ctx, "u2")
	if err != nil {
		t.Fatal(err)
	}
	if first := <-u1; len(first) != 0 {
		t.Fatalf("initial snapshot = %v", first)
	}
	<-u2

	if _, err := s.CreateTransaction(ctx, tx("u1", "Coffee", time.Now())); err != nil {
		t.Fatal(err)
	}

	select {
	case snap := <-u1:
		if len(snap) != 1 || snap[0].Description != "Coffee" {
			t.Fatalf("snapshot = %v", snap)
		}
	case <-time.After(time.Second):
		t.Fatal("owner was not notified")
	}

	select {
	case snap := <-u2:
		t.Fatalf("other user got a snapshot: %v", snap)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestNewFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.json")
	seed := `{
  "transactions": {
    "t1": {"userId": "u1", "description": "Rent", "category": "Bills", "amount": 900, "type": "expense", "createdAt": 1706745600000},
    "t2": {"userId": "u1", "description": "Broken", "amount": "lots", "type": "expense", "createdAt": "2024-02-02"}
  },
  "incomeStreams": {
    "s1": {"userId": "u1", "name": "Tips", "type": "cash", "amount": 50, "startDate": {"seconds": 1704067200, "nanoseconds": 0}}
  }
}`
	if err := os.WriteFile(path, []byte(seed), 0o644); err != nil {
		t.Fatalf("write seed: %v", err)
	}

	s, err := NewFromFile(path, nil)
	if err != nil {
		t.Fatalf("NewFromFile: %v", err)
	}

	txs, _ := s.ListTransactions(context.Background(), "u1")
	if len(txs) != 2 {
		t.Fatalf("transactions = %d, want 2 (malformed ones are kept)", len(txs))
	}
	rent, err := s.GetTransaction(context.Background(), "u1", "t1")
	if err != nil || !rent.Amount.Equal(decimal.NewFromInt(900)) {
		t.Errorf("rent = %+v, %v", rent, err)
	}
	if !rent.CreatedAt.Equal(time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("rent createdAt = %v", rent.CreatedAt)
	}

	streams, _ := s.ListIncomeStreams(context.Background(), "u1")
	if len(streams) != 1 || streams[0].Cadence != core.OneTime {
		t.Errorf("streams = %+v", streams)
	}
}

func TestNewFromFile_Missing(t *testing.T) {
	if _, err := NewFromFile(filepath.Join(t.TempDir(), "nope.json"), nil); err == nil {
		t.Fatal("expected error for missing seed file")
	}
}
