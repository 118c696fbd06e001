package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"fintrack/internal/core"
	"fintrack/internal/store"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "nested", "fintrack.db"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_MigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fintrack.db")
	if err := RunMigrations(path); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if err := RunMigrations(path); err != nil {
		t.Fatalf("second run: %v", err)
	}
}

func TestStore_TransactionRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	created := time.Date(2024, 1, 15, 9, 30, 0, 123456789, time.UTC)
	in := core.Transaction{
		UserID:      "u1",
		Description: "Groceries",
		Category:    "Food",
		Amount:      decimal.RequireFromString("42.17"),
		Kind:        core.Expense,
		CreatedAt:   created,
	}
	out, err := s.CreateTransaction(ctx, in)
	if err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}

	got, err := s.GetTransaction(ctx, "u1", out.ID)
	if err != nil {
		t.Fatalf("GetTransaction: %v", err)
	}
	if !got.Amount.Equal(in.Amount) {
		t.Errorf("amount = %s, want %s", got.Amount, in.Amount)
	}
	if !got.CreatedAt.Equal(created) {
		t.Errorf("createdAt = %v, want %v", got.CreatedAt, created)
	}
	if got.Kind != core.Expense || got.Category != "Food" {
		t.Errorf("got %+v", got)
	}
}

func TestStore_UpdateKeepsCreatedAt(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	created := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	tx, _ := s.CreateTransaction(ctx, core.Transaction{
		UserID: "u1", Description: "Gym", Category: "Other",
		Amount: decimal.NewFromInt(30), Kind: core.Expense, CreatedAt: created,
	})

	tx.Description = "Gym membership"
	tx.CreatedAt = time.Time{}
	updated, err := s.UpdateTransaction(ctx, tx)
	if err != nil {
		t.Fatalf("UpdateTransaction: %v", err)
	}
	if updated.Description != "Gym membership" || !updated.CreatedAt.Equal(created) {
		t.Errorf("updated = %+v", updated)
	}
}

func TestStore_OwnershipAndNotFound(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	tx, _ := s.CreateTransaction(ctx, core.Transaction{
		UserID: "u1", Description: "x", Category: "Food",
		Amount: decimal.NewFromInt(1), Kind: core.Expense, CreatedAt: time.Now(),
	})

	if _, err := s.GetTransaction(ctx, "u2", tx.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Get foreign: %v", err)
	}
	if err := s.DeleteTransaction(ctx, "u2", tx.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Delete foreign: %v", err)
	}
	if err := s.DeleteIncomeStream(ctx, "u1", "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Delete missing stream: %v", err)
	}
}

func TestStore_ListOrdering(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		_, err := s.CreateTransaction(ctx, core.Transaction{
			UserID: "u1", Description: string(rune('a' + i)), Category: "Food",
			Amount: decimal.NewFromInt(1), Kind: core.Expense, CreatedAt: base.AddDate(0, 0, i),
		})
		if err != nil {
			t.Fatal(err)
		}
		_, err = s.CreateIncomeStream(ctx, core.IncomeStream{
			UserID: "u1", Name: string(rune('a' + i)), Cadence: core.Monthly,
			Amount: decimal.NewFromInt(100), StartDate: base.AddDate(0, -i, 0),
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	txs, err := s.ListTransactions(ctx, "u1")
	if err != nil || len(txs) != 3 || txs[0].Description != "c" {
		t.Fatalf("transactions = %+v, %v", txs, err)
	}
	streams, err := s.ListIncomeStreams(ctx, "u1")
	if err != nil || len(streams) != 3 || streams[0].Name != "c" {
		t.Fatalf("streams = %+v, %v", streams, err)
	}
}

func TestStore_IncomeStreamNullableDates(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	end := time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)
	is, err := s.CreateIncomeStream(ctx, core.IncomeStream{
		UserID: "u1", Name: "Contract", Cadence: core.Biweekly,
		Amount: decimal.RequireFromString("1250.50"), StartDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate: &end,
	})
	if err != nil {
		t.Fatal(err)
	}

	got, _ := s.GetIncomeStream(ctx, "u1", is.ID)
	if got.EndDate == nil || !got.EndDate.Equal(end) {
		t.Fatalf("end date = %v", got.EndDate)
	}

	got.EndDate = nil
	if _, err := s.UpdateIncomeStream(ctx, got); err != nil {
		t.Fatal(err)
	}
	got, _ = s.GetIncomeStream(ctx, "u1", is.ID)
	if !got.IsOngoing() {
		t.Errorf("stream should be ongoing after clearing end date")
	}
}

func TestStore_WatchReloadsAfterWrite(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := newTestStore(t)

	ch, err := s.WatchIncomeStreams(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if first := <-ch; len(first) != 0 {
		t.Fatalf("initial = %v", first)
	}

	_, err = s.CreateIncomeStream(ctx, core.IncomeStream{
		UserID: "u1", Name: "Salary", Cadence: core.Monthly,
		Amount: decimal.NewFromInt(3000), StartDate: time.Now(),
	})
	if err != nil {
		t.Fatal(err)
	}

	select {
	case snap := <-ch:
		if len(snap) != 1 {
			t.Fatalf("snapshot = %v", snap)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no snapshot after write")
	}
}

type recordingPublisher struct{ changes []store.Change }

func (r *recordingPublisher) PublishChange(_ context.Context, c store.Change) error {
	r.changes = append(r.changes, c)
	return nil
}

func TestStore_WithPublisher(t *testing.T) {
	pub := &recordingPublisher{}
	s, err := New(filepath.Join(t.TempDir(), "fintrack.db"), WithPublisher(pub))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	_, _ = s.CreateTransaction(context.Background(), core.Transaction{
		UserID: "u9", Description: "x", Category: "Food",
		Amount: decimal.NewFromInt(1), Kind: core.Expense, CreatedAt: time.Now(),
	})

	if len(pub.changes) != 1 || pub.changes[0] != (store.Change{UserID: "u9", Collection: store.CollectionTransactions}) {
		t.Errorf("changes = %+v", pub.changes)
	}
}
