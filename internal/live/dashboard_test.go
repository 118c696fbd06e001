package live

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"fintrack/internal/core"
	"fintrack/internal/store/memory"
	"fintrack/internal/summary"
)

func engine(_ context.Context, sel summary.FilterSelection, txs []core.Transaction, streams []core.IncomeStream) summary.Summary {
	return summary.Compute(summary.Input{Filter: sel, Transactions: txs, Streams: streams})
}

func expense(amount int64, day int) core.Transaction {
	return core.Transaction{
		Description: "x", Category: "Food", Kind: core.Expense,
		Amount:    decimal.NewFromInt(amount),
		CreatedAt: time.Date(2024, 1, day, 12, 0, 0, 0, time.UTC),
	}
}

func TestDashboard_RecomputesOnEveryEvent(t *testing.T) {
	txCh := make(chan []core.Transaction)
	streamCh := make(chan []core.IncomeStream)
	filterCh := make(chan summary.FilterSelection)
	updates := make(chan summary.Summary, 10)

	d := New(engine, func(s summary.Summary) { updates <- s }, nil)
	if d.Current() != nil {
		t.Fatal("Current should be nil before any event")
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- d.Run(ctx, summary.Month(2024, 0), Feeds{Transactions: txCh, Streams: streamCh, Filters: filterCh})
	}()

	txCh <- []core.Transaction{expense(10, 5)}
	if got := <-updates; !got.Totals.TotalExpense.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("after tx feed: %s", got.Totals.TotalExpense)
	}

	streamCh <- []core.IncomeStream{{
		Name: "Salary", Cadence: core.Biweekly, Amount: decimal.NewFromInt(500),
		StartDate: time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
	}}
	got := <-updates
	if !got.Projection.Total.Equal(decimal.NewFromInt(1000)) {
		t.Fatalf("after stream feed: %s", got.Projection.Total)
	}
	if !got.Totals.TotalExpense.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("stream event should reuse the latest transactions")
	}

	filterCh <- summary.Month(2024, 1)
	if got := <-updates; got.Totals.Count != 0 {
		t.Fatalf("February should contain no transactions, got %d", got.Totals.Count)
	}

	// Later results overwrite earlier ones.
	txCh <- []core.Transaction{expense(10, 5), expense(5, 6)}
	<-updates
	if cur := d.Current(); cur == nil || cur.Filter != summary.Month(2024, 1) {
		t.Fatalf("Current = %+v", cur)
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Run returned %v, want context.Canceled", err)
	}
}

func TestDashboard_StopsWhenFeedsClose(t *testing.T) {
	txCh := make(chan []core.Transaction, 1)
	txCh <- []core.Transaction{expense(3, 1)}
	close(txCh)

	d := New(engine, nil, nil)
	if err := d.Run(context.Background(), summary.Year(2024), Feeds{Transactions: txCh}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	cur := d.Current()
	if cur == nil || !cur.Totals.TotalExpense.Equal(decimal.NewFromInt(3)) {
		t.Fatalf("Current = %+v", cur)
	}
}

func TestFollow_MemoryStore(t *testing.T) {
	st := memory.New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	feeds, err := Follow(ctx, st, "u1", nil)
	if err != nil {
		t.Fatalf("Follow: %v", err)
	}
	updates := make(chan summary.Summary, 16)
	d := New(engine, func(s summary.Summary) { updates <- s }, nil)
	go d.Run(ctx, summary.Month(2024, 0), feeds)

	// one result per initial snapshot
	<-updates
	<-updates

	tx := expense(42, 10)
	tx.UserID = "u1"
	if _, err := st.CreateTransaction(ctx, tx); err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		select {
		case s := <-updates:
			if s.Totals.TotalExpense.Equal(decimal.NewFromInt(42)) {
				return
			}
		case <-deadline:
			t.Fatal("write never reached the dashboard")
		}
	}
}
