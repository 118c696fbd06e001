// Package store defines the persistence ports for ledger records and the
// change fan-out shared by the backends.
package store

import (
	"cmp"
	"context"
	"errors"
	"io"
	"slices"

	"fintrack/internal/core"
)

// Collection names, shared by every backend and by change notices.
const (
	CollectionTransactions  = "transactions"
	CollectionIncomeStreams = "incomeStreams"
)

// ErrNotFound is returned for ids that do not exist or belong to another user.
var ErrNotFound = errors.New("record not found")

// Ports for outbound adapters.
type (
	// TransactionStore persists transactions. ListTransactions returns the newest first.
	TransactionStore interface {
		ListTransactions(ctx context.Context, userID string) ([]core.Transaction, error)
		GetTransaction(ctx context.Context, userID, id string) (core.Transaction, error)
		CreateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error)
		UpdateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error)
		DeleteTransaction(ctx context.Context, userID, id string) error
	}

	// IncomeStreamStore persists income streams, ordered by start date.
	IncomeStreamStore interface {
		ListIncomeStreams(ctx context.Context, userID string) ([]core.IncomeStream, error)
		GetIncomeStream(ctx context.Context, userID, id string) (core.IncomeStream, error)
		CreateIncomeStream(ctx context.Context, s core.IncomeStream) (core.IncomeStream, error)
		UpdateIncomeStream(ctx context.Context, s core.IncomeStream) (core.IncomeStream, error)
		DeleteIncomeStream(ctx context.Context, userID, id string) error
	}

	// Watcher delivers a full snapshot of a user's records immediately and again
	// after every change. Channels close when ctx is done.
	Watcher interface {
		WatchTransactions(ctx context.Context, userID string) (<-chan []core.Transaction, error)
		WatchIncomeStreams(ctx context.Context, userID string) (<-chan []core.IncomeStream, error)
	}

	// Store is everything a backend provides.
	Store interface {
		TransactionStore
		IncomeStreamStore
		Watcher
		io.Closer
	}
)

// SortIncomeStreams orders streams by start date, then id. Streams without a
// start date come first.
func SortIncomeStreams(streams []core.IncomeStream) {
	slices.SortFunc(streams, func(a, b core.IncomeStream) int {
		if c := a.StartDate.Compare(b.StartDate); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}
