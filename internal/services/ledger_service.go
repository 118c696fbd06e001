package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/store"
)

// ErrValidation marks errors caused by the caller's input.
var ErrValidation = errors.New("validation failed")

// LedgerStore is the write side the ledger needs.
type LedgerStore interface {
	store.TransactionStore
	store.IncomeStreamStore
}

// Invalidator is told whenever a user's records change.
type Invalidator interface {
	Invalidate(userID string)
}

// LedgerService validates and persists transactions and income streams on
// behalf of an authenticated user.
type LedgerService struct {
	store       LedgerStore
	invalidator Invalidator
	logger      *log.StructuredLogger
	now         func() time.Time
}

func NewLedgerService(s LedgerStore, inv Invalidator, logger *log.Logger) *LedgerService {
	if logger == nil {
		logger = log.Discard()
	}
	return &LedgerService{
		store:       s,
		invalidator: inv,
		logger:      log.NewStructuredLogger(logger.WithComponent(log.ComponentLedger)),
		now:         time.Now,
	}
}

func invalid(err error) error {
	return fmt.Errorf("%w: %w", ErrValidation, err)
}

func (l *LedgerService) written(ctx context.Context, op, userID, collection, id string) {
	if l.invalidator != nil {
		l.invalidator.Invalidate(userID)
	}
	l.logger.LogWrite(ctx, op, userID, collection, id)
}

func (l *LedgerService) ListTransactions(ctx context.Context, userID string) ([]core.Transaction, error) {
	return l.store.ListTransactions(ctx, userID)
}

func (l *LedgerService) GetTransaction(ctx context.Context, userID, id string) (core.Transaction, error) {
	return l.store.GetTransaction(ctx, userID, id)
}

// CreateTransaction stamps the transaction with its owner and, when missing, the current time.
func (l *LedgerService) CreateTransaction(ctx context.Context, userID string, t core.Transaction) (core.Transaction, error) {
	t.ID = ""
	t.UserID = userID
	if t.CreatedAt.IsZero() {
		t.CreatedAt = l.now().UTC()
	}
	if err := t.Validate(); err != nil {
		return core.Transaction{}, invalid(err)
	}

	created, err := l.store.CreateTransaction(ctx, t)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("save transaction: %w", err)
	}
	l.written(ctx, log.OpCreate, userID, store.CollectionTransactions, created.ID)
	return created, nil
}

// UpdateTransaction replaces the editable fields. The creation time is kept
// unless the caller sends a new one.
func (l *LedgerService) UpdateTransaction(ctx context.Context, userID, id string, t core.Transaction) (core.Transaction, error) {
	existing, err := l.store.GetTransaction(ctx, userID, id)
	if err != nil {
		return core.Transaction{}, err
	}
	t.ID = id
	t.UserID = userID
	if t.CreatedAt.IsZero() {
		t.CreatedAt = existing.CreatedAt
	}
	if err := t.Validate(); err != nil {
		return core.Transaction{}, invalid(err)
	}

	updated, err := l.store.UpdateTransaction(ctx, t)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("update transaction: %w", err)
	}
	l.written(ctx, log.OpUpdate, userID, store.CollectionTransactions, id)
	return updated, nil
}

func (l *LedgerService) DeleteTransaction(ctx context.Context, userID, id string) error {
	if err := l.store.DeleteTransaction(ctx, userID, id); err != nil {
		return err
	}
	l.written(ctx, log.OpDelete, userID, store.CollectionTransactions, id)
	return nil
}

func (l *LedgerService) ListIncomeStreams(ctx context.Context, userID string) ([]core.IncomeStream, error) {
	return l.store.ListIncomeStreams(ctx, userID)
}

func (l *LedgerService) GetIncomeStream(ctx context.Context, userID, id string) (core.IncomeStream, error) {
	return l.store.GetIncomeStream(ctx, userID, id)
}

func (l *LedgerService) CreateIncomeStream(ctx context.Context, userID string, s core.IncomeStream) (core.IncomeStream, error) {
	s.ID = ""
	s.UserID = userID
	if err := s.Validate(); err != nil {
		return core.IncomeStream{}, invalid(err)
	}

	created, err := l.store.CreateIncomeStream(ctx, s)
	if err != nil {
		return core.IncomeStream{}, fmt.Errorf("save income stream: %w", err)
	}
	l.written(ctx, log.OpCreate, userID, store.CollectionIncomeStreams, created.ID)
	return created, nil
}

func (l *LedgerService) UpdateIncomeStream(ctx context.Context, userID, id string, s core.IncomeStream) (core.IncomeStream, error) {
	s.ID = id
	s.UserID = userID
	if err := s.Validate(); err != nil {
		return core.IncomeStream{}, invalid(err)
	}

	updated, err := l.store.UpdateIncomeStream(ctx, s)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return core.IncomeStream{}, err
		}
		return core.IncomeStream{}, fmt.Errorf("update income stream: %w", err)
	}
	l.written(ctx, log.OpUpdate, userID, store.CollectionIncomeStreams, id)
	return updated, nil
}

func (l *LedgerService) DeleteIncomeStream(ctx context.Context, userID, id string) error {
	if err := l.store.DeleteIncomeStream(ctx, userID, id); err != nil {
		return err
	}
	l.written(ctx, log.OpDelete, userID, store.CollectionIncomeStreams, id)
	return nil
}
