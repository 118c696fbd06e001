package memory

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"sync"

	"github.com/google/uuid"

	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/records"
	"fintrack/internal/store"
)

// Store keeps every record in process memory. It is the default backend for
// development and the one the tests run against.
type Store struct {
	mu      sync.RWMutex
	txs     map[string]core.Transaction
	streams map[string]core.IncomeStream

	bus    *store.Broadcaster
	logger *log.Logger
}

var _ store.Store = (*Store)(nil)

func New(logger *log.Logger) *Store {
	if logger == nil {
		logger = log.Discard()
	}
	return &Store{
		txs:     make(map[string]core.Transaction),
		streams: make(map[string]core.IncomeStream),
		bus:     store.NewBroadcaster(),
		logger:  logger.WithComponent(log.ComponentStorage),
	}
}

// seedFile mirrors an export of the document store: raw documents keyed by id,
// in the web client's field layout.
type seedFile struct {
	Transactions  map[string]map[string]any `json:"transactions"`
	IncomeStreams map[string]map[string]any `json:"incomeStreams"`
}

// NewFromFile builds a store preloaded with the documents in path.
// Documents with unusable fields are loaded anyway and logged.
func NewFromFile(path string, logger *log.Logger) (*Store, error) {
	s := New(logger)

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open seed file: %w", err)
	}
	defer f.Close()

	dec := json.NewDecoder(f)
	dec.UseNumber()
	var seed seedFile
	if err := dec.Decode(&seed); err != nil {
		return nil, fmt.Errorf("decode seed file %s: %w", path, err)
	}

	for id, doc := range seed.Transactions {
		t, err := records.DecodeTransaction(id, doc)
		if err != nil {
			s.logger.Warn("Seed transaction has malformed fields", log.FieldRecordID, id, log.FieldError, err)
		}
		s.txs[id] = t
	}
	for id, doc := range seed.IncomeStreams {
		is, err := records.DecodeIncomeStream(id, doc)
		if err != nil {
			s.logger.Warn("Seed income stream has malformed fields", log.FieldRecordID, id, log.FieldError, err)
		}
		s.streams[id] = is
	}

	s.logger.Info("Seed data loaded",
		"transactions", len(s.txs),
		"income_streams", len(s.streams),
		"path", path)
	return s, nil
}

func (s *Store) notify(ctx context.Context, userID, collection string) {
	_ = s.bus.PublishChange(ctx, store.Change{UserID: userID, Collection: collection})
}

// ListTransactions returns the user's transactions, newest first.
func (s *Store) ListTransactions(_ context.Context, userID string) ([]core.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]core.Transaction, 0)
	for _, t := range s.txs {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	slices.SortFunc(out, func(a, b core.Transaction) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}

func (s *Store) GetTransaction(_ context.Context, userID, id string) (core.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.txs[id]
	if !ok || t.UserID != userID {
		return core.Transaction{}, store.ErrNotFound
	}
	return t, nil
}

// CreateTransaction assigns an id when the caller did not.
func (s *Store) CreateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	s.mu.Lock()
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if _, exists := s.txs[t.ID]; exists {
		s.mu.Unlock()
		return core.Transaction{}, fmt.Errorf("transaction %s already exists", t.ID)
	}
	s.txs[t.ID] = t
	s.mu.Unlock()

	s.notify(ctx, t.UserID, store.CollectionTransactions)
	return t, nil
}

func (s *Store) UpdateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	s.mu.Lock()
	old, ok := s.txs[t.ID]
	if !ok || old.UserID != t.UserID {
		s.mu.Unlock()
		return core.Transaction{}, store.ErrNotFound
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = old.CreatedAt
	}
	s.txs[t.ID] = t
	s.mu.Unlock()

	s.notify(ctx, t.UserID, store.CollectionTransactions)
	return t, nil
}

func (s *Store) DeleteTransaction(ctx context.Context, userID, id string) error {
	s.mu.Lock()
	t, ok := s.txs[id]
	if !ok || t.UserID != userID {
		s.mu.Unlock()
		return store.ErrNotFound
	}
	delete(s.txs, id)
	s.mu.Unlock()

	s.notify(ctx, userID, store.CollectionTransactions)
	return nil
}

// ListIncomeStreams returns the user's streams ordered by start date.
func (s *Store) ListIncomeStreams(_ context.Context, userID string) ([]core.IncomeStream, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]core.IncomeStream, 0)
	for _, is := range s.streams {
		if is.UserID == userID {
			out = append(out, is)
		}
	}
	store.SortIncomeStreams(out)
	return out, nil
}

func (s *Store) GetIncomeStream(_ context.Context, userID, id string) (core.IncomeStream, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	is, ok := s.streams[id]
	if !ok || is.UserID != userID {
		return core.IncomeStream{}, store.ErrNotFound
	}
	return is, nil
}

func (s *Store) CreateIncomeStream(ctx context.Context, is core.IncomeStream) (core.IncomeStream, error) {
	s.mu.Lock()
	if is.ID == "" {
		is.ID = uuid.NewString()
	}
	if _, exists := s.streams[is.ID]; exists {
		s.mu.Unlock()
		return core.IncomeStream{}, fmt.Errorf("income stream %s already exists", is.ID)
	}
	s.streams[is.ID] = is
	s.mu.Unlock()

	s.notify(ctx, is.UserID, store.CollectionIncomeStreams)
	return is, nil
}

func (s *Store) UpdateIncomeStream(ctx context.Context, is core.IncomeStream) (core.IncomeStream, error) {
	s.mu.Lock()
	old, ok := s.streams[is.ID]
	if !ok || old.UserID != is.UserID {
		s.mu.Unlock()
		return core.IncomeStream{}, store.ErrNotFound
	}
	s.streams[is.ID] = is
	s.mu.Unlock()

	s.notify(ctx, is.UserID, store.CollectionIncomeStreams)
	return is, nil
}

func (s *Store) DeleteIncomeStream(ctx context.Context, userID, id string) error {
	s.mu.Lock()
	is, ok := s.streams[id]
	if !ok || is.UserID != userID {
		s.mu.Unlock()
		return store.ErrNotFound
	}
	delete(s.streams, id)
	s.mu.Unlock()

	s.notify(ctx, userID, store.CollectionIncomeStreams)
	return nil
}

func (s *Store) WatchTransactions(ctx context.Context, userID string) (<-chan []core.Transaction, error) {
	return store.Watch(ctx, s.bus, userID, store.CollectionTransactions,
		func(ctx context.Context) ([]core.Transaction, error) { return s.ListTransactions(ctx, userID) },
		nil)
}

func (s *Store) WatchIncomeStreams(ctx context.Context, userID string) (<-chan []core.IncomeStream, error) {
	return store.Watch(ctx, s.bus, userID, store.CollectionIncomeStreams,
		func(ctx context.Context) ([]core.IncomeStream, error) { return s.ListIncomeStreams(ctx, userID) },
		nil)
}

// Close is a no-op; it exists to satisfy store.Store.
func (s *Store) Close() error { return nil }
