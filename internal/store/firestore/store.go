// Package firestore stores records in Cloud Firestore using the same collection
// and field layout as the web client, so both can share one project.
package firestore

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"golang.org/x/sync/errgroup"

	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/records"
	"fintrack/internal/store"
)

type Store struct {
	client *firestore.Client
	logger *log.Logger
}

var _ store.Store = (*Store)(nil)

// New opens a Firestore client from an initialised Firebase app.
func New(ctx context.Context, app *firebase.App, logger *log.Logger) (*Store, error) {
	client, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("open firestore client: %w", err)
	}
	return NewWithClient(client, logger), nil
}

func NewWithClient(client *firestore.Client, logger *log.Logger) *Store {
	if logger == nil {
		logger = log.Discard()
	}
	return &Store{client: client, logger: logger.WithComponent(log.ComponentStorage)}
}

func (s *Store) Close() error {
	return s.client.Close()
}

// Ping reads at most one document to check that the project is reachable.
func (s *Store) Ping(ctx context.Context) error {
	it := s.client.Collection(store.CollectionTransactions).Limit(1).Documents(ctx)
	defer it.Stop()
	if _, err := it.Next(); err != nil && !errors.Is(err, iterator.Done) {
		return fmt.Errorf("ping firestore: %w", err)
	}
	return nil
}

func isNotFound(err error) bool {
	return status.Code(err) == codes.NotFound
}

func (s *Store) transactionsQuery(userID string) firestore.Query {
	return s.client.Collection(store.CollectionTransactions).
		Where(records.FieldUserID, "==", userID).
		OrderBy(records.FieldCreatedAt, firestore.Desc)
}

// streamsQuery has no OrderBy: Firestore leaves out documents missing the
// ordered field, and streams without a start date must still be listed.
func (s *Store) streamsQuery(userID string) firestore.Query {
	return s.client.Collection(store.CollectionIncomeStreams).
		Where(records.FieldUserID, "==", userID)
}

// decodeTransactions keeps documents with unusable fields; their problems are logged.
func (s *Store) decodeTransactions(docs []*firestore.DocumentSnapshot) []core.Transaction {
	out := make([]core.Transaction, 0, len(docs))
	for _, doc := range docs {
		t, err := records.DecodeTransaction(doc.Ref.ID, doc.Data())
		if err != nil {
			s.logger.Warn("Transaction document has malformed fields",
				log.FieldRecordID, doc.Ref.ID, log.FieldError, err)
		}
		out = append(out, t)
	}
	return out
}

func (s *Store) decodeStreams(docs []*firestore.DocumentSnapshot) []core.IncomeStream {
	out := make([]core.IncomeStream, 0, len(docs))
	for _, doc := range docs {
		is, err := records.DecodeIncomeStream(doc.Ref.ID, doc.Data())
		if err != nil {
			s.logger.Warn("Income stream document has malformed fields",
				log.FieldRecordID, doc.Ref.ID, log.FieldError, err)
		}
		out = append(out, is)
	}
	store.SortIncomeStreams(out)
	return out
}

func (s *Store) ListTransactions(ctx context.Context, userID string) ([]core.Transaction, error) {
	docs, err := s.transactionsQuery(userID).Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return s.decodeTransactions(docs), nil
}

func (s *Store) GetTransaction(ctx context.Context, userID, id string) (core.Transaction, error) {
	doc, err := s.client.Collection(store.CollectionTransactions).Doc(id).Get(ctx)
	if isNotFound(err) {
		return core.Transaction{}, store.ErrNotFound
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction %s: %w", id, err)
	}
	t, derr := records.DecodeTransaction(doc.Ref.ID, doc.Data())
	if t.UserID != userID {
		return core.Transaction{}, store.ErrNotFound
	}
	if derr != nil {
		s.logger.WarnContext(ctx, "Transaction document has malformed fields",
			log.FieldRecordID, id, log.FieldError, derr)
	}
	return t, nil
}

func (s *Store) CreateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	col := s.client.Collection(store.CollectionTransactions)
	ref := col.NewDoc()
	if t.ID != "" {
		ref = col.Doc(t.ID)
	}
	if _, err := ref.Create(ctx, records.EncodeTransaction(t)); err != nil {
		return core.Transaction{}, fmt.Errorf("create transaction: %w", err)
	}
	t.ID = ref.ID
	return t, nil
}

// UpdateTransaction overwrites the document, keeping its createdAt when t has none.
func (s *Store) UpdateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	ref := s.client.Collection(store.CollectionTransactions).Doc(t.ID)
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := tx.Get(ref)
		if err != nil {
			return err
		}
		old, _ := records.DecodeTransaction(doc.Ref.ID, doc.Data())
		if old.UserID != t.UserID {
			return store.ErrNotFound
		}
		if t.CreatedAt.IsZero() {
			t.CreatedAt = old.CreatedAt
		}
		return tx.Set(ref, records.EncodeTransaction(t))
	})
	if err != nil {
		return core.Transaction{}, s.writeErr("update transaction", t.ID, err)
	}
	return t, nil
}

func (s *Store) DeleteTransaction(ctx context.Context, userID, id string) error {
	return s.deleteOwned(ctx, store.CollectionTransactions, userID, id)
}

func (s *Store) ListIncomeStreams(ctx context.Context, userID string) ([]core.IncomeStream, error) {
	docs, err := s.streamsQuery(userID).Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("list income streams: %w", err)
	}
	return s.decodeStreams(docs), nil
}

func (s *Store) GetIncomeStream(ctx context.Context, userID, id string) (core.IncomeStream, error) {
	doc, err := s.client.Collection(store.CollectionIncomeStreams).Doc(id).Get(ctx)
	if isNotFound(err) {
		return core.IncomeStream{}, store.ErrNotFound
	}
	if err != nil {
		return core.IncomeStream{}, fmt.Errorf("get income stream %s: %w", id, err)
	}
	is, derr := records.DecodeIncomeStream(doc.Ref.ID, doc.Data())
	if is.UserID != userID {
		return core.IncomeStream{}, store.ErrNotFound
	}
	if derr != nil {
		s.logger.WarnContext(ctx, "Income stream document has malformed fields",
			log.FieldRecordID, id, log.FieldError, derr)
	}
	return is, nil
}

func (s *Store) CreateIncomeStream(ctx context.Context, is core.IncomeStream) (core.IncomeStream, error) {
	col := s.client.Collection(store.CollectionIncomeStreams)
	ref := col.NewDoc()
	if is.ID != "" {
		ref = col.Doc(is.ID)
	}
	if _, err := ref.Create(ctx, records.EncodeIncomeStream(is)); err != nil {
		return core.IncomeStream{}, fmt.Errorf("create income stream: %w", err)
	}
	is.ID = ref.ID
	return is, nil
}

// UpdateIncomeStream replaces the whole document so a cleared end date is removed.
func (s *Store) UpdateIncomeStream(ctx context.Context, is core.IncomeStream) (core.IncomeStream, error) {
	ref := s.client.Collection(store.CollectionIncomeStreams).Doc(is.ID)
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := tx.Get(ref)
		if err != nil {
			return err
		}
		if owner, _ := doc.Data()[records.FieldUserID].(string); owner != is.UserID {
			return store.ErrNotFound
		}
		return tx.Set(ref, records.EncodeIncomeStream(is))
	})
	if err != nil {
		return core.IncomeStream{}, s.writeErr("update income stream", is.ID, err)
	}
	return is, nil
}

func (s *Store) DeleteIncomeStream(ctx context.Context, userID, id string) error {
	return s.deleteOwned(ctx, store.CollectionIncomeStreams, userID, id)
}

func (s *Store) deleteOwned(ctx context.Context, collection, userID, id string) error {
	ref := s.client.Collection(collection).Doc(id)
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := tx.Get(ref)
		if err != nil {
			return err
		}
		if owner, _ := doc.Data()[records.FieldUserID].(string); owner != userID {
			return store.ErrNotFound
		}
		return tx.Delete(ref)
	})
	if err != nil {
		return s.writeErr("delete "+collection, id, err)
	}
	return nil
}

func (s *Store) writeErr(op, id string, err error) error {
	if errors.Is(err, store.ErrNotFound) || isNotFound(err) {
		return store.ErrNotFound
	}
	return fmt.Errorf("%s %s: %w", op, id, err)
}

// watch turns a query's snapshot listener into a channel of decoded snapshots.
func watch[T any](ctx context.Context, s *Store, q firestore.Query, decode func([]*firestore.DocumentSnapshot) []T) (<-chan []T, error) {
	it := q.Snapshots(ctx)
	first, err := it.Next()
	if err != nil {
		it.Stop()
		return nil, fmt.Errorf("listen: %w", err)
	}
	docs, err := first.Documents.GetAll()
	if err != nil {
		it.Stop()
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	out := make(chan []T, 1)
	out <- decode(docs)

	go func() {
		defer close(out)
		defer it.Stop()
		for {
			snap, err := it.Next()
			if err != nil {
				if ctx.Err() == nil && status.Code(err) != codes.Canceled {
					s.logger.Error("Snapshot listener stopped", log.FieldError, err)
				}
				return
			}
			docs, err := snap.Documents.GetAll()
			if err != nil {
				s.logger.Warn("Failed to read snapshot", log.FieldError, err)
				continue
			}
			select {
			case out <- decode(docs):
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (s *Store) WatchTransactions(ctx context.Context, userID string) (<-chan []core.Transaction, error) {
	return watch(ctx, s, s.transactionsQuery(userID), s.decodeTransactions)
}

func (s *Store) WatchIncomeStreams(ctx context.Context, userID string) (<-chan []core.IncomeStream, error) {
	return watch(ctx, s, s.streamsQuery(userID), s.decodeStreams)
}

// ConsumeChanges listens to both collections and calls handler once per user
// whose documents changed in a snapshot, so writes made by other clients reach
// this process. The initial snapshot is skipped. It returns when ctx is done.
func (s *Store) ConsumeChanges(ctx context.Context, handler func(context.Context, store.Change) error) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, collection := range []string{store.CollectionTransactions, store.CollectionIncomeStreams} {
		g.Go(func() error { return s.consumeCollection(gctx, collection, handler) })
	}
	return g.Wait()
}

func (s *Store) consumeCollection(ctx context.Context, collection string, handler func(context.Context, store.Change) error) error {
	it := s.client.Collection(collection).Snapshots(ctx)
	defer it.Stop()

	first := true
	for {
		snap, err := it.Next()
		if err != nil {
			if ctx.Err() != nil || status.Code(err) == codes.Canceled {
				return ctx.Err()
			}
			return fmt.Errorf("listen %s: %w", collection, err)
		}
		if first {
			first = false
			continue
		}
		docs := make([]map[string]any, 0, len(snap.Changes))
		for _, ch := range snap.Changes {
			if ch.Doc != nil {
				docs = append(docs, ch.Doc.Data())
			}
		}
		for _, c := range changedUsers(collection, docs) {
			if err := handler(ctx, c); err != nil {
				s.logger.Warn("Remote change handler failed",
					log.FieldUserID, c.UserID, log.FieldError, err)
			}
		}
	}
}

// changedUsers returns one change per distinct owner in docs, in first-seen order.
func changedUsers(collection string, docs []map[string]any) []store.Change {
	seen := make(map[string]bool, len(docs))
	var out []store.Change
	for _, d := range docs {
		user, _ := d[records.FieldUserID].(string)
		if user == "" || seen[user] {
			continue
		}
		seen[user] = true
		out = append(out, store.Change{UserID: user, Collection: collection})
	}
	return out
}
