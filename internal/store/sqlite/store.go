package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/store"

	_ "modernc.org/sqlite"
)

// Store persists records in a SQLite database. Amounts are stored as decimal
// text and timestamps as Unix nanoseconds.
type Store struct {
	db        *sql.DB
	bus       *store.Broadcaster
	publisher store.ChangePublisher
	logger    *log.Logger
}

var _ store.Store = (*Store)(nil)

// Option customises a Store.
type Option func(*Store)

// WithPublisher also sends change notices to p, typically a message bus that
// other instances consume. The local broadcaster is always notified first.
func WithPublisher(p store.ChangePublisher) Option {
	return func(s *Store) { s.publisher = p }
}

func WithLogger(l *log.Logger) Option {
	return func(s *Store) { s.logger = l.WithComponent(log.ComponentStorage) }
}

func New(dbPath string, opts ...Option) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// One connection serialises writers; SQLite would otherwise return SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	s := &Store{
		db:     db,
		bus:    store.NewBroadcaster(),
		logger: log.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Broadcaster is where watchers subscribe. Notices from other processes should be fed into it.
func (s *Store) Broadcaster() *store.Broadcaster { return s.bus }

// Ping checks that the database still answers.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Store) notify(ctx context.Context, userID, collection string) {
	change := store.Change{UserID: userID, Collection: collection}
	_ = s.bus.PublishChange(ctx, change)
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishChange(ctx, change); err != nil {
		s.logger.WarnContext(ctx, "Failed to publish change notice",
			log.FieldUserID, userID,
			log.FieldCollection, collection,
			log.FieldError, err)
	}
}

func toNanos(t time.Time) sql.NullInt64 {
	if t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}

func fromNanos(n sql.NullInt64) time.Time {
	if !n.Valid {
		return time.Time{}
	}
	return time.Unix(0, n.Int64).UTC()
}

type scanner interface {
	Scan(dest ...any) error
}

const transactionColumns = `id, user_id, description, category, amount, kind, created_at`

func scanTransaction(row scanner) (core.Transaction, error) {
	var (
		t       core.Transaction
		kind    string
		created sql.NullInt64
	)
	if err := row.Scan(&t.ID, &t.UserID, &t.Description, &t.Category, &t.Amount, &kind, &created); err != nil {
		return core.Transaction{}, err
	}
	t.Kind = core.Kind(kind)
	t.CreatedAt = fromNanos(created)
	return t, nil
}

func (s *Store) ListTransactions(ctx context.Context, userID string) ([]core.Transaction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE user_id = ? ORDER BY created_at DESC, id`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	out := make([]core.Transaction, 0)
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) GetTransaction(ctx context.Context, userID, id string) (core.Transaction, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = ? AND user_id = ?`, id, userID)
	t, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, store.ErrNotFound
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction %s: %w", id, err)
	}
	return t, nil
}

func (s *Store) CreateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO transactions (`+transactionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.UserID, t.Description, t.Category, t.Amount, string(t.Kind), toNanos(t.CreatedAt))
	if err != nil {
		return core.Transaction{}, fmt.Errorf("create transaction: %w", err)
	}

	s.logger.DebugContext(ctx, "Transaction saved to SQLite",
		log.FieldRecordID, t.ID,
		log.FieldUserID, t.UserID,
		log.FieldAmount, t.Amount.String())
	s.notify(ctx, t.UserID, store.CollectionTransactions)
	return t, nil
}

// UpdateTransaction keeps the stored creation time when t has none.
func (s *Store) UpdateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE transactions
		    SET description = ?, category = ?, amount = ?, kind = ?,
		        created_at = COALESCE(?, created_at)
		  WHERE id = ? AND user_id = ?`,
		t.Description, t.Category, t.Amount, string(t.Kind), toNanos(t.CreatedAt), t.ID, t.UserID)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("update transaction %s: %w", t.ID, err)
	}
	if err := expectOneRow(res); err != nil {
		return core.Transaction{}, err
	}

	s.notify(ctx, t.UserID, store.CollectionTransactions)
	return s.GetTransaction(ctx, t.UserID, t.ID)
}

func (s *Store) DeleteTransaction(ctx context.Context, userID, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete transaction %s: %w", id, err)
	}
	if err := expectOneRow(res); err != nil {
		return err
	}
	s.notify(ctx, userID, store.CollectionTransactions)
	return nil
}

const streamColumns = `id, user_id, name, cadence, amount, start_date, end_date`

func scanIncomeStream(row scanner) (core.IncomeStream, error) {
	var (
		is         core.IncomeStream
		cadence    string
		start, end sql.NullInt64
	)
	if err := row.Scan(&is.ID, &is.UserID, &is.Name, &cadence, &is.Amount, &start, &end); err != nil {
		return core.IncomeStream{}, err
	}
	is.Cadence = core.Cadence(cadence)
	is.StartDate = fromNanos(start)
	if end.Valid {
		e := fromNanos(end)
		is.EndDate = &e
	}
	return is, nil
}

func endNanos(end *time.Time) sql.NullInt64 {
	if end == nil {
		return sql.NullInt64{}
	}
	return toNanos(*end)
}

func (s *Store) ListIncomeStreams(ctx context.Context, userID string) ([]core.IncomeStream, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+streamColumns+` FROM income_streams WHERE user_id = ? ORDER BY start_date, id`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("list income streams: %w", err)
	}
	defer rows.Close()

	out := make([]core.IncomeStream, 0)
	for rows.Next() {
		is, err := scanIncomeStream(rows)
		if err != nil {
			return nil, fmt.Errorf("scan income stream: %w", err)
		}
		out = append(out, is)
	}
	return out, rows.Err()
}

func (s *Store) GetIncomeStream(ctx context.Context, userID, id string) (core.IncomeStream, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+streamColumns+` FROM income_streams WHERE id = ? AND user_id = ?`, id, userID)
	is, err := scanIncomeStream(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.IncomeStream{}, store.ErrNotFound
	}
	if err != nil {
		return core.IncomeStream{}, fmt.Errorf("get income stream %s: %w", id, err)
	}
	return is, nil
}

func (s *Store) CreateIncomeStream(ctx context.Context, is core.IncomeStream) (core.IncomeStream, error) {
	if is.ID == "" {
		is.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO income_streams (`+streamColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		is.ID, is.UserID, is.Name, string(is.Cadence), is.Amount, toNanos(is.StartDate), endNanos(is.EndDate))
	if err != nil {
		return core.IncomeStream{}, fmt.Errorf("create income stream: %w", err)
	}
	s.notify(ctx, is.UserID, store.CollectionIncomeStreams)
	return is, nil
}

func (s *Store) UpdateIncomeStream(ctx context.Context, is core.IncomeStream) (core.IncomeStream, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE income_streams
		    SET name = ?, cadence = ?, amount = ?, start_date = ?, end_date = ?
		  WHERE id = ? AND user_id = ?`,
		is.Name, string(is.Cadence), is.Amount, toNanos(is.StartDate), endNanos(is.EndDate), is.ID, is.UserID)
	if err != nil {
		return core.IncomeStream{}, fmt.Errorf("update income stream %s: %w", is.ID, err)
	}
	if err := expectOneRow(res); err != nil {
		return core.IncomeStream{}, err
	}
	s.notify(ctx, is.UserID, store.CollectionIncomeStreams)
	return is, nil
}

func (s *Store) DeleteIncomeStream(ctx context.Context, userID, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM income_streams WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete income stream %s: %w", id, err)
	}
	if err := expectOneRow(res); err != nil {
		return err
	}
	s.notify(ctx, userID, store.CollectionIncomeStreams)
	return nil
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) onWatchError(userID, collection string) func(error) {
	return func(err error) {
		s.logger.Warn("Re-reading snapshot after change failed",
			log.FieldUserID, userID,
			log.FieldCollection, collection,
			log.FieldError, err)
	}
}

func (s *Store) WatchTransactions(ctx context.Context, userID string) (<-chan []core.Transaction, error) {
	return store.Watch(ctx, s.bus, userID, store.CollectionTransactions,
		func(ctx context.Context) ([]core.Transaction, error) { return s.ListTransactions(ctx, userID) },
		s.onWatchError(userID, store.CollectionTransactions))
}

func (s *Store) WatchIncomeStreams(ctx context.Context, userID string) (<-chan []core.IncomeStream, error) {
	return store.Watch(ctx, s.bus, userID, store.CollectionIncomeStreams,
		func(ctx context.Context) ([]core.IncomeStream, error) { return s.ListIncomeStreams(ctx, userID) },
		s.onWatchError(userID, store.CollectionIncomeStreams))
}
