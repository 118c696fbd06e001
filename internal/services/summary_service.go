// Package services orchestrates the stores and the summary engine.
package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"fintrack/internal/cache"
	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/store"
	"fintrack/internal/summary"
)

// Snapshot is one user's full record set at a point in time.
type Snapshot struct {
	Transactions []core.Transaction
	Streams      []core.IncomeStream
}

// RecordReader is the read side of the stores.
type RecordReader interface {
	ListTransactions(ctx context.Context, userID string) ([]core.Transaction, error)
	ListIncomeStreams(ctx context.Context, userID string) ([]core.IncomeStream, error)
}

// SummaryService loads snapshots (cached per user) and runs the engine over them.
type SummaryService struct {
	reader RecordReader
	cache  cache.Cache[Snapshot]
	loc    *time.Location
	logger *log.Logger
	now    func() time.Time

	// gens counts invalidations per user. A load only caches its result if
	// no invalidation happened while it ran.
	mu   sync.Mutex
	gens map[string]uint64
}

// NewSummaryService builds the service. A nil cache disables caching; a nil
// location means UTC.
func NewSummaryService(reader RecordReader, c cache.Cache[Snapshot], loc *time.Location, logger *log.Logger) *SummaryService {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &SummaryService{
		reader: reader,
		cache:  c,
		loc:    loc,
		logger: logger.WithComponent(log.ComponentSummary),
		now:    time.Now,
		gens:   make(map[string]uint64),
	}
}

// Location is where filter windows are anchored.
func (s *SummaryService) Location() *time.Location { return s.loc }

// CurrentMonth is the default filter: the month containing now, in the service location.
func (s *SummaryService) CurrentMonth() summary.FilterSelection {
	now := s.now().In(s.loc)
	return summary.Month(now.Year(), int(now.Month())-1)
}

// Snapshot returns the user's records, loading both collections concurrently on a cache miss.
func (s *SummaryService) Snapshot(ctx context.Context, userID string) (Snapshot, error) {
	if s.cache != nil {
		if snap, ok := s.cache.Get(userID); ok {
			return snap, nil
		}
	}
	gen := s.generation(userID)

	var snap Snapshot
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		txs, err := s.reader.ListTransactions(gctx, userID)
		if err != nil {
			return fmt.Errorf("load transactions: %w", err)
		}
		snap.Transactions = txs
		return nil
	})
	g.Go(func() error {
		streams, err := s.reader.ListIncomeStreams(gctx, userID)
		if err != nil {
			return fmt.Errorf("load income streams: %w", err)
		}
		snap.Streams = streams
		return nil
	})
	if err := g.Wait(); err != nil {
		return Snapshot{}, err
	}

	if s.cache != nil {
		s.mu.Lock()
		if s.gens[userID] == gen {
			s.cache.Set(userID, snap)
		}
		s.mu.Unlock()
	}
	return snap, nil
}

func (s *SummaryService) generation(userID string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gens[userID]
}

// Invalidate drops the cached snapshot for userID. Loads already in flight
// will not cache their result.
func (s *SummaryService) Invalidate(userID string) {
	if s.cache == nil {
		return
	}
	s.mu.Lock()
	s.gens[userID]++
	s.cache.Delete(userID)
	s.mu.Unlock()
}

// Summary computes the summary of userID's records for sel.
func (s *SummaryService) Summary(ctx context.Context, userID string, sel summary.FilterSelection) (summary.Summary, error) {
	snap, err := s.Snapshot(ctx, userID)
	if err != nil {
		return summary.Summary{}, err
	}
	return s.Compute(ctx, userID, sel, snap), nil
}

// Compute runs the engine over an already loaded snapshot.
func (s *SummaryService) Compute(ctx context.Context, userID string, sel summary.FilterSelection, snap Snapshot) summary.Summary {
	result := summary.Compute(summary.Input{
		Filter:       sel,
		Transactions: snap.Transactions,
		Streams:      snap.Streams,
		Location:     s.loc,
	})

	if result.FellBack() {
		s.logger.WarnContext(ctx, "Custom range is open-ended, projected income uses monthly amounts",
			log.FieldUserID, userID,
			log.FieldFilter, sel.Key(),
			log.FieldBasis, string(result.Projection.Basis))
	}
	s.logger.DebugContext(ctx, "Summary computed",
		log.FieldUserID, userID,
		log.FieldFilter, sel.Key(),
		log.FieldCount, result.Totals.Count)
	return result
}

// ChangeHandler returns a callback for change notices arriving from other
// instances: it drops the user's cached snapshot and forwards the notice.
func (s *SummaryService) ChangeHandler(forward store.ChangePublisher) func(context.Context, store.Change) error {
	return func(ctx context.Context, c store.Change) error {
		s.Invalidate(c.UserID)
		if forward == nil {
			return nil
		}
		return forward.PublishChange(ctx, c)
	}
}
