// Package live keeps a summary current while records and the filter change.
package live

import (
	"context"
	"fmt"
	"sync/atomic"

	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/store"
	"fintrack/internal/summary"
)

// Feeds are the inputs of a dashboard. Nil channels are never selected.
type Feeds struct {
	Transactions <-chan []core.Transaction
	Streams      <-chan []core.IncomeStream
	Filters      <-chan summary.FilterSelection
}

// Follow opens both record feeds of userID on w. filters may be nil.
func Follow(ctx context.Context, w store.Watcher, userID string, filters <-chan summary.FilterSelection) (Feeds, error) {
	txs, err := w.WatchTransactions(ctx, userID)
	if err != nil {
		return Feeds{}, fmt.Errorf("watch transactions: %w", err)
	}
	streams, err := w.WatchIncomeStreams(ctx, userID)
	if err != nil {
		return Feeds{}, fmt.Errorf("watch income streams: %w", err)
	}
	return Feeds{Transactions: txs, Streams: streams, Filters: filters}, nil
}

// ComputeFunc turns the latest inputs into a summary.
type ComputeFunc func(ctx context.Context, sel summary.FilterSelection, txs []core.Transaction, streams []core.IncomeStream) summary.Summary

// Dashboard recomputes on every event from its feeds. The two record feeds are
// not ordered relative to each other: a result may pair a new transaction
// snapshot with an older stream snapshot until the streams feed catches up.
type Dashboard struct {
	compute  ComputeFunc
	onUpdate func(summary.Summary)
	logger   *log.Logger

	current atomic.Pointer[summary.Summary]
}

// New builds a dashboard. onUpdate, if set, runs on the dashboard goroutine after every recompute.
func New(compute ComputeFunc, onUpdate func(summary.Summary), logger *log.Logger) *Dashboard {
	if logger == nil {
		logger = log.Discard()
	}
	return &Dashboard{
		compute:  compute,
		onUpdate: onUpdate,
		logger:   logger.WithComponent(log.ComponentLive),
	}
}

// Current returns the latest result, or nil before the first event.
func (d *Dashboard) Current() *summary.Summary {
	return d.current.Load()
}

// Run consumes feeds until ctx is done or every feed has closed.
func (d *Dashboard) Run(ctx context.Context, initial summary.FilterSelection, feeds Feeds) error {
	var (
		sel     = initial
		txs     []core.Transaction
		streams []core.IncomeStream
	)
	txCh, streamCh, filterCh := feeds.Transactions, feeds.Streams, feeds.Filters

	for txCh != nil || streamCh != nil || filterCh != nil {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case snap, ok := <-txCh:
			if !ok {
				txCh = nil
				continue
			}
			txs = snap
		case snap, ok := <-streamCh:
			if !ok {
				streamCh = nil
				continue
			}
			streams = snap
		case f, ok := <-filterCh:
			if !ok {
				filterCh = nil
				continue
			}
			sel = f
		}
		d.publish(d.compute(ctx, sel, txs, streams))
	}

	d.logger.DebugContext(ctx, "All dashboard feeds closed")
	return nil
}

func (d *Dashboard) publish(s summary.Summary) {
	d.current.Store(&s)
	if d.onUpdate != nil {
		d.onUpdate(s)
	}
}
