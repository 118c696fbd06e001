// Package summary implements the date-filtered aggregation engine.
//
// Every function in this package is pure: it reads immutable snapshots of
// transactions and income streams and recomputes its result from scratch.
// Nothing here performs I/O, keeps state between calls or returns errors;
// malformed records simply drop out or contribute zero.
package summary

import (
	"time"

	"fintrack/internal/core"
)

// Input is one recomputation's worth of data.
type Input struct {
	Filter       FilterSelection
	Transactions []core.Transaction
	Streams      []core.IncomeStream
	Location     *time.Location
}

// Summary is everything the dashboard shows for one filter selection.
type Summary struct {
	Filter        FilterSelection     `json:"filter"`
	Interval      Interval            `json:"interval"`
	Totals        Totals              `json:"totals"`
	Projection    Projection          `json:"projectedIncome"`
	ActiveStreams []core.IncomeStream `json:"-"`
}

// Compute resolves the window, filters the streams, projects income and
// aggregates the transactions, in that order.
func Compute(in Input) Summary {
	iv := Resolve(in.Filter, in.Location)
	active := ActiveStreams(in.Streams, iv)
	return Summary{
		Filter:        in.Filter,
		Interval:      iv,
		Totals:        AggregateTransactions(in.Transactions, iv),
		Projection:    ProjectIncome(active, in.Filter.Mode, iv),
		ActiveStreams: active,
	}
}

// FellBack reports whether a custom window had to be summed monthly because a bound was missing.
func (s Summary) FellBack() bool {
	return s.Filter.Mode == ModeCustom && s.Projection.Basis != BasisProrated
}
