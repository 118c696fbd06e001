package summary

import "fintrack/internal/core"

// ActiveStreams keeps the streams whose lifespan overlaps the interval, preserving order.
// A stream without a start date is never active.
func ActiveStreams(streams []core.IncomeStream, iv Interval) []core.IncomeStream {
	active := make([]core.IncomeStream, 0, len(streams))
	for _, s := range streams {
		if isActive(s, iv) {
			active = append(active, s)
		}
	}
	return active
}

func isActive(s core.IncomeStream, iv Interval) bool {
	if s.StartDate.IsZero() {
		return false
	}
	if iv.End != nil && s.StartDate.After(*iv.End) {
		return false
	}
	if s.EndDate != nil && iv.Start != nil && s.EndDate.Before(*iv.Start) {
		return false
	}
	return true
}
