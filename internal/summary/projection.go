package summary

import (
	"time"

	"github.com/shopspring/decimal"

	"fintrack/internal/core"
)

const (
	BasisMonthly  Basis = "monthly"
	BasisYearly   Basis = "yearly"
	BasisProrated Basis = "prorated"
)

// Basis records which summation path produced a projection.
type Basis string

// Projection is the income expected from active streams over the reporting window.
type Projection struct {
	Total decimal.Decimal `json:"total"`
	Basis Basis           `json:"basis"`
}

var (
	twelve      = decimal.NewFromInt(12)
	daysPerYear = decimal.NewFromInt(365)
)

// MonthlyConverter turns a stream's native amount into its monthly equivalent.
type MonthlyConverter interface {
	Monthly(amount decimal.Decimal) decimal.Decimal
}

// MonthlyConverterFunc adapts a function to MonthlyConverter.
type MonthlyConverterFunc func(decimal.Decimal) decimal.Decimal

func (f MonthlyConverterFunc) Monthly(amount decimal.Decimal) decimal.Decimal {
	return f(amount)
}

// cadenceConverters maps cadences to their monthly conversion.
// One-time income counts once in full; biweekly is approximated as two payments a month.
var cadenceConverters = map[core.Cadence]MonthlyConverter{
	core.OneTime:  MonthlyConverterFunc(func(a decimal.Decimal) decimal.Decimal { return a }),
	core.Biweekly: MonthlyConverterFunc(func(a decimal.Decimal) decimal.Decimal { return a.Mul(decimal.NewFromInt(2)) }),
	core.Monthly:  MonthlyConverterFunc(func(a decimal.Decimal) decimal.Decimal { return a }),
	core.Yearly:   MonthlyConverterFunc(func(a decimal.Decimal) decimal.Decimal { return a.Div(twelve) }),
}

// MonthlyEquivalent returns the stream's amount per month. Unknown cadences yield zero.
func MonthlyEquivalent(s core.IncomeStream) decimal.Decimal {
	conv, ok := cadenceConverters[s.Cadence]
	if !ok {
		return decimal.Zero
	}
	return conv.Monthly(s.Amount)
}

// YearlyEquivalent is twelve monthly equivalents.
func YearlyEquivalent(s core.IncomeStream) decimal.Decimal {
	return MonthlyEquivalent(s).Mul(twelve)
}

// DailyEquivalent spreads the yearly equivalent over a fixed 365-day year.
func DailyEquivalent(s core.IncomeStream) decimal.Decimal {
	return YearlyEquivalent(s).Div(daysPerYear)
}

// ProjectIncome sums the active streams for the requested granularity and rounds
// the total once to cents. A custom window missing either bound cannot be prorated
// and falls back to monthly summation; Basis tells the caller which path ran.
func ProjectIncome(active []core.IncomeStream, mode FilterMode, iv Interval) Projection {
	var (
		total = decimal.Zero
		basis Basis
	)
	switch {
	case mode == ModeYear:
		basis = BasisYearly
		for _, s := range active {
			total = total.Add(YearlyEquivalent(s))
		}
	case mode == ModeCustom && iv.Bounded():
		basis = BasisProrated
		for _, s := range active {
			days := overlapDays(s, *iv.Start, *iv.End)
			if days <= 0 {
				continue
			}
			total = total.Add(DailyEquivalent(s).Mul(decimal.NewFromInt(days)))
		}
	default:
		basis = BasisMonthly
		for _, s := range active {
			total = total.Add(MonthlyEquivalent(s))
		}
	}
	return Projection{Total: total.Round(2), Basis: basis}
}

// overlapDays counts the calendar days shared by the stream and [start, end],
// both endpoint days included, as seen in the interval's zone. Disjoint ranges
// give a non-positive count.
func overlapDays(s core.IncomeStream, start, end time.Time) int64 {
	loc := end.Location()
	from := start
	if s.StartDate.After(from) {
		from = s.StartDate
	}
	to := end
	if s.EndDate != nil && s.EndDate.Before(to) {
		to = *s.EndDate
	}
	return int64(civilDay(to.In(loc)).Sub(civilDay(from.In(loc)))/(24*time.Hour)) + 1
}

// civilDay drops the clock part so that day arithmetic ignores DST shifts.
func civilDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
