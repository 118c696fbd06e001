package summary

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fintrack/internal/core"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func ptr(t time.Time) *time.Time { return &t }

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestResolve_MonthLeapFebruary(t *testing.T) {
	iv := Resolve(Month(2024, 1), time.UTC)

	require.NotNil(t, iv.Start)
	require.NotNil(t, iv.End)
	assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), *iv.Start)
	assert.Equal(t, time.Date(2024, 2, 29, 23, 59, 59, 0, time.UTC), *iv.End)
}

func TestResolve_MonthDecemberIsElevenZeroIndexed(t *testing.T) {
	iv := Resolve(Month(2023, 11), time.UTC)

	assert.Equal(t, time.Date(2023, 12, 1, 0, 0, 0, 0, time.UTC), *iv.Start)
	assert.Equal(t, time.Date(2023, 12, 31, 23, 59, 59, 0, time.UTC), *iv.End)
}

func TestResolve_Year(t *testing.T) {
	iv := Resolve(Year(2023), time.UTC)

	assert.Equal(t, time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC), *iv.Start)
	assert.Equal(t, time.Date(2023, 12, 31, 23, 59, 59, 0, time.UTC), *iv.End)
}

func TestResolve_CustomPassesThrough(t *testing.T) {
	start := date(2024, 5, 10)
	iv := Resolve(Custom(&start, nil), time.UTC)

	assert.Equal(t, &start, iv.Start)
	assert.Nil(t, iv.End)
}

func TestResolve_UsesLocation(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	iv := Resolve(Month(2024, 0), loc)

	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, loc), *iv.Start)
	assert.Equal(t, loc, iv.Start.Location())
}

func TestActiveStreams(t *testing.T) {
	january := Interval{Start: ptr(date(2024, 1, 1)), End: ptr(date(2024, 1, 31))}

	tests := []struct {
		name   string
		stream core.IncomeStream
		iv     Interval
		want   bool
	}{
		{
			name:   "ongoing stream starting inside the window",
			stream: core.IncomeStream{StartDate: date(2024, 1, 10)},
			iv:     january,
			want:   true,
		},
		{
			name:   "stream ended before the window",
			stream: core.IncomeStream{StartDate: date(2024, 2, 1), EndDate: ptr(date(2024, 2, 28))},
			iv:     Interval{Start: ptr(date(2024, 3, 1)), End: ptr(date(2024, 3, 31))},
			want:   false,
		},
		{
			name:   "stream starting after the window",
			stream: core.IncomeStream{StartDate: date(2024, 2, 1)},
			iv:     january,
			want:   false,
		},
		{
			name:   "stream ending on the first day of the window",
			stream: core.IncomeStream{StartDate: date(2023, 6, 1), EndDate: ptr(date(2024, 1, 1))},
			iv:     january,
			want:   true,
		},
		{
			name:   "missing start date is never active",
			stream: core.IncomeStream{},
			iv:     Interval{},
			want:   false,
		},
		{
			name:   "unbounded start keeps old finished streams",
			stream: core.IncomeStream{StartDate: date(2010, 1, 1), EndDate: ptr(date(2011, 1, 1))},
			iv:     Interval{End: ptr(date(2024, 1, 31))},
			want:   true,
		},
		{
			name:   "unbounded end keeps future streams",
			stream: core.IncomeStream{StartDate: date(2030, 1, 1)},
			iv:     Interval{Start: ptr(date(2024, 1, 1))},
			want:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ActiveStreams([]core.IncomeStream{tt.stream}, tt.iv)
			assert.Equal(t, tt.want, len(got) == 1)
		})
	}
}

func TestActiveStreams_PreservesOrder(t *testing.T) {
	streams := []core.IncomeStream{
		{ID: "a", StartDate: date(2024, 1, 1)},
		{ID: "b"},
		{ID: "c", StartDate: date(2023, 1, 1)},
	}
	got := ActiveStreams(streams, Interval{})

	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, "c", got[1].ID)
}

func TestEquivalents(t *testing.T) {
	tests := []struct {
		cadence core.Cadence
		amount  string
		monthly string
	}{
		{core.OneTime, "500", "500"},
		{core.Biweekly, "1000", "2000"},
		{core.Monthly, "3100", "3100"},
		{core.Yearly, "1200", "100"},
		{"weekly", "100", "0"},
	}
	for _, tt := range tests {
		t.Run(string(tt.cadence), func(t *testing.T) {
			s := core.IncomeStream{Cadence: tt.cadence, Amount: dec(tt.amount)}
			assert.True(t, MonthlyEquivalent(s).Equal(dec(tt.monthly)), "monthly = %s", MonthlyEquivalent(s))
			assert.True(t, YearlyEquivalent(s).Equal(dec(tt.monthly).Mul(decimal.NewFromInt(12))))
		})
	}
}

func TestProjectIncome_Month(t *testing.T) {
	streams := []core.IncomeStream{
		{Cadence: core.Monthly, Amount: dec("1000"), StartDate: date(2024, 1, 1)},
		{Cadence: core.Yearly, Amount: dec("1200"), StartDate: date(2024, 1, 1)},
	}
	p := ProjectIncome(streams, ModeMonth, Resolve(Month(2024, 0), time.UTC))

	assert.Equal(t, BasisMonthly, p.Basis)
	assert.Equal(t, "1100", p.Total.String())
	assert.Equal(t, "1100.00", p.Total.StringFixed(2))
}

func TestProjectIncome_Year(t *testing.T) {
	streams := []core.IncomeStream{
		{Cadence: core.Biweekly, Amount: dec("1000"), StartDate: date(2024, 1, 1)},
		{Cadence: core.Yearly, Amount: dec("1000"), StartDate: date(2024, 1, 1)},
	}
	p := ProjectIncome(streams, ModeYear, Resolve(Year(2024), time.UTC))

	assert.Equal(t, BasisYearly, p.Basis)
	// 1000*2*12 + 1000/12*12, rounded once
	assert.True(t, p.Total.Equal(dec("25000")), "got %s", p.Total)
}

func TestProjectIncome_CustomProratesByDay(t *testing.T) {
	start, end := date(2024, 1, 1), date(2024, 1, 31)
	streams := []core.IncomeStream{
		{Cadence: core.Monthly, Amount: dec("3100"), StartDate: date(2024, 1, 1)},
	}
	p := ProjectIncome(streams, ModeCustom, Interval{Start: &start, End: &end})

	assert.Equal(t, BasisProrated, p.Basis)
	assert.Equal(t, "3159.45", p.Total.StringFixed(2))
}

func TestProjectIncome_CustomClipsToStreamLifespan(t *testing.T) {
	start, end := date(2024, 1, 1), date(2024, 12, 31)
	streams := []core.IncomeStream{
		// Jan 1..Jan 10 and Dec 22..Dec 31 overlap the window
		{Cadence: core.Yearly, Amount: dec("36500"), StartDate: date(2023, 6, 1), EndDate: ptr(date(2024, 1, 10))},
		{Cadence: core.Yearly, Amount: dec("36500"), StartDate: date(2024, 12, 22)},
	}
	p := ProjectIncome(streams, ModeCustom, Interval{Start: &start, End: &end})

	// 20 days at 100/day
	assert.True(t, p.Total.Equal(dec("2000")), "got %s", p.Total)
}

func TestProjectIncome_CustomCountsDaysInWindowZone(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, ny)
	end := time.Date(2024, 1, 31, 23, 59, 59, 0, ny)
	// 03:00 UTC on Jan 31 is still Jan 30 in New York.
	began := time.Date(2024, 1, 31, 3, 0, 0, 0, time.UTC)

	for _, sd := range []time.Time{began, began.In(ny)} {
		streams := []core.IncomeStream{
			{Cadence: core.Yearly, Amount: dec("3650"), StartDate: sd},
		}
		p := ProjectIncome(streams, ModeCustom, Interval{Start: &start, End: &end})

		// Jan 30 and Jan 31 at 10/day
		assert.True(t, p.Total.Equal(dec("20")), "start %s: got %s", sd, p.Total)
	}
}

func TestProjectIncome_CustomNonPositiveOverlapContributesZero(t *testing.T) {
	start, end := date(2024, 3, 1), date(2024, 2, 1) // inverted
	streams := []core.IncomeStream{
		{Cadence: core.Monthly, Amount: dec("1000"), StartDate: date(2020, 1, 1)},
	}
	p := ProjectIncome(streams, ModeCustom, Interval{Start: &start, End: &end})

	assert.Equal(t, BasisProrated, p.Basis)
	assert.True(t, p.Total.IsZero())
}

func TestProjectIncome_CustomMissingBoundFallsBackToMonthly(t *testing.T) {
	start := date(2024, 1, 1)
	streams := []core.IncomeStream{
		{Cadence: core.Yearly, Amount: dec("1200"), StartDate: date(2024, 1, 1)},
	}
	p := ProjectIncome(streams, ModeCustom, Interval{Start: &start})

	assert.Equal(t, BasisMonthly, p.Basis)
	assert.True(t, p.Total.Equal(dec("100")))
}

func TestProjectIncome_RoundsHalfAwayFromZeroOnce(t *testing.T) {
	streams := []core.IncomeStream{
		{Cadence: core.Monthly, Amount: dec("0.005"), StartDate: date(2024, 1, 1)},
		{Cadence: core.Monthly, Amount: dec("0.005"), StartDate: date(2024, 1, 1)},
		{Cadence: core.Monthly, Amount: dec("0.005"), StartDate: date(2024, 1, 1)},
	}
	p := ProjectIncome(streams, ModeMonth, Interval{})

	// per-stream rounding would give 0.03, rounding the sum gives 0.02
	assert.Equal(t, "0.02", p.Total.StringFixed(2))
}

func TestAggregateTransactions(t *testing.T) {
	iv := Interval{Start: ptr(date(2024, 1, 1)), End: ptr(date(2024, 1, 31))}
	txs := []core.Transaction{
		{Amount: dec("50"), Kind: core.Expense, Category: "Food", CreatedAt: date(2024, 1, 15)},
		{Amount: dec("20"), Kind: core.Expense, Category: "Food", CreatedAt: date(2024, 2, 15)},
	}
	got := AggregateTransactions(txs, iv)

	assert.True(t, got.TotalExpense.Equal(dec("50")))
	assert.True(t, got.TotalIncome.IsZero())
	require.Len(t, got.CategoryTotals, 1)
	assert.True(t, got.CategoryTotals["Food"].Equal(dec("50")))
	assert.Equal(t, 1, got.Count)
}

func TestAggregateTransactions_MixedKindsAndEmptyCategory(t *testing.T) {
	txs := []core.Transaction{
		{Amount: dec("10.10"), Kind: core.Expense, Category: "Bills", CreatedAt: date(2024, 1, 2)},
		{Amount: dec("0.20"), Kind: core.Expense, Category: "", CreatedAt: date(2024, 1, 3)},
		{Amount: dec("0.10"), Kind: core.Expense, Category: "", CreatedAt: date(2024, 1, 4)},
		{Amount: dec("900"), Kind: core.Income, Category: "Salary", CreatedAt: date(2024, 1, 5)},
	}
	got := AggregateTransactions(txs, Interval{})

	assert.Equal(t, "10.4", got.TotalExpense.String())
	assert.Equal(t, "900", got.TotalIncome.String())
	assert.Equal(t, "0.3", got.CategoryTotals[""].String())
	_, hasOther := got.CategoryTotals["Other"]
	assert.False(t, hasOther)
	_, hasSalary := got.CategoryTotals["Salary"]
	assert.False(t, hasSalary, "income must not be grouped by category")
}

func TestAggregateTransactions_BoundariesInclusive(t *testing.T) {
	iv := Resolve(Month(2024, 0), time.UTC)
	txs := []core.Transaction{
		{Amount: dec("1"), Kind: core.Expense, Category: "A", CreatedAt: *iv.Start},
		{Amount: dec("2"), Kind: core.Expense, Category: "A", CreatedAt: *iv.End},
		{Amount: dec("4"), Kind: core.Expense, Category: "A", CreatedAt: iv.End.Add(time.Second)},
	}
	got := AggregateTransactions(txs, iv)

	assert.Equal(t, "3", got.TotalExpense.String())
}

func TestCompute_Idempotent(t *testing.T) {
	start, end := date(2024, 1, 1), date(2024, 3, 31)
	in := Input{
		Filter: Custom(&start, &end),
		Transactions: []core.Transaction{
			{Amount: dec("12.34"), Kind: core.Expense, Category: "Food", CreatedAt: date(2024, 2, 1)},
			{Amount: dec("100"), Kind: core.Income, CreatedAt: date(2024, 2, 2)},
		},
		Streams: []core.IncomeStream{
			{Cadence: core.Biweekly, Amount: dec("1234.56"), StartDate: date(2023, 1, 1)},
			{Cadence: core.Yearly, Amount: dec("999.99"), StartDate: date(2024, 2, 10), EndDate: ptr(date(2024, 6, 1))},
		},
	}

	first := Compute(in)
	second := Compute(in)

	assert.Equal(t, first, second)
	assert.Equal(t, BasisProrated, first.Projection.Basis)
	assert.Len(t, first.ActiveStreams, 2)
	assert.False(t, first.FellBack())
}

func TestCompute_FellBack(t *testing.T) {
	start := date(2024, 1, 1)
	s := Compute(Input{Filter: Custom(&start, nil)})

	assert.True(t, s.FellBack())
	assert.Equal(t, BasisMonthly, s.Projection.Basis)
}

func TestFilterSelection_Key(t *testing.T) {
	start := date(2024, 1, 1)
	assert.Equal(t, "month:2024-01", Month(2024, 1).Key())
	assert.Equal(t, "year:2024", Year(2024).Key())
	assert.Equal(t, "custom:2024-01-01T00:00:00Z..*", Custom(&start, nil).Key())
}
