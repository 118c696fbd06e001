package summary

import (
	"github.com/shopspring/decimal"

	"fintrack/internal/core"
)

// Totals are the raw sums of the transactions inside a window. Nothing is rounded here.
type Totals struct {
	TotalIncome    decimal.Decimal            `json:"totalIncome"`
	TotalExpense   decimal.Decimal            `json:"totalExpense"`
	CategoryTotals map[string]decimal.Decimal `json:"categoryTotals"`
	Count          int                        `json:"transactionCount"`
}

// AggregateTransactions sums the transactions whose creation time lies in iv.
// Expenses are also grouped by category; an empty category stays under "".
func AggregateTransactions(txs []core.Transaction, iv Interval) Totals {
	totals := Totals{
		TotalIncome:    decimal.Zero,
		TotalExpense:   decimal.Zero,
		CategoryTotals: make(map[string]decimal.Decimal),
	}
	for _, t := range txs {
		if !iv.Contains(t.CreatedAt) {
			continue
		}
		totals.Count++
		switch t.Kind {
		case core.Expense:
			totals.TotalExpense = totals.TotalExpense.Add(t.Amount)
			totals.CategoryTotals[t.Category] = totals.CategoryTotals[t.Category].Add(t.Amount)
		case core.Income:
			totals.TotalIncome = totals.TotalIncome.Add(t.Amount)
		}
	}
	return totals
}
