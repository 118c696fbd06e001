package report

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"fintrack/internal/summary"
)

const (
	sheetSummary    = "Summary"
	sheetCategories = "Categories"
	sheetStreams    = "Income streams"
)

// WriteXLSX writes a workbook with one sheet each for the totals, the
// expense categories and the active income streams. Amounts are numeric cells.
func WriteXLSX(w io.Writer, s summary.Summary, cur Currency) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetSummary); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	for _, name := range []string{sheetCategories, sheetStreams} {
		if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("create sheet %s: %w", name, err)
		}
	}

	rep := Build(s, cur.Code)
	rows := [][]any{
		{"Filter", rep.Filter},
		{"From", rep.From},
		{"To", rep.To},
		{"Currency", rep.Currency},
		{"Transactions", rep.Transactions},
		{"Income", s.Totals.TotalIncome.InexactFloat64()},
		{"Expenses", s.Totals.TotalExpense.InexactFloat64()},
		{"Net", s.Totals.TotalIncome.Sub(s.Totals.TotalExpense).InexactFloat64()},
		{"Projected income", s.Projection.Total.InexactFloat64()},
		{"Projection basis", rep.ProjectionBasis},
	}
	if err := writeRows(f, sheetSummary, rows); err != nil {
		return err
	}

	catRows := [][]any{{"Category", "Amount", "Share %"}}
	for _, c := range sortedCategories(s.Totals.CategoryTotals) {
		catRows = append(catRows, []any{c.name, c.amount.InexactFloat64(), share(c.amount, s.Totals.TotalExpense).InexactFloat64()})
	}
	if err := writeRows(f, sheetCategories, catRows); err != nil {
		return err
	}

	streamRows := [][]any{{"Name", "Cadence", "Amount", "Monthly", "Start", "End"}}
	for _, line := range rep.Streams {
		streamRows = append(streamRows, []any{line.Name, line.Cadence, line.Amount, line.Monthly, line.Start, line.End})
	}
	for i, is := range s.ActiveStreams {
		// numeric cells for the amount columns
		streamRows[i+1][2] = is.Amount.InexactFloat64()
		streamRows[i+1][3] = summary.MonthlyEquivalent(is).Round(2).InexactFloat64()
	}
	if err := writeRows(f, sheetStreams, streamRows); err != nil {
		return err
	}

	f.SetActiveSheet(0)
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}
