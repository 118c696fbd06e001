package report

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"fintrack/internal/summary"
)

func windowLabel(s summary.Summary) string {
	from, to := "…", "…"
	if s.Interval.Start != nil {
		from = s.Interval.Start.Format("2006-01-02")
	}
	if s.Interval.End != nil {
		to = s.Interval.End.Format("2006-01-02")
	}
	return from + " → " + to
}

// WriteTable prints the totals, the expense breakdown and the active streams as tables.
func WriteTable(w io.Writer, s summary.Summary, cur Currency) {
	fmt.Fprintf(w, "Summary %s (%s), %d transactions\n\n", s.Filter.Key(), windowLabel(s), s.Totals.Count)

	totals := table.NewWriter()
	totals.SetOutputMirror(w)
	totals.AppendHeader(table.Row{"", "Amount"})
	totals.AppendRow(table.Row{"Income", cur.Format(s.Totals.TotalIncome)})
	totals.AppendRow(table.Row{"Expenses", cur.Format(s.Totals.TotalExpense)})
	totals.AppendRow(table.Row{"Net", cur.Format(s.Totals.TotalIncome.Sub(s.Totals.TotalExpense))})
	totals.AppendSeparator()
	projected := cur.Format(s.Projection.Total)
	if s.FellBack() {
		projected += text.FgYellow.Sprint(" *")
	}
	totals.AppendFooter(table.Row{text.Bold.Sprintf("Projected income (%s)", s.Projection.Basis), text.Bold.Sprint(projected)})
	totals.SetStyle(table.StyleRounded)
	totals.Style().Format.Header = text.FormatDefault
	totals.Style().Format.Footer = text.FormatDefault
	totals.SetColumnConfigs([]table.ColumnConfig{{Number: 2, Align: text.AlignRight, AlignFooter: text.AlignRight}})
	totals.Render()

	if s.FellBack() {
		fmt.Fprintln(w, "* open-ended range: projected income uses monthly amounts")
	}

	if len(s.Totals.CategoryTotals) > 0 {
		fmt.Fprintln(w)
		cats := table.NewWriter()
		cats.SetOutputMirror(w)
		cats.AppendHeader(table.Row{"Category", "Amount", "Share"})
		for _, c := range sortedCategories(s.Totals.CategoryTotals) {
			name := c.name
			if name == "" {
				name = text.FgHiBlack.Sprint("(none)")
			}
			cats.AppendRow(table.Row{name, cur.Format(c.amount), share(c.amount, s.Totals.TotalExpense).String() + "%"})
		}
		cats.SetStyle(table.StyleRounded)
		cats.Style().Format.Header = text.FormatDefault
		cats.SetColumnConfigs([]table.ColumnConfig{
			{Number: 2, Align: text.AlignRight},
			{Number: 3, Align: text.AlignRight},
		})
		cats.Render()
	}

	if len(s.ActiveStreams) > 0 {
		fmt.Fprintln(w)
		streams := table.NewWriter()
		streams.SetOutputMirror(w)
		streams.AppendHeader(table.Row{"Income stream", "Cadence", "Amount", "Monthly", "Started", "Ends"})
		for _, is := range s.ActiveStreams {
			end := text.FgHiBlack.Sprint("ongoing")
			if is.EndDate != nil {
				end = is.EndDate.Format("2006-01-02")
			}
			streams.AppendRow(table.Row{
				is.Name, string(is.Cadence), cur.Format(is.Amount),
				cur.Format(summary.MonthlyEquivalent(is)), is.StartDate.Format("2006-01-02"), end,
			})
		}
		streams.SetStyle(table.StyleRounded)
		streams.Style().Format.Header = text.FormatDefault
		streams.SetColumnConfigs([]table.ColumnConfig{
			{Number: 3, Align: text.AlignRight},
			{Number: 4, Align: text.AlignRight},
		})
		streams.Render()
	}
}
