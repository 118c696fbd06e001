// Package report renders summaries for the command line and for export.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"fintrack/internal/summary"
)

const (
	FormatTable = "table"
	FormatJSON  = "json"
	FormatYAML  = "yaml"
)

// Formats lists the supported output formats.
var Formats = []string{FormatTable, FormatJSON, FormatYAML}

// Report is the serialisable view of a summary. Amounts are decimal strings.
type Report struct {
	Filter          string         `json:"filter" yaml:"filter"`
	Mode            string         `json:"mode" yaml:"mode"`
	From            string         `json:"from,omitempty" yaml:"from,omitempty"`
	To              string         `json:"to,omitempty" yaml:"to,omitempty"`
	Currency        string         `json:"currency" yaml:"currency"`
	Transactions    int            `json:"transactions" yaml:"transactions"`
	TotalIncome     string         `json:"totalIncome" yaml:"total_income"`
	TotalExpense    string         `json:"totalExpense" yaml:"total_expense"`
	Net             string         `json:"net" yaml:"net"`
	ProjectedIncome string         `json:"projectedIncome" yaml:"projected_income"`
	ProjectionBasis string         `json:"projectionBasis" yaml:"projection_basis"`
	FellBack        bool           `json:"fellBack,omitempty" yaml:"fell_back,omitempty"`
	Categories      []CategoryLine `json:"categories" yaml:"categories"`
	Streams         []StreamLine   `json:"activeStreams" yaml:"active_streams"`
}

type CategoryLine struct {
	Category string `json:"category" yaml:"category"`
	Amount   string `json:"amount" yaml:"amount"`
	Share    string `json:"share" yaml:"share"` // percent of total expense
}

type StreamLine struct {
	Name    string `json:"name" yaml:"name"`
	Cadence string `json:"cadence" yaml:"cadence"`
	Amount  string `json:"amount" yaml:"amount"`
	Monthly string `json:"monthly" yaml:"monthly"`
	Start   string `json:"start" yaml:"start"`
	End     string `json:"end,omitempty" yaml:"end,omitempty"`
}

type categoryAmount struct {
	name   string
	amount decimal.Decimal
}

// sortedCategories orders categories by amount, largest first, then by name.
func sortedCategories(totals map[string]decimal.Decimal) []categoryAmount {
	out := make([]categoryAmount, 0, len(totals))
	for name, amount := range totals {
		out = append(out, categoryAmount{name: name, amount: amount})
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].amount.Cmp(out[j].amount); c != 0 {
			return c > 0
		}
		return out[i].name < out[j].name
	})
	return out
}

func share(part, total decimal.Decimal) decimal.Decimal {
	if total.IsZero() {
		return decimal.Zero
	}
	return part.Div(total).Mul(decimal.NewFromInt(100)).Round(1)
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}

// Build converts a summary into its report view.
func Build(s summary.Summary, currencyCode string) Report {
	r := Report{
		Filter:          s.Filter.Key(),
		Mode:            string(s.Filter.Mode),
		From:            formatDate(s.Interval.Start),
		To:              formatDate(s.Interval.End),
		Currency:        GetCurrency(currencyCode).Code,
		Transactions:    s.Totals.Count,
		TotalIncome:     s.Totals.TotalIncome.String(),
		TotalExpense:    s.Totals.TotalExpense.String(),
		Net:             s.Totals.TotalIncome.Sub(s.Totals.TotalExpense).String(),
		ProjectedIncome: s.Projection.Total.String(),
		ProjectionBasis: string(s.Projection.Basis),
		FellBack:        s.FellBack(),
		Categories:      []CategoryLine{},
		Streams:         []StreamLine{},
	}
	for _, c := range sortedCategories(s.Totals.CategoryTotals) {
		r.Categories = append(r.Categories, CategoryLine{
			Category: c.name,
			Amount:   c.amount.String(),
			Share:    share(c.amount, s.Totals.TotalExpense).String(),
		})
	}
	for _, is := range s.ActiveStreams {
		line := StreamLine{
			Name:    is.Name,
			Cadence: string(is.Cadence),
			Amount:  is.Amount.String(),
			Monthly: summary.MonthlyEquivalent(is).Round(2).String(),
			Start:   is.StartDate.Format("2006-01-02"),
		}
		if is.EndDate != nil {
			line.End = is.EndDate.Format("2006-01-02")
		}
		r.Streams = append(r.Streams, line)
	}
	return r
}

// Render writes s to w in the given format.
func Render(w io.Writer, format string, s summary.Summary, cur Currency) error {
	switch strings.ToLower(format) {
	case FormatTable, "":
		WriteTable(w, s, cur)
		return nil
	case FormatJSON:
		return WriteJSON(w, Build(s, cur.Code))
	case FormatYAML:
		return WriteYAML(w, Build(s, cur.Code))
	default:
		return fmt.Errorf("unknown format %q (want one of %s)", format, strings.Join(Formats, ", "))
	}
}

// WriteJSON outputs the report as indented JSON
func WriteJSON(w io.Writer, r Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// WriteYAML outputs the report as YAML
func WriteYAML(w io.Writer, r Report) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("encode yaml: %w", err)
	}
	return enc.Close()
}
