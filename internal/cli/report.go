package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"fintrack/internal/backend"
	"fintrack/internal/config"
	"fintrack/internal/log"
	"fintrack/internal/report"
	"fintrack/internal/services"
	"fintrack/internal/summary"
)

// ReportOptions are the resolved inputs of the report command.
type ReportOptions struct {
	UserID   string
	Mode     string
	Year     int
	Month    int // 1-12; 0 means the current month
	Start    string
	End      string
	Format   string
	XLSX     string
	Currency string
	Timezone string

	Backend    string
	SeedFile   string
	SQLitePath string
}

// Selection turns the options into a filter. Dates are YYYY-MM-DD in loc or RFC 3339.
func (o ReportOptions) Selection(now time.Time, loc *time.Location) (summary.FilterSelection, error) {
	now = now.In(loc)
	year := o.Year
	if year == 0 {
		year = now.Year()
	}

	switch summary.FilterMode(strings.ToLower(o.Mode)) {
	case summary.ModeMonth, "":
		month := o.Month
		if month == 0 {
			month = int(now.Month())
		}
		if month < 1 || month > 12 {
			return summary.FilterSelection{}, fmt.Errorf("month %d out of range 1-12", o.Month)
		}
		return summary.Month(year, month-1), nil
	case summary.ModeYear:
		return summary.Year(year), nil
	case summary.ModeCustom:
		start, err := parseBound(o.Start, loc)
		if err != nil {
			return summary.FilterSelection{}, fmt.Errorf("start: %w", err)
		}
		end, err := parseBound(o.End, loc)
		if err != nil {
			return summary.FilterSelection{}, fmt.Errorf("end: %w", err)
		}
		return summary.Custom(start, end), nil
	default:
		return summary.FilterSelection{}, fmt.Errorf("unknown mode %q (want month, year or custom)", o.Mode)
	}
}

func parseBound(s string, loc *time.Location) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if t, err := time.ParseInLocation("2006-01-02", s, loc); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, fmt.Errorf("parse date %q", s)
	}
	return &t, nil
}

// NewReportCommand builds the report command. Flags may also come from
// FINTRACK_* environment variables or a YAML/TOML file passed with --config.
func NewReportCommand() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "fintrack-report",
		Short: "Summarise a user's transactions and projected income",
		Long: `fintrack-report reads one user's transactions and income streams from the
configured backend and prints the totals, the expense breakdown by category and
the income projected from active streams for a month, a year or a custom range.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if path := v.GetString("config"); path != "" {
				v.SetConfigFile(path)
				if err := v.ReadInConfig(); err != nil {
					return fmt.Errorf("read config: %w", err)
				}
			}
			opts := ReportOptions{
				UserID:     v.GetString("user"),
				Mode:       v.GetString("mode"),
				Year:       v.GetInt("year"),
				Month:      v.GetInt("month"),
				Start:      v.GetString("start"),
				End:        v.GetString("end"),
				Format:     v.GetString("format"),
				XLSX:       v.GetString("xlsx"),
				Currency:   v.GetString("currency"),
				Timezone:   v.GetString("timezone"),
				Backend:    v.GetString("backend"),
				SeedFile:   v.GetString("seed"),
				SQLitePath: v.GetString("sqlite-path"),
			}
			return RunReport(cmd.Context(), opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	f := cmd.Flags()
	f.String("config", "", "config file with default flag values")
	f.StringP("user", "u", "", "user id to report on (required)")
	f.StringP("mode", "m", string(summary.ModeMonth), "filter mode: month, year or custom")
	f.Int("year", 0, "year for month and year modes (default current year)")
	f.Int("month", 0, "month 1-12 for month mode (default current month)")
	f.String("start", "", "custom range start, YYYY-MM-DD or RFC 3339")
	f.String("end", "", "custom range end, YYYY-MM-DD or RFC 3339")
	f.StringP("format", "o", report.FormatTable, "output format: "+strings.Join(report.Formats, ", "))
	f.String("xlsx", "", "also write an Excel workbook to this path")
	f.String("currency", "USD", "ISO 4217 currency code for table output")
	f.String("timezone", "", "IANA zone anchoring filter windows (default TIMEZONE)")
	f.String("backend", "", "data backend override: "+strings.Join(backend.GetBackendTypeStrings(), ", "))
	f.String("seed", "", "seed file for the memory backend")
	f.String("sqlite-path", "", "SQLite database path override")

	_ = v.BindPFlags(f)
	v.SetEnvPrefix("FINTRACK")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	return cmd
}

// RunReport loads the user's records and writes the report to out. Logs go to logOut.
func RunReport(ctx context.Context, opts ReportOptions, out, logOut io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if strings.TrimSpace(opts.UserID) == "" {
		return fmt.Errorf("--user is required")
	}

	cfg := config.Load()
	if opts.Backend != "" {
		cfg.DataBackend = opts.Backend
	}
	if opts.SeedFile != "" {
		cfg.SeedFile = opts.SeedFile
	}
	if opts.SQLitePath != "" {
		cfg.SQLiteDBPath = opts.SQLitePath
	}
	if opts.Timezone != "" {
		cfg.Timezone = opts.Timezone
	}
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return fmt.Errorf("timezone: %w", err)
	}

	logger := SetupLogger(cfg, logOut).WithComponent(log.ComponentReport)

	sel, err := opts.Selection(time.Now(), loc)
	if err != nil {
		return err
	}

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return err
	}
	result, err := backend.NewFactory(logger).CreateBackend(ctx, backendCfg)
	if err != nil {
		return fmt.Errorf("open backend: %w", err)
	}
	defer func() {
		if err := result.Close(); err != nil {
			logger.Warn("Backend cleanup failed", log.FieldError, err)
		}
	}()

	svc := services.NewSummaryService(result.Store, nil, loc, logger)
	s, err := svc.Summary(ctx, opts.UserID, sel)
	if err != nil {
		return fmt.Errorf("load summary: %w", err)
	}

	cur := report.GetCurrency(opts.Currency)
	if err := report.Render(out, opts.Format, s, cur); err != nil {
		return err
	}

	if opts.XLSX != "" {
		f, err := os.Create(opts.XLSX)
		if err != nil {
			return fmt.Errorf("create workbook: %w", err)
		}
		if err := report.WriteXLSX(f, s, cur); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("close workbook: %w", err)
		}
		logger.Info("Workbook written", "path", opts.XLSX)
	}
	return nil
}
