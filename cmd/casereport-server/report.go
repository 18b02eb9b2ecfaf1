package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"

	"github.com/casereport/casereport/internal/config"
	"github.com/casereport/casereport/internal/domain/surveillance"
	"github.com/casereport/casereport/internal/platform/db"
)

var reportKinds = []string{"age-groups", "gender-ratio", "incidence-rates", "occupations", "trends"}

func reportCmd() *cobra.Command {
	var (
		raw    surveillance.RawFilter
		period string
		plot   bool
	)
	cmd := &cobra.Command{
		Use:       "report <" + strings.Join(reportKinds, "|") + ">",
		Short:     "Compute a report and print it as JSON",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: reportKinds,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := newLogger(cfg)

			ctx := cmd.Context()
			pool, err := openPool(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer pool.Close()

			rc := connectCache(ctx, cfg, logger)
			if rc != nil {
				defer rc.Close()
			}
			svc := surveillance.NewService(surveillance.NewRepoPG(pool), serviceOptions(logger, rc)...)

			out, err := runReportKind(ctx, svc, args[0], raw, period)
			if err != nil {
				return err
			}
			if trend, ok := out.(*surveillance.TrendReport); ok && plot {
				fmt.Fprintln(cmd.OutOrStdout(), plotTrend(trend))
				return nil
			}
			return writeJSON(cmd.OutOrStdout(), out)
		},
	}

	f := cmd.Flags()
	f.StringVar(&raw.DiseaseID, "disease", "", "Disease id (required)")
	f.StringVar(&raw.Year, "year", "", "Report year, or \"all\" (defaults to the current year)")
	f.StringVar(&raw.HospitalCode, "hospital", "", "Hospital code, or \"all\"")
	f.StringVar(&raw.Gender, "gender", "", "MALE, FEMALE or \"all\"")
	f.StringVar(&raw.AgeGroup, "age-group", "", "Age group such as 25-34 or 65+")
	f.StringVar(&raw.Occupation, "occupation", "", "Occupation, or \"all\"")
	f.StringVar(&raw.DateFrom, "from", "", "First illness date to include (YYYY-MM-DD)")
	f.StringVar(&raw.DateTo, "to", "", "Last illness date to include (YYYY-MM-DD)")
	f.StringVar(&period, "period", string(surveillance.DimensionMonth), "Trend period: day, week, month, quarter or year")
	f.BoolVar(&plot, "plot", false, "Draw trends as a terminal chart instead of JSON")
	_ = cmd.MarkFlagRequired("disease")
	return cmd
}

func runReportKind(ctx context.Context, svc *surveillance.Service, kind string, raw surveillance.RawFilter, period string) (interface{}, error) {
	switch kind {
	case "age-groups":
		return svc.GetAgeGroupsReport(ctx, raw)
	case "gender-ratio":
		return svc.GetGenderRatioReport(ctx, raw)
	case "incidence-rates":
		return svc.GetIncidenceRatesReport(ctx, raw)
	case "occupations":
		return svc.GetOccupationReport(ctx, raw)
	case "trends":
		return svc.GetTrendReport(ctx, raw, period)
	default:
		return nil, fmt.Errorf("unknown report %q (want one of %s)", kind, strings.Join(reportKinds, ", "))
	}
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// plotTrend renders case counts per period with the first and last period
// keys as caption.
func plotTrend(r *surveillance.TrendReport) string {
	if len(r.Series) == 0 {
		return "No cases in range"
	}
	data := make([]float64, len(r.Series))
	for i, p := range r.Series {
		data[i] = float64(p.Cases)
	}
	caption := fmt.Sprintf("cases per %s, %s to %s (total %d, deaths %d)",
		r.Period, r.Series[0].Period, r.Series[len(r.Series)-1].Period,
		r.Summary.TotalPatients, r.Summary.TotalDeaths)
	return asciigraph.Plot(data,
		asciigraph.Height(10),
		asciigraph.Caption(caption),
	)
}

func printStatus(w io.Writer, statuses []db.MigrationStatus) {
	fmt.Fprintf(w, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	fmt.Fprintln(w, "---------- ---------------------------------------- ---------- --------------------")
	for _, s := range statuses {
		status := "pending"
		appliedAt := ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(w, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
	}
}
