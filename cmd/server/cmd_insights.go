package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/lukasbauer/apriori/internal/report"
)

const maxPeriodDays = 365

func validDays(days int) error {
	if days < 1 || days > maxPeriodDays {
		return fmt.Errorf("--days must be between 1 and %d", maxPeriodDays)
	}
	return nil
}

func newInsightsCommand() *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "insights",
		Short: "Print aggregate exit-interview insights as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validDays(days); err != nil {
				return err
			}
			a, _, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			in, err := report.Load(cmd.Context(), a.Store(), time.Now().UTC(), days)
			if err != nil {
				return err
			}
			return writeJSON(cmd, map[string]any{
				"period_days": days,
				"since":       in.Since,
				"insights":    in.Aggregate,
				"departments": in.Departments,
				"calls":       in.Calls,
			})
		},
	}

	cmd.Flags().IntVar(&days, "days", 30, "Period to aggregate, in days")
	return cmd
}

func newExportCommand() *cobra.Command {
	var days int
	var out string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the insights workbook (XLSX)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validDays(days); err != nil {
				return err
			}
			a, logger, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			now := time.Now().UTC()
			in, err := report.Load(cmd.Context(), a.Store(), now, days)
			if err != nil {
				return err
			}
			if out == "" {
				out = fmt.Sprintf("insights-%s.xlsx", now.Format("2006-01-02"))
			}

			f, err := os.Create(out)
			if err != nil {
				return err
			}
			if err := report.WriteInsightsWorkbook(f, in); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			logger.Info().Str("path", out).Int("interviews", in.Aggregate.TotalInterviews).Msg("Export: workbook written")
			return nil
		},
	}

	cmd.Flags().IntVar(&days, "days", 30, "Period to export, in days")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Output path (default insights-YYYY-MM-DD.xlsx)")
	return cmd
}
