package app

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"pkgstats/internal/backfill"
)

var (
	bfStart        string
	bfEnd          string
	bfStartMonth   string
	bfEndMonth     string
	bfDelaySeconds int
	bfSkipExisting bool
	bfNoRecent     bool
	bfChunkDays    int
	bfMaxParallel  int
	bfYear         int
	bfDays         int
)

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Replay historical dates through the ETL pipeline",
}

var backfillSequentialCmd = &cobra.Command{
	Use:   "sequential",
	Short: "Backfill a date range one day at a time",
	RunE: func(cmd *cobra.Command, args []string) error {
		if bfStart == "" || bfEnd == "" {
			return fmt.Errorf("--start and --end are required")
		}
		rt, err := newRuntime()
		if err != nil {
			return err
		}
		defer rt.Close()

		report, err := rt.orchestrator.Sequential(cmd.Context(), backfill.SequentialOptions{
			StartDate:    bfStart,
			EndDate:      bfEnd,
			Delay:        time.Duration(bfDelaySeconds) * time.Second,
			SkipExisting: bfSkipExisting,
			UpdateRecent: !bfNoRecent,
		})
		if report != nil {
			if printErr := printJSON(report); printErr != nil {
				return printErr
			}
		}
		return err
	},
}

var backfillParallelCmd = &cobra.Command{
	Use:   "parallel",
	Short: "Backfill a date range in concurrent chunks",
	RunE: func(cmd *cobra.Command, args []string) error {
		if bfStart == "" || bfEnd == "" {
			return fmt.Errorf("--start and --end are required")
		}
		rt, err := newRuntime()
		if err != nil {
			return err
		}
		defer rt.Close()

		report, err := rt.orchestrator.Parallel(cmd.Context(), backfill.ParallelOptions{
			StartDate:    bfStart,
			EndDate:      bfEnd,
			ChunkDays:    bfChunkDays,
			MaxParallel:  bfMaxParallel,
			Delay:        time.Duration(bfDelaySeconds) * time.Second,
			SkipExisting: bfSkipExisting,
			UpdateRecent: !bfNoRecent,
		})
		if report != nil {
			if printErr := printJSON(report); printErr != nil {
				return printErr
			}
		}
		return err
	},
}

var backfillMonthsCmd = &cobra.Command{
	Use:   "months",
	Short: "Backfill whole calendar months",
	RunE: func(cmd *cobra.Command, args []string) error {
		if bfStartMonth == "" || bfEndMonth == "" {
			return fmt.Errorf("--start-month and --end-month are required")
		}
		rt, err := newRuntime()
		if err != nil {
			return err
		}
		defer rt.Close()

		report, err := rt.orchestrator.Months(cmd.Context(), backfill.MonthOptions{
			StartMonth:   bfStartMonth,
			EndMonth:     bfEndMonth,
			Delay:        time.Duration(bfDelaySeconds) * time.Second,
			SkipExisting: bfSkipExisting,
			UpdateRecent: !bfNoRecent,
		})
		if report != nil {
			if printErr := printJSON(report); printErr != nil {
				return printErr
			}
		}
		return err
	},
}

var backfillYearCmd = &cobra.Command{
	Use:   "year",
	Short: "Fill any gaps in a calendar year",
	RunE: func(cmd *cobra.Command, args []string) error {
		if bfYear == 0 {
			return fmt.Errorf("--year is required")
		}
		rt, err := newRuntime()
		if err != nil {
			return err
		}
		defer rt.Close()

		report, err := rt.orchestrator.BackfillYear(cmd.Context(), bfYear, bfMaxParallel)
		if err != nil {
			return err
		}
		if report == nil {
			fmt.Printf("Year %d is already complete\n", bfYear)
			return nil
		}
		return printJSON(report)
	},
}

var backfillRecentCmd = &cobra.Command{
	Use:   "recent",
	Short: "Reprocess the trailing N days ending yesterday",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime()
		if err != nil {
			return err
		}
		defer rt.Close()

		report, err := rt.orchestrator.BackfillRecentDays(cmd.Context(), bfDays)
		if report != nil {
			if printErr := printJSON(report); printErr != nil {
				return printErr
			}
		}
		return err
	},
}

func init() {
	for _, cmd := range []*cobra.Command{backfillSequentialCmd, backfillParallelCmd} {
		cmd.Flags().StringVar(&bfStart, "start", "", "start date, YYYY-MM-DD")
		cmd.Flags().StringVar(&bfEnd, "end", "", "end date, YYYY-MM-DD")
	}
	backfillMonthsCmd.Flags().StringVar(&bfStartMonth, "start-month", "", "start month, YYYY-MM")
	backfillMonthsCmd.Flags().StringVar(&bfEndMonth, "end-month", "", "end month, YYYY-MM")
	backfillYearCmd.Flags().IntVar(&bfYear, "year", 0, "calendar year to fill")
	backfillRecentCmd.Flags().IntVar(&bfDays, "days", 7, "number of trailing days")

	for _, cmd := range []*cobra.Command{backfillSequentialCmd, backfillParallelCmd, backfillMonthsCmd} {
		cmd.Flags().IntVar(&bfDelaySeconds, "delay", 2, "seconds to wait between days")
		cmd.Flags().BoolVar(&bfSkipExisting, "skip-existing", false, "skip days that already have data")
		cmd.Flags().BoolVar(&bfNoRecent, "no-recent", false, "skip the final recent rollup")
	}
	backfillParallelCmd.Flags().IntVar(&bfChunkDays, "chunk-days", 7, "days per chunk")
	for _, cmd := range []*cobra.Command{backfillParallelCmd, backfillYearCmd} {
		cmd.Flags().IntVar(&bfMaxParallel, "max-parallel", 3, "maximum concurrent chunks")
	}

	backfillCmd.AddCommand(backfillSequentialCmd)
	backfillCmd.AddCommand(backfillParallelCmd)
	backfillCmd.AddCommand(backfillMonthsCmd)
	backfillCmd.AddCommand(backfillYearCmd)
	backfillCmd.AddCommand(backfillRecentCmd)
}
