package app

import (
	"github.com/spf13/cobra"

	"pkgstats/internal/etl"
)

var (
	runDate     string
	runNoPurge  bool
	runNoRecent bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the ETL pipeline for a single day",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime()
		if err != nil {
			return err
		}
		defer rt.Close()

		report, err := rt.pipeline.Run(cmd.Context(), etl.RunOptions{
			Date:         runDate,
			Purge:        !runNoPurge,
			UpdateRecent: !runNoRecent,
		})
		if report != nil {
			if printErr := printJSON(report); printErr != nil {
				return printErr
			}
		}
		return err
	},
}

func init() {
	runCmd.Flags().StringVar(&runDate, "date", "", "date to process, YYYY-MM-DD (default: yesterday)")
	runCmd.Flags().BoolVar(&runNoPurge, "no-purge", false, "skip retention purge and maintenance")
	runCmd.Flags().BoolVar(&runNoRecent, "no-recent", false, "skip the recent rollup update")
}
