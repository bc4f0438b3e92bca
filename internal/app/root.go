package app

import (
	"github.com/spf13/cobra"
)

// RootCmd is the root command for granary.
var RootCmd = &cobra.Command{
	Use:   "granary",
	Short: "Package download statistics ETL and backfill engine",
	Long: `granary moves daily package download counts from the analytical
warehouse into the operational Postgres database that serves the stats
site.

The nightly path stages a full day into a local SQLite file, swaps it
into Postgres in one transaction, refreshes the recent rollups and trims
data past the retention window. The backfill commands replay historical
date ranges through the same pipeline.

Examples:
  # Run the daemon (scheduler + health/metrics endpoints)
  granary serve

  # Process a single day by hand
  granary run --date 2024-01-15

  # Replay a range, skipping days that already have data
  granary backfill sequential --start 2024-01-01 --end 2024-01-31 --skip-existing

  # Check which days in a range are missing
  granary status --start 2024-01-01 --end 2024-03-31`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	RootCmd.AddCommand(serveCmd)
	RootCmd.AddCommand(runCmd)
	RootCmd.AddCommand(backfillCmd)
	RootCmd.AddCommand(statusCmd)
}

// Execute runs the root command.
func Execute() error {
	return RootCmd.Execute()
}
