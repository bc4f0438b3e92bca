package app

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	statusStart string
	statusEnd   string
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report which days in a range have published data",
	RunE: func(cmd *cobra.Command, args []string) error {
		if statusStart == "" || statusEnd == "" {
			return fmt.Errorf("--start and --end are required")
		}
		rt, err := newRuntime()
		if err != nil {
			return err
		}
		defer rt.Close()

		status, err := rt.orchestrator.Status(cmd.Context(), statusStart, statusEnd)
		if err != nil {
			return err
		}
		return printJSON(status)
	},
}

func init() {
	statusCmd.Flags().StringVar(&statusStart, "start", "", "start date, YYYY-MM-DD")
	statusCmd.Flags().StringVar(&statusEnd, "end", "", "end date, YYYY-MM-DD")
}
