package app

import (
	"github.com/spf13/cobra"

	"pkgstats/internal/scheduler"
	"pkgstats/pkg/config"
	"pkgstats/pkg/database"
	"pkgstats/pkg/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the ETL daemon with nightly scheduling",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime()
		if err != nil {
			return err
		}
		defer rt.Close()

		rt.logger.Info("Starting Granary (Download Stats ETL)")

		if err := database.EnsureSchema(rt.db, rt.logger); err != nil {
			return err
		}
		// The raw events table is normally owned by the ingest side; this
		// is for single-box and dev deployments.
		if config.GetEnvBool("WAREHOUSE_MANAGE_SCHEMA", false) {
			if err := database.EnsureWarehouseSchema(rt.warehouse, rt.logger); err != nil {
				return err
			}
		}

		dailyJob := scheduler.NewDailyJob(scheduler.Config{
			Runner:  rt.pipeline,
			Logger:  rt.logger,
			RunHour: config.GetEnvInt("ETL_RUN_HOUR", 1),
		})
		dailyJob.Start()
		defer dailyJob.Stop()

		// Health and metrics only; published stats are read by the web
		// front end straight from Postgres.
		router := server.SetupServiceRouter(rt.logger, "granary", rt.healthChecker, rt.metricsCollector)
		serverConfig := server.DefaultConfig("granary", "18090")
		return server.Start(serverConfig, router, rt.logger)
	},
}
