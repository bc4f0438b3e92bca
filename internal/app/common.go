package app

import (
	"encoding/json"
	"fmt"
	"strings"

	"pkgstats/internal/backfill"
	"pkgstats/internal/etl"
	"pkgstats/pkg/config"
	"pkgstats/pkg/database"
	"pkgstats/pkg/logging"
	"pkgstats/pkg/monitoring"
	"pkgstats/pkg/version"
)

// runtime bundles the connections and components every command needs.
type runtime struct {
	logger           logging.Logger
	cfg              config.Pipeline
	db               database.PostgresConn
	warehouse        database.WarehouseConn
	pipeline         *etl.Pipeline
	rollup           *etl.Rollup
	orchestrator     *backfill.Orchestrator
	healthChecker    *monitoring.HealthChecker
	metricsCollector *monitoring.MetricsCollector
}

func newRuntime() (*runtime, error) {
	logger := logging.NewLoggerWithService("granary")
	config.LoadEnv(logger)

	dbURL := config.RequireEnv("DATABASE_URL")
	warehouseAddr := config.RequireEnv("WAREHOUSE_ADDR")

	cfg := config.PipelineFromEnv()

	dbConfig := database.DefaultConfig()
	dbConfig.URL = dbURL
	db, err := database.Connect(dbConfig, logger)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	whConfig := database.DefaultWarehouseConfig()
	whConfig.Addr = strings.Split(warehouseAddr, ",")
	whConfig.Database = config.GetEnv("WAREHOUSE_DB", "default")
	whConfig.Username = config.GetEnv("WAREHOUSE_USER", "default")
	whConfig.Password = config.GetEnv("WAREHOUSE_PASSWORD", "")
	warehouse, err := database.ConnectWarehouse(whConfig, logger)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect to warehouse: %w", err)
	}

	healthChecker := monitoring.NewHealthChecker("granary", version.Version)
	healthChecker.AddCheck("postgres", monitoring.DatabaseHealthCheck(db))
	healthChecker.AddCheck("warehouse", monitoring.WarehouseHealthCheck(warehouse))
	healthChecker.AddCheck("config", monitoring.ConfigurationHealthCheck(map[string]string{
		"DATABASE_URL":   dbURL,
		"WAREHOUSE_ADDR": warehouseAddr,
	}))
	metricsCollector := monitoring.NewMetricsCollector("granary", version.Version, version.GitCommit)

	pipeline := etl.NewPipeline(warehouse, db, cfg, logger, etl.NewMetrics(metricsCollector))
	rollup := etl.NewRollup(db, logger)

	return &runtime{
		logger:           logger,
		cfg:              cfg,
		db:               db,
		warehouse:        warehouse,
		pipeline:         pipeline,
		rollup:           rollup,
		orchestrator:     backfill.NewOrchestrator(pipeline, rollup, db, cfg, logger),
		healthChecker:    healthChecker,
		metricsCollector: metricsCollector,
	}, nil
}

func (r *runtime) Close() {
	_ = r.warehouse.Close()
	_ = r.db.Close()
}

// printJSON writes a command result to stdout for operators and scripts.
func printJSON(v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
