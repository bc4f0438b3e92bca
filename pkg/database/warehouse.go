package database

import (
	"database/sql"

	"github.com/ClickHouse/clickhouse-go/v2"

	"pkgstats/pkg/logging"
)

// WarehouseConn represents an analytical warehouse connection using the
// database/sql interface. All pipeline reads against raw download events go
// through this handle.
type WarehouseConn = *sql.DB

// WarehouseConfig holds warehouse connection configuration
type WarehouseConfig struct {
	Addr     []string
	Database string
	Username string
	Password string
	Debug    bool
}

// DefaultWarehouseConfig returns default warehouse configuration
func DefaultWarehouseConfig() WarehouseConfig {
	return WarehouseConfig{
		Addr:     []string{"127.0.0.1:9000"},
		Database: "default",
		Username: "default",
		Password: "",
		Debug:    false,
	}
}

// ConnectWarehouse establishes a connection to the analytical warehouse
func ConnectWarehouse(cfg WarehouseConfig, logger logging.Logger) (WarehouseConn, error) {
	conn := clickhouse.OpenDB(&clickhouse.Options{
		Addr: cfg.Addr,
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Debug: cfg.Debug,
	})

	// Test the connection
	if err := conn.Ping(); err != nil {
		logger.WithError(err).Error("Failed to ping warehouse")
		return nil, err
	}

	logger.WithFields(logging.Fields{
		"addr":     cfg.Addr,
		"database": cfg.Database,
	}).Info("Connected to warehouse")

	return conn, nil
}

// MustConnectWarehouse connects to the warehouse or exits the process
func MustConnectWarehouse(cfg WarehouseConfig, logger logging.Logger) WarehouseConn {
	conn, err := ConnectWarehouse(cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to warehouse")
	}
	return conn
}
