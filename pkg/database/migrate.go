package database

import (
	"database/sql"
	"fmt"
	"io/fs"
	"sort"

	dbsql "pkgstats/pkg/database/sql"
	"pkgstats/pkg/logging"
)

// EnsureSchema applies the embedded operational DDL. Statements are
// idempotent (CREATE TABLE IF NOT EXISTS), so this is safe to run on every
// startup.
func EnsureSchema(db *sql.DB, logger logging.Logger) error {
	return applyDir(db, "schema", logger)
}

// EnsureWarehouseSchema applies the embedded warehouse DDL.
func EnsureWarehouseSchema(db *sql.DB, logger logging.Logger) error {
	return applyDir(db, "clickhouse", logger)
}

func applyDir(db *sql.DB, dir string, logger logging.Logger) error {
	entries, err := fs.ReadDir(dbsql.Content, dir)
	if err != nil {
		return fmt.Errorf("read embedded %s DDL: %w", dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		content, err := fs.ReadFile(dbsql.Content, dir+"/"+name)
		if err != nil {
			return fmt.Errorf("read %s/%s: %w", dir, name, err)
		}
		if _, err := db.Exec(string(content)); err != nil {
			return fmt.Errorf("apply %s/%s: %w", dir, name, err)
		}
		logger.WithFields(logging.Fields{"file": dir + "/" + name}).Info("Applied schema file")
	}
	return nil
}
