// Package staging implements the disposable local store one ETL run stages
// its rows in before atomic publication. A Store is created fresh for a
// single date and its backing file is removed on Close regardless of how the
// run ended.
package staging

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"pkgstats/pkg/logging"
	"pkgstats/pkg/models"
)

// sqliteChunkSize bounds the number of rows per INSERT so the statement
// stays under SQLite's bound-variable limit (4 columns per row).
const sqliteChunkSize = 2000

// Store is a disposable SQLite staging database for one ETL run.
type Store struct {
	db     *sql.DB
	path   string
	logger logging.Logger
}

// Open creates a fresh staging database for the given date under dir (the
// OS temp directory when dir is empty). Any leftover file from a previous
// crashed run for the same date is overwritten.
func Open(dir, date string, logger logging.Logger) (*Store, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	path := filepath.Join(dir, fmt.Sprintf("pkgstats_etl_%s.db", strings.ReplaceAll(date, "-", "")))

	// Remove any stale file so we never stage on top of old rows
	_ = os.Remove(path)

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open staging database: %w", err)
	}

	// SQLite allows a single writer; the run is single-threaded anyway
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db, path: path, logger: logger}
	if err := s.init(); err != nil {
		_ = db.Close()
		_ = os.Remove(path)
		return nil, err
	}

	logger.WithField("path", path).Debug("Staging database created")
	return s, nil
}

func (s *Store) init() error {
	// Bulk-load pragmas: durability does not matter for a disposable file
	pragmas := []string{
		"PRAGMA synchronous = OFF",
		"PRAGMA journal_mode = WAL",
		"PRAGMA temp_store = FILE",
		"PRAGMA cache_size = -32000",
	}
	for _, pragma := range pragmas {
		if _, err := s.db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	for _, table := range models.CountTables {
		ddl := fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				date TEXT NOT NULL,
				package TEXT NOT NULL,
				category TEXT NOT NULL,
				downloads INTEGER NOT NULL,
				PRIMARY KEY (date, package, category)
			)`, table)
		if _, err := s.db.Exec(ddl); err != nil {
			return fmt.Errorf("failed to create staging table %s: %w", table, err)
		}
		// Secondary indexes are built after bulk load, see BuildIndexes
	}
	return nil
}

// Path returns the location of the backing database file.
func (s *Store) Path() string {
	return s.path
}

func validTable(table string) error {
	for _, t := range models.CountTables {
		if t == table {
			return nil
		}
	}
	return fmt.Errorf("unknown staging table %q", table)
}

// InsertBatch validates and upserts a batch of rows into a staging table.
// Returns the number of rows actually stored (invalid rows are dropped, not
// reported as errors). A retried batch is idempotent because inserts use
// INSERT OR REPLACE against the composite primary key.
func (s *Store) InsertBatch(table string, rows []models.DownloadCount) (int, error) {
	if err := validTable(table); err != nil {
		return 0, err
	}

	valid := FilterRows(table, rows)
	if len(valid) == 0 {
		return 0, nil
	}

	for start := 0; start < len(valid); start += sqliteChunkSize {
		end := start + sqliteChunkSize
		if end > len(valid) {
			end = len(valid)
		}
		chunk := valid[start:end]

		var sb strings.Builder
		sb.WriteString(fmt.Sprintf("INSERT OR REPLACE INTO %s (date, package, category, downloads) VALUES ", table))
		args := make([]interface{}, 0, len(chunk)*4)
		for i, row := range chunk {
			if i > 0 {
				sb.WriteString(",")
			}
			sb.WriteString("(?, ?, ?, ?)")
			args = append(args, row.Date, row.Package, row.Category, row.Downloads)
		}

		if _, err := s.db.Exec(sb.String(), args...); err != nil {
			return 0, fmt.Errorf("failed to insert batch into %s: %w", table, err)
		}
	}

	return len(valid), nil
}

// BuildIndexes creates the secondary indexes. Deferred until after bulk load:
// maintaining them during high-volume insert costs far more than one build
// at the end.
func (s *Store) BuildIndexes() error {
	for _, table := range models.CountTables {
		for _, column := range []string{"date", "package"} {
			stmt := fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_%s ON %s (%s)", table, column, table, column)
			if _, err := s.db.Exec(stmt); err != nil {
				return fmt.Errorf("failed to create index on %s(%s): %w", table, column, err)
			}
		}
	}
	return nil
}

// AggregateAll computes the __all__ cross-package rollup for the date in
// every staging table, so the published snapshot already contains the
// aggregate.
func (s *Store) AggregateAll(date string) error {
	for _, table := range models.CountTables {
		stmt := fmt.Sprintf(`
			INSERT OR REPLACE INTO %s (date, package, category, downloads)
			SELECT date, '%s' AS package, category, SUM(downloads) AS downloads
			FROM %s
			WHERE date = ? AND package != '%s'
			GROUP BY date, category`, table, models.AllPackages, table, models.AllPackages)
		if _, err := s.db.Exec(stmt, date); err != nil {
			return fmt.Errorf("failed to aggregate %s: %w", table, err)
		}
	}
	return nil
}

// RowCount returns the number of staged rows for the date in one table.
func (s *Store) RowCount(table, date string) (int64, error) {
	if err := validTable(table); err != nil {
		return 0, err
	}
	var count int64
	err := s.db.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE date = ?", table), date).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count rows in %s: %w", table, err)
	}
	return count, nil
}

// ReadChunk returns up to limit staged rows for the date from one table,
// ordered by (package, category) so repeated reads page deterministically.
func (s *Store) ReadChunk(table, date string, limit, offset int) ([]models.DownloadCount, error) {
	if err := validTable(table); err != nil {
		return nil, err
	}
	stmt := fmt.Sprintf(`
		SELECT date, package, category, downloads
		FROM %s
		WHERE date = ?
		ORDER BY package, category
		LIMIT ? OFFSET ?`, table)

	rows, err := s.db.Query(stmt, date, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to read chunk from %s: %w", table, err)
	}
	defer rows.Close()

	var out []models.DownloadCount
	for rows.Next() {
		var row models.DownloadCount
		if err := rows.Scan(&row.Date, &row.Package, &row.Category, &row.Downloads); err != nil {
			return nil, fmt.Errorf("failed to scan staged row: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// Close closes the database and removes the backing file. Safe to call on
// every exit path; removal happens even if the run failed.
func (s *Store) Close() error {
	var closeErr error
	if s.db != nil {
		closeErr = s.db.Close()
	}
	if s.path != "" {
		if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
			s.logger.WithError(err).WithField("path", s.path).Warn("Failed to remove staging database")
		} else {
			s.logger.WithField("path", s.path).Debug("Staging database removed")
		}
		// WAL sidecar files
		_ = os.Remove(s.path + "-wal")
		_ = os.Remove(s.path + "-shm")
	}
	return closeErr
}
