package etl

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"pkgstats/pkg/config"
	"pkgstats/pkg/logging"
	"pkgstats/pkg/models"
)

// Retention trims the date-keyed count tables to the configured window and
// reclaims the space afterwards.
type Retention struct {
	db     *sql.DB
	cfg    config.Pipeline
	logger logging.Logger
}

func NewRetention(db *sql.DB, cfg config.Pipeline, logger logging.Logger) *Retention {
	return &Retention{db: db, cfg: cfg, logger: logger}
}

// Purge deletes rows strictly older than the retention window anchored on
// date. A row exactly at the cutoff is kept. Tables are purged independently
// and the returned error names every table that failed.
func (r *Retention) Purge(ctx context.Context, date string) error {
	anchor, err := time.Parse("2006-01-02", date)
	if err != nil {
		return fmt.Errorf("invalid purge date %q: %w", date, err)
	}
	cutoff := anchor.AddDate(0, 0, -r.cfg.RetentionDays).Format("2006-01-02")

	var failed []string
	for _, table := range models.CountTables {
		result, err := r.db.ExecContext(ctx,
			fmt.Sprintf("DELETE FROM %s WHERE date < $1", table), cutoff)
		if err != nil {
			r.logger.WithFields(logging.Fields{
				"table": table,
				"error": err,
			}).Error("Purge failed")
			failed = append(failed, table)
			continue
		}
		deleted, _ := result.RowsAffected()
		r.logger.WithFields(logging.Fields{
			"table":   table,
			"cutoff":  cutoff,
			"deleted": deleted,
		}).Info("Purged old rows")
	}
	if len(failed) > 0 {
		return fmt.Errorf("purge failed for tables %v", failed)
	}
	return nil
}

// VacuumAnalyze reclaims dead tuples and refreshes planner statistics.
// Both statements run outside any transaction. Returns per-statement
// durations in seconds.
func (r *Retention) VacuumAnalyze(ctx context.Context) (map[string]float64, error) {
	timings := make(map[string]float64)
	for _, stmt := range []string{"VACUUM", "ANALYZE"} {
		start := time.Now()
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return timings, fmt.Errorf("%s failed: %w", stmt, err)
		}
		elapsed := time.Since(start).Seconds()
		timings[stmt] = elapsed
		r.logger.WithFields(logging.Fields{
			"statement":       stmt,
			"elapsed_seconds": elapsed,
		}).Info("Maintenance statement complete")
	}
	return timings, nil
}
