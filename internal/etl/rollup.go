package etl

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"pkgstats/pkg/logging"
	"pkgstats/pkg/models"
)

// Rollup maintains the recent table, which caches per-package download
// totals over the trailing day, week and month windows.
type Rollup struct {
	db     *sql.DB
	logger logging.Logger
}

func NewRollup(db *sql.DB, logger logging.Logger) *Rollup {
	return &Rollup{db: db, logger: logger}
}

// windowClause returns the overall-table date predicate and its argument for
// one rollup period, anchored on date.
func windowClause(period string, anchor time.Time) (string, string, error) {
	switch period {
	case models.PeriodDay:
		return "date = $2", anchor.Format("2006-01-02"), nil
	case models.PeriodWeek:
		return "date > $2", anchor.AddDate(0, 0, -7).Format("2006-01-02"), nil
	case models.PeriodMonth:
		return "date > $2", anchor.AddDate(0, 0, -30).Format("2006-01-02"), nil
	default:
		return "", "", fmt.Errorf("unknown rollup period %q", period)
	}
}

// UpdateRecent recomputes the day, week and month windows anchored on date.
// Each window runs in its own transaction so one failing window does not
// disturb the others; the returned error names every window that failed.
func (r *Rollup) UpdateRecent(ctx context.Context, date string) error {
	anchor, err := time.Parse("2006-01-02", date)
	if err != nil {
		return fmt.Errorf("invalid rollup date %q: %w", date, err)
	}

	var failed []string
	for _, period := range models.RecentPeriods {
		if err := r.updateWindow(ctx, period, anchor); err != nil {
			r.logger.WithFields(logging.Fields{
				"period": period,
				"error":  err,
			}).Error("Recent window update failed")
			failed = append(failed, period)
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("recent rollup failed for windows %v", failed)
	}

	r.logger.WithFields(logging.Fields{"date": date}).Info("Recent rollups updated")
	return nil
}

func (r *Rollup) updateWindow(ctx context.Context, period string, anchor time.Time) error {
	clause, arg, err := windowClause(period, anchor)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin rollup transaction: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM recent WHERE category = $1", period); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("clear window: %w", err)
	}

	insert := fmt.Sprintf(`INSERT INTO recent (package, category, downloads)
		SELECT package, $1, SUM(downloads) FROM overall
		WHERE category = '%s' AND %s
		GROUP BY package`, models.CategoryWithoutMirrors, clause)
	if _, err := tx.ExecContext(ctx, insert, period, arg); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("recompute window: %w", err)
	}

	return tx.Commit()
}
