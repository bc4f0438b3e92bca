package etl

import (
	"context"
	"database/sql"
	"fmt"

	"pkgstats/internal/staging"
	"pkgstats/pkg/config"
	"pkgstats/pkg/logging"
	"pkgstats/pkg/models"
)

// Extractor streams the daily download counts out of the warehouse and into
// a staging store, batching writes so memory use stays bounded regardless of
// result size.
type Extractor struct {
	warehouse *sql.DB
	cfg       config.Pipeline
	logger    logging.Logger
}

func NewExtractor(warehouse *sql.DB, cfg config.Pipeline, logger logging.Logger) *Extractor {
	return &Extractor{warehouse: warehouse, cfg: cfg, logger: logger}
}

// StageStats summarizes one extraction pass.
type StageStats struct {
	Rows          int64
	Batches       int
	FailedBatches int
}

// Stage runs the download query for date and writes every result row into
// the staging store, flushing per-table batches once they reach the
// configured batch size. A failed batch is logged and skipped; only warehouse
// errors abort the pass. After the scan it builds the staging indexes and
// computes the __all__ aggregate rows.
func (e *Extractor) Stage(ctx context.Context, date string, store *staging.Store) (StageStats, error) {
	var stats StageStats

	query, err := BuildDownloadQuery(date)
	if err != nil {
		return stats, err
	}

	rows, err := e.warehouse.QueryContext(ctx, query)
	if err != nil {
		return stats, fmt.Errorf("warehouse query failed: %w", err)
	}
	defer rows.Close()

	batches := make(map[string][]models.DownloadCount)

	flush := func(table string) {
		batch := batches[table]
		if len(batch) == 0 {
			return
		}
		stats.Batches++
		stored, err := store.InsertBatch(table, batch)
		if err != nil {
			stats.FailedBatches++
			e.logger.WithFields(logging.Fields{
				"table": table,
				"rows":  len(batch),
				"error": err,
			}).Error("Staging batch failed, continuing")
		} else {
			stats.Rows += int64(stored)
		}
		batches[table] = batch[:0]
	}

	for rows.Next() {
		var (
			pkg       string
			label     string
			category  sql.NullString
			downloads int64
		)
		if err := rows.Scan(&pkg, &label, &category, &downloads); err != nil {
			return stats, fmt.Errorf("warehouse scan failed: %w", err)
		}

		value := models.NullCategory
		if category.Valid {
			value = category.String
		}

		batches[label] = append(batches[label], models.DownloadCount{
			Date:      date,
			Package:   pkg,
			Category:  value,
			Downloads: downloads,
		})
		if len(batches[label]) >= e.cfg.BatchSize {
			e.logger.WithFields(logging.Fields{
				"table": label,
				"batch": stats.Batches + 1,
			}).Info("Flushing staging batch")
			flush(label)
		}
	}
	if err := rows.Err(); err != nil {
		return stats, fmt.Errorf("warehouse stream failed: %w", err)
	}

	for table := range batches {
		flush(table)
	}

	if err := store.BuildIndexes(); err != nil {
		return stats, fmt.Errorf("staging index build failed: %w", err)
	}
	if err := store.AggregateAll(date); err != nil {
		return stats, fmt.Errorf("aggregate computation failed: %w", err)
	}

	e.logger.WithFields(logging.Fields{
		"date":           date,
		"rows":           stats.Rows,
		"batches":        stats.Batches,
		"failed_batches": stats.FailedBatches,
	}).Info("Staging complete")

	return stats, nil
}
