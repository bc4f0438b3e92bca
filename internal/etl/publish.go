package etl

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"pkgstats/internal/staging"
	"pkgstats/pkg/config"
	"pkgstats/pkg/logging"
	"pkgstats/pkg/models"
)

// Publisher moves a fully staged day from the staging store into the
// operational database. The whole swap runs in one transaction, so readers
// see either the previous day's data or the complete new day, never a
// partially loaded table.
type Publisher struct {
	db     *sql.DB
	cfg    config.Pipeline
	logger logging.Logger
}

func NewPublisher(db *sql.DB, cfg config.Pipeline, logger logging.Logger) *Publisher {
	return &Publisher{db: db, cfg: cfg, logger: logger}
}

// Publish replaces the operational rows for date in every count table with
// the staged rows. Any failure rolls the entire transaction back and leaves
// the previous data untouched. Returns the number of rows transferred.
func (p *Publisher) Publish(ctx context.Context, date string, store *staging.Store) (int64, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin publish transaction: %w", err)
	}

	var total int64
	for _, table := range models.CountTables {
		transferred, err := p.publishTable(ctx, tx, table, date, store)
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				p.logger.WithFields(logging.Fields{"error": rbErr}).Error("Rollback failed")
			}
			return 0, fmt.Errorf("publish %s: %w", table, err)
		}
		total += transferred
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit publish transaction: %w", err)
	}

	p.logger.WithFields(logging.Fields{
		"date": date,
		"rows": total,
	}).Info("Published staged data")
	return total, nil
}

func (p *Publisher) publishTable(ctx context.Context, tx *sql.Tx, table, date string, store *staging.Store) (int64, error) {
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE date = $1", table), date); err != nil {
		return 0, fmt.Errorf("clear existing rows: %w", err)
	}

	var total int64
	for offset := 0; ; offset += p.cfg.TransferChunkSize {
		chunk, err := store.ReadChunk(table, date, p.cfg.TransferChunkSize, offset)
		if err != nil {
			return total, fmt.Errorf("read staged chunk: %w", err)
		}
		if len(chunk) == 0 {
			break
		}
		if err := insertChunk(ctx, tx, table, chunk); err != nil {
			return total, fmt.Errorf("insert chunk at offset %d: %w", offset, err)
		}
		total += int64(len(chunk))
		if len(chunk) < p.cfg.TransferChunkSize {
			break
		}
	}
	return total, nil
}

func insertChunk(ctx context.Context, tx *sql.Tx, table string, rows []models.DownloadCount) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, "INSERT INTO %s (date, package, category, downloads) VALUES ", table)

	args := make([]interface{}, 0, len(rows)*4)
	for i, row := range rows {
		if i > 0 {
			sb.WriteString(", ")
		}
		base := i * 4
		fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d)", base+1, base+2, base+3, base+4)
		args = append(args, row.Date, row.Package, row.Category, row.Downloads)
	}

	_, err := tx.ExecContext(ctx, sb.String(), args...)
	return err
}
