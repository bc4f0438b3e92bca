package etl

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"pkgstats/internal/staging"
	"pkgstats/pkg/config"
	"pkgstats/pkg/logging"
	"pkgstats/pkg/models"
)

// Pipeline runs the daily ETL for one date: stage the warehouse counts into
// a disposable local store, publish them atomically into the operational
// database, then update the recent rollups and trim old data.
type Pipeline struct {
	cfg    config.Pipeline
	logger logging.Logger

	extractor *Extractor
	publisher *Publisher
	rollup    *Rollup
	retention *Retention
	metrics   *Metrics
}

func NewPipeline(warehouse, operational *sql.DB, cfg config.Pipeline, logger logging.Logger, metrics *Metrics) *Pipeline {
	return &Pipeline{
		cfg:       cfg,
		logger:    logger,
		extractor: NewExtractor(warehouse, cfg, logger),
		publisher: NewPublisher(operational, cfg, logger),
		rollup:    NewRollup(operational, logger),
		retention: NewRetention(operational, cfg, logger),
		metrics:   metrics,
	}
}

// RunOptions control a single pipeline run.
type RunOptions struct {
	// Date to process, YYYY-MM-DD. Empty means yesterday.
	Date string
	// Purge old data and run maintenance after publishing.
	Purge bool
	// UpdateRecent recomputes the recent rollups. Backfills disable this
	// per day and run one rollup at the end instead.
	UpdateRecent bool
}

// DefaultRunOptions is the configuration of the nightly scheduled run.
func DefaultRunOptions() RunOptions {
	return RunOptions{Purge: true, UpdateRecent: true}
}

// Yesterday returns the default processing date.
func Yesterday() string {
	return time.Now().UTC().AddDate(0, 0, -1).Format("2006-01-02")
}

// Run executes the pipeline for one date. The returned report is always
// populated. The error is non-nil when staging or publishing failed; rollup
// and maintenance problems are recorded in the report but do not fail the
// run, since the day's data is already live.
func (p *Pipeline) Run(ctx context.Context, opts RunOptions) (*models.RunReport, error) {
	date := opts.Date
	if date == "" {
		date = Yesterday()
	}

	report := &models.RunReport{
		RunID: uuid.New().String(),
		Date:  date,
	}
	start := time.Now()
	defer func() {
		report.ElapsedSeconds = time.Since(start).Seconds()
		p.metrics.observeRun(&runObservation{
			success:       report.Success,
			elapsed:       report.ElapsedSeconds,
			rows:          report.RowsProcessed,
			failedBatches: report.BatchesFailed,
		})
	}()

	log := p.logger.WithFields(logging.Fields{"run_id": report.RunID, "date": date})
	log.Info("Starting ETL run")

	store, err := staging.Open(p.cfg.StagingDir, date, p.logger)
	if err != nil {
		report.Staging.Error = err.Error()
		return report, fmt.Errorf("open staging store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.WithFields(logging.Fields{"error": err}).Warn("Staging cleanup failed")
		}
	}()

	stageStart := time.Now()
	stats, err := p.extractor.Stage(ctx, date, store)
	report.Staging.ElapsedSeconds = time.Since(stageStart).Seconds()
	report.Staging.Rows = stats.Rows
	report.Staging.Batches = stats.Batches
	report.RowsProcessed = stats.Rows
	report.BatchesProcessed = stats.Batches
	report.BatchesFailed = stats.FailedBatches
	if err != nil {
		report.Staging.Error = err.Error()
		return report, fmt.Errorf("staging failed: %w", err)
	}
	report.Staging.Success = true

	publishStart := time.Now()
	published, err := p.publisher.Publish(ctx, date, store)
	report.Publish.ElapsedSeconds = time.Since(publishStart).Seconds()
	report.Publish.Rows = published
	if err != nil {
		report.Publish.Error = err.Error()
		return report, fmt.Errorf("publish failed: %w", err)
	}
	report.Publish.Success = true
	report.Success = true

	if opts.UpdateRecent {
		report.Rollup = p.runPhase(func() error {
			return p.rollup.UpdateRecent(ctx, date)
		})
	}

	if opts.Purge {
		report.Purge = p.runPhase(func() error {
			return p.retention.Purge(ctx, date)
		})
		report.Maintenance = p.runPhase(func() error {
			_, err := p.retention.VacuumAnalyze(ctx)
			return err
		})
	}

	log.WithFields(logging.Fields{
		"rows":            report.RowsProcessed,
		"elapsed_seconds": time.Since(start).Seconds(),
	}).Info("ETL run complete")
	return report, nil
}

// runPhase wraps a best-effort phase into a report entry.
func (p *Pipeline) runPhase(fn func() error) *models.PhaseReport {
	phase := &models.PhaseReport{}
	start := time.Now()
	err := fn()
	phase.ElapsedSeconds = time.Since(start).Seconds()
	if err != nil {
		phase.Error = err.Error()
	} else {
		phase.Success = true
	}
	return phase
}
