package backfill

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"pkgstats/internal/etl"
	"pkgstats/pkg/config"
	"pkgstats/pkg/logging"
	"pkgstats/pkg/models"
)

// Runner executes the ETL pipeline for one date. Satisfied by *etl.Pipeline.
type Runner interface {
	Run(ctx context.Context, opts etl.RunOptions) (*models.RunReport, error)
}

// RecentUpdater recomputes the recent rollups. Satisfied by *etl.Rollup.
type RecentUpdater interface {
	UpdateRecent(ctx context.Context, date string) error
}

// Orchestrator replays historical dates through the ETL pipeline. Per-day
// runs disable the recent rollup and retention so backfilled days cannot
// clobber windows anchored on the wrong date; one rollup runs at the end,
// anchored on the newest successfully loaded date.
type Orchestrator struct {
	runner     Runner
	recent     RecentUpdater
	db         *sql.DB
	cfg        config.Pipeline
	logger     logging.Logger
	dispatcher Dispatcher
}

func NewOrchestrator(runner Runner, recent RecentUpdater, db *sql.DB, cfg config.Pipeline, logger logging.Logger) *Orchestrator {
	return &Orchestrator{
		runner:     runner,
		recent:     recent,
		db:         db,
		cfg:        cfg,
		logger:     logger,
		dispatcher: NewDispatcher(cfg.BackfillMaxParallel),
	}
}

// SequentialOptions configure a day-by-day backfill.
type SequentialOptions struct {
	StartDate    string
	EndDate      string
	Delay        time.Duration
	SkipExisting bool
	UpdateRecent bool
}

// Sequential processes every date in the range in order. A failing day is
// recorded and the backfill moves on; only invalid input or cancellation
// abort the run. The returned report always covers the days attempted so
// far.
func (o *Orchestrator) Sequential(ctx context.Context, opts SequentialOptions) (*models.BackfillReport, error) {
	start, err := parseDay(opts.StartDate)
	if err != nil {
		return nil, err
	}
	end, err := parseDay(opts.EndDate)
	if err != nil {
		return nil, err
	}
	if end.Before(start) {
		return nil, fmt.Errorf("end date %s before start date %s", opts.EndDate, opts.StartDate)
	}

	report := &models.BackfillReport{
		StartDate: opts.StartDate,
		EndDate:   opts.EndDate,
		Days:      make(map[string]models.DayResult),
	}
	startTime := time.Now()
	defer func() { report.ElapsedSeconds = time.Since(startTime).Seconds() }()

	totalDays := int(end.Sub(start).Hours()/24) + 1
	processed := 0

	for current := start; !current.After(end); current = current.AddDate(0, 0, 1) {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		date := current.Format("2006-01-02")
		processed++

		if opts.SkipExisting {
			count, err := o.existingRows(ctx, date)
			if err != nil {
				report.Days[date] = models.DayResult{Error: err.Error()}
				continue
			}
			if count > 0 {
				o.logger.WithFields(logging.Fields{
					"date":          date,
					"existing_rows": count,
				}).Info("Skipping date, data already exists")
				report.Days[date] = models.DayResult{Skipped: true, ExistingRows: count}
				continue
			}
		}

		o.logger.WithFields(logging.Fields{
			"date":      date,
			"processed": processed,
			"total":     totalDays,
		}).Info("Backfilling date")

		runReport, err := o.runner.Run(ctx, etl.RunOptions{Date: date, Purge: false, UpdateRecent: false})
		if err != nil {
			o.logger.WithFields(logging.Fields{"date": date, "error": err}).Error("Backfill day failed")
			report.Days[date] = models.DayResult{Report: runReport, Error: err.Error()}
			continue
		}
		report.Days[date] = models.DayResult{Report: runReport}
		report.LastSuccessfulDate = date

		if current.Before(end) && opts.Delay > 0 {
			if err := sleepCtx(ctx, opts.Delay); err != nil {
				return report, err
			}
		}
	}

	if opts.UpdateRecent && report.LastSuccessfulDate != "" {
		o.updateRecent(ctx, report.LastSuccessfulDate, &report.RecentUpdated, &report.RecentError)
	}
	return report, nil
}

// ParallelOptions configure a chunked parallel backfill.
type ParallelOptions struct {
	StartDate    string
	EndDate      string
	ChunkDays    int
	MaxParallel  int
	Delay        time.Duration
	SkipExisting bool
	UpdateRecent bool
}

// Parallel splits the range into chunks and backfills them concurrently,
// each chunk running as its own sequential backfill. The recent rollup runs
// once after every chunk has finished.
func (o *Orchestrator) Parallel(ctx context.Context, opts ParallelOptions) (*models.BackfillReport, error) {
	chunkDays := opts.ChunkDays
	if chunkDays < 1 {
		chunkDays = o.cfg.BackfillChunkDays
	}
	chunks, err := DateRanges(opts.StartDate, opts.EndDate, chunkDays)
	if err != nil {
		return nil, err
	}

	o.logger.WithFields(logging.Fields{
		"start":  opts.StartDate,
		"end":    opts.EndDate,
		"chunks": len(chunks),
	}).Info("Starting parallel backfill")

	dispatcher := o.dispatcher
	if opts.MaxParallel > 0 {
		dispatcher = NewDispatcher(opts.MaxParallel)
	}

	report := &models.BackfillReport{
		StartDate: opts.StartDate,
		EndDate:   opts.EndDate,
		Days:      make(map[string]models.DayResult),
	}
	startTime := time.Now()

	var mu sync.Mutex
	jobs := make([]func(context.Context) error, len(chunks))
	for i, chunk := range chunks {
		chunk := chunk
		jobs[i] = func(ctx context.Context) error {
			chunkReport, err := o.Sequential(ctx, SequentialOptions{
				StartDate:    chunk.Start,
				EndDate:      chunk.End,
				Delay:        opts.Delay,
				SkipExisting: opts.SkipExisting,
				UpdateRecent: false,
			})
			if chunkReport != nil {
				mu.Lock()
				for date, result := range chunkReport.Days {
					report.Days[date] = result
				}
				if chunkReport.LastSuccessfulDate > report.LastSuccessfulDate {
					report.LastSuccessfulDate = chunkReport.LastSuccessfulDate
				}
				mu.Unlock()
			}
			return err
		}
	}

	dispatchErr := dispatcher.Dispatch(ctx, jobs)
	report.ElapsedSeconds = time.Since(startTime).Seconds()
	if dispatchErr != nil {
		return report, dispatchErr
	}

	if opts.UpdateRecent && report.LastSuccessfulDate != "" {
		o.updateRecent(ctx, report.LastSuccessfulDate, &report.RecentUpdated, &report.RecentError)
	}
	return report, nil
}

// MonthOptions configure a month-batch backfill.
type MonthOptions struct {
	StartMonth   string
	EndMonth     string
	Delay        time.Duration
	SkipExisting bool
	UpdateRecent bool
}

// Months backfills whole calendar months in order, keyed by YYYY-MM. The
// recent rollup runs once at the end, anchored on the final month's last
// day.
func (o *Orchestrator) Months(ctx context.Context, opts MonthOptions) (*models.MonthBackfillReport, error) {
	ranges, err := MonthRanges(opts.StartMonth, opts.EndMonth)
	if err != nil {
		return nil, err
	}

	report := &models.MonthBackfillReport{Months: make(map[string]*models.BackfillReport)}
	startTime := time.Now()
	defer func() { report.ElapsedSeconds = time.Since(startTime).Seconds() }()

	var lastEnd string
	for i, monthRange := range ranges {
		monthKey := monthRange.Start[:7]
		o.logger.WithFields(logging.Fields{
			"month":     monthKey,
			"processed": i,
			"total":     len(ranges),
		}).Info("Backfilling month")

		monthReport, err := o.Sequential(ctx, SequentialOptions{
			StartDate:    monthRange.Start,
			EndDate:      monthRange.End,
			Delay:        opts.Delay,
			SkipExisting: opts.SkipExisting,
			UpdateRecent: false,
		})
		if monthReport != nil {
			report.Months[monthKey] = monthReport
		}
		if err != nil {
			return report, err
		}
		lastEnd = monthRange.End
	}

	if opts.UpdateRecent && lastEnd != "" {
		o.updateRecent(ctx, lastEnd, &report.RecentUpdated, &report.RecentError)
	}
	return report, nil
}

// BackfillYear fills any gaps in a calendar year. Returns nil with no error
// when the year is already complete.
func (o *Orchestrator) BackfillYear(ctx context.Context, year, maxParallel int) (*models.BackfillReport, error) {
	startDate := fmt.Sprintf("%04d-01-01", year)
	endDate := fmt.Sprintf("%04d-12-31", year)

	status, err := o.Status(ctx, startDate, endDate)
	if err != nil {
		return nil, err
	}
	if status.Summary.DaysMissing == 0 {
		o.logger.WithFields(logging.Fields{"year": year}).Info("Year already complete")
		return nil, nil
	}

	o.logger.WithFields(logging.Fields{
		"year":    year,
		"missing": status.Summary.DaysMissing,
	}).Info("Starting year backfill")

	return o.Parallel(ctx, ParallelOptions{
		StartDate:    startDate,
		EndDate:      endDate,
		ChunkDays:    30,
		MaxParallel:  maxParallel,
		Delay:        o.cfg.BackfillDelay,
		SkipExisting: true,
		UpdateRecent: true,
	})
}

// BackfillRecentDays reprocesses the trailing N days ending yesterday,
// skipping days that already have data.
func (o *Orchestrator) BackfillRecentDays(ctx context.Context, days int) (*models.BackfillReport, error) {
	if days < 1 {
		return nil, fmt.Errorf("days must be positive, got %d", days)
	}
	end := time.Now().UTC().AddDate(0, 0, -1)
	start := end.AddDate(0, 0, -(days - 1))

	return o.Sequential(ctx, SequentialOptions{
		StartDate:    start.Format("2006-01-02"),
		EndDate:      end.Format("2006-01-02"),
		Delay:        o.cfg.BackfillDelay,
		SkipExisting: true,
		UpdateRecent: true,
	})
}

func (o *Orchestrator) existingRows(ctx context.Context, date string) (int64, error) {
	var count int64
	err := o.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM overall WHERE date = $1", date).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("check existing data for %s: %w", date, err)
	}
	return count, nil
}

func (o *Orchestrator) updateRecent(ctx context.Context, date string, updated *bool, errOut *string) {
	o.logger.WithFields(logging.Fields{"date": date}).Info("Updating recent rollups after backfill")
	if err := o.recent.UpdateRecent(ctx, date); err != nil {
		o.logger.WithFields(logging.Fields{"error": err}).Error("Recent rollup after backfill failed")
		*errOut = err.Error()
		return
	}
	*updated = true
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
