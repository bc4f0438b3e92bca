package scheduler

import (
	"context"
	"sync"
	"time"

	"pkgstats/internal/etl"
	"pkgstats/pkg/logging"
	"pkgstats/pkg/models"
)

// Runner executes one pipeline run. Satisfied by *etl.Pipeline.
type Runner interface {
	Run(ctx context.Context, opts etl.RunOptions) (*models.RunReport, error)
}

// DailyJob triggers the ETL pipeline once a day for yesterday's data,
// shortly after the warehouse has the full day available.
type DailyJob struct {
	runner  Runner
	logger  logging.Logger
	runHour int
	now     func() time.Time
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// Config holds configuration for the daily job.
type Config struct {
	Runner Runner
	Logger logging.Logger
	// RunHour is the UTC hour of day to start the run (default: 1).
	RunHour int
}

func NewDailyJob(cfg Config) *DailyJob {
	runHour := cfg.RunHour
	if runHour <= 0 || runHour > 23 {
		runHour = 1
	}
	return &DailyJob{
		runner:  cfg.Runner,
		logger:  cfg.Logger,
		runHour: runHour,
		now:     time.Now,
		stopCh:  make(chan struct{}),
	}
}

// Start begins the background scheduling loop.
func (j *DailyJob) Start() {
	j.wg.Add(1)
	go j.run()
	j.logger.WithFields(logging.Fields{"run_hour_utc": j.runHour}).Info("Daily ETL job started")
}

// Stop gracefully stops the job. A run already in progress finishes.
func (j *DailyJob) Stop() {
	close(j.stopCh)
	j.wg.Wait()
	j.logger.Info("Daily ETL job stopped")
}

func (j *DailyJob) run() {
	defer j.wg.Done()
	for {
		wait := time.Until(j.nextRun(j.now().UTC()))
		timer := time.NewTimer(wait)
		select {
		case <-j.stopCh:
			timer.Stop()
			return
		case <-timer.C:
		}
		j.runOnce()
	}
}

func (j *DailyJob) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), 6*time.Hour)
	defer cancel()

	report, err := j.runner.Run(ctx, etl.DefaultRunOptions())
	if err != nil {
		j.logger.WithFields(logging.Fields{"error": err}).Error("Scheduled ETL run failed")
		return
	}
	j.logger.WithFields(logging.Fields{
		"run_id": report.RunID,
		"date":   report.Date,
		"rows":   report.RowsProcessed,
	}).Info("Scheduled ETL run complete")
}

// nextRun returns the next occurrence of the run hour strictly after now.
func (j *DailyJob) nextRun(now time.Time) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), j.runHour, 0, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
