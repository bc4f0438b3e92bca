package backfill

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"pkgstats/internal/etl"
	"pkgstats/pkg/config"
	"pkgstats/pkg/models"
)

type fakeRunner struct {
	mu        sync.Mutex
	ran       []string
	opts      []etl.RunOptions
	failDates map[string]bool
}

func (f *fakeRunner) Run(_ context.Context, opts etl.RunOptions) (*models.RunReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ran = append(f.ran, opts.Date)
	f.opts = append(f.opts, opts)
	if f.failDates[opts.Date] {
		return &models.RunReport{Date: opts.Date}, errors.New("warehouse timeout")
	}
	return &models.RunReport{Date: opts.Date, Success: true}, nil
}

type fakeRecent struct {
	mu    sync.Mutex
	dates []string
	err   error
}

func (f *fakeRecent) UpdateRecent(_ context.Context, date string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dates = append(f.dates, date)
	return f.err
}

// syncDispatcher runs jobs one after another so tests are deterministic.
type syncDispatcher struct{}

func (syncDispatcher) Dispatch(ctx context.Context, jobs []func(context.Context) error) error {
	for _, job := range jobs {
		if err := job(ctx); err != nil {
			return err
		}
	}
	return nil
}

func newTestOrchestrator(t *testing.T, runner *fakeRunner, recent *fakeRecent) (*Orchestrator, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	o := NewOrchestrator(runner, recent, db, config.DefaultPipeline(), logrus.New())
	o.dispatcher = syncDispatcher{}
	return o, mock
}

func TestSequentialProcessesRange(t *testing.T) {
	runner := &fakeRunner{}
	recent := &fakeRecent{}
	o, _ := newTestOrchestrator(t, runner, recent)

	report, err := o.Sequential(context.Background(), SequentialOptions{
		StartDate:    "2024-01-01",
		EndDate:      "2024-01-03",
		UpdateRecent: true,
	})
	require.NoError(t, err)
	require.Len(t, report.Days, 3)
	require.Equal(t, []string{"2024-01-01", "2024-01-02", "2024-01-03"}, runner.ran)
	require.Equal(t, "2024-01-03", report.LastSuccessfulDate)
	require.True(t, report.RecentUpdated)
	require.Equal(t, []string{"2024-01-03"}, recent.dates)

	// Per-day runs must not purge or touch the recent rollups.
	for _, opts := range runner.opts {
		require.False(t, opts.Purge)
		require.False(t, opts.UpdateRecent)
	}
}

func TestSequentialContinuesPastFailures(t *testing.T) {
	runner := &fakeRunner{failDates: map[string]bool{"2024-01-02": true}}
	recent := &fakeRecent{}
	o, _ := newTestOrchestrator(t, runner, recent)

	report, err := o.Sequential(context.Background(), SequentialOptions{
		StartDate:    "2024-01-01",
		EndDate:      "2024-01-03",
		UpdateRecent: true,
	})
	require.NoError(t, err)
	require.Len(t, report.Days, 3)
	require.Equal(t, []string{"2024-01-02"}, report.FailedDates())
	require.NotEmpty(t, report.Days["2024-01-02"].Error)
	require.Equal(t, "2024-01-03", report.LastSuccessfulDate)
}

func TestSequentialRecentAnchoredOnLastSuccess(t *testing.T) {
	runner := &fakeRunner{failDates: map[string]bool{"2024-01-03": true}}
	recent := &fakeRecent{}
	o, _ := newTestOrchestrator(t, runner, recent)

	report, err := o.Sequential(context.Background(), SequentialOptions{
		StartDate:    "2024-01-01",
		EndDate:      "2024-01-03",
		UpdateRecent: true,
	})
	require.NoError(t, err)
	require.Equal(t, "2024-01-02", report.LastSuccessfulDate)
	require.Equal(t, []string{"2024-01-02"}, recent.dates)
}

func TestSequentialSkipExisting(t *testing.T) {
	runner := &fakeRunner{}
	recent := &fakeRecent{}
	o, mock := newTestOrchestrator(t, runner, recent)

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM overall WHERE date").
		WithArgs("2024-01-01").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(480))
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM overall WHERE date").
		WithArgs("2024-01-02").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	report, err := o.Sequential(context.Background(), SequentialOptions{
		StartDate:    "2024-01-01",
		EndDate:      "2024-01-02",
		SkipExisting: true,
	})
	require.NoError(t, err)
	require.True(t, report.Days["2024-01-01"].Skipped)
	require.Equal(t, int64(480), report.Days["2024-01-01"].ExistingRows)
	require.Equal(t, []string{"2024-01-02"}, runner.ran)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSequentialRecentFailureReported(t *testing.T) {
	runner := &fakeRunner{}
	recent := &fakeRecent{err: errors.New("deadlock")}
	o, _ := newTestOrchestrator(t, runner, recent)

	report, err := o.Sequential(context.Background(), SequentialOptions{
		StartDate:    "2024-01-01",
		EndDate:      "2024-01-01",
		UpdateRecent: true,
	})
	require.NoError(t, err)
	require.False(t, report.RecentUpdated)
	require.NotEmpty(t, report.RecentError)
}

func TestSequentialCancellation(t *testing.T) {
	runner := &fakeRunner{}
	recent := &fakeRecent{}
	o, _ := newTestOrchestrator(t, runner, recent)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := o.Sequential(ctx, SequentialOptions{
		StartDate: "2024-01-01",
		EndDate:   "2024-01-03",
	})
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, report)
	require.Empty(t, runner.ran)
}

func TestParallelMergesChunks(t *testing.T) {
	runner := &fakeRunner{}
	recent := &fakeRecent{}
	o, _ := newTestOrchestrator(t, runner, recent)

	report, err := o.Parallel(context.Background(), ParallelOptions{
		StartDate:    "2024-01-01",
		EndDate:      "2024-01-06",
		ChunkDays:    3,
		UpdateRecent: true,
	})
	require.NoError(t, err)
	require.Len(t, report.Days, 6)

	ran := append([]string(nil), runner.ran...)
	sort.Strings(ran)
	require.Equal(t, []string{
		"2024-01-01", "2024-01-02", "2024-01-03",
		"2024-01-04", "2024-01-05", "2024-01-06",
	}, ran)

	// One rollup for the whole range, anchored on the newest loaded date.
	require.Equal(t, []string{"2024-01-06"}, recent.dates)
	require.Equal(t, "2024-01-06", report.LastSuccessfulDate)
}

func TestMonthsKeyedReports(t *testing.T) {
	runner := &fakeRunner{}
	recent := &fakeRecent{}
	o, _ := newTestOrchestrator(t, runner, recent)

	report, err := o.Months(context.Background(), MonthOptions{
		StartMonth:   "2024-01",
		EndMonth:     "2024-02",
		UpdateRecent: true,
	})
	require.NoError(t, err)
	require.Len(t, report.Months, 2)
	require.Len(t, report.Months["2024-01"].Days, 31)
	require.Len(t, report.Months["2024-02"].Days, 29)
	require.Equal(t, []string{"2024-02-29"}, recent.dates)
	require.True(t, report.RecentUpdated)
}

func TestStatusSummary(t *testing.T) {
	runner := &fakeRunner{}
	recent := &fakeRecent{}
	o, mock := newTestOrchestrator(t, runner, recent)

	mock.ExpectQuery("SELECT date, COUNT\\(\\*\\)").
		WithArgs("2024-01-01", "2024-01-05").
		WillReturnRows(sqlmock.NewRows([]string{"date", "row_count", "total_downloads"}).
			AddRow(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), 100, 5000).
			AddRow(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), 110, 5200).
			AddRow(time.Date(2024, 1, 4, 0, 0, 0, 0, time.UTC), 90, 4100))

	status, err := o.Status(context.Background(), "2024-01-01", "2024-01-05")
	require.NoError(t, err)
	require.Equal(t, 5, status.Summary.TotalDays)
	require.Equal(t, 3, status.Summary.DaysWithData)
	require.Equal(t, 2, status.Summary.DaysMissing)
	require.Equal(t, 60.0, status.Summary.PercentComplete)
	require.Equal(t, []string{"2024-01-03", "2024-01-05"}, status.Missing)
	require.True(t, status.Dates["2024-01-01"].HasData)
	require.Equal(t, int64(5000), status.Dates["2024-01-01"].Downloads)
	require.False(t, status.Dates["2024-01-03"].HasData)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBackfillYearAlreadyComplete(t *testing.T) {
	runner := &fakeRunner{}
	recent := &fakeRecent{}
	o, mock := newTestOrchestrator(t, runner, recent)

	rows := sqlmock.NewRows([]string{"date", "row_count", "total_downloads"})
	for day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC); day.Year() == 2024; day = day.AddDate(0, 0, 1) {
		rows.AddRow(day, 100, 1000)
	}
	mock.ExpectQuery("SELECT date, COUNT\\(\\*\\)").
		WithArgs("2024-01-01", "2024-12-31").
		WillReturnRows(rows)

	report, err := o.BackfillYear(context.Background(), 2024, 2)
	require.NoError(t, err)
	require.Nil(t, report)
	require.Empty(t, runner.ran)
	require.NoError(t, mock.ExpectationsWereMet())
}
