package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"pkgstats/internal/etl"
	"pkgstats/pkg/models"
)

type fakeRunner struct {
	mu   sync.Mutex
	runs []etl.RunOptions
}

func (f *fakeRunner) Run(_ context.Context, opts etl.RunOptions) (*models.RunReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, opts)
	return &models.RunReport{RunID: "test", Date: "2024-01-15", Success: true}, nil
}

func TestNextRun(t *testing.T) {
	job := NewDailyJob(Config{Runner: &fakeRunner{}, Logger: logrus.New(), RunHour: 1})

	cases := []struct {
		now  time.Time
		want time.Time
	}{
		{
			// Before today's run hour: run today.
			now:  time.Date(2024, 1, 15, 0, 30, 0, 0, time.UTC),
			want: time.Date(2024, 1, 15, 1, 0, 0, 0, time.UTC),
		},
		{
			// After today's run hour: run tomorrow.
			now:  time.Date(2024, 1, 15, 2, 0, 0, 0, time.UTC),
			want: time.Date(2024, 1, 16, 1, 0, 0, 0, time.UTC),
		},
		{
			// Exactly at the run hour: run tomorrow, never twice.
			now:  time.Date(2024, 1, 15, 1, 0, 0, 0, time.UTC),
			want: time.Date(2024, 1, 16, 1, 0, 0, 0, time.UTC),
		},
	}
	for _, tc := range cases {
		if got := job.nextRun(tc.now); !got.Equal(tc.want) {
			t.Errorf("nextRun(%v) = %v, want %v", tc.now, got, tc.want)
		}
	}
}

func TestNewDailyJobClampsHour(t *testing.T) {
	job := NewDailyJob(Config{Runner: &fakeRunner{}, Logger: logrus.New(), RunHour: 99})
	if job.runHour != 1 {
		t.Fatalf("expected default run hour 1, got %d", job.runHour)
	}
}

func TestRunOnceUsesDefaultOptions(t *testing.T) {
	runner := &fakeRunner{}
	job := NewDailyJob(Config{Runner: runner, Logger: logrus.New()})

	job.runOnce()

	if len(runner.runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(runner.runs))
	}
	opts := runner.runs[0]
	if !opts.Purge || !opts.UpdateRecent {
		t.Fatalf("scheduled run should purge and update recent, got %+v", opts)
	}
	if opts.Date != "" {
		t.Fatalf("scheduled run should default to yesterday, got %q", opts.Date)
	}
}

func TestStartStop(t *testing.T) {
	runner := &fakeRunner{}
	job := NewDailyJob(Config{Runner: runner, Logger: logrus.New(), RunHour: 23})
	job.Start()
	job.Stop()
}
