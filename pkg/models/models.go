package models

// AllPackages is the synthetic package holding the cross-package aggregate
// for each (date, category).
const AllPackages = "__all__"

// NullCategory is the sentinel stored for rows whose source category was
// NULL (e.g. downloads with no python version reported).
const NullCategory = "null"

// MaxPackageLength bounds the package dimension; rows with longer names are
// dropped during staging.
const MaxPackageLength = 128

// Count table names. These exist in both the staging and operational stores
// with the same shape and composite primary key (date, package, category).
const (
	TableOverall     = "overall"
	TablePythonMajor = "python_major"
	TablePythonMinor = "python_minor"
	TableSystem      = "system"
	TableRecent      = "recent"
)

// CountTables lists the date-keyed tables in the order every multi-table
// operation (staging, publication, retention) walks them.
var CountTables = []string{TableOverall, TablePythonMajor, TablePythonMinor, TableSystem}

// Overall categories
const (
	CategoryWithMirrors    = "with_mirrors"
	CategoryWithoutMirrors = "without_mirrors"
)

// Recent rollup periods
const (
	PeriodDay   = "day"
	PeriodWeek  = "week"
	PeriodMonth = "month"
)

// RecentPeriods lists the rollup windows in processing order.
var RecentPeriods = []string{PeriodDay, PeriodWeek, PeriodMonth}

// DownloadCount is one row of a count table. Date is an ISO date string
// (YYYY-MM-DD); Category is the dimension value within the table.
type DownloadCount struct {
	Date      string `json:"date"`
	Package   string `json:"package"`
	Category  string `json:"category"`
	Downloads int64  `json:"downloads"`
}

// PhaseReport describes one phase of an ETL run.
type PhaseReport struct {
	Success        bool    `json:"success"`
	Error          string  `json:"error,omitempty"`
	Rows           int64   `json:"rows,omitempty"`
	Batches        int     `json:"batches,omitempty"`
	ElapsedSeconds float64 `json:"elapsed_seconds"`
}

// RunReport is the structured outcome of a single ETL run for one date.
type RunReport struct {
	RunID   string `json:"run_id"`
	Date    string `json:"date"`
	Success bool   `json:"success"`

	Staging     PhaseReport  `json:"staging"`
	Publish     PhaseReport  `json:"publish"`
	Rollup      *PhaseReport `json:"rollup,omitempty"`
	Maintenance *PhaseReport `json:"maintenance,omitempty"`
	Purge       *PhaseReport `json:"purge,omitempty"`

	RowsProcessed    int64   `json:"rows_processed"`
	BatchesProcessed int     `json:"batches_processed"`
	BatchesFailed    int     `json:"batches_failed"`
	ElapsedSeconds   float64 `json:"elapsed_seconds"`
}

// DayResult is the outcome for one date within a backfill.
type DayResult struct {
	Skipped      bool       `json:"skipped,omitempty"`
	ExistingRows int64      `json:"existing_rows,omitempty"`
	Report       *RunReport `json:"report,omitempty"`
	Error        string     `json:"error,omitempty"`
}

// BackfillReport is the outcome of a sequential backfill over a date range.
type BackfillReport struct {
	StartDate          string               `json:"start_date"`
	EndDate            string               `json:"end_date"`
	Days               map[string]DayResult `json:"days"`
	LastSuccessfulDate string               `json:"last_successful_date,omitempty"`
	RecentUpdated      bool                 `json:"recent_updated"`
	RecentError        string               `json:"recent_error,omitempty"`
	ElapsedSeconds     float64              `json:"elapsed_seconds"`
}

// FailedDates returns the dates in the range that errored, in no particular
// order.
func (r *BackfillReport) FailedDates() []string {
	var failed []string
	for date, result := range r.Days {
		if result.Error != "" {
			failed = append(failed, date)
		}
	}
	return failed
}

// MonthBackfillReport is the outcome of a month-batch backfill, keyed by
// YYYY-MM.
type MonthBackfillReport struct {
	Months         map[string]*BackfillReport `json:"months"`
	RecentUpdated  bool                       `json:"recent_updated"`
	RecentError    string                     `json:"recent_error,omitempty"`
	ElapsedSeconds float64                    `json:"elapsed_seconds"`
}

// RangeSummary aggregates completeness over a date range.
type RangeSummary struct {
	TotalDays       int     `json:"total_days"`
	DaysWithData    int     `json:"days_with_data"`
	DaysMissing     int     `json:"days_missing"`
	PercentComplete float64 `json:"percent_complete"`
}

// DayStatus reports whether operational data exists for one date.
type DayStatus struct {
	HasData   bool  `json:"has_data"`
	Rows      int64 `json:"rows,omitempty"`
	Downloads int64 `json:"downloads,omitempty"`
}

// RangeStatus is the range-completeness report returned by the backfill
// status query.
type RangeStatus struct {
	Summary RangeSummary         `json:"summary"`
	Dates   map[string]DayStatus `json:"dates"`
	Missing []string             `json:"missing,omitempty"`
}
