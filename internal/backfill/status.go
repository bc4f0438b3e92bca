package backfill

import (
	"context"
	"fmt"
	"math"
	"time"

	"pkgstats/pkg/models"
)

// Status reports which dates in the range have published data, from a single
// grouped scan over the overall table.
func (o *Orchestrator) Status(ctx context.Context, startDate, endDate string) (*models.RangeStatus, error) {
	start, err := parseDay(startDate)
	if err != nil {
		return nil, err
	}
	end, err := parseDay(endDate)
	if err != nil {
		return nil, err
	}
	if end.Before(start) {
		return nil, fmt.Errorf("end date %s before start date %s", endDate, startDate)
	}

	rows, err := o.db.QueryContext(ctx, `
		SELECT date, COUNT(*) AS row_count, SUM(downloads) AS total_downloads
		FROM overall
		WHERE date >= $1 AND date <= $2
		GROUP BY date
		ORDER BY date`, startDate, endDate)
	if err != nil {
		return nil, fmt.Errorf("query range status: %w", err)
	}
	defer rows.Close()

	existing := make(map[string]models.DayStatus)
	for rows.Next() {
		var (
			day       time.Time
			count     int64
			downloads int64
		)
		if err := rows.Scan(&day, &count, &downloads); err != nil {
			return nil, fmt.Errorf("scan range status: %w", err)
		}
		existing[day.Format("2006-01-02")] = models.DayStatus{
			HasData:   true,
			Rows:      count,
			Downloads: downloads,
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("range status stream: %w", err)
	}

	status := &models.RangeStatus{
		Dates: make(map[string]models.DayStatus),
	}
	totalDays := 0
	for current := start; !current.After(end); current = current.AddDate(0, 0, 1) {
		totalDays++
		date := current.Format("2006-01-02")
		if day, ok := existing[date]; ok {
			status.Dates[date] = day
		} else {
			status.Dates[date] = models.DayStatus{HasData: false}
			status.Missing = append(status.Missing, date)
		}
	}

	daysWithData := len(existing)
	status.Summary = models.RangeSummary{
		TotalDays:       totalDays,
		DaysWithData:    daysWithData,
		DaysMissing:     totalDays - daysWithData,
		PercentComplete: math.Round(10000*float64(daysWithData)/float64(totalDays)) / 100,
	}
	return status, nil
}
