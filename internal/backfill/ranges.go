package backfill

import (
	"fmt"
	"time"
)

// Range is an inclusive date span, bounds in YYYY-MM-DD.
type Range struct {
	Start string
	End   string
}

func parseDay(date string) (time.Time, error) {
	t, err := time.Parse("2006-01-02", date)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", date, err)
	}
	return t, nil
}

// DateRanges splits [startDate, endDate] into consecutive chunks of at most
// chunkDays days. The final chunk is clamped to endDate.
func DateRanges(startDate, endDate string, chunkDays int) ([]Range, error) {
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
	if chunkDays < 1 {
		return nil, fmt.Errorf("chunk days must be positive, got %d", chunkDays)
	}

	var chunks []Range
	for current := start; !current.After(end); {
		chunkEnd := current.AddDate(0, 0, chunkDays-1)
		if chunkEnd.After(end) {
			chunkEnd = end
		}
		chunks = append(chunks, Range{
			Start: current.Format("2006-01-02"),
			End:   chunkEnd.Format("2006-01-02"),
		})
		current = chunkEnd.AddDate(0, 0, 1)
	}
	return chunks, nil
}

// MonthRanges returns one Range per calendar month from startMonth through
// endMonth, both in YYYY-MM.
func MonthRanges(startMonth, endMonth string) ([]Range, error) {
	start, err := time.Parse("2006-01", startMonth)
	if err != nil {
		return nil, fmt.Errorf("invalid month %q: %w", startMonth, err)
	}
	end, err := time.Parse("2006-01", endMonth)
	if err != nil {
		return nil, fmt.Errorf("invalid month %q: %w", endMonth, err)
	}
	if end.Before(start) {
		return nil, fmt.Errorf("end month %s before start month %s", endMonth, startMonth)
	}

	var ranges []Range
	for current := start; !current.After(end); current = current.AddDate(0, 1, 0) {
		lastDay := current.AddDate(0, 1, -1)
		ranges = append(ranges, Range{
			Start: current.Format("2006-01-02"),
			End:   lastDay.Format("2006-01-02"),
		})
	}
	return ranges, nil
}
