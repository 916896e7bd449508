package flow

import (
	"errors"
	"fmt"
	"time"
)

// ErrBadDate reports a date that failed parsing or the future-only rule.
var ErrBadDate = errors.New("flow: invalid date")

const dateLayout = "02/01/2006"

// ParseFutureDate parses DD/MM/YYYY and requires the date to be strictly
// after today. Today itself is rejected.
func ParseFutureDate(raw string, now time.Time) (time.Time, error) {
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrBadDate, raw)
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if !t.After(today) {
		return time.Time{}, fmt.Errorf("%w: %q is not in the future", ErrBadDate, raw)
	}
	return t, nil
}

// FormatDate renders a date in the DD/MM/YYYY form users see.
func FormatDate(t time.Time) string { return t.Format(dateLayout) }

// trainingSlots are the daily bookable session times.
var trainingSlots = []string{"18:00", "19:00", "20:00", "21:00"}

// bookableDates returns the next n days starting tomorrow.
func bookableDates(now time.Time, n int) []time.Time {
	dates := make([]time.Time, 0, n)
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	for i := 1; i <= n; i++ {
		dates = append(dates, day.AddDate(0, 0, i))
	}
	return dates
}

// freeSlots filters the daily slots by the ones already reserved.
func freeSlots(reserved []string) []string {
	taken := make(map[string]struct{}, len(reserved))
	for _, r := range reserved {
		taken[r] = struct{}{}
	}
	var free []string
	for _, slot := range trainingSlots {
		if _, ok := taken[slot]; !ok {
			free = append(free, slot)
		}
	}
	return free
}
