package filter

import (
	"fmt"
	"strings"
	"time"

	"github.com/pfrederiksen/partyfinder/internal/event"
)

// ParseDateRange parses a date range string into start and end days.
//
// Supported formats:
//   - "2026-10-16" - a single day
//   - "2026-10-16..2026-10-18" - an inclusive range
//   - "18 oct" or "sáb 18 oct" - a single day, year inferred from now
//   - "octubre" or "oct" - the entire month, year inferred from now
//
// A month already past in now's year is taken to mean next year.
func ParseDateRange(input string, now time.Time) (*time.Time, *time.Time, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, nil, fmt.Errorf("date range cannot be empty")
	}

	if from, to, ok := strings.Cut(input, ".."); ok {
		start, err := time.Parse("2006-01-02", strings.TrimSpace(from))
		if err != nil {
			return nil, nil, fmt.Errorf("invalid start date %q", from)
		}
		end, err := time.Parse("2006-01-02", strings.TrimSpace(to))
		if err != nil {
			return nil, nil, fmt.Errorf("invalid end date %q", to)
		}
		if start.After(end) {
			return nil, nil, fmt.Errorf("start date must be before end date")
		}
		return &start, &end, nil
	}

	if month, ok := parseMonth(input); ok {
		year := now.Year()
		if month < now.Month() {
			year++
		}
		from := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
		to := time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC)
		return &from, &to, nil
	}

	if day := event.ParseDateText(input, now); !day.IsZero() {
		return &day, &day, nil
	}

	return nil, nil, fmt.Errorf("invalid date range format. Use '2026-10-16', '2026-10-16..2026-10-18', '18 oct' or 'octubre'")
}

var months = map[string]time.Month{
	"ene": time.January, "enero": time.January,
	"feb": time.February, "febrero": time.February,
	"mar": time.March, "marzo": time.March,
	"abr": time.April, "abril": time.April,
	"may": time.May, "mayo": time.May,
	"jun": time.June, "junio": time.June,
	"jul": time.July, "julio": time.July,
	"ago": time.August, "agosto": time.August,
	"sep": time.September, "sept": time.September, "septiembre": time.September,
	"oct": time.October, "octubre": time.October,
	"nov": time.November, "noviembre": time.November,
	"dic": time.December, "diciembre": time.December,
}

// parseMonth converts a Spanish month name to time.Month
func parseMonth(name string) (time.Month, bool) {
	m, ok := months[strings.ToLower(strings.TrimSpace(name))]
	return m, ok
}
