package event

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var spanishMonths = map[string]time.Month{
	"ene": time.January, "feb": time.February, "mar": time.March, "abr": time.April,
	"may": time.May, "jun": time.June, "jul": time.July, "ago": time.August,
	"sep": time.September, "set": time.September, "oct": time.October,
	"nov": time.November, "dic": time.December,
}

var (
	isoDatePattern   = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`)
	slashDatePattern = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})/(\d{2,4})\b`)
	dayMonthPattern  = regexp.MustCompile(`(?i)\b(\d{1,2})\s+(?:de\s+)?([a-záéíóú]{3,})`)
	clockPattern     = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)
)

// ParseDateText parses the date text found in accessible labels, such as
// "sáb 18 oct", "18 de octubre" or "18/10/2026". When no year is given the
// date is placed in now's year, or the next one if its month already passed.
// Returns the zero time if nothing could be parsed.
func ParseDateText(text string, now time.Time) time.Time {
	text = strings.TrimSpace(text)
	if text == "" {
		return time.Time{}
	}

	if m := isoDatePattern.FindStringSubmatch(text); m != nil {
		t, err := time.Parse("2006-01-02", m[0])
		if err == nil {
			return t
		}
	}

	if m := slashDatePattern.FindStringSubmatch(text); m != nil {
		day, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		year, _ := strconv.Atoi(m[3])
		if year < 100 {
			year += 2000
		}
		if validDay(year, month, day) {
			return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
		}
	}

	for _, m := range dayMonthPattern.FindAllStringSubmatch(text, -1) {
		prefix := strings.ToLower(FoldAccents(m[2]))
		if len(prefix) > 3 {
			prefix = prefix[:3]
		}
		month, ok := spanishMonths[prefix]
		if !ok {
			continue
		}
		day, _ := strconv.Atoi(m[1])
		year := now.Year()
		if month < now.Month() {
			year++
		}
		if validDay(year, int(month), day) {
			return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
		}
	}

	return time.Time{}
}

// NormalizeClock returns "HH:MM" for inputs like "0:30" or "23:00", or ""
// when the input is not a time of day.
func NormalizeClock(s string) string {
	m := clockPattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return ""
	}
	h, _ := strconv.Atoi(m[1])
	minute, _ := strconv.Atoi(m[2])
	if h > 23 || minute > 59 {
		return ""
	}
	return time.Date(2000, 1, 1, h, minute, 0, 0, time.UTC).Format("15:04")
}

// FormatEpoch renders epoch seconds as a date and a time of day in loc.
func FormatEpoch(sec int64, loc *time.Location) (date, clock string) {
	if sec <= 0 {
		return "", ""
	}
	t := time.Unix(sec, 0).In(loc)
	return t.Format("2006-01-02"), t.Format("15:04")
}

func validDay(year, month, day int) bool {
	if month < 1 || month > 12 || day < 1 {
		return false
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	return t.Day() == day
}
