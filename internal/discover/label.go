package discover

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/pfrederiksen/partyfinder/internal/event"
)

// Labels come in Spanish or English; any field may be missing, so each
// field ends at the next field marker, whichever it is.
const (
	nameMarker     = `(?:Evento|Event)\s*:`
	ageMarker      = `(?:Edad m[ií]nima|Minimum age)\s*:`
	dateMarker     = `(?:Fecha|Date)\s*:`
	scheduleMarker = `(?:Horario|Schedule)\s*:`
	fieldEnd       = `(?:\.?\s*(?:` + nameMarker + `|` + ageMarker + `|` + dateMarker + `|` + scheduleMarker + `)|\.?\s*$)`
)

var (
	labelMarker   = regexp.MustCompile(`\b` + nameMarker)
	labelName     = regexp.MustCompile(nameMarker + `\s*(.+?)` + fieldEnd)
	labelAge      = regexp.MustCompile(ageMarker + `\s*(.+?)` + fieldEnd)
	labelDate     = regexp.MustCompile(dateMarker + `\s*(.+?)` + fieldEnd)
	labelSchedule = regexp.MustCompile(scheduleMarker + `\s*(?:de|from)\s*(\d{1,2}:\d{2})\s*(?:a|to)\s*(\d{1,2}:\d{2})`)
	digits        = regexp.MustCompile(`\d+`)
)

// Label is the structured content of an event link's accessible label:
// "Evento: <name>. Edad mínima: <n>. Fecha: <text>. Horario: de HH:MM a HH:MM."
// or "Event: <name>. Minimum age: <n>. Date: <text>. Schedule: from HH:MM to HH:MM."
// Any part may be missing.
type Label struct {
	Name       string
	AgeMinimum int
	Date       string
	StartTime  string
	EndTime    string
}

// IsEventLabel reports whether label carries the event marker.
func IsEventLabel(label string) bool {
	return labelMarker.MatchString(label)
}

// ParseLabel extracts the fields of an accessible label.
func ParseLabel(label string) Label {
	label = strings.Join(strings.Fields(label), " ")

	var l Label
	if m := labelName.FindStringSubmatch(label); m != nil {
		l.Name = strings.TrimSpace(m[1])
	}
	if m := labelAge.FindStringSubmatch(label); m != nil {
		if n := digits.FindString(m[1]); n != "" {
			l.AgeMinimum, _ = strconv.Atoi(n)
		}
	}
	if m := labelDate.FindStringSubmatch(label); m != nil {
		l.Date = strings.TrimSuffix(strings.TrimSpace(m[1]), ".")
	}
	if m := labelSchedule.FindStringSubmatch(label); m != nil {
		l.StartTime = event.NormalizeClock(m[1])
		l.EndTime = event.NormalizeClock(m[2])
	}
	return l
}
