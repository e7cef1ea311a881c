// Package textparse reads ticket candidates out of the rendered text of an
// event detail page.
//
// The scan is a fold over lines with one accumulator. A list line carrying
// a ticket keyword starts a new ticket and closes the previous one. Price,
// sold-out and description lines that follow are attributed to the open
// ticket only while they sit within Window lines of its start, and never
// past the next ticket start.
package textparse

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/pfrederiksen/partyfinder/internal/event"
	"github.com/pfrederiksen/partyfinder/internal/trace"
)

const stage = "textparse"

// DefaultWindow is how many lines after a ticket start may still describe it.
const DefaultWindow = 4

var ticketKeywords = []string{"ENTRADA", "ENTRADAS", "PROMOCIÓN", "PROMOCION", "VIP", "RESERVADO", "LISTA"}

var descriptionKeywords = []string{"copa", "consumir", "alcohol"}

var (
	inlinePrice     = regexp.MustCompile(`(\d+(?:[,.]\d+)?)\s*€`)
	standalonePrice = regexp.MustCompile(`^(\d+(?:[,.]\d+)?)\s*€$`)
)

// Parse scans lines with DefaultWindow.
func Parse(lines []string) ([]event.TicketCandidate, trace.Trace) {
	return ParseWindow(lines, DefaultWindow)
}

// ParseWindow scans lines attributing loose attribute lines within window
// lines of their ticket's start.
func ParseWindow(lines []string, window int) ([]event.TicketCandidate, trace.Trace) {
	if window < 1 {
		window = DefaultWindow
	}
	acc := accumulator{window: window}
	for i, line := range lines {
		acc = acc.step(i, line)
	}
	acc = acc.finish()
	return dedupe(acc.done, &acc.tr), acc.tr
}

// accumulator is the scan state between two lines.
type accumulator struct {
	window  int
	open    bool
	current event.TicketCandidate
	done    []event.TicketCandidate
	tr      trace.Trace
}

func (a accumulator) step(i int, raw string) accumulator {
	line := strings.TrimSpace(raw)
	if line == "" {
		return a
	}

	if name, ok := ticketStart(line); ok {
		a = a.finish()
		a.open = true
		a.current = event.TicketCandidate{Name: name, SourceLine: i}
		if m := inlinePrice.FindStringSubmatch(line); m != nil {
			a.current.Price = parsePrice(m[1])
		}
		if isSoldOut(line) {
			a.current.SoldOut = true
		}
		return a
	}

	if !a.open {
		return a
	}
	if i-a.current.SourceLine > a.window {
		if standalonePrice.MatchString(line) || isSoldOut(line) {
			a.tr.Debug(stage, "attribute line outside window ignored", map[string]any{
				"line":   i,
				"ticket": a.current.Name,
			})
		}
		return a
	}

	if m := standalonePrice.FindStringSubmatch(line); m != nil {
		if a.current.Price == nil {
			a.current.Price = parsePrice(m[1])
		}
		return a
	}
	if isSoldOut(line) {
		a.current.SoldOut = true
	}
	if a.current.Description == "" && isDescription(line) {
		a.current.Description = line
	}
	return a
}

// finish closes the open ticket, if any.
func (a accumulator) finish() accumulator {
	if a.open {
		a.done = append(a.done, a.current)
		a.open = false
		a.current = event.TicketCandidate{}
	}
	return a
}

// ticketStart reports whether line opens a ticket and returns its name.
func ticketStart(line string) (string, bool) {
	if !strings.HasPrefix(line, "- ") && !strings.HasPrefix(line, "* ") {
		return "", false
	}
	upper := strings.ToUpper(line)
	for _, kw := range ticketKeywords {
		if strings.Contains(upper, kw) {
			name := strings.Trim(strings.TrimSpace(line[2:]), "*_ ")
			return name, name != ""
		}
	}
	return "", false
}

func isSoldOut(line string) bool {
	return strings.Contains(strings.ToLower(line), "agotad")
}

func isDescription(line string) bool {
	lower := strings.ToLower(line)
	for _, kw := range descriptionKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func parsePrice(s string) *float64 {
	v, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", "."), 64)
	if err != nil {
		return nil
	}
	return &v
}

// dedupe keeps the first candidate of each normalized (name, price) pair.
func dedupe(in []event.TicketCandidate, tr *trace.Trace) []event.TicketCandidate {
	seen := make(map[string]bool, len(in))
	out := make([]event.TicketCandidate, 0, len(in))
	for _, c := range in {
		key := event.TicketKey(c.Name, c.Price)
		if seen[key] {
			tr.Debug(stage, "duplicate ticket dropped", map[string]any{"name": c.Name, "line": c.SourceLine})
			continue
		}
		seen[key] = true
		out = append(out, c)
	}
	return out
}

// Description returns the event description from rendered lines: the first
// long prose line near the top of the page that is not boilerplate.
func Description(lines []string) string {
	for i, line := range lines {
		if i >= 20 {
			break
		}
		line = strings.TrimSpace(line)
		if len([]rune(line)) <= 50 || strings.HasPrefix(line, "!") ||
			strings.HasPrefix(line, "#") || strings.HasPrefix(line, "-") {
			continue
		}
		upper := strings.ToUpper(line)
		if strings.Contains(upper, "RESERVA") || strings.Contains(upper, "DERECHO") {
			continue
		}
		return line
	}
	return ""
}
