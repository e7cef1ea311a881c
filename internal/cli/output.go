package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/pfrederiksen/partyfinder/internal/calendar"
	"github.com/pfrederiksen/partyfinder/internal/event"
	"github.com/pfrederiksen/partyfinder/internal/scraper"
)

// OutputFormat specifies the output format
type OutputFormat string

const (
	FormatText OutputFormat = "text"
	FormatJSON OutputFormat = "json"
	FormatICS  OutputFormat = "ics"
)

// VenueSummary reports one venue of a run.
type VenueSummary struct {
	Name   string `json:"name"`
	URL    string `json:"url"`
	Stubs  int    `json:"stubs"`
	Events int    `json:"events"`
	Error  string `json:"error,omitempty"`
}

// OutputResult contains data to be output
type OutputResult struct {
	CheckedAt     time.Time               `json:"checked_at"`
	Venues        []VenueSummary          `json:"venues,omitempty"`
	Events        []*event.CanonicalEvent `json:"events"`
	EventCount    int                     `json:"event_count"`
	NewEvents     []*event.CanonicalEvent `json:"new_events,omitempty"`
	ChangedEvents []*event.CanonicalEvent `json:"changed_events,omitempty"`
	RemovedIDs    []string                `json:"removed_ids,omitempty"`

	// Location places event times for calendar output.
	Location *time.Location `json:"-"`
}

// NewOutputResult assembles the report of a scrape run.
func NewOutputResult(checkedAt time.Time, res *scraper.Result, diff *event.DiffResult) *OutputResult {
	out := &OutputResult{CheckedAt: checkedAt.UTC()}
	if res != nil {
		for _, v := range res.Venues {
			s := VenueSummary{Name: v.Venue.Name, URL: v.Venue.URL, Stubs: v.Stubs, Events: v.Events}
			if v.Err != nil {
				s.Error = v.Err.Error()
			}
			out.Venues = append(out.Venues, s)
		}
		out.Events = make([]*event.CanonicalEvent, len(res.Events))
		for i := range res.Events {
			out.Events[i] = &res.Events[i]
		}
	}
	out.EventCount = len(out.Events)
	if diff != nil {
		out.NewEvents = diff.NewEvents
		out.ChangedEvents = diff.ChangedEvents
		out.RemovedIDs = diff.RemovedIDs
	}
	return out
}

// WriteOutput writes the result in the specified format
func WriteOutput(w io.Writer, result *OutputResult, format OutputFormat, verbose bool) error {
	switch format {
	case FormatJSON:
		return writeJSON(w, result)
	case FormatText:
		return writeText(w, result, verbose)
	case FormatICS:
		_, err := io.WriteString(w, calendar.GenerateICS(result.Events, result.Location, result.CheckedAt))
		return err
	default:
		return fmt.Errorf("unknown format: %s", format)
	}
}

// writeJSON outputs any value as indented JSON
func writeJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

// writeText outputs results as human-readable text
func writeText(w io.Writer, result *OutputResult, verbose bool) error {
	for _, v := range result.Venues {
		if v.Error != "" {
			fmt.Fprintf(w, "! %s: %s\n", v.Name, v.Error)
		}
	}

	if result.EventCount == 0 {
		fmt.Fprintln(w, "No events found.")
		return nil
	}

	isNew := make(map[string]bool, len(result.NewEvents))
	for _, e := range result.NewEvents {
		isNew[e.ID] = true
	}
	isChanged := make(map[string]bool, len(result.ChangedEvents))
	for _, e := range result.ChangedEvents {
		isChanged[e.ID] = true
	}

	for _, evt := range result.Events {
		prefix := "   "
		switch {
		case isNew[evt.ID]:
			prefix = "NEW"
		case isChanged[evt.ID]:
			prefix = "UPD"
		}
		writeEvent(w, prefix, evt, verbose)
	}

	fmt.Fprintf(w, "\nTotal: %d events across %d venues", result.EventCount, countVenues(result.Events))
	if len(result.NewEvents)+len(result.ChangedEvents)+len(result.RemovedIDs) > 0 {
		fmt.Fprintf(w, " (%d new, %d changed, %d removed)", len(result.NewEvents), len(result.ChangedEvents), len(result.RemovedIDs))
	}
	fmt.Fprintln(w)
	return nil
}

func writeEvent(w io.Writer, prefix string, evt *event.CanonicalEvent, verbose bool) {
	fmt.Fprintf(w, "%s %s %s-%s  %s @ %s\n", prefix, evt.Date, evt.StartTime, evt.EndTime, evt.Name, evt.Venue.Name)
	for _, t := range evt.Tickets {
		status := ""
		if t.SoldOut {
			status = " [AGOTADO]"
		}
		fmt.Fprintf(w, "      %s: %s€%s\n", t.Name, formatPrice(t.Price), status)
	}
	if verbose {
		fmt.Fprintf(w, "      ID: %s\n", evt.ID)
		fmt.Fprintf(w, "      URL: %s\n", evt.SourceURL)
		if len(evt.Tags) > 0 {
			fmt.Fprintf(w, "      Tags: %s\n", strings.Join(evt.Tags, ", "))
		}
		fmt.Fprintf(w, "      Age: %d+\n", evt.AgeMinimum)
		if evt.Confidence == event.ConfidenceLow {
			fmt.Fprintln(w, "      Confidence: low")
		}
	}
}

func formatPrice(p float64) string {
	return strconv.FormatFloat(p, 'f', -1, 64)
}

func countVenues(events []*event.CanonicalEvent) int {
	seen := make(map[string]bool)
	for _, e := range events {
		seen[e.Venue.Name] = true
	}
	return len(seen)
}
