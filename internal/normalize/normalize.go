// Package normalize turns reconciled per-event records into canonical
// events: it fills every field from the best available source, applies
// defaults and removes duplicate showings.
package normalize

import (
	"fmt"
	"strings"
	"time"

	"github.com/pfrederiksen/partyfinder/internal/event"
	"github.com/pfrederiksen/partyfinder/internal/reconcile"
	"github.com/pfrederiksen/partyfinder/internal/schema"
	"github.com/pfrederiksen/partyfinder/internal/textparse"
	"github.com/pfrederiksen/partyfinder/internal/trace"
	"github.com/pfrederiksen/partyfinder/internal/transferstate"
)

const stage = "normalize"

// Defaults for fields no source provided.
const (
	DefaultStartTime  = "23:00"
	DefaultEndTime    = "06:00"
	DefaultAgeMinimum = 18
	DefaultTicketName = "Entrada General"
	DefaultTag        = "Fiesta"
)

// Record is everything gathered for one discovered event.
type Record struct {
	Stub event.EventStub
	// Venue holds the configured venue name and city.
	Venue   event.Venue
	Tickets []event.CanonicalTicket
	Schema  schema.Result
	// State is the detail page's transfer-state event, if any.
	State *transferstate.Entry
	// Lines is the rendered text of the detail page.
	Lines []string
	// Empty is set when the detail page yielded no usable content.
	Empty bool
}

// Options control date resolution.
type Options struct {
	Now      time.Time
	Location *time.Location
}

// Normalize maps records to canonical events. Low-confidence stubs whose
// page came back empty are dropped as invalid references. Duplicates,
// by URL or by (venue, name, date), keep the first record seen.
func Normalize(records []Record, opts Options) ([]event.CanonicalEvent, trace.Trace) {
	var tr trace.Trace
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}

	events := make([]event.CanonicalEvent, 0, len(records))
	byURL := make(map[string]string, len(records))
	byShowing := make(map[string]string, len(records))

	for _, r := range records {
		if r.Empty && r.Stub.Confidence == event.ConfidenceLow {
			tr.Warn(stage, "dropping stub", map[string]any{
				"url":   r.Stub.SourceURL,
				"error": fmt.Errorf("%w: %s", event.ErrInvalidEventReference, r.Stub.SourceURL).Error(),
			})
			continue
		}

		evt := Canonical(r, opts)

		urlKey := strings.TrimRight(evt.SourceURL, "/")
		if first, ok := byURL[urlKey]; ok {
			tr.Debug(stage, "duplicate event dropped", map[string]any{"url": evt.SourceURL, "kept": first, "key": "url"})
			continue
		}
		showing := showingKey(r.Stub.VenueSlug, evt.Name, evt.Date)
		if first, ok := byShowing[showing]; ok {
			tr.Debug(stage, "duplicate event dropped", map[string]any{"url": evt.SourceURL, "kept": first, "key": "showing"})
			continue
		}
		byURL[urlKey] = evt.SourceURL
		byShowing[showing] = evt.SourceURL
		events = append(events, evt)
	}

	return events, tr
}

func showingKey(venue, name, date string) string {
	return venue + "|" + event.GenerateStableKey(name, date)
}

// Canonical maps one record, filling defaults for anything still missing.
func Canonical(r Record, opts Options) event.CanonicalEvent {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	state := r.State
	if state == nil {
		state = &transferstate.Entry{}
	}

	evt := event.CanonicalEvent{
		ID:         event.GenerateID(r.Stub.SourceURL),
		SourceURL:  r.Stub.SourceURL,
		Code:       r.Stub.Code,
		Name:       firstNonEmpty(r.Stub.DisplayName, state.Name, r.Schema.Name, r.Stub.Code, "Evento"),
		ImageURL:   firstNonEmpty(r.Stub.ImageURL, state.ImageURL, r.Schema.ImageURL),
		DressCode:  state.DressCode,
		AgeMinimum: firstPositive(state.AgeMinimum, r.Stub.AgeMinimum, DefaultAgeMinimum),
		Confidence: r.Stub.Confidence,
	}
	if evt.Confidence == "" {
		evt.Confidence = event.ConfidenceHigh
	}

	evt.Date, evt.StartTime, evt.EndTime = schedule(r, state, opts)
	evt.Description = description(r, state)
	evt.Venue = venue(r, state)
	evt.Tags = tags(r, state, evt.Name)
	evt.Tickets = tickets(r.Tickets, evt.SourceURL)

	return evt
}

func schedule(r Record, state *transferstate.Entry, opts Options) (date, start, end string) {
	// The day-level date carries no time of day; only start does.
	stateDate, _ := event.FormatEpoch(state.Date, opts.Location)
	startDate, stateStart := event.FormatEpoch(state.Start, opts.Location)
	stateDate = firstNonEmpty(stateDate, startDate)
	_, stateEnd := event.FormatEpoch(state.End, opts.Location)
	schemaDate, schemaStart := isoParts(r.Schema.StartDate, opts.Location)
	_, schemaEnd := isoParts(r.Schema.EndDate, opts.Location)

	var hintDate string
	if t := event.ParseDateText(r.Stub.DateHint, opts.Now.In(opts.Location)); !t.IsZero() {
		hintDate = t.Format("2006-01-02")
	}

	date = firstNonEmpty(stateDate, schemaDate, hintDate, opts.Now.In(opts.Location).Format("2006-01-02"))
	start = firstNonEmpty(stateStart, schemaStart, r.Stub.StartTime, DefaultStartTime)
	end = firstNonEmpty(stateEnd, schemaEnd, r.Stub.EndTime, DefaultEndTime)
	return date, start, end
}

// isoParts splits an RFC 3339 or plain date string into date and time of
// day in loc.
func isoParts(s string, loc *time.Location) (date, clock string) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", ""
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02T15:04"} {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			t = t.In(loc)
			return t.Format("2006-01-02"), t.Format("15:04")
		}
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t.Format("2006-01-02"), ""
	}
	return "", ""
}

func description(r Record, state *transferstate.Entry) string {
	if d := firstNonEmpty(state.Description, r.Schema.Description, textparse.Description(r.Lines)); d != "" {
		return d
	}
	var parts []string
	for _, t := range r.Tickets {
		if t.Description != "" {
			parts = append(parts, t.Description)
		}
	}
	return strings.Join(parts, ". ")
}

func venue(r Record, state *transferstate.Entry) event.Venue {
	v := r.Venue
	if s := r.Schema.Venue; s != nil {
		v.Name = firstNonEmpty(v.Name, s.Name)
		v.Address = firstNonEmpty(v.Address, s.Address)
		v.City = firstNonEmpty(s.City, v.City)
		v.PostalCode = firstNonEmpty(v.PostalCode, s.PostalCode)
		if v.Coordinates == nil && s.Coordinates != nil {
			c := *s.Coordinates
			v.Coordinates = &c
		}
	}
	if state.HasLocation {
		loc := state.Location
		v.Address = firstNonEmpty(v.Address, loc.Address)
		v.City = firstNonEmpty(v.City, loc.City)
		v.PostalCode = firstNonEmpty(v.PostalCode, loc.PostalCode)
		if v.Coordinates == nil && loc.Latitude != nil && loc.Longitude != nil {
			v.Coordinates = &event.Coordinates{Latitude: *loc.Latitude, Longitude: *loc.Longitude}
		}
	}
	v.Name = firstNonEmpty(v.Name, state.OrgName, r.Stub.VenueSlug)
	return v
}

func tags(r Record, state *transferstate.Entry, name string) []string {
	out := event.MergeTags(nil, r.Stub.Tags...)
	out = event.MergeTags(out, state.Genres...)
	out = event.MergeTags(out, event.GenreTags(name)...)
	if len(out) == 0 {
		out = []string{DefaultTag}
	}

	folded := strings.ToLower(event.FoldAccents(name))
	if strings.Contains(folded, "viernes") {
		out = event.MergeTags(out, "Viernes")
	}
	if strings.Contains(folded, "sabado") {
		out = event.MergeTags(out, "Sábado")
	}
	return out
}

// tickets guarantees at least one ticket and a purchase URL on each; the
// event page stands in when no offer supplied one. Unnamed tickets take
// the default name before the (name, price) pairs are deduplicated again.
func tickets(in []event.CanonicalTicket, sourceURL string) []event.CanonicalTicket {
	if len(in) == 0 {
		return []event.CanonicalTicket{{Name: DefaultTicketName, PurchaseURL: sourceURL}}
	}
	named := make([]event.CanonicalTicket, len(in))
	copy(named, in)
	for i := range named {
		if named[i].Name == "" {
			named[i].Name = DefaultTicketName
		}
	}

	var tr trace.Trace
	out := reconcile.Dedupe(named, &tr)
	for i := range out {
		if out[i].PurchaseURL == "" {
			out[i].PurchaseURL = sourceURL
		}
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func firstPositive(values ...int) int {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}
