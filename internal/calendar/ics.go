// Package calendar exports catalog events as an iCalendar feed.
package calendar

import (
	"fmt"
	"strings"
	"time"

	"github.com/pfrederiksen/partyfinder/internal/event"
)

// ProdID identifies the producer of generated calendars.
const ProdID = "-//partyfinder//partyfinder//ES"

// defaultLength is used when an event has no end time.
const defaultLength = 6 * time.Hour

// GenerateICS generates an iCalendar (.ics) document with one VEVENT per
// event. Times are read in loc. Events without a parseable date are
// skipped. An end time at or before the start belongs to the next day.
func GenerateICS(events []*event.CanonicalEvent, loc *time.Location, now time.Time) string {
	var ics strings.Builder

	ics.WriteString("BEGIN:VCALENDAR\r\n")
	ics.WriteString("VERSION:2.0\r\n")
	ics.WriteString("PRODID:" + ProdID + "\r\n")
	ics.WriteString("CALSCALE:GREGORIAN\r\n")
	ics.WriteString("METHOD:PUBLISH\r\n")

	for _, evt := range events {
		start, end, ok := Interval(evt, loc)
		if !ok {
			continue
		}
		writeEvent(&ics, evt, start, end, now)
	}

	ics.WriteString("END:VCALENDAR\r\n")
	return ics.String()
}

func writeEvent(ics *strings.Builder, evt *event.CanonicalEvent, start, end, now time.Time) {
	ics.WriteString("BEGIN:VEVENT\r\n")
	writeLine(ics, "UID", evt.ID+"@partyfinder")
	writeLine(ics, "DTSTAMP", formatICSTime(now))
	writeLine(ics, "DTSTART", formatICSTime(start))
	writeLine(ics, "DTEND", formatICSTime(end))
	writeLine(ics, "SUMMARY", escapeICS(evt.Name))
	writeLine(ics, "DESCRIPTION", escapeICS(description(evt)))

	location := evt.Venue.Name
	if evt.Venue.Address != "" {
		location += ", " + evt.Venue.Address
	}
	if evt.Venue.City != "" {
		location += ", " + evt.Venue.City
	}
	writeLine(ics, "LOCATION", escapeICS(location))
	if c := evt.Venue.Coordinates; c != nil {
		writeLine(ics, "GEO", fmt.Sprintf("%.6f;%.6f", c.Latitude, c.Longitude))
	}
	if len(evt.Tags) > 0 {
		tags := make([]string, len(evt.Tags))
		for i, t := range evt.Tags {
			tags[i] = escapeICS(t)
		}
		writeLine(ics, "CATEGORIES", strings.Join(tags, ","))
	}
	writeLine(ics, "URL", evt.SourceURL)
	writeLine(ics, "STATUS", "CONFIRMED")
	writeLine(ics, "TRANSP", "OPAQUE")
	ics.WriteString("END:VEVENT\r\n")
}

// Interval returns the start and end instants of evt in loc.
func Interval(evt *event.CanonicalEvent, loc *time.Location) (time.Time, time.Time, bool) {
	if loc == nil {
		loc = time.UTC
	}
	day, err := time.Parse("2006-01-02", evt.Date)
	if err != nil {
		return time.Time{}, time.Time{}, false
	}

	start := at(day, evt.StartTime, loc)
	if evt.EndTime == "" {
		return start, start.Add(defaultLength), true
	}
	end := at(day, evt.EndTime, loc)
	if !end.After(start) {
		end = at(day.AddDate(0, 0, 1), evt.EndTime, loc)
	}
	return start, end, true
}

func at(day time.Time, clock string, loc *time.Location) time.Time {
	var h, m int
	if c := event.NormalizeClock(clock); c != "" {
		fmt.Sscanf(c, "%d:%d", &h, &m)
	}
	return time.Date(day.Year(), day.Month(), day.Day(), h, m, 0, 0, loc)
}

func description(evt *event.CanonicalEvent) string {
	var b strings.Builder
	if evt.Description != "" {
		b.WriteString(evt.Description)
		b.WriteString("\n\n")
	}
	if evt.AgeMinimum > 0 {
		fmt.Fprintf(&b, "Edad mínima: %d\n", evt.AgeMinimum)
	}
	if evt.DressCode != "" {
		fmt.Fprintf(&b, "Dress code: %s\n", evt.DressCode)
	}
	for _, t := range evt.Tickets {
		fmt.Fprintf(&b, "%s: %.2f€", t.Name, t.Price)
		if t.SoldOut {
			b.WriteString(" (agotada)")
		}
		b.WriteString("\n")
	}
	b.WriteString(evt.SourceURL)
	return b.String()
}

// writeLine writes a content line folded at 75 octets.
func writeLine(ics *strings.Builder, name, value string) {
	line := name + ":" + value
	limit := 75
	for len(line) > limit {
		cut := limit
		// don't split a UTF-8 sequence
		for cut > 0 && line[cut]&0xC0 == 0x80 {
			cut--
		}
		ics.WriteString(line[:cut])
		ics.WriteString("\r\n ")
		line = line[cut:]
		limit = 74
	}
	ics.WriteString(line)
	ics.WriteString("\r\n")
}

// formatICSTime formats a time.Time as an iCalendar datetime string
func formatICSTime(t time.Time) string {
	return t.UTC().Format("20060102T150405Z")
}

// escapeICS escapes special characters for iCalendar format
func escapeICS(s string) string {
	// Replace special characters according to RFC 5545
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, ",", "\\,")
	s = strings.ReplaceAll(s, ";", "\\;")
	s = strings.ReplaceAll(s, "\n", "\\n")
	return s
}
