// Package filter narrows a stored catalog down to the events a reader
// asked for.
//
// Criteria combine with AND; list criteria match when any entry matches:
//   - Date range (from/to, inclusive, compared on the show date)
//   - Venues and cities (substring matching, case-insensitive, accents ignored)
//   - Tags (exact, case-insensitive)
//   - Weekend nights only (Friday/Saturday)
//   - Maximum price of the cheapest ticket still on sale
//   - Available only (at least one ticket not sold out)
//
// Example usage:
//
//	f := filter.NewFilter()
//	f.WeekendsOnly = true
//	f.Tags = []string{"Reggaeton"}
//	matching := f.Apply(events)
package filter

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/pfrederiksen/partyfinder/internal/event"
)

// Filter represents event filtering criteria
type Filter struct {
	DateFrom *time.Time `json:"date_from,omitempty"`
	DateTo   *time.Time `json:"date_to,omitempty"`

	Venues []string `json:"venues,omitempty"`
	Cities []string `json:"cities,omitempty"`
	Tags   []string `json:"tags,omitempty"`

	// WeekendsOnly keeps Friday and Saturday nights.
	WeekendsOnly bool `json:"weekends_only,omitempty"`

	// MaxPrice applies to the cheapest ticket not sold out. Zero disables it.
	MaxPrice float64 `json:"max_price,omitempty"`

	AvailableOnly bool `json:"available_only,omitempty"`
}

// NewFilter creates a new empty filter with no active criteria.
func NewFilter() *Filter {
	return &Filter{
		Venues: []string{},
		Cities: []string{},
		Tags:   []string{},
	}
}

// IsEmpty checks if the filter has any active criteria.
func (f *Filter) IsEmpty() bool {
	return f.DateFrom == nil &&
		f.DateTo == nil &&
		len(f.Venues) == 0 &&
		len(f.Cities) == 0 &&
		len(f.Tags) == 0 &&
		!f.WeekendsOnly &&
		f.MaxPrice == 0 &&
		!f.AvailableOnly
}

// Matches checks if an event matches all active filter criteria.
// Events whose date cannot be parsed never match a date criterion.
func (f *Filter) Matches(evt *event.CanonicalEvent) bool {
	if f.IsEmpty() {
		return true
	}

	if f.DateFrom != nil || f.DateTo != nil || f.WeekendsOnly {
		day, err := time.Parse("2006-01-02", evt.Date)
		if err != nil {
			return false
		}
		if f.DateFrom != nil && day.Before(truncate(*f.DateFrom)) {
			return false
		}
		if f.DateTo != nil && day.After(truncate(*f.DateTo)) {
			return false
		}
		if f.WeekendsOnly && day.Weekday() != time.Friday && day.Weekday() != time.Saturday {
			return false
		}
	}

	if len(f.Venues) > 0 && !containsAny(evt.Venue.Name, f.Venues) {
		return false
	}
	if len(f.Cities) > 0 && !containsAny(evt.Venue.City, f.Cities) {
		return false
	}

	if len(f.Tags) > 0 {
		matched := false
		for _, want := range f.Tags {
			for _, tag := range evt.Tags {
				if strings.EqualFold(event.FoldAccents(tag), event.FoldAccents(want)) {
					matched = true
				}
			}
		}
		if !matched {
			return false
		}
	}

	cheapest, available := CheapestAvailable(evt)
	if f.AvailableOnly && !available {
		return false
	}
	if f.MaxPrice > 0 && (!available || cheapest > f.MaxPrice) {
		return false
	}

	return true
}

// Apply returns the events that match. An empty filter returns events unchanged.
func (f *Filter) Apply(events []*event.CanonicalEvent) []*event.CanonicalEvent {
	if f.IsEmpty() {
		return events
	}

	filtered := make([]*event.CanonicalEvent, 0, len(events))
	for _, evt := range events {
		if f.Matches(evt) {
			filtered = append(filtered, evt)
		}
	}
	return filtered
}

// CheapestAvailable returns the lowest price among tickets not sold out.
func CheapestAvailable(evt *event.CanonicalEvent) (float64, bool) {
	cheapest := math.Inf(1)
	for _, t := range evt.Tickets {
		if !t.SoldOut && t.Price < cheapest {
			cheapest = t.Price
		}
	}
	if math.IsInf(cheapest, 1) {
		return 0, false
	}
	return cheapest, true
}

// String returns a human-readable description of the active filter criteria.
func (f *Filter) String() string {
	if f.IsEmpty() {
		return "No active filters"
	}

	var parts []string
	if f.DateFrom != nil {
		parts = append(parts, fmt.Sprintf("From: %s", f.DateFrom.Format("2006-01-02")))
	}
	if f.DateTo != nil {
		parts = append(parts, fmt.Sprintf("To: %s", f.DateTo.Format("2006-01-02")))
	}
	if len(f.Venues) > 0 {
		parts = append(parts, fmt.Sprintf("Venues: %s", strings.Join(f.Venues, ", ")))
	}
	if len(f.Cities) > 0 {
		parts = append(parts, fmt.Sprintf("Cities: %s", strings.Join(f.Cities, ", ")))
	}
	if len(f.Tags) > 0 {
		parts = append(parts, fmt.Sprintf("Tags: %s", strings.Join(f.Tags, ", ")))
	}
	if f.WeekendsOnly {
		parts = append(parts, "Weekend nights only")
	}
	if f.MaxPrice > 0 {
		parts = append(parts, fmt.Sprintf("Max price: %.2f€", f.MaxPrice))
	}
	if f.AvailableOnly {
		parts = append(parts, "Available only")
	}
	return strings.Join(parts, " | ")
}

func containsAny(value string, needles []string) bool {
	value = strings.ToLower(event.FoldAccents(value))
	for _, n := range needles {
		if strings.Contains(value, strings.ToLower(event.FoldAccents(n))) {
			return true
		}
	}
	return false
}

func truncate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
