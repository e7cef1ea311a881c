package cli

import (
	"sort"
	"strings"

	"github.com/pfrederiksen/partyfinder/internal/event"
)

// SortOrder represents the available sorting options
type SortOrder string

const (
	SortByDate  SortOrder = "date"
	SortByVenue SortOrder = "venue"
	SortByName  SortOrder = "name"
)

// Valid reports whether o is a known order.
func (o SortOrder) Valid() bool {
	return o == SortByDate || o == SortByVenue || o == SortByName
}

// sortEvents sorts a slice of events based on the specified sort order
func sortEvents(events []*event.CanonicalEvent, sortOrder SortOrder) {
	switch sortOrder {
	case SortByDate:
		sort.SliceStable(events, func(i, j int) bool {
			return compareByDate(events[i], events[j])
		})
	case SortByVenue:
		sort.SliceStable(events, func(i, j int) bool {
			vi, vj := strings.ToLower(events[i].Venue.Name), strings.ToLower(events[j].Venue.Name)
			if vi != vj {
				return vi < vj
			}
			// If venues are equal, sort by date
			return compareByDate(events[i], events[j])
		})
	case SortByName:
		sort.SliceStable(events, func(i, j int) bool {
			ni, nj := strings.ToLower(events[i].Name), strings.ToLower(events[j].Name)
			if ni != nj {
				return ni < nj
			}
			return compareByDate(events[i], events[j])
		})
	}
}

// compareByDate orders by show date, then start time, then name. Times
// before noon belong to the night that started the previous evening, so
// they sort after the evening starts of the same date.
func compareByDate(i, j *event.CanonicalEvent) bool {
	if i.Date != j.Date {
		return i.Date < j.Date
	}
	si, sj := nightKey(i.StartTime), nightKey(j.StartTime)
	if si != sj {
		return si < sj
	}
	return strings.ToLower(i.Name) < strings.ToLower(j.Name)
}

func nightKey(clock string) string {
	if clock != "" && clock < "12:00" {
		return "1" + clock
	}
	return "0" + clock
}
