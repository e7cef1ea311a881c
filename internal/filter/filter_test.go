package filter

import (
	"strings"
	"testing"
	"time"

	"github.com/pfrederiksen/partyfinder/internal/event"
)

func day(s string) *time.Time {
	t, _ := time.Parse("2006-01-02", s)
	return &t
}

func sampleEvents() []*event.CanonicalEvent {
	return []*event.CanonicalEvent{
		{
			ID:    "fri",
			Name:  "Viernes Urbano",
			Date:  "2026-10-16",
			Venue: event.Venue{Name: "Sala Sol", City: "Madrid"},
			Tags:  []string{"Reggaeton"},
			Tickets: []event.CanonicalTicket{
				{Name: "Entrada General", Price: 12},
			},
		},
		{
			ID:    "sat",
			Name:  "Sábado Techno",
			Date:  "2026-10-17",
			Venue: event.Venue{Name: "Fabrik", City: "Humanes de Madrid"},
			Tags:  []string{"Techno"},
			Tickets: []event.CanonicalTicket{
				{Name: "Early", Price: 8, SoldOut: true},
				{Name: "Taquilla", Price: 25},
			},
		},
		{
			ID:    "tue",
			Name:  "Martes Universitario",
			Date:  "2026-10-20",
			Venue: event.Venue{Name: "Teatro Barceló", City: "Madrid"},
			Tickets: []event.CanonicalTicket{
				{Name: "Lista", Price: 0, SoldOut: true},
			},
		},
		{
			ID:    "undated",
			Name:  "Sin Fecha",
			Venue: event.Venue{Name: "Sala Sol", City: "Madrid"},
		},
	}
}

func ids(events []*event.CanonicalEvent) string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.ID
	}
	return strings.Join(out, ",")
}

func TestFilter_Apply(t *testing.T) {
	tests := []struct {
		name   string
		filter Filter
		want   string
	}{
		{"empty", Filter{}, "fri,sat,tue,undated"},
		{"date from", Filter{DateFrom: day("2026-10-17")}, "sat,tue"},
		{"date range inclusive", Filter{DateFrom: day("2026-10-16"), DateTo: day("2026-10-17")}, "fri,sat"},
		{"weekends", Filter{WeekendsOnly: true}, "fri,sat"},
		{"venue ignores accents", Filter{Venues: []string{"barcelo"}}, "tue"},
		{"venue any of", Filter{Venues: []string{"fabrik", "sala sol"}}, "fri,sat,undated"},
		{"city substring", Filter{Cities: []string{"humanes"}}, "sat"},
		{"tag", Filter{Tags: []string{"techno"}}, "sat"},
		{"max price uses cheapest available", Filter{MaxPrice: 20}, "fri"},
		{"available only", Filter{AvailableOnly: true}, "fri,sat"},
		{"combined", Filter{Cities: []string{"madrid"}, WeekendsOnly: true, MaxPrice: 30}, "fri,sat"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ids(tt.filter.Apply(sampleEvents()))
			if got != tt.want {
				t.Errorf("Apply() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestCheapestAvailable(t *testing.T) {
	events := sampleEvents()

	price, ok := CheapestAvailable(events[1])
	if !ok || price != 25 {
		t.Errorf("CheapestAvailable(sat) = %v, %v; want 25, true", price, ok)
	}
	if _, ok := CheapestAvailable(events[2]); ok {
		t.Error("sold out event should have no available ticket")
	}
}

func TestFilter_String(t *testing.T) {
	if got := NewFilter().String(); got != "No active filters" {
		t.Errorf("String() = %q", got)
	}

	f := Filter{DateFrom: day("2026-10-16"), Tags: []string{"Techno"}, WeekendsOnly: true, MaxPrice: 15}
	want := "From: 2026-10-16 | Tags: Techno | Weekend nights only | Max price: 15.00€"
	if got := f.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestParseDateRange(t *testing.T) {
	now := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		input    string
		wantFrom string
		wantTo   string
		wantErr  bool
	}{
		{"2026-10-16", "2026-10-16", "2026-10-16", false},
		{"2026-10-16..2026-10-18", "2026-10-16", "2026-10-18", false},
		{"octubre", "2026-10-01", "2026-10-31", false},
		{"feb", "2027-02-01", "2027-02-28", false},
		{"sáb 24 oct", "2026-10-24", "2026-10-24", false},
		{"2026-10-18..2026-10-16", "", "", true},
		{"2026-10-16..mañana", "", "", true},
		{"", "", "", true},
		{"whenever", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			from, to, err := ParseDateRange(tt.input, now)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ParseDateRange(%q) expected error", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseDateRange(%q) error: %v", tt.input, err)
			}
			if got := from.Format("2006-01-02"); got != tt.wantFrom {
				t.Errorf("from = %s, want %s", got, tt.wantFrom)
			}
			if got := to.Format("2006-01-02"); got != tt.wantTo {
				t.Errorf("to = %s, want %s", got, tt.wantTo)
			}
		})
	}
}
