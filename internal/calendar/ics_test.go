package calendar

import (
	"strings"
	"testing"
	"time"

	"github.com/pfrederiksen/partyfinder/internal/event"
)

var madrid = time.FixedZone("CEST", 2*60*60)

func testEvent() *event.CanonicalEvent {
	return &event.CanonicalEvent{
		ID:        "abc123",
		SourceURL: "https://example.com/sala/events/sat-wf35",
		Name:      "Noche Latina, Edición Otoño",
		Date:      "2026-10-18",
		StartTime: "23:30",
		EndTime:   "06:00",
		Venue:     event.Venue{Name: "Sala Sol", Address: "Calle Jardines 3", City: "Madrid"},
		Tags:      []string{"Reggaeton", "Latin"},
		Tickets: []event.CanonicalTicket{
			{Name: "ENTRADA", Price: 10},
			{Name: "VIP", Price: 15, SoldOut: true},
		},
	}
}

func TestGenerateICS(t *testing.T) {
	now := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	ics := GenerateICS([]*event.CanonicalEvent{testEvent()}, madrid, now)

	requiredFields := []string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:" + ProdID,
		"BEGIN:VEVENT",
		"UID:abc123@partyfinder",
		"DTSTAMP:20261017T120000Z",
		"DTSTART:20261018T213000Z",
		"DTEND:20261019T040000Z",
		"SUMMARY:Noche Latina\\, Edición Otoño",
		"LOCATION:Sala Sol\\, Calle Jardines 3\\, Madrid",
		"CATEGORIES:Reggaeton,Latin",
		"URL:https://example.com/sala/events/sat-wf35",
		"END:VEVENT",
		"END:VCALENDAR",
	}
	for _, field := range requiredFields {
		if !strings.Contains(ics, field) {
			t.Errorf("ICS missing required field: %s", field)
		}
	}

	unfolded := strings.ReplaceAll(ics, "\r\n ", "")
	if !strings.Contains(unfolded, "VIP: 15.00€ (agotada)") {
		t.Errorf("description should list tickets, got:\n%s", unfolded)
	}

	for _, line := range strings.Split(ics, "\r\n") {
		if len(line) > 75 {
			t.Errorf("line longer than 75 octets: %q", line)
		}
	}
}

func TestGenerateICS_SkipsUndatedEvents(t *testing.T) {
	evt := testEvent()
	evt.Date = ""
	ics := GenerateICS([]*event.CanonicalEvent{evt}, madrid, time.Now())

	if strings.Contains(ics, "BEGIN:VEVENT") {
		t.Error("undated event should be skipped")
	}
	if !strings.HasSuffix(ics, "END:VCALENDAR\r\n") {
		t.Error("calendar should still be closed")
	}
}

func TestInterval(t *testing.T) {
	tests := []struct {
		name      string
		startTime string
		endTime   string
		wantStart string
		wantEnd   string
	}{
		{"overnight", "23:30", "06:00", "2026-10-18 23:30", "2026-10-19 06:00"},
		{"same day", "18:00", "22:00", "2026-10-18 18:00", "2026-10-18 22:00"},
		{"no end", "23:00", "", "2026-10-18 23:00", "2026-10-19 05:00"},
		{"equal end", "23:00", "23:00", "2026-10-18 23:00", "2026-10-19 23:00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			evt := testEvent()
			evt.StartTime = tt.startTime
			evt.EndTime = tt.endTime

			start, end, ok := Interval(evt, madrid)
			if !ok {
				t.Fatal("Interval() not ok")
			}
			if got := start.Format("2006-01-02 15:04"); got != tt.wantStart {
				t.Errorf("start = %s, want %s", got, tt.wantStart)
			}
			if got := end.Format("2006-01-02 15:04"); got != tt.wantEnd {
				t.Errorf("end = %s, want %s", got, tt.wantEnd)
			}
		})
	}
}

func TestEscapeICS(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Simple text", "Simple text"},
		{"Text, with comma", "Text\\, with comma"},
		{"Text; with semicolon", "Text\\; with semicolon"},
		{"Text\\with backslash", "Text\\\\with backslash"},
		{"Text\nwith newline", "Text\\nwith newline"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := escapeICS(tt.input); got != tt.expected {
				t.Errorf("escapeICS(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}
