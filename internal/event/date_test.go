package event

import (
	"testing"
	"time"
)

func TestParseDateText(t *testing.T) {
	now := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		text string
		want string
	}{
		{"sáb 18 oct", "2026-10-18"},
		{"Sábado, 18 de octubre", "2026-10-18"},
		{"vie 9 ene", "2027-01-09"},
		{"18/10/2026", "2026-10-18"},
		{"18/10/26", "2026-10-18"},
		{"2026-12-31", "2026-12-31"},
		{"31 feb", ""},
		{"mañana", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got := ParseDateText(tt.text, now)
			if tt.want == "" {
				if !got.IsZero() {
					t.Errorf("ParseDateText(%q) = %v, want zero", tt.text, got)
				}
				return
			}
			if got.Format("2006-01-02") != tt.want {
				t.Errorf("ParseDateText(%q) = %s, want %s", tt.text, got.Format("2006-01-02"), tt.want)
			}
		})
	}
}

func TestNormalizeClock(t *testing.T) {
	tests := map[string]string{
		"23:00": "23:00",
		"0:30":  "00:30",
		" 6:00": "06:00",
		"24:00": "",
		"late":  "",
	}
	for in, want := range tests {
		if got := NormalizeClock(in); got != want {
			t.Errorf("NormalizeClock(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFormatEpoch(t *testing.T) {
	loc := time.FixedZone("CEST", 2*60*60)
	date, clock := FormatEpoch(1792360800, loc) // 2026-10-18T22:00:00Z

	if date != "2026-10-19" || clock != "00:00" {
		t.Errorf("FormatEpoch = %s %s, want 2026-10-19 00:00", date, clock)
	}

	if d, c := FormatEpoch(0, loc); d != "" || c != "" {
		t.Errorf("FormatEpoch(0) = %q %q, want empty", d, c)
	}
}
