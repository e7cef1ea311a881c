package schema

import (
	"testing"

	"github.com/pfrederiksen/partyfinder/internal/event"
)

const eventBlock = `{
	"@context": "https://schema.org",
	"@type": "Event",
	"name": "Sábado Latino",
	"startDate": "2026-10-18T23:30:00+02:00",
	"image": ["https://img.example.com/a.jpg"],
	"location": {
		"@type": "Place",
		"name": "Luminata Disco",
		"address": {"@type": "PostalAddress", "streetAddress": "Calle Mayor 1", "addressLocality": "Madrid", "postalCode": "28013"},
		"geo": {"latitude": 40.41, "longitude": "-3.70"}
	},
	"offers": [
		{"@type": "Offer", "name": "ENTRADA GENERAL", "price": "15.00", "url": "https://web.example.com/es/luminata/events/x/tickets/aaa", "availability": "https://schema.org/InStock"},
		{"@type": "Offer", "name": "VIP", "price": 40, "url": "https://web.example.com/es/luminata/events/x/tickets/bbb", "availability": "https://schema.org/OutOfStock"},
		{"@type": "Offer", "name": "Parking", "price": 5, "url": "https://web.example.com/parking"},
	]
}`

func TestExtract_EventBlock(t *testing.T) {
	res, tr := Extract([]string{eventBlock}, "")

	if len(tr.Warnings()) != 0 {
		t.Fatalf("unexpected warnings: %+v", tr.Warnings())
	}
	if len(res.Offers) != 2 {
		t.Fatalf("expected 2 ticket offers, got %d: %+v", len(res.Offers), res.Offers)
	}
	if res.Offers[0].Name != "ENTRADA GENERAL" || event.FormatPrice(res.Offers[0].Price) != "15" || res.Offers[0].SoldOut {
		t.Errorf("first offer = %+v", res.Offers[0])
	}
	if res.Offers[1].Name != "VIP" || !res.Offers[1].SoldOut {
		t.Errorf("second offer = %+v", res.Offers[1])
	}

	if res.Name != "Sábado Latino" || res.StartDate != "2026-10-18T23:30:00+02:00" || res.ImageURL != "https://img.example.com/a.jpg" {
		t.Errorf("event fields = %q %q %q", res.Name, res.StartDate, res.ImageURL)
	}
	if res.Venue == nil {
		t.Fatal("expected venue")
	}
	if res.Venue.Name != "Luminata Disco" || res.Venue.City != "Madrid" || res.Venue.PostalCode != "28013" {
		t.Errorf("venue = %+v", res.Venue)
	}
	if res.Venue.Coordinates == nil || res.Venue.Coordinates.Longitude != -3.7 {
		t.Errorf("coordinates = %+v", res.Venue.Coordinates)
	}
}

func TestExtract_GraphAndSoldOutEncodings(t *testing.T) {
	block := `{"@graph": [
		{"@type": "WebPage", "name": "page"},
		{"@type": "MusicEvent", "name": "Techno", "offers": {"@type": "Offer", "name": "A", "url": "https://x/tickets/a", "soldOut": true}},
		{"@type": ["Offer"], "name": "B", "url": "https://x/tickets/b", "status": "SOLD_OUT"},
		{"@type": "Offer", "name": "C", "url": "https://x/tickets/c", "inventoryLevel": {"value": 0}},
		{"@type": "Offer", "name": "D", "url": "https://x/tickets/d", "inventoryLevel": 12}
	]}`

	res, _ := Extract([]string{block}, "")
	want := map[string]bool{"A": true, "B": true, "C": true, "D": false}
	if len(res.Offers) != len(want) {
		t.Fatalf("expected %d offers, got %d: %+v", len(want), len(res.Offers), res.Offers)
	}
	for _, o := range res.Offers {
		if o.SoldOut != want[o.Name] {
			t.Errorf("offer %s soldOut = %v, want %v", o.Name, o.SoldOut, want[o.Name])
		}
	}
}

func TestExtract_ListOfBlocksAndMalformed(t *testing.T) {
	list := `[{"@type": "Offer", "name": "Lista", "price": "0", "url": "https://x/tickets/l"}]`

	res, tr := Extract([]string{"{broken", list}, "")
	if len(res.Offers) != 1 || res.Offers[0].Name != "Lista" {
		t.Errorf("offers = %+v", res.Offers)
	}
	if len(tr.Warnings()) != 1 {
		t.Errorf("expected 1 warning, got %d", len(tr.Warnings()))
	}
}

func TestExtract_RawFallback(t *testing.T) {
	raw := `<script>window.x = {"url": "https://web.example.com/es/v/events/e/tickets/abcdefghij0123456789xy", "other": 1};
{"url":"https://web.example.com/es/v/events/e/tickets/abcdefghij0123456789xy"}</script>`

	res, _ := Extract(nil, raw)
	if len(res.Offers) != 1 {
		t.Fatalf("expected 1 detected offer, got %+v", res.Offers)
	}
	if res.Offers[0].Name != DetectedTicketName || res.Offers[0].Price != nil {
		t.Errorf("detected offer = %+v", res.Offers[0])
	}
}

func TestExtract_Nothing(t *testing.T) {
	res, tr := Extract(nil, "<html></html>")
	if len(res.Offers) != 0 || res.Venue != nil {
		t.Errorf("expected empty result, got %+v", res)
	}
	if len(tr.Warnings()) != 0 {
		t.Errorf("absence of data is not a warning: %+v", tr.Warnings())
	}
}
