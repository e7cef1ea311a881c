package transferstate

import "testing"

const listingState = `{
	"transfer-state-events-luminata": {
		"data": [
			{
				"name": "Sábado Latino",
				"slug": "sabado-latino",
				"code": "ABC-123",
				"organization": {"slug": "luminata-disco", "name": "Luminata Disco"},
				"dates": {"start": 1792360800, "end": 1792382400},
				"age": "18",
				"musicGenres": [{"name": "Reggaeton"}, "Latin"],
				"location": {"addressComplete": "Calle Mayor 1", "city": "Madrid", "postalCode": 28013, "latitude": "40.41", "longitude": -3.70},
			},
			{"nothing": true}
		]
	}
}`

func TestExtract_Listing(t *testing.T) {
	res, tr := Extract([]string{listingState})

	if len(res.Listing) != 1 {
		t.Fatalf("expected 1 listing entry, got %d (%+v)", len(res.Listing), tr.Notes)
	}
	e := res.Listing[0]
	if e.Name != "Sábado Latino" || e.Code != "ABC-123" || e.OrgSlug != "luminata-disco" {
		t.Errorf("unexpected entry: %+v", e)
	}
	if e.Start != 1792360800 || e.Date != 1792360800 {
		t.Errorf("start/date = %d/%d", e.Start, e.Date)
	}
	if e.AgeMinimum != 18 {
		t.Errorf("age = %d, want 18", e.AgeMinimum)
	}
	if len(e.Genres) != 2 || e.Genres[0] != "Reggaeton" || e.Genres[1] != "Latin" {
		t.Errorf("genres = %v", e.Genres)
	}
	if e.Location.Address != "Calle Mayor 1" || e.Location.PostalCode != "28013" {
		t.Errorf("location = %+v", e.Location)
	}
	if e.Location.Latitude == nil || *e.Location.Latitude != 40.41 {
		t.Errorf("latitude = %v", e.Location.Latitude)
	}
	if res.Event != nil {
		t.Errorf("expected no event info, got %+v", res.Event)
	}
}

func TestExtract_EventInfo(t *testing.T) {
	blob := `{"event-luminata-sabado":{"data":{"start":1792360800,"end":1792382400,"age":21,"dressCode":"Elegante","images":{"medium":"https://img/x.jpg"},"location":{"fullAddress":"Calle Mayor 1, Madrid","city":"Madrid"}}},"event-tickets":{"data":[]}}`

	res, _ := Extract([]string{blob})
	if res.Event == nil {
		t.Fatal("expected event info")
	}
	if res.Event.AgeMinimum != 21 || res.Event.DressCode != "Elegante" {
		t.Errorf("unexpected event info: %+v", res.Event)
	}
	if res.Event.ImageURL != "https://img/x.jpg" {
		t.Errorf("image = %q", res.Event.ImageURL)
	}
	if !res.Event.HasLocation || res.Event.Location.Address != "Calle Mayor 1, Madrid" {
		t.Errorf("location = %+v", res.Event.Location)
	}
}

func TestExtract_EscapedAndMalformed(t *testing.T) {
	escaped := `{&q;events-x&q;:{&q;data&q;:[{&q;name&q;:&q;A &a; B&q;,&q;slug&q;:&q;a-b&q;}]}}`

	res, tr := Extract([]string{"{not json", escaped})
	if len(res.Listing) != 1 || res.Listing[0].Name != "A & B" {
		t.Errorf("listing = %+v", res.Listing)
	}
	if len(tr.Warnings()) != 1 {
		t.Errorf("expected 1 warning for the malformed blob, got %d", len(tr.Warnings()))
	}
}
