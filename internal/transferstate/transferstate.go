// Package transferstate reads the JSON state a server-rendered page embeds
// in <script type="application/json"> so client code can resume without a
// second request.
//
// Listing pages carry an entry per event under a key containing "events";
// detail pages carry the event itself under a key containing "event".
package transferstate

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/pfrederiksen/partyfinder/internal/trace"
	"github.com/tidwall/jsonc"
)

const stage = "transferstate"

// Location is the address block of an event or venue.
type Location struct {
	Address    string   `json:"address"`
	City       string   `json:"city"`
	PostalCode string   `json:"postalCode"`
	Latitude   *float64 `json:"latitude"`
	Longitude  *float64 `json:"longitude"`
}

// Entry is one event in a listing page's state, or the event of a detail page.
type Entry struct {
	Name         string
	Slug         string
	Code         string
	OrgSlug      string
	OrgName      string
	Description  string
	Start        int64
	End          int64
	Date         int64
	AgeMinimum   int
	DressCode    string
	ImageURL     string
	PurchaseURL  string
	Genres       []string
	Location     Location
	OrgImageURL  string
	HasLocation  bool
	TicketsCount int
}

// Result holds whatever the page's state revealed.
type Result struct {
	Listing []Entry
	Event   *Entry
}

// Extract walks every transfer-state blob. Malformed blobs are skipped
// and noted in the trace.
func Extract(blobs []string) (Result, trace.Trace) {
	var res Result
	var tr trace.Trace

	for i, blob := range blobs {
		var state map[string]json.RawMessage
		if err := json.Unmarshal(jsonc.ToJSON([]byte(unescape(blob))), &state); err != nil {
			tr.Warn(stage, "skipping malformed transfer state", map[string]any{"index": i, "error": err.Error()})
			continue
		}

		for key, value := range state {
			lower := strings.ToLower(key)

			var wrapper struct {
				Data json.RawMessage `json:"data"`
			}
			if err := json.Unmarshal(value, &wrapper); err != nil {
				continue
			}

			switch {
			case strings.Contains(lower, "events") && len(res.Listing) == 0:
				var items []json.RawMessage
				if err := json.Unmarshal(wrapper.Data, &items); err != nil {
					continue
				}
				for _, item := range items {
					if e, ok := decodeEntry(item); ok {
						res.Listing = append(res.Listing, e)
					}
				}
				tr.Debug(stage, "listing state found", map[string]any{"key": key, "entries": len(res.Listing)})

			case strings.Contains(lower, "event") && !strings.Contains(lower, "tickets") &&
				!strings.Contains(lower, "lists") && res.Event == nil:
				body := wrapper.Data
				if len(body) == 0 {
					body = value
				}
				if e, ok := decodeEntry(body); ok {
					res.Event = &e
					tr.Debug(stage, "event state found", map[string]any{"key": key})
				}
			}
		}
	}

	return res, tr
}

// unescape reverses the entity escaping some framework versions apply to
// the serialized state.
func unescape(s string) string {
	if !strings.Contains(s, "&q;") {
		return s
	}
	return strings.NewReplacer("&q;", `"`, "&s;", "'", "&l;", "<", "&g;", ">", "&a;", "&").Replace(s)
}

type rawEntry struct {
	Name         string          `json:"name"`
	Slug         string          `json:"slug"`
	Code         string          `json:"code"`
	Description  string          `json:"description"`
	Start        json.RawMessage `json:"start"`
	End          json.RawMessage `json:"end"`
	Date         json.RawMessage `json:"date"`
	Age          json.RawMessage `json:"age"`
	DressCode    string          `json:"dressCode"`
	Image        string          `json:"image"`
	PurchaseURL  string          `json:"purchaseUrl"`
	Images       map[string]any  `json:"images"`
	MusicGenres  json.RawMessage `json:"musicGenres"`
	Styles       json.RawMessage `json:"styles"`
	Genres       json.RawMessage `json:"genres"`
	Location     json.RawMessage `json:"location"`
	Organization struct {
		Slug   string         `json:"slug"`
		Name   string         `json:"name"`
		Image  string         `json:"image"`
		Images map[string]any `json:"images"`
	} `json:"organization"`
	Dates struct {
		Start json.RawMessage `json:"start"`
		End   json.RawMessage `json:"end"`
		Date  json.RawMessage `json:"date"`
	} `json:"dates"`
	Ticketing struct {
		Tickets []json.RawMessage `json:"tickets"`
	} `json:"ticketing"`
}

type rawLocation struct {
	Address         string          `json:"address"`
	AddressComplete string          `json:"addressComplete"`
	FullAddress     string          `json:"fullAddress"`
	City            string          `json:"city"`
	PostalCode      json.RawMessage `json:"postalCode"`
	Latitude        json.RawMessage `json:"latitude"`
	Longitude       json.RawMessage `json:"longitude"`
}

func decodeEntry(raw json.RawMessage) (Entry, bool) {
	var r rawEntry
	if err := json.Unmarshal(raw, &r); err != nil {
		return Entry{}, false
	}
	if r.Name == "" && r.Slug == "" && r.Code == "" && len(r.Start) == 0 && len(r.Location) == 0 {
		return Entry{}, false
	}

	e := Entry{
		Name:         strings.TrimSpace(r.Name),
		Slug:         r.Slug,
		Code:         r.Code,
		OrgSlug:      r.Organization.Slug,
		OrgName:      r.Organization.Name,
		Description:  strings.TrimSpace(r.Description),
		Start:        firstInt(r.Start, r.Dates.Start),
		End:          firstInt(r.End, r.Dates.End),
		Date:         firstInt(r.Date, r.Dates.Date),
		AgeMinimum:   int(firstInt(r.Age)),
		DressCode:    r.DressCode,
		ImageURL:     firstString(r.Image, imageOf(r.Images, "medium", "small", "main")),
		OrgImageURL:  firstString(r.Organization.Image, imageOf(r.Organization.Images, "main")),
		PurchaseURL:  r.PurchaseURL,
		TicketsCount: len(r.Ticketing.Tickets),
	}
	if e.Date == 0 {
		e.Date = e.Start
	}

	for _, list := range []json.RawMessage{r.MusicGenres, r.Styles, r.Genres} {
		e.Genres = append(e.Genres, namesOf(list)...)
	}

	var loc rawLocation
	if len(r.Location) > 0 && json.Unmarshal(r.Location, &loc) == nil {
		e.HasLocation = true
		e.Location = Location{
			Address:    firstString(loc.FullAddress, loc.AddressComplete, loc.Address),
			City:       loc.City,
			PostalCode: stringOf(loc.PostalCode),
			Latitude:   floatOf(loc.Latitude),
			Longitude:  floatOf(loc.Longitude),
		}
	}

	return e, true
}

// namesOf accepts a list of strings or of objects with a "name" field.
func namesOf(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}
	var out []string
	for _, item := range items {
		var s string
		if json.Unmarshal(item, &s) == nil {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
			continue
		}
		var obj struct {
			Name string `json:"name"`
		}
		if json.Unmarshal(item, &obj) == nil && strings.TrimSpace(obj.Name) != "" {
			out = append(out, strings.TrimSpace(obj.Name))
		}
	}
	return out
}

func imageOf(images map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := images[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func firstString(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func firstInt(values ...json.RawMessage) int64 {
	for _, v := range values {
		if f := floatOf(v); f != nil && *f != 0 {
			return int64(*f)
		}
	}
	return 0
}

// floatOf reads a JSON number or a numeric string.
func floatOf(raw json.RawMessage) *float64 {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var f float64
	if json.Unmarshal(raw, &f) == nil {
		return &f
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		if v, err := strconv.ParseFloat(strings.TrimSpace(strings.ReplaceAll(s, ",", ".")), 64); err == nil {
			return &v
		}
	}
	return nil
}

func stringOf(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return strings.TrimSpace(s)
	}
	var f float64
	if json.Unmarshal(raw, &f) == nil {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return ""
}
