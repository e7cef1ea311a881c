// Package schema extracts schema.org data from a page's JSON-LD blocks:
// ticket offers with authoritative price and purchase URL, and the event's
// location.
package schema

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/pfrederiksen/partyfinder/internal/event"
	"github.com/pfrederiksen/partyfinder/internal/trace"
	"github.com/tidwall/jsonc"
)

const stage = "schema"

// DetectedTicketName names offers recovered from raw markup rather than
// from a JSON-LD Offer node.
const DetectedTicketName = "Entrada (Detectada)"

var rawTicketURL = regexp.MustCompile(`"url"\s*:\s*"(https?://[^"]+/tickets/[a-z0-9]{20,})"`)

// Result is what a page's structured data revealed.
type Result struct {
	Offers []event.SchemaOffer
	// Venue is nil when no event node carried a location.
	Venue       *event.Venue
	Name        string
	Description string
	StartDate   string
	EndDate     string
	ImageURL    string
}

// Extract walks every JSON-LD block. Malformed blocks are skipped with a
// trace note. When no Offer node is found, ticket purchase URLs in raw
// are used instead.
func Extract(blocks []string, raw string) (Result, trace.Trace) {
	var res Result
	var tr trace.Trace
	seen := make(map[string]bool)

	for i, block := range blocks {
		var doc any
		if err := json.Unmarshal(jsonc.ToJSON([]byte(block)), &doc); err != nil {
			tr.Warn(stage, "skipping malformed JSON-LD block", map[string]any{
				"index": i,
				"error": fmt.Errorf("%w: %v", event.ErrMalformedSource, err).Error(),
			})
			continue
		}
		walk(doc, &res, seen)
	}

	if len(res.Offers) == 0 && raw != "" {
		for _, m := range rawTicketURL.FindAllStringSubmatch(raw, -1) {
			if seen[m[1]] {
				continue
			}
			seen[m[1]] = true
			res.Offers = append(res.Offers, event.SchemaOffer{Name: DetectedTicketName, PurchaseURL: m[1]})
		}
		if len(res.Offers) > 0 {
			tr.Debug(stage, "offers recovered from raw ticket URLs", map[string]any{"offers": len(res.Offers)})
		}
	}

	tr.Debug(stage, "structured data extracted", map[string]any{"blocks": len(blocks), "offers": len(res.Offers)})
	return res, tr
}

// walk visits nodes depth first. Object keys are visited in sorted order so
// the result does not depend on map iteration.
func walk(node any, res *Result, seen map[string]bool) {
	switch v := node.(type) {
	case []any:
		for _, item := range v {
			walk(item, res, seen)
		}
	case map[string]any:
		if hasType(v, "Offer") {
			if offer, ok := offerFrom(v); ok {
				key := offer.PurchaseURL + "|" + offer.Name
				if !seen[key] {
					seen[key] = true
					seen[offer.PurchaseURL] = true
					res.Offers = append(res.Offers, offer)
				}
			}
		}
		if isEventNode(v) {
			readEvent(v, res)
		}

		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			walk(v[k], res, seen)
		}
	}
}

func hasType(node map[string]any, want string) bool {
	switch t := node["@type"].(type) {
	case string:
		return t == want
	case []any:
		for _, item := range t {
			if s, ok := item.(string); ok && s == want {
				return true
			}
		}
	}
	return false
}

func isEventNode(node map[string]any) bool {
	if _, ok := node["startDate"]; ok {
		return true
	}
	t, _ := node["@type"].(string)
	return strings.HasSuffix(t, "Event")
}

func offerFrom(node map[string]any) (event.SchemaOffer, bool) {
	link := stringField(node, "url")
	if !strings.Contains(link, "/tickets/") {
		return event.SchemaOffer{}, false
	}
	offer := event.SchemaOffer{
		Name:        strings.TrimSpace(stringField(node, "name")),
		Price:       priceField(node["price"]),
		PurchaseURL: link,
		SoldOut:     soldOut(node),
	}
	if offer.Name == "" {
		offer.Name = DetectedTicketName
	}
	return offer, true
}

// soldOut recognizes the sold-out encodings seen in the wild: schema.org
// availability values, boolean flags, status strings and zero inventory.
func soldOut(node map[string]any) bool {
	availability := strings.ToLower(stringField(node, "availability"))
	if strings.Contains(availability, "outofstock") || strings.Contains(availability, "soldout") {
		return true
	}
	for _, key := range []string{"soldOut", "isSoldOut", "sold_out"} {
		if b, ok := node[key].(bool); ok && b {
			return true
		}
	}
	status := strings.ToLower(stringField(node, "status"))
	if strings.Contains(status, "sold") || strings.Contains(status, "agotad") {
		return true
	}
	if inv, ok := node["inventoryLevel"]; ok {
		if obj, ok := inv.(map[string]any); ok {
			inv = obj["value"]
		}
		if p := priceField(inv); p != nil && *p == 0 {
			return true
		}
	}
	return false
}

func readEvent(node map[string]any, res *Result) {
	if res.Name == "" {
		res.Name = strings.TrimSpace(stringField(node, "name"))
	}
	if res.Description == "" {
		res.Description = strings.TrimSpace(stringField(node, "description"))
	}
	if res.StartDate == "" {
		res.StartDate = stringField(node, "startDate")
	}
	if res.EndDate == "" {
		res.EndDate = stringField(node, "endDate")
	}
	if res.ImageURL == "" {
		res.ImageURL = imageField(node["image"])
	}
	if res.Venue == nil {
		if loc, ok := node["location"].(map[string]any); ok {
			res.Venue = venueFrom(loc)
		}
	}
}

func venueFrom(loc map[string]any) *event.Venue {
	v := &event.Venue{Name: strings.TrimSpace(stringField(loc, "name"))}

	switch addr := loc["address"].(type) {
	case string:
		v.Address = strings.TrimSpace(addr)
	case map[string]any:
		v.Address = strings.TrimSpace(stringField(addr, "streetAddress"))
		v.City = strings.TrimSpace(stringField(addr, "addressLocality"))
		v.PostalCode = strings.TrimSpace(stringField(addr, "postalCode"))
	}

	if geo, ok := loc["geo"].(map[string]any); ok {
		lat, lng := priceField(geo["latitude"]), priceField(geo["longitude"])
		if lat != nil && lng != nil {
			v.Coordinates = &event.Coordinates{Latitude: *lat, Longitude: *lng}
		}
	}
	return v
}

func stringField(node map[string]any, key string) string {
	switch v := node[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return ""
}

func imageField(v any) string {
	switch img := v.(type) {
	case string:
		return img
	case []any:
		if len(img) > 0 {
			return imageField(img[0])
		}
	case map[string]any:
		return stringField(img, "url")
	}
	return ""
}

var numeric = regexp.MustCompile(`-?\d+(?:[.,]\d+)?`)

// priceField reads a JSON number or a string such as "15.00" or "15,00 €".
func priceField(v any) *float64 {
	switch p := v.(type) {
	case float64:
		return &p
	case string:
		m := numeric.FindString(p)
		if m == "" {
			return nil
		}
		f, err := strconv.ParseFloat(strings.ReplaceAll(m, ",", "."), 64)
		if err != nil {
			return nil
		}
		return &f
	}
	return nil
}
