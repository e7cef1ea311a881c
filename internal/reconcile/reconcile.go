// Package reconcile merges ticket candidates parsed from rendered text with
// schema.org offers into one authoritative ticket list per event.
package reconcile

import (
	"strings"

	"github.com/pfrederiksen/partyfinder/internal/event"
	"github.com/pfrederiksen/partyfinder/internal/trace"
)

const stage = "reconcile"

// MinSharedKeywords is the fewest keywords a candidate and an offer must
// share for a keyword match.
const MinSharedKeywords = 2

// matcher finds an unused offer for a candidate, returning -1 when none fits.
type matcher struct {
	name  string
	match func(c event.TicketCandidate, offers []event.SchemaOffer, used []bool) int
}

// matchers are tried in order for each candidate.
var matchers = []matcher{
	{name: "exact", match: exactMatch},
	{name: "normalized", match: normalizedMatch},
	{name: "keyword", match: keywordMatch},
	{name: "price", match: priceMatch},
}

// Reconcile produces the canonical tickets for one event.
//
// Each offer is consumed by at most one candidate, first come first served.
// A matched offer always supplies the purchase URL and supplies the price
// when it has a non-zero one. A ticket is sold out when either side says
// so. With no candidates, the offers themselves become the ticket list.
func Reconcile(candidates []event.TicketCandidate, offers []event.SchemaOffer) ([]event.CanonicalTicket, trace.Trace) {
	var tr trace.Trace

	if len(candidates) == 0 {
		tickets := make([]event.CanonicalTicket, 0, len(offers))
		for _, o := range offers {
			tickets = append(tickets, fromOffer(o))
		}
		if len(offers) > 0 {
			tr.Debug(stage, "no text candidates, using offers", map[string]any{"offers": len(offers)})
		}
		return Dedupe(tickets, &tr), tr
	}

	used := make([]bool, len(offers))
	tickets := make([]event.CanonicalTicket, 0, len(candidates))
	for _, c := range candidates {
		t := fromCandidate(c)

		for _, m := range matchers {
			idx := m.match(c, offers, used)
			if idx < 0 {
				continue
			}
			used[idx] = true
			t = merge(t, offers[idx])
			tr.Debug(stage, "candidate matched offer", map[string]any{
				"candidate": c.Name,
				"offer":     offers[idx].Name,
				"strategy":  m.name,
			})
			break
		}
		tickets = append(tickets, t)
	}

	for i, o := range offers {
		if !used[i] {
			tr.Debug(stage, "offer left unmatched", map[string]any{"offer": o.Name, "url": o.PurchaseURL})
		}
	}

	return Dedupe(tickets, &tr), tr
}

func fromCandidate(c event.TicketCandidate) event.CanonicalTicket {
	t := event.CanonicalTicket{
		Name:        strings.TrimSpace(c.Name),
		SoldOut:     c.SoldOut,
		Description: c.Description,
	}
	if c.Price != nil {
		t.Price = *c.Price
	}
	return t
}

func fromOffer(o event.SchemaOffer) event.CanonicalTicket {
	t := event.CanonicalTicket{
		Name:        strings.TrimSpace(o.Name),
		SoldOut:     o.SoldOut,
		PurchaseURL: o.PurchaseURL,
	}
	if o.Price != nil {
		t.Price = *o.Price
	}
	return t
}

func merge(t event.CanonicalTicket, o event.SchemaOffer) event.CanonicalTicket {
	t.PurchaseURL = o.PurchaseURL
	if o.Price != nil && *o.Price != 0 {
		t.Price = *o.Price
	}
	t.SoldOut = t.SoldOut || o.SoldOut
	return t
}

func exactMatch(c event.TicketCandidate, offers []event.SchemaOffer, used []bool) int {
	name := strings.TrimSpace(c.Name)
	for i, o := range offers {
		if !used[i] && strings.TrimSpace(o.Name) == name {
			return i
		}
	}
	return -1
}

func normalizedMatch(c event.TicketCandidate, offers []event.SchemaOffer, used []bool) int {
	name := canonicalName(c.Name)
	if name == "" {
		return -1
	}
	for i, o := range offers {
		if !used[i] && canonicalName(o.Name) == name {
			return i
		}
	}
	return -1
}

// keywordMatch picks the offer sharing the most keywords with the
// candidate, with a bonus for identical counts. Ties keep the earlier offer.
func keywordMatch(c event.TicketCandidate, offers []event.SchemaOffer, used []bool) int {
	cp := profileOf(c.Name)
	best, bestScore := -1, 0
	for i, o := range offers {
		if used[i] {
			continue
		}
		shared, bonus := score(cp, profileOf(o.Name))
		if shared < MinSharedKeywords {
			continue
		}
		if s := shared + bonus; s > bestScore {
			best, bestScore = i, s
		}
	}
	return best
}

// priceMatch matches on price alone when exactly one unused offer shares
// the candidate's non-zero price.
func priceMatch(c event.TicketCandidate, offers []event.SchemaOffer, used []bool) int {
	if c.Price == nil || *c.Price == 0 {
		return -1
	}
	found := -1
	for i, o := range offers {
		if used[i] || o.Price == nil || *o.Price != *c.Price {
			continue
		}
		if found >= 0 {
			return -1
		}
		found = i
	}
	return found
}

// Dedupe keeps the first ticket of each normalized (name, price) pair. A
// sold-out flag on a dropped duplicate carries over to the kept ticket.
func Dedupe(tickets []event.CanonicalTicket, tr *trace.Trace) []event.CanonicalTicket {
	index := make(map[string]int, len(tickets))
	out := make([]event.CanonicalTicket, 0, len(tickets))
	for _, t := range tickets {
		price := t.Price
		key := event.TicketKey(t.Name, &price)
		if i, ok := index[key]; ok {
			out[i].SoldOut = out[i].SoldOut || t.SoldOut
			if out[i].PurchaseURL == "" {
				out[i].PurchaseURL = t.PurchaseURL
			}
			if out[i].Description == "" {
				out[i].Description = t.Description
			}
			tr.Debug(stage, "duplicate ticket merged", map[string]any{"name": t.Name})
			continue
		}
		index[key] = len(out)
		out = append(out, t)
	}
	return out
}
