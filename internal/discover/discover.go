package discover

import (
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/pfrederiksen/partyfinder/internal/event"
	"github.com/pfrederiksen/partyfinder/internal/render"
	"github.com/pfrederiksen/partyfinder/internal/trace"
	"github.com/pfrederiksen/partyfinder/internal/transferstate"
)

const stage = "discover"

// Input is one fetched venue listing page.
type Input struct {
	Page *render.Page
	// PageURL resolves relative links and supplies the fallback venue slug.
	PageURL string
	// BaseURL prefixes URLs built from transfer state and codes,
	// e.g. "https://site.example.com/es".
	BaseURL string
	// NameInURL is false for venues whose detail URLs carry only a code.
	NameInURL bool
	// Location converts epoch timestamps into local dates and times.
	Location *time.Location
}

// Strategy is one way of finding stubs. It returns nil when it finds nothing.
type Strategy struct {
	Name string
	Run  func(in Input, tr *trace.Trace) []event.EventStub
}

// Strategies returns the discovery strategies in the order they are tried.
func Strategies() []Strategy {
	return []Strategy{
		{Name: "transfer-state", Run: fromTransferState},
		{Name: "labelled-link", Run: fromLabelledLinks},
		{Name: "component-marker", Run: fromComponentMarkers},
		{Name: "permissive-link", Run: fromPermissiveLinks},
		{Name: "rendered-text", Run: fromRenderedText},
	}
}

// Discover returns the stubs of the first strategy that yields any,
// deduplicated by source URL.
func Discover(in Input) ([]event.EventStub, trace.Trace) {
	var tr trace.Trace
	if in.Page == nil || in.Page.Doc == nil {
		tr.Warn(stage, "no page to discover from", nil)
		return nil, tr
	}
	if in.Location == nil {
		in.Location = time.UTC
	}

	for _, s := range Strategies() {
		stubs := s.Run(in, &tr)
		if len(stubs) == 0 {
			tr.Debug(stage, "strategy found nothing", map[string]any{"strategy": s.Name})
			continue
		}
		for i := range stubs {
			stubs[i].Strategy = s.Name
			if stubs[i].Confidence == "" {
				stubs[i].Confidence = event.ConfidenceHigh
			}
		}
		stubs = dedupe(stubs, &tr)
		tr.Debug(stage, "strategy matched", map[string]any{"strategy": s.Name, "stubs": len(stubs)})
		return stubs, tr
	}

	tr.Warn(stage, "no events found on page", map[string]any{"url": in.PageURL})
	return nil, tr
}

func dedupe(stubs []event.EventStub, tr *trace.Trace) []event.EventStub {
	seen := make(map[string]bool, len(stubs))
	out := stubs[:0]
	for _, s := range stubs {
		key := strings.TrimRight(s.SourceURL, "/")
		if seen[key] {
			tr.Debug(stage, "duplicate stub dropped", map[string]any{"url": s.SourceURL})
			continue
		}
		seen[key] = true
		out = append(out, s)
	}
	return out
}

func fromTransferState(in Input, tr *trace.Trace) []event.EventStub {
	res, stateTrace := transferstate.Extract(in.Page.Scripts("application/json"))
	tr.Merge(stateTrace)

	var stubs []event.EventStub
	for _, e := range res.Listing {
		venue := e.OrgSlug
		if venue == "" {
			venue = venueSlug(in.PageURL)
		}
		link := buildEventURL(in.BaseURL, venue, e.Slug, e.Code)
		if link == "" {
			tr.Debug(stage, "transfer state entry without slug or code", map[string]any{"name": e.Name})
			continue
		}

		s := event.EventStub{
			SourceURL:   link,
			DisplayName: e.Name,
			Code:        e.Code,
			VenueSlug:   venue,
			AgeMinimum:  e.AgeMinimum,
			ImageURL:    e.ImageURL,
			Tags:        e.Genres,
		}
		if e.Date != 0 {
			s.DateHint, _ = event.FormatEpoch(e.Date, in.Location)
		}
		if e.Start != 0 {
			_, s.StartTime = event.FormatEpoch(e.Start, in.Location)
		}
		if e.End != 0 {
			_, s.EndTime = event.FormatEpoch(e.End, in.Location)
		}
		stubs = append(stubs, s)
	}
	return stubs
}

func fromLabelledLinks(in Input, tr *trace.Trace) []event.EventStub {
	var stubs []event.EventStub
	in.Page.Doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		label, _ := a.Attr("aria-label")
		if !IsEventLabel(label) {
			return
		}
		link, ok := eventLink(in.PageURL, href)
		if !ok {
			return
		}

		l := ParseLabel(label)
		stubs = append(stubs, event.EventStub{
			SourceURL:   link,
			DisplayName: l.Name,
			Code:        codeFromURL(link),
			VenueSlug:   venueSlug(link),
			DateHint:    l.Date,
			AgeMinimum:  l.AgeMinimum,
			StartTime:   l.StartTime,
			EndTime:     l.EndTime,
			Tags:        event.GenreTags(label),
		})
	})
	return stubs
}

const cardSelector = `[data-testid="event-card"], [data-testid="event-card-name"], div[class*="event"][class*="card"]`

func fromComponentMarkers(in Input, tr *trace.Trace) []event.EventStub {
	var stubs []event.EventStub
	in.Page.Doc.Find(cardSelector).Each(func(_ int, card *goquery.Selection) {
		a := card.Closest("a[href]")
		if a.Length() == 0 {
			a = card.Find("a[href]").First()
		}
		href, ok := a.Attr("href")
		if !ok {
			return
		}
		link, ok := eventLink(in.PageURL, href)
		if !ok {
			return
		}

		name := firstText(card.Find(`[data-testid="event-card-name"]`))
		if name == "" {
			name = labelOrText(a)
		}
		if name == "" {
			name = firstText(card)
		}
		stubs = append(stubs, event.EventStub{
			SourceURL:   link,
			DisplayName: name,
			Code:        codeFromURL(link),
			VenueSlug:   venueSlug(link),
		})
	})
	return stubs
}

func fromPermissiveLinks(in Input, tr *trace.Trace) []event.EventStub {
	var stubs []event.EventStub
	in.Page.Doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		link, ok := eventLink(in.PageURL, href)
		if !ok {
			return
		}
		name := labelOrText(a)
		if name == "" {
			name = firstText(a.Parent())
		}
		stubs = append(stubs, event.EventStub{
			SourceURL:   link,
			DisplayName: name,
			Code:        codeFromURL(link),
			VenueSlug:   venueSlug(link),
		})
	})
	return stubs
}

var (
	pathFragment = regexp.MustCompile(`/([a-z0-9][a-z0-9-]*)/events/([A-Za-z0-9][A-Za-z0-9-]*)`)
	clickHandler = regexp.MustCompile(`onClickEvent\(\s*'([^']+)'\s*,\s*'([A-Z0-9]{4})'\s*,\s*'([^']+)'`)
	bareCode     = regexp.MustCompile(`/events/([A-Z0-9]{4})\b`)
	hasDigit     = regexp.MustCompile(`\d`)
)

// fromRenderedText is the last resort. Path fragments in the rendered text
// name their event after the closest heading above them. Failing that,
// for venues whose URLs carry only a code, codes found in the markup are
// paired with headings purely by order of appearance; those stubs are
// marked low confidence.
func fromRenderedText(in Input, tr *trace.Trace) []event.EventStub {
	lines := in.Page.Lines()

	var stubs []event.EventStub
	heading := ""
	for _, line := range lines {
		if strings.HasPrefix(line, "# ") {
			heading = strings.TrimSpace(strings.TrimPrefix(line, "# "))
			continue
		}
		for _, m := range pathFragment.FindAllStringSubmatch(line, -1) {
			link := buildEventURL(in.BaseURL, m[1], m[2], "")
			stubs = append(stubs, event.EventStub{
				SourceURL:   link,
				DisplayName: heading,
				Code:        codeFromURL(link),
				VenueSlug:   m[1],
			})
		}
	}

	for _, m := range clickHandler.FindAllStringSubmatch(in.Page.Raw, -1) {
		link := buildEventURL(in.BaseURL, m[3], m[1], m[2])
		stubs = append(stubs, event.EventStub{
			SourceURL: link,
			Code:      m[2],
			VenueSlug: m[3],
		})
	}
	if len(stubs) > 0 || in.NameInURL {
		return stubs
	}

	return pairByOrder(in, lines, tr)
}

func pairByOrder(in Input, lines []string, tr *trace.Trace) []event.EventStub {
	var codes []string
	seen := make(map[string]bool)
	for _, m := range bareCode.FindAllStringSubmatch(in.Page.Raw, -1) {
		if !hasDigit.MatchString(m[1]) || seen[m[1]] {
			continue
		}
		seen[m[1]] = true
		codes = append(codes, m[1])
	}

	var headings []string
	for _, line := range lines {
		if strings.HasPrefix(line, "# ") {
			headings = append(headings, strings.TrimSpace(strings.TrimPrefix(line, "# ")))
		}
	}

	n := min(len(codes), len(headings))
	if len(codes) != len(headings) {
		tr.Warn(stage, "code and heading counts differ, pairing by position", map[string]any{
			"codes":    len(codes),
			"headings": len(headings),
		})
	}

	venue := venueSlug(in.PageURL)
	stubs := make([]event.EventStub, 0, n)
	for i := 0; i < n; i++ {
		stubs = append(stubs, event.EventStub{
			SourceURL:   buildEventURL(in.BaseURL, venue, "", codes[i]),
			DisplayName: headings[i],
			Code:        codes[i],
			VenueSlug:   venue,
			Confidence:  event.ConfidenceLow,
		})
	}
	return stubs
}

// eventLink resolves href against the page and reports whether it has the
// shape of an event detail path: /<venue>/events/<slug-or-code>.
func eventLink(pageURL, href string) (string, bool) {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", false
	}
	if base, err := url.Parse(pageURL); err == nil && pageURL != "" {
		ref = base.ResolveReference(ref)
	}
	ref.RawQuery = ""
	ref.Fragment = ""

	segs := pathSegments(ref.Path)
	for i, s := range segs {
		if s == "events" && i > 0 && i == len(segs)-2 {
			return ref.String(), true
		}
	}
	return "", false
}

func pathSegments(p string) []string {
	var segs []string
	for _, s := range strings.Split(p, "/") {
		if s != "" {
			segs = append(segs, s)
		}
	}
	return segs
}

// venueSlug is the path segment before "events", or the last segment of a
// listing URL.
func venueSlug(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	segs := pathSegments(u.Path)
	for i, s := range segs {
		if s == "events" && i > 0 {
			return segs[i-1]
		}
	}
	if len(segs) > 0 {
		return segs[len(segs)-1]
	}
	return ""
}

var (
	upperCode = regexp.MustCompile(`^[A-Z0-9]+$`)
	slugCode  = regexp.MustCompile(`-([A-Z0-9]{4,})$`)
)

// codeFromURL returns the short code at the end of an event URL: either the
// whole last segment or the suffix after its last dash.
func codeFromURL(link string) string {
	segs := pathSegments(strings.SplitN(link, "?", 2)[0])
	if len(segs) == 0 {
		return ""
	}
	last := segs[len(segs)-1]
	if upperCode.MatchString(last) {
		return last
	}
	if m := slugCode.FindStringSubmatch(last); m != nil {
		return m[1]
	}
	return ""
}

// buildEventURL joins base, venue and the slug/code pair. The code is not
// appended twice when the slug already ends with it.
func buildEventURL(base, venue, slug, code string) string {
	var last string
	switch {
	case slug != "" && code != "" && !strings.HasSuffix(slug, "-"+code):
		last = slug + "-" + code
	case slug != "":
		last = slug
	case code != "":
		last = code
	default:
		return ""
	}
	if venue == "" {
		return ""
	}
	return strings.TrimRight(base, "/") + "/" + venue + "/events/" + last
}

func labelOrText(a *goquery.Selection) string {
	if label, ok := a.Attr("aria-label"); ok && strings.TrimSpace(label) != "" {
		if IsEventLabel(label) {
			if l := ParseLabel(label); l.Name != "" {
				return l.Name
			}
		}
		return strings.TrimSpace(label)
	}
	return firstText(a)
}

func firstText(sel *goquery.Selection) string {
	if sel.Length() == 0 {
		return ""
	}
	for _, line := range render.Text(sel) {
		if line = strings.TrimSpace(strings.TrimLeft(line, "#- ")); line != "" {
			return line
		}
	}
	return ""
}

// StubFor builds the stub of a known event URL, for detail pages parsed
// without their listing.
func StubFor(link string) event.EventStub {
	return event.EventStub{
		SourceURL:  link,
		Code:       codeFromURL(link),
		VenueSlug:  venueSlug(link),
		Strategy:   "direct",
		Confidence: event.ConfidenceHigh,
	}
}
