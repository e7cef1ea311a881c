package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pfrederiksen/partyfinder/internal/clock"
	"github.com/pfrederiksen/partyfinder/internal/event"
	"github.com/pfrederiksen/partyfinder/internal/logger"
	"github.com/pfrederiksen/partyfinder/internal/render"
)

var madrid = time.FixedZone("CEST", 2*60*60)

const listingHTML = `<html><body>
<a href="/es/luminata-disco/events/sabado-reggaeton-18-10-2026-WF35" aria-label="Evento: Sábado Reggaeton. Edad mínima: 21. Fecha: sáb 18 oct. Horario: de 23:30 a 6:00.">Sábado</a>
<a href="/es/luminata-disco/events/viernes-latino-17-10-2026-ZMZ2" aria-label="Evento: Viernes Latino. Fecha: vie 17 oct">Viernes</a>
</body></html>`

const detailHTML = `<html><head>
<script type="application/ld+json">{
  "@type": "Event",
  "name": "Sábado Reggaeton",
  "startDate": "2026-10-18T23:30:00+02:00",
  "offers": [
    {"@type": "Offer", "name": "VIP 2 COPAS", "price": "15", "url": "https://tickets.example.com/tickets/abcdefghijklmnopqrstu", "availability": "https://schema.org/InStock"}
  ]
}</script>
</head><body>
<h1>Sábado Reggaeton</h1>
<ul>
<li>ENTRADA 10€</li>
<li>VIP 2 COPAS</li>
</ul>
<p>Agotada</p>
</body></html>`

func quietLogger() *logger.Logger {
	return logger.New(logger.LevelError, io.Discard)
}

func newTestSite(t *testing.T, routes map[string]string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := routes[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, body)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestPipeline_Run(t *testing.T) {
	server := newTestSite(t, map[string]string{
		"/es/luminata-disco": listingHTML,
		"/es/luminata-disco/events/sabado-reggaeton-18-10-2026-WF35": detailHTML,
	})

	clk := clock.NewFake(testNow)
	fetcher := NewFetcher(testCredential(), FetcherOptions{Clock: clk, Retries: 0})
	p := New(fetcher, Options{
		BaseURL:    server.URL + "/es",
		VenuePause: 3 * time.Second,
		EventPause: time.Second,
		Location:   madrid,
		Clock:      clk,
		Logger:     quietLogger(),
	})

	res, err := p.Run(context.Background(), []Venue{
		{URL: server.URL + "/es/luminata-disco", Name: "Luminata Disco", City: "Madrid", NameInURL: true},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(res.Venues) != 1 || res.Venues[0].Stubs != 2 || res.Venues[0].Err != nil {
		t.Fatalf("unexpected venue summary: %+v", res.Venues)
	}
	if len(res.Events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(res.Events))
	}

	sat := res.Events[0]
	if sat.Name != "Sábado Reggaeton" || sat.Date != "2026-10-18" || sat.StartTime != "23:30" {
		t.Errorf("unexpected event: %s %s %s", sat.Name, sat.Date, sat.StartTime)
	}
	if sat.AgeMinimum != 21 || sat.Venue.Name != "Luminata Disco" || sat.Venue.City != "Madrid" {
		t.Errorf("age/venue = %d %+v", sat.AgeMinimum, sat.Venue)
	}
	if len(sat.Tickets) != 2 {
		t.Fatalf("expected 2 tickets, got %+v", sat.Tickets)
	}
	for _, tk := range sat.Tickets {
		switch tk.Name {
		case "ENTRADA 10€":
			if tk.Price != 10 || tk.PurchaseURL != sat.SourceURL {
				t.Errorf("text ticket = %+v", tk)
			}
		case "VIP 2 COPAS":
			if tk.Price != 15 || !strings.Contains(tk.PurchaseURL, "/tickets/") || !tk.SoldOut {
				t.Errorf("schema ticket = %+v", tk)
			}
		default:
			t.Errorf("unexpected ticket %q", tk.Name)
		}
	}

	// The second page 404s but its stub came from a labelled link,
	// so the event is kept with defaults.
	fri := res.Events[1]
	if fri.Name != "Viernes Latino" || fri.Date != "2026-10-17" || fri.StartTime != "23:00" {
		t.Errorf("unexpected fallback event: %s %s %s", fri.Name, fri.Date, fri.StartTime)
	}
	if len(fri.Tickets) != 1 || fri.Tickets[0].Name != "Entrada General" {
		t.Errorf("fallback tickets = %+v", fri.Tickets)
	}

	if clk.Slept() != 2*time.Second {
		t.Errorf("slept %v, want 2s of event pauses", clk.Slept())
	}
}

type fakeFetcher struct {
	pages map[string]string
	errs  map[string]error
	calls []string
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) (*render.Page, error) {
	f.calls = append(f.calls, url)
	if err, ok := f.errs[url]; ok {
		return nil, err
	}
	body, ok := f.pages[url]
	if !ok {
		return nil, fmt.Errorf("%w: status 404", event.ErrSourceUnavailable)
	}
	return render.ParseString(body)
}

func TestPipeline_SkipsUnavailableVenue(t *testing.T) {
	f := &fakeFetcher{
		pages: map[string]string{
			"https://site.example.com/es/el-club": `<html><body><a href="/es/el-club/events/X1NH">Jueves</a></body></html>`,
		},
		errs: map[string]error{
			"https://site.example.com/es/down": fmt.Errorf("%w: status 503", event.ErrSourceBlocked),
		},
	}
	clk := clock.NewFake(testNow)
	p := New(f, Options{BaseURL: "https://site.example.com/es", VenuePause: 3 * time.Second, Clock: clk, Logger: quietLogger()})

	res, err := p.Run(context.Background(), []Venue{
		{URL: "https://site.example.com/es/down", Name: "Down"},
		{URL: "https://site.example.com/es/el-club", Name: "El Club"},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !errors.Is(res.Venues[0].Err, event.ErrSourceBlocked) {
		t.Errorf("first venue error = %v", res.Venues[0].Err)
	}
	if len(res.Events) != 1 || res.Events[0].Name != "Jueves" {
		t.Errorf("events = %+v", res.Events)
	}
	if clk.Slept() != 3*time.Second {
		t.Errorf("slept %v, want one venue pause", clk.Slept())
	}
}

func TestPipeline_ExpiredSessionAborts(t *testing.T) {
	f := &fakeFetcher{
		pages: map[string]string{
			"https://site.example.com/es/el-club": `<html><body>
<a href="/es/el-club/events/X1NH">Jueves</a>
<a href="/es/el-club/events/YX8T">Viernes</a>
</body></html>`,
		},
		errs: map[string]error{
			"https://site.example.com/es/el-club/events/X1NH": fmt.Errorf("%w: access denied (1020)", event.ErrSessionExpired),
		},
	}
	p := New(f, Options{Clock: clock.NewFake(testNow), Logger: quietLogger()})

	res, err := p.Run(context.Background(), []Venue{{URL: "https://site.example.com/es/el-club", Name: "El Club"}})
	if !errors.Is(err, event.ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
	if res != nil {
		t.Errorf("expected no partial result, got %+v", res)
	}
	if len(f.calls) != 2 {
		t.Errorf("expected the run to stop at the first rejected page, calls = %v", f.calls)
	}
}

func TestPipeline_DropsEmptyLowConfidenceStubs(t *testing.T) {
	f := &fakeFetcher{
		pages: map[string]string{
			"https://site.example.com/es/el-club": `<html><body>
<h3>Jueves Play</h3><h3>Viernes Latino</h3>
<script>var ev = ["/events/3BKH", "/events/ZMZ2"];</script>
</body></html>`,
			"https://site.example.com/es/el-club/events/3BKH": `<html><body><h1>Jueves Play</h1><ul><li>ENTRADA 8€</li></ul></body></html>`,
		},
	}
	p := New(f, Options{BaseURL: "https://site.example.com/es", Clock: clock.NewFake(testNow), Logger: quietLogger()})

	res, err := p.Run(context.Background(), []Venue{{URL: "https://site.example.com/es/el-club", Name: "El Club"}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Events) != 1 {
		t.Fatalf("expected the unreachable low-confidence stub to be dropped, got %d events", len(res.Events))
	}
	if res.Events[0].Confidence != event.ConfidenceLow {
		t.Errorf("Confidence = %q, want low", res.Events[0].Confidence)
	}
}

func TestBuildRecord_EmptyPage(t *testing.T) {
	page, err := render.ParseString(`<html><body><p>Cookies</p></body></html>`)
	if err != nil {
		t.Fatal(err)
	}
	rec, _ := BuildRecord(event.EventStub{SourceURL: "https://site.example.com/es/x/events/AB12"}, event.Venue{}, page)
	if !rec.Empty {
		t.Error("page without tickets, offers or event data should be empty")
	}
	if rec.Tickets == nil {
		t.Error("Tickets should be non-nil")
	}
}
