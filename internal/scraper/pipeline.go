package scraper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pfrederiksen/partyfinder/internal/clock"
	"github.com/pfrederiksen/partyfinder/internal/discover"
	"github.com/pfrederiksen/partyfinder/internal/event"
	"github.com/pfrederiksen/partyfinder/internal/logger"
	"github.com/pfrederiksen/partyfinder/internal/metrics"
	"github.com/pfrederiksen/partyfinder/internal/normalize"
	"github.com/pfrederiksen/partyfinder/internal/reconcile"
	"github.com/pfrederiksen/partyfinder/internal/render"
	"github.com/pfrederiksen/partyfinder/internal/schema"
	"github.com/pfrederiksen/partyfinder/internal/textparse"
	"github.com/pfrederiksen/partyfinder/internal/trace"
	"github.com/pfrederiksen/partyfinder/internal/transferstate"
)

const (
	DefaultVenuePause = 3 * time.Second
	DefaultEventPause = 1 * time.Second
)

// Venue is one configured listing page.
type Venue struct {
	URL  string
	Name string
	City string
	// NameInURL is false for venues whose event URLs carry only a code.
	NameInURL bool
}

// Options configure a Pipeline.
type Options struct {
	// BaseURL prefixes event URLs built from codes, e.g. "https://site.example.com/es".
	BaseURL    string
	VenuePause time.Duration
	EventPause time.Duration
	Location   *time.Location
	Clock      clock.Clock
	Metrics    *metrics.Recorder
	Logger     *logger.Logger
}

// VenueResult summarizes one venue of a run.
type VenueResult struct {
	Venue  Venue
	Stubs  int
	Events int
	Err    error
}

// Result is the outcome of a run. Events replace any previous catalog.
type Result struct {
	Events []event.CanonicalEvent
	Venues []VenueResult
}

// Pipeline scrapes venues one page at a time.
type Pipeline struct {
	fetcher PageFetcher
	opts    Options
}

// New creates a Pipeline over f.
func New(f PageFetcher, opts Options) *Pipeline {
	if opts.Clock == nil {
		opts.Clock = clock.NewSystem()
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Logger == nil {
		opts.Logger = logger.Default()
	}
	return &Pipeline{fetcher: f, opts: opts}
}

// Run scrapes every venue in order. A venue whose listing cannot be
// fetched is skipped. An expired credential or a canceled context stops the
// run and is returned; the events gathered so far are discarded so that a
// partial catalog never replaces a complete one.
func (p *Pipeline) Run(ctx context.Context, venues []Venue) (*Result, error) {
	log := p.opts.Logger
	res := &Result{}
	var records []normalize.Record

	for i, v := range venues {
		if i > 0 {
			if err := p.pause(ctx, p.opts.VenuePause); err != nil {
				return nil, err
			}
		}

		recs, stubs, err := p.venue(ctx, v)
		res.Venues = append(res.Venues, VenueResult{Venue: v, Stubs: stubs, Events: len(recs), Err: err})
		if err != nil {
			if event.IsFatal(err) || ctx.Err() != nil {
				log.Error("Scrape aborted", logger.Fields{"venue": v.Name, "url": v.URL}, err)
				return nil, err
			}
			log.Warn("Skipping venue", logger.Fields{"venue": v.Name, "url": v.URL, "error": err.Error()})
			continue
		}
		records = append(records, recs...)
	}

	events, tr := normalize.Normalize(records, normalize.Options{
		Now:      p.opts.Clock.Now(),
		Location: p.opts.Location,
	})
	log.LogTrace(tr, nil)
	res.Events = events

	perVenue := make(map[string]int)
	withOffer, textOnly := 0, 0
	for _, e := range events {
		perVenue[e.Venue.Name]++
		for _, t := range e.Tickets {
			if t.PurchaseURL != "" && t.PurchaseURL != e.SourceURL {
				withOffer++
			} else {
				textOnly++
			}
		}
	}
	for name, n := range perVenue {
		p.opts.Metrics.SetEvents(name, n)
	}
	p.opts.Metrics.Tickets(withOffer, textOnly)

	log.Info("Scrape finished", logger.Fields{
		"venues": len(venues),
		"events": len(events),
	})
	return res, nil
}

// venue fetches one listing and every event it links to.
func (p *Pipeline) venue(ctx context.Context, v Venue) ([]normalize.Record, int, error) {
	log := p.opts.Logger
	fields := logger.Fields{"venue": v.Name, "url": v.URL}

	listing, err := p.fetcher.Fetch(ctx, v.URL)
	if err != nil {
		return nil, 0, fmt.Errorf("fetching listing: %w", err)
	}

	stubs, tr := discover.Discover(discover.Input{
		Page:      listing,
		PageURL:   v.URL,
		BaseURL:   p.opts.BaseURL,
		NameInURL: v.NameInURL,
		Location:  p.opts.Location,
	})
	log.LogTrace(tr, fields)
	if len(stubs) > 0 {
		p.opts.Metrics.AddStubs(stubs[0].Strategy, string(stubs[0].Confidence), len(stubs))
	}
	log.Info("Discovered events", logger.Fields{"venue": v.Name, "count": len(stubs)})

	venue := event.Venue{Name: v.Name, City: v.City}
	records := make([]normalize.Record, 0, len(stubs))
	for _, stub := range stubs {
		if err := p.pause(ctx, p.opts.EventPause); err != nil {
			return nil, len(stubs), err
		}

		page, err := p.fetcher.Fetch(ctx, stub.SourceURL)
		if err != nil {
			if event.IsFatal(err) || ctx.Err() != nil {
				return nil, len(stubs), fmt.Errorf("fetching event %s: %w", stub.SourceURL, err)
			}
			log.Warn("Event page unavailable", logger.Fields{
				"venue": v.Name,
				"url":   stub.SourceURL,
				"error": err.Error(),
			})
			records = append(records, normalize.Record{Stub: stub, Venue: venue, Empty: true})
			continue
		}

		rec, tr := BuildRecord(stub, venue, page)
		log.LogTrace(tr, logger.Fields{"venue": v.Name, "url": stub.SourceURL})
		records = append(records, rec)
	}
	return records, len(stubs), nil
}

func (p *Pipeline) pause(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-p.opts.Clock.After(d):
		return nil
	}
}

// BuildRecord runs the pure per-event parsers over a fetched detail page:
// ticket text, JSON-LD offers and transfer state, then reconciles tickets.
func BuildRecord(stub event.EventStub, venue event.Venue, page *render.Page) (normalize.Record, trace.Trace) {
	var tr trace.Trace
	rec := normalize.Record{Stub: stub, Venue: venue}
	if page == nil || page.Doc == nil {
		rec.Empty = true
		return rec, tr
	}

	rec.Lines = page.Lines()

	candidates, textTrace := textparse.Parse(rec.Lines)
	tr.Merge(textTrace)

	schemaRes, schemaTrace := schema.Extract(page.Scripts("application/ld+json"), page.Raw)
	tr.Merge(schemaTrace)
	rec.Schema = schemaRes

	state, stateTrace := transferstate.Extract(page.Scripts("application/json"))
	tr.Merge(stateTrace)
	rec.State = state.Event

	tickets, recTrace := reconcile.Reconcile(candidates, schemaRes.Offers)
	tr.Merge(recTrace)
	rec.Tickets = tickets

	rec.Empty = len(candidates) == 0 &&
		len(schemaRes.Offers) == 0 &&
		schemaRes.Name == "" &&
		state.Event == nil
	return rec, tr
}

// IsExpired reports whether err means the credential must be re-acquired.
func IsExpired(err error) bool {
	return errors.Is(err, event.ErrSessionExpired)
}
