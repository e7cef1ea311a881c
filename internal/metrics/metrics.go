// Package metrics records what a scrape run did as Prometheus metrics.
//
// A run is a batch job, not a server, so the registry is written once at
// the end to a node_exporter textfile-collector file.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "partyfinder"

// Recorder holds the metrics of one run. A nil Recorder ignores every call.
type Recorder struct {
	registry *prometheus.Registry

	events       *prometheus.GaugeVec
	stubs        *prometheus.CounterVec
	fetches      *prometheus.CounterVec
	tickets      *prometheus.CounterVec
	sessions     *prometheus.CounterVec
	runDuration  prometheus.Gauge
	lastSuccess  prometheus.Gauge
	changedTotal *prometheus.GaugeVec
}

// New creates a Recorder with its own registry.
func New() *Recorder {
	r := &Recorder{registry: prometheus.NewRegistry()}

	r.events = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "events",
		Help:      "Canonical events produced in the last run, by venue",
	}, []string{"venue"})
	r.stubs = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stubs_discovered_total",
		Help:      "Event stubs discovered, by discovery strategy and confidence",
	}, []string{"strategy", "confidence"})
	r.fetches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "page_fetches_total",
		Help:      "Page fetches, by outcome",
	}, []string{"outcome"})
	r.tickets = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tickets_total",
		Help:      "Canonical tickets emitted, by whether a schema offer backed them",
	}, []string{"source"})
	r.sessions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "session_acquisitions_total",
		Help:      "Session credential resolutions, by outcome",
	}, []string{"outcome"})
	r.runDuration = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "run_duration_seconds",
		Help:      "Wall time of the last run",
	})
	r.lastSuccess = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "last_success_timestamp_seconds",
		Help:      "Unix timestamp of the last run that completed",
	})
	r.changedTotal = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "catalog_changes",
		Help:      "Catalog changes against the previous run, by kind",
	}, []string{"kind"})

	r.registry.MustRegister(
		r.events, r.stubs, r.fetches, r.tickets,
		r.sessions, r.runDuration, r.lastSuccess, r.changedTotal,
	)
	return r
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// SetEvents records the number of canonical events for a venue.
func (r *Recorder) SetEvents(venue string, n int) {
	if r == nil {
		return
	}
	r.events.WithLabelValues(venue).Set(float64(n))
}

// AddStubs counts discovered stubs.
func (r *Recorder) AddStubs(strategy, confidence string, n int) {
	if r == nil {
		return
	}
	r.stubs.WithLabelValues(strategy, confidence).Add(float64(n))
}

// Fetch counts one page fetch outcome such as "ok", "blocked" or "error".
func (r *Recorder) Fetch(outcome string) {
	if r == nil {
		return
	}
	r.fetches.WithLabelValues(outcome).Inc()
}

// Tickets counts emitted tickets, split by whether they carry a schema
// purchase URL.
func (r *Recorder) Tickets(withOffer, textOnly int) {
	if r == nil {
		return
	}
	r.tickets.WithLabelValues("schema").Add(float64(withOffer))
	r.tickets.WithLabelValues("text").Add(float64(textOnly))
}

// Session counts a credential resolution: "reused", "acquired" or "failed".
func (r *Recorder) Session(outcome string) {
	if r == nil {
		return
	}
	r.sessions.WithLabelValues(outcome).Inc()
}

// Changes records the catalog diff sizes.
func (r *Recorder) Changes(added, changed, removed int) {
	if r == nil {
		return
	}
	r.changedTotal.WithLabelValues("new").Set(float64(added))
	r.changedTotal.WithLabelValues("changed").Set(float64(changed))
	r.changedTotal.WithLabelValues("removed").Set(float64(removed))
}

// Finish records the run duration and, when ok, the success timestamp.
func (r *Recorder) Finish(started, finished time.Time, ok bool) {
	if r == nil {
		return
	}
	r.runDuration.Set(finished.Sub(started).Seconds())
	if ok {
		r.lastSuccess.Set(float64(finished.Unix()))
	}
}

// WriteTextfile writes the registry in text exposition format. The file is
// written to a temporary name and renamed into place.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("writing metrics textfile: %w", err)
	}
	return nil
}
