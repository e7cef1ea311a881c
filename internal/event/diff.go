package event

import (
	"encoding/hex"
	"encoding/json"
	"sort"

	"github.com/zeebo/blake3"
)

// Snapshot is the catalog produced by one scrape run.
type Snapshot struct {
	Events       map[string]*CanonicalEvent `json:"events"`       // keyed by CanonicalEvent.ID
	Fingerprints map[string]string          `json:"fingerprints"` // ID → content fingerprint
	UpdatedAt    string                     `json:"updated_at"`   // RFC3339 timestamp
}

// NewSnapshot creates an empty snapshot
func NewSnapshot() *Snapshot {
	return &Snapshot{
		Events:       make(map[string]*CanonicalEvent),
		Fingerprints: make(map[string]string),
	}
}

// CreateSnapshot creates a snapshot from a list of events
func CreateSnapshot(events []*CanonicalEvent, updatedAt string) *Snapshot {
	snap := NewSnapshot()
	snap.UpdatedAt = updatedAt
	for _, evt := range events {
		snap.Events[evt.ID] = evt
		snap.Fingerprints[evt.ID] = Fingerprint(evt)
	}
	return snap
}

// Fingerprint hashes the parts of an event a subscriber cares about:
// schedule, age limit and the full ticket list.
func Fingerprint(evt *CanonicalEvent) string {
	payload := struct {
		Name       string            `json:"name"`
		Date       string            `json:"date"`
		StartTime  string            `json:"startTime"`
		EndTime    string            `json:"endTime"`
		AgeMinimum int               `json:"ageMinimum"`
		Tickets    []CanonicalTicket `json:"tickets"`
	}{evt.Name, evt.Date, evt.StartTime, evt.EndTime, evt.AgeMinimum, evt.Tickets}

	data, err := json.Marshal(payload)
	if err != nil {
		return ""
	}
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// DiffResult contains the results of comparing a run against the previous snapshot
type DiffResult struct {
	NewEvents     []*CanonicalEvent `json:"new_events"`
	ChangedEvents []*CanonicalEvent `json:"changed_events"`
	RemovedIDs    []string          `json:"removed_ids"`
}

// Diff compares current events against a previous snapshot.
func Diff(previous *Snapshot, current []*CanonicalEvent) *DiffResult {
	result := &DiffResult{
		NewEvents:     make([]*CanonicalEvent, 0),
		ChangedEvents: make([]*CanonicalEvent, 0),
		RemovedIDs:    make([]string, 0),
	}

	if previous == nil {
		previous = NewSnapshot()
	}

	seen := make(map[string]bool, len(current))
	for _, evt := range current {
		seen[evt.ID] = true

		if _, exists := previous.Events[evt.ID]; !exists {
			result.NewEvents = append(result.NewEvents, evt)
			continue
		}
		if previous.Fingerprints[evt.ID] != Fingerprint(evt) {
			result.ChangedEvents = append(result.ChangedEvents, evt)
		}
	}

	for id := range previous.Events {
		if !seen[id] {
			result.RemovedIDs = append(result.RemovedIDs, id)
		}
	}

	// Sort for consistent output
	byDate := func(events []*CanonicalEvent) {
		sort.Slice(events, func(i, j int) bool {
			if events[i].Date != events[j].Date {
				return events[i].Date < events[j].Date
			}
			return events[i].Name < events[j].Name
		})
	}
	byDate(result.NewEvents)
	byDate(result.ChangedEvents)
	sort.Strings(result.RemovedIDs)

	return result
}

// HasChanges reports whether anything differs from the previous run.
func (d *DiffResult) HasChanges() bool {
	return len(d.NewEvents) > 0 || len(d.ChangedEvents) > 0 || len(d.RemovedIDs) > 0
}
