package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pfrederiksen/partyfinder/internal/event"
)

// CatalogFile is the name of the combined full-replacement output file.
const CatalogFile = "events.json"

// Sink receives a run's events. Implementations replace everything they
// held before; a run is never applied as a patch.
type Sink interface {
	ReplaceAll(ctx context.Context, events []event.CanonicalEvent) error
}

// Storage handles persistence of the catalog and its snapshots
type Storage struct {
	dataDir string
	now     func() time.Time
}

// New creates a new Storage instance
func New(dataDir string) (*Storage, error) {
	// Expand ~ to home directory
	if strings.HasPrefix(dataDir, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, dataDir[2:])
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	return &Storage{
		dataDir: dataDir,
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

// Dir returns the data directory.
func (s *Storage) Dir() string {
	return s.dataDir
}

// getSnapshotPath returns the path to the snapshot file
func (s *Storage) getSnapshotPath(scope string) string {
	return s.scopedPath("snapshot", scope)
}

func (s *Storage) getCatalogPath(scope string) string {
	return s.scopedPath("events", scope)
}

func (s *Storage) scopedPath(base, scope string) string {
	scope = strings.ToLower(strings.TrimSpace(scope))
	if scope == "" || scope == "all" {
		return filepath.Join(s.dataDir, base+".json")
	}
	return filepath.Join(s.dataDir, fmt.Sprintf("%s_%s.json", base, scope))
}

// LoadSnapshot loads a snapshot from disk
func (s *Storage) LoadSnapshot(scope string) (*event.Snapshot, error) {
	data, err := os.ReadFile(s.getSnapshotPath(scope))
	if err != nil {
		if os.IsNotExist(err) {
			// No previous snapshot, return empty one
			return event.NewSnapshot(), nil
		}
		return nil, fmt.Errorf("reading snapshot: %w", err)
	}

	var snapshot event.Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("parsing snapshot: %w", err)
	}
	if snapshot.Events == nil {
		snapshot.Events = make(map[string]*event.CanonicalEvent)
	}
	if snapshot.Fingerprints == nil {
		snapshot.Fingerprints = make(map[string]string)
	}
	return &snapshot, nil
}

// SaveSnapshot saves a snapshot to disk
func (s *Storage) SaveSnapshot(snapshot *event.Snapshot, scope string) error {
	snapshot.UpdatedAt = s.now().Format(time.RFC3339)
	if err := writeJSON(s.getSnapshotPath(scope), snapshot); err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}
	return nil
}

// ReplaceAll writes events as the whole catalog.
func (s *Storage) ReplaceAll(ctx context.Context, events []event.CanonicalEvent) error {
	return s.replace(ctx, "", events)
}

func (s *Storage) replace(ctx context.Context, scope string, events []event.CanonicalEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if events == nil {
		events = []event.CanonicalEvent{}
	}
	if err := writeJSON(s.getCatalogPath(scope), events); err != nil {
		return fmt.Errorf("writing catalog: %w", err)
	}
	return nil
}

// LoadCatalog reads the last catalog written for scope.
func (s *Storage) LoadCatalog(scope string) ([]event.CanonicalEvent, error) {
	data, err := os.ReadFile(s.getCatalogPath(scope))
	if err != nil {
		if os.IsNotExist(err) {
			return []event.CanonicalEvent{}, nil
		}
		return nil, fmt.Errorf("reading catalog: %w", err)
	}
	var events []event.CanonicalEvent
	if err := json.Unmarshal(data, &events); err != nil {
		return nil, fmt.Errorf("parsing catalog: %w", err)
	}
	return events, nil
}

// Commit diffs events against the scope's previous snapshot, then stores
// the new snapshot and catalog. A scoped commit never touches the combined
// catalog.
func (s *Storage) Commit(ctx context.Context, scope string, events []event.CanonicalEvent) (*event.DiffResult, error) {
	previous, err := s.LoadSnapshot(scope)
	if err != nil {
		return nil, err
	}

	ptrs := make([]*event.CanonicalEvent, len(events))
	for i := range events {
		ptrs[i] = &events[i]
	}
	diff := event.Diff(previous, ptrs)

	if err := s.replace(ctx, scope, events); err != nil {
		return nil, err
	}
	if err := s.SaveSnapshot(event.CreateSnapshot(ptrs, ""), scope); err != nil {
		return nil, err
	}
	return diff, nil
}

// GetEventByID retrieves an event by ID from the combined snapshot
func (s *Storage) GetEventByID(eventID string) (*event.CanonicalEvent, error) {
	snapshot, err := s.LoadSnapshot("all")
	if err != nil {
		return nil, fmt.Errorf("loading snapshot: %w", err)
	}

	if evt, exists := snapshot.Events[eventID]; exists {
		return evt, nil
	}

	return nil, fmt.Errorf("event not found: %s", eventID)
}

// writeJSON replaces path atomically so readers never see a partial file.
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
