// Package storage provides JSON-based persistence for the event catalog.
//
// Each run writes its canonical events to events.json as a full replacement
// of the previous output, and keeps a snapshot.json so the next run can
// report new, changed and removed events. Single-venue runs use
// events_<scope>.json and snapshot_<scope>.json instead. The default location is
// ~/.local/share/partyfinder/.
package storage
