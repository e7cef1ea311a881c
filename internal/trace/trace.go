// Package trace carries diagnostics out of the pure parsing components.
//
// Discovery, ticket parsing, offer extraction, reconciliation and
// normalization never log. Each returns a Trace next to its result and the
// caller decides where the notes go.
package trace

// Level grades a note.
type Level string

const (
	LevelDebug Level = "debug"
	LevelWarn  Level = "warn"
)

// Note is a single diagnostic produced while parsing.
type Note struct {
	Stage   string         `json:"stage"`
	Level   Level          `json:"level"`
	Message string         `json:"message"`
	Fields  map[string]any `json:"fields,omitempty"`
}

// Trace is an ordered list of notes. The zero value is ready to use.
type Trace struct {
	Notes []Note `json:"notes,omitempty"`
}

// Debug appends a debug note.
func (t *Trace) Debug(stage, message string, fields map[string]any) {
	t.Notes = append(t.Notes, Note{Stage: stage, Level: LevelDebug, Message: message, Fields: fields})
}

// Warn appends a warning note.
func (t *Trace) Warn(stage, message string, fields map[string]any) {
	t.Notes = append(t.Notes, Note{Stage: stage, Level: LevelWarn, Message: message, Fields: fields})
}

// Merge appends every note of other.
func (t *Trace) Merge(other Trace) {
	t.Notes = append(t.Notes, other.Notes...)
}

// Warnings returns only warning notes.
func (t Trace) Warnings() []Note {
	var out []Note
	for _, n := range t.Notes {
		if n.Level == LevelWarn {
			out = append(out, n)
		}
	}
	return out
}
