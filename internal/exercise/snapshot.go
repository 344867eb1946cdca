package exercise

import (
	"bytes"
	"encoding/json"
)

// Field is one exercise-specific display value (an angle or a status).
type Field struct {
	Name  string
	Value any
}

// Snapshot is the display projection of a detector after one frame.
// It marshals to a flat object: reps, incorrect_reps, stage, then the
// exercise fields in order.
type Snapshot struct {
	Reps          uint
	IncorrectReps uint
	Stage         string
	Fields        []Field
}

// NewSnapshot builds a snapshot that owns a copy of fields.
func NewSnapshot(c Counters, stage string, fields ...Field) Snapshot {
	s := Snapshot{Reps: c.Correct, IncorrectReps: c.Incorrect, Stage: stage}
	if len(fields) > 0 {
		s.Fields = append([]Field(nil), fields...)
	}
	return s
}

// StageSnapshot is a zero-counter snapshot carrying only a stage message.
func StageSnapshot(stage string) Snapshot {
	return Snapshot{Stage: stage}
}

// Clone returns a snapshot that shares no memory with s.
func (s Snapshot) Clone() Snapshot {
	return NewSnapshot(Counters{Correct: s.Reps, Incorrect: s.IncorrectReps}, s.Stage, s.Fields...)
}

// Field returns the named field value.
func (s Snapshot) Field(name string) (any, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return nil, false
}

// Map returns the snapshot as a generic object.
func (s Snapshot) Map() map[string]any {
	m := map[string]any{
		"reps":           s.Reps,
		"incorrect_reps": s.IncorrectReps,
		"stage":          s.Stage,
	}
	for _, f := range s.Fields {
		m[f.Name] = f.Value
	}
	return m
}

// MarshalJSON implements json.Marshaler.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	write := func(first bool, key string, v any) error {
		if !first {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(key)
		if err != nil {
			return err
		}
		val, err := json.Marshal(v)
		if err != nil {
			return err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(val)
		return nil
	}
	if err := write(true, "reps", s.Reps); err != nil {
		return nil, err
	}
	if err := write(false, "incorrect_reps", s.IncorrectReps); err != nil {
		return nil, err
	}
	if err := write(false, "stage", s.Stage); err != nil {
		return nil, err
	}
	for _, f := range s.Fields {
		if err := write(false, f.Name, f.Value); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
