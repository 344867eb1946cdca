// Package exercise implements the per-exercise repetition state machines.
//
// Every Detector consumes one Pose per frame (nil when no body was found),
// advances its phase on a primary joint angle and classifies each completed
// repetition as correct or incorrect from the worst fault latched while the
// repetition was in progress.
package exercise

import (
	"errors"
	"fmt"
	"strings"

	"github.com/claude/formreps/internal/geometry"
	"github.com/claude/formreps/internal/pose"
)

// ErrUnknownExercise is returned when an exercise identifier has no detector.
var ErrUnknownExercise = errors.New("unknown exercise")

// ID identifies an exercise on the wire and in file names.
type ID string

const (
	Squats        ID = "squats"
	Pushups       ID = "pushups"
	Deadlift      ID = "deadlift"
	ShoulderPress ID = "shoulder_press"
)

// IDs returns every supported exercise in a stable order.
func IDs() []ID {
	return []ID{Squats, Pushups, Deadlift, ShoulderPress}
}

// Parse validates s as an exercise identifier.
func Parse(s string) (ID, error) {
	for _, id := range IDs() {
		if string(id) == s {
			return id, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownExercise, s)
}

// New returns a fresh detector for id.
func New(id ID) (Detector, error) {
	switch id {
	case Squats:
		return NewSquat(), nil
	case Pushups:
		return NewPushup(), nil
	case Deadlift:
		return NewDeadlift(), nil
	case ShoulderPress:
		return NewPress(), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownExercise, id)
}

// LabelNoPose is the export label for frames without usable landmarks.
const LabelNoPose = "no_pose"

// Phase is a detector-specific repetition stage.
type Phase string

// Counters holds the repetition totals since the last reset.
type Counters struct {
	Correct   uint `json:"correct"`
	Incorrect uint `json:"incorrect"`
}

// Total is the number of completed repetitions.
func (c Counters) Total() uint {
	return c.Correct + c.Incorrect
}

// Detector is the contract shared by all exercise state machines.
// Implementations are not safe for concurrent use; the session controller
// is their only caller.
type Detector interface {
	ID() ID
	// Update advances the machine by one frame. p is nil when no pose was
	// detected. It returns the export label for the frame and the display
	// snapshot after the update.
	Update(p *pose.Pose) (string, Snapshot)
	// Reset returns to the initial phase with zero counters, discarding any
	// repetition in progress.
	Reset()
	Phase() Phase
	Counters() Counters
}

// allValid reports whether every angle is a finite number.
func allValid(vs ...float64) bool {
	for _, v := range vs {
		if !geometry.Valid(v) {
			return false
		}
	}
	return true
}

// avg returns the mean of two joint angles.
func avg(a, b float64) float64 {
	return (a + b) / 2
}

// deg truncates an angle for display, -1 when unavailable.
func deg(v float64) int {
	if !geometry.Valid(v) {
		return -1
	}
	return int(v)
}

// slug turns a feedback sentence into an export label.
func slug(s string) string {
	return strings.ReplaceAll(strings.ToLower(s), " ", "_")
}
