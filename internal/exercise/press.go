package exercise

import (
	"math"

	"github.com/claude/formreps/internal/geometry"
	"github.com/claude/formreps/internal/pose"
)

// Shoulder press phases.
const (
	PressNone      Phase = "none"
	PressDown      Phase = "down"
	PressUp        Phase = "up"
	PressInvalid   Phase = "invalid"
	PressUpInitial Phase = "up_initial"
)

// Shoulder plane status from the elbow's depth relative to the shoulder.
const (
	PlaneOK       = "OK"
	PlaneForward  = "ADELANTE"
	PlaneBackward = "ATRAS"
)

const (
	pressDownElbow     = 100
	pressUpElbow       = 160
	pressFullExtension = 150 // required peak while pressing
	pressPlaneForward  = 0.23
	pressPlaneBackward = -0.23

	labelPressCorrect    = "correct_up"
	labelPressShortRange = "incorrect_short_range"
	labelPressPlane      = "incorrect_plane"
	labelPressTransition = "transition"
)

// PressDetector counts overhead presses from the average elbow angle. A
// repetition is incorrect when either elbow drifts out of the shoulder plane
// while pressing, or when the arms never get close to full extension before
// lockout.
type PressDetector struct {
	phase      Phase
	maxAngle   float64
	planeFault bool
	planeR     string
	planeL     string
	counters   Counters

	// outcome is the label of the last completed repetition, cleared on the
	// next descent.
	outcome string
}

// NewPress returns a shoulder press detector in its initial phase.
func NewPress() *PressDetector {
	d := &PressDetector{}
	d.Reset()
	return d
}

func (d *PressDetector) ID() ID             { return ShoulderPress }
func (d *PressDetector) Phase() Phase       { return d.phase }
func (d *PressDetector) Counters() Counters { return d.counters }

// Reset implements Detector.
func (d *PressDetector) Reset() {
	*d = PressDetector{phase: PressNone, planeR: PlaneOK, planeL: PlaneOK}
}

// Update implements Detector.
func (d *PressDetector) Update(p *pose.Pose) (string, Snapshot) {
	if p == nil {
		return LabelNoPose, d.snapshot()
	}
	r := geometry.Angle(p.Point(pose.RightShoulder), p.Point(pose.RightElbow), p.Point(pose.RightWrist))
	l := geometry.Angle(p.Point(pose.LeftShoulder), p.Point(pose.LeftElbow), p.Point(pose.LeftWrist))
	elbow := avg(r, l)
	zr := p[pose.RightElbow].Z - p[pose.RightShoulder].Z
	zl := p[pose.LeftElbow].Z - p[pose.LeftShoulder].Z
	if !allValid(elbow, zr, zl) {
		return LabelNoPose, d.snapshot()
	}
	d.planeR, d.planeL = plane(zr), plane(zl)
	label := d.step(elbow)
	return label, d.snapshot()
}

func plane(zdiff float64) string {
	switch {
	case zdiff > pressPlaneForward:
		return PlaneForward
	case zdiff < pressPlaneBackward:
		return PlaneBackward
	}
	return PlaneOK
}

func (d *PressDetector) step(elbow float64) string {
	switch {
	case elbow < pressDownElbow:
		if d.phase != PressDown {
			d.phase = PressDown
			d.maxAngle = 0
			d.planeFault = false
			d.outcome = ""
		}
		d.samplePlane()
		return string(PressDown)

	case elbow > pressUpElbow:
		if d.phase == PressDown {
			d.samplePlane()
			return d.complete()
		}
		// Arms already extended without a fresh descent: nothing to count.
		if d.outcome != "" {
			return d.outcome
		}
		d.phase = PressUpInitial
		return string(PressUpInitial)

	default:
		switch d.phase {
		case PressDown:
			d.samplePlane()
			d.maxAngle = math.Max(d.maxAngle, elbow)
		case PressUpInitial:
			d.maxAngle = math.Max(d.maxAngle, elbow)
		default:
			if d.outcome != "" {
				return d.outcome
			}
		}
		return labelPressTransition
	}
}

func (d *PressDetector) samplePlane() {
	if d.planeR != PlaneOK || d.planeL != PlaneOK {
		d.planeFault = true
	}
}

func (d *PressDetector) complete() string {
	switch {
	case d.planeFault:
		d.phase = PressInvalid
		d.counters.Incorrect++
		d.outcome = labelPressPlane
	case d.maxAngle < pressFullExtension:
		d.phase = PressInvalid
		d.counters.Incorrect++
		d.outcome = labelPressShortRange
	default:
		d.phase = PressUp
		d.counters.Correct++
		d.outcome = labelPressCorrect
	}
	return d.outcome
}

func (d *PressDetector) snapshot() Snapshot {
	return NewSnapshot(d.counters, string(d.phase),
		Field{"max_angle", int(d.maxAngle)},
		Field{"shoulder_plane_r", d.planeR},
		Field{"shoulder_plane_l", d.planeL},
	)
}
