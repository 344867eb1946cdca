package exercise

import (
	"github.com/claude/formreps/internal/geometry"
	"github.com/claude/formreps/internal/pose"
)

// Deadlift phases.
const (
	DeadliftInitial    Phase = "initial"
	DeadliftDown       Phase = "down"
	DeadliftTransition Phase = "transition"
	DeadliftUp         Phase = "up"
)

const (
	deadliftDownHip   = 150 // hip hinge below this starts a repetition
	deadliftRiseDelta = 5   // rise above the lowest hip angle that starts the ascent
	deadliftResetHip  = 145

	deadliftMinKnee     = 100 // knees bent further than this during the descent
	deadliftKneeLock    = 170
	deadliftTorsoLocked = 160 // torso must be this upright before the knees lock
	deadliftTorsoRound  = 120

	labelDeadliftCorrect   = "correct_rep"
	labelDeadliftIncorrect = "incorrect_rep"
)

type deadliftAngles struct {
	lHip, rHip, lKnee, rKnee, torso float64
}

func (a deadliftAngles) hip() float64  { return avg(a.lHip, a.rHip) }
func (a deadliftAngles) knee() float64 { return avg(a.lKnee, a.rKnee) }

// DeadliftDetector counts deadlifts from the average hip angle. The torso angle is
// measured against the vertical through the mid hip (180 when upright).
type DeadliftDetector struct {
	phase    Phase
	minHip   float64
	faulty   bool
	counters Counters
}

// NewDeadlift returns a deadlift detector in its initial phase.
func NewDeadlift() *DeadliftDetector {
	d := &DeadliftDetector{}
	d.Reset()
	return d
}

func (d *DeadliftDetector) ID() ID             { return Deadlift }
func (d *DeadliftDetector) Phase() Phase       { return d.phase }
func (d *DeadliftDetector) Counters() Counters { return d.counters }

// Reset implements Detector.
func (d *DeadliftDetector) Reset() {
	*d = DeadliftDetector{phase: DeadliftInitial, minHip: 180}
}

// Update implements Detector.
func (d *DeadliftDetector) Update(p *pose.Pose) (string, Snapshot) {
	if p == nil {
		return LabelNoPose, d.snapshot(nil)
	}
	midShoulder := geometry.Midpoint(p.Point(pose.LeftShoulder), p.Point(pose.RightShoulder))
	midHip := geometry.Midpoint(p.Point(pose.LeftHip), p.Point(pose.RightHip))
	below := geometry.Point{X: midHip.X, Y: midHip.Y + 0.1}

	a := deadliftAngles{
		lHip:  geometry.Angle(p.Point(pose.LeftShoulder), p.Point(pose.LeftHip), p.Point(pose.LeftKnee)),
		rHip:  geometry.Angle(p.Point(pose.RightShoulder), p.Point(pose.RightHip), p.Point(pose.RightKnee)),
		lKnee: geometry.Angle(p.Point(pose.LeftHip), p.Point(pose.LeftKnee), p.Point(pose.LeftAnkle)),
		rKnee: geometry.Angle(p.Point(pose.RightHip), p.Point(pose.RightKnee), p.Point(pose.RightAnkle)),
		torso: geometry.Angle(midShoulder, midHip, below),
	}
	if !allValid(a.hip(), a.knee(), a.torso) {
		return LabelNoPose, d.snapshot(nil)
	}
	label := d.step(a.hip(), a.knee(), a.torso)
	return label, d.snapshot(&a)
}

func (d *DeadliftDetector) step(hip, knee, torso float64) string {
	switch d.phase {
	case DeadliftInitial:
		if hip < deadliftDownHip {
			d.begin(hip)
			d.sampleDown(knee, torso)
		}
	case DeadliftDown:
		if hip < d.minHip {
			d.minHip = hip
		}
		d.sampleDown(knee, torso)
		if hip > d.minHip+deadliftRiseDelta {
			d.phase = DeadliftTransition
		}
	case DeadliftTransition:
		if hip < d.minHip {
			d.minHip = hip
			d.phase = DeadliftDown
			d.sampleDown(knee, torso)
			break
		}
		if knee > deadliftKneeLock && torso < deadliftTorsoLocked {
			d.faulty = true
		}
		if torso < deadliftTorsoRound {
			d.faulty = true
		}
		if hip > deadliftDownHip {
			d.phase = DeadliftUp
			return d.complete()
		}
	case DeadliftUp:
		if hip < deadliftDownHip {
			d.begin(hip)
			d.sampleDown(knee, torso)
		} else if hip > deadliftResetHip {
			d.phase = DeadliftInitial
		}
	}
	return string(d.phase)
}

func (d *DeadliftDetector) begin(hip float64) {
	d.phase = DeadliftDown
	d.minHip = hip
	d.faulty = false
}

func (d *DeadliftDetector) sampleDown(knee, torso float64) {
	if knee < deadliftMinKnee || torso < deadliftTorsoRound {
		d.faulty = true
	}
}

func (d *DeadliftDetector) complete() string {
	faulty := d.faulty
	d.faulty = false
	d.minHip = 180
	if faulty {
		d.counters.Incorrect++
		return labelDeadliftIncorrect
	}
	d.counters.Correct++
	return labelDeadliftCorrect
}

func (d *DeadliftDetector) snapshot(a *deadliftAngles) Snapshot {
	v := [5]int{-1, -1, -1, -1, -1}
	if a != nil {
		v = [5]int{deg(a.lHip), deg(a.rHip), deg(a.lKnee), deg(a.rKnee), deg(a.torso)}
	}
	return NewSnapshot(d.counters, string(d.phase),
		Field{"correct_reps", d.counters.Correct},
		Field{"left_hip_angle", v[0]},
		Field{"right_hip_angle", v[1]},
		Field{"left_knee_angle", v[2]},
		Field{"right_knee_angle", v[3]},
		Field{"torso_angle", v[4]},
	)
}
