package exercise

import (
	"math"

	"github.com/claude/formreps/internal/geometry"
	"github.com/claude/formreps/internal/pose"
)

// Push-up phases.
const (
	PushupNeutral Phase = "neutral"
	PushupDown    Phase = "down"
	PushupUp      Phase = "up"
)

const (
	pushupDownElbow = 100
	pushupUpElbow   = 160
	pushupMinHip    = 160 // below this the hips sag

	labelPushupCorrect   = "correct_finish"
	labelPushupIncorrect = "incorrect_finish"
)

type pushupAngles struct {
	lHip, rHip, lKnee, rKnee, lElbow, rElbow float64
}

func (a pushupAngles) elbow() float64 { return avg(a.lElbow, a.rElbow) }
func (a pushupAngles) hip() float64   { return avg(a.lHip, a.rHip) }

// PushupDetector counts push-ups from the average elbow angle. The lowest average
// hip angle seen at the bottom decides whether the body stayed straight.
type PushupDetector struct {
	phase    Phase
	minHip   float64
	counters Counters
}

// NewPushup returns a push-up detector in its initial phase.
func NewPushup() *PushupDetector {
	p := &PushupDetector{}
	p.Reset()
	return p
}

func (d *PushupDetector) ID() ID             { return Pushups }
func (d *PushupDetector) Phase() Phase       { return d.phase }
func (d *PushupDetector) Counters() Counters { return d.counters }

// Reset implements Detector.
func (d *PushupDetector) Reset() {
	*d = PushupDetector{phase: PushupNeutral, minHip: math.Inf(1)}
}

// Update implements Detector.
func (d *PushupDetector) Update(p *pose.Pose) (string, Snapshot) {
	if p == nil {
		return LabelNoPose, d.snapshot(nil)
	}
	a := pushupAngles{
		lHip:   geometry.Angle(p.Point(pose.LeftShoulder), p.Point(pose.LeftHip), p.Point(pose.LeftKnee)),
		rHip:   geometry.Angle(p.Point(pose.RightShoulder), p.Point(pose.RightHip), p.Point(pose.RightKnee)),
		lKnee:  geometry.Angle(p.Point(pose.LeftHip), p.Point(pose.LeftKnee), p.Point(pose.LeftAnkle)),
		rKnee:  geometry.Angle(p.Point(pose.RightHip), p.Point(pose.RightKnee), p.Point(pose.RightAnkle)),
		lElbow: geometry.Angle(p.Point(pose.LeftShoulder), p.Point(pose.LeftElbow), p.Point(pose.LeftWrist)),
		rElbow: geometry.Angle(p.Point(pose.RightShoulder), p.Point(pose.RightElbow), p.Point(pose.RightWrist)),
	}
	if !allValid(a.elbow(), a.hip()) {
		return LabelNoPose, d.snapshot(nil)
	}
	label := d.step(a.elbow(), a.hip())
	return label, d.snapshot(&a)
}

func (d *PushupDetector) step(elbow, hip float64) string {
	switch d.phase {
	case PushupNeutral, PushupUp:
		if elbow < pushupDownElbow {
			d.phase = PushupDown
			d.minHip = hip
		}
	case PushupDown:
		d.minHip = math.Min(d.minHip, hip)
		if elbow > pushupUpElbow {
			d.phase = PushupUp
			sagged := d.minHip < pushupMinHip
			d.minHip = math.Inf(1)
			if sagged {
				d.counters.Incorrect++
				return labelPushupIncorrect
			}
			d.counters.Correct++
			return labelPushupCorrect
		}
	}
	return string(d.phase)
}

func (d *PushupDetector) snapshot(a *pushupAngles) Snapshot {
	v := [6]int{-1, -1, -1, -1, -1, -1}
	if a != nil {
		v = [6]int{deg(a.lHip), deg(a.rHip), deg(a.lKnee), deg(a.rKnee), deg(a.lElbow), deg(a.rElbow)}
	}
	return NewSnapshot(d.counters, string(d.phase),
		Field{"L_Hip_Angle", v[0]},
		Field{"R_Hip_Angle", v[1]},
		Field{"L_Knee_Angle", v[2]},
		Field{"R_Knee_Angle", v[3]},
		Field{"L_Elbow_Angle", v[4]},
		Field{"R_Elbow_Angle", v[5]},
	)
}
