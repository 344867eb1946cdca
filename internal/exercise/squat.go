package exercise

import (
	"github.com/claude/formreps/internal/geometry"
	"github.com/claude/formreps/internal/pose"
)

// Squat phases.
const (
	SquatIdle Phase = "idle"
	SquatDown Phase = "down"
	SquatUp   Phase = "up"
)

// Knee-angle cut points. A repetition starts below squatDownKnee, counts as
// rising above squatAscendKnee and completes above squatUpKnee.
const (
	squatDownKnee    = 110
	squatAscendKnee  = 120
	squatUpKnee      = 160
	squatStageMargin = 5

	squatKneeFloor = 20
	squatHipFloor  = 40
	squatBackFloor = 70
)

// Squat form faults, in priority order.
const (
	FaultKneesTooBent = "Rodillas se doblan demasiado"
	FaultHipsTooBent  = "Caderas se doblan demasiado"
	FaultBackLeans    = "Espalda se inclina demasiado"
)

const (
	stageWaiting       = "Esperando..."
	stageSquatTop      = "Arriba"
	stageSquatRising   = "Subiendo..."
	stageSquatBottom   = "Abajo"
	stageSquatLowering = "Bajando..."
	stageCorrectRep    = "Repetición Correcta"
	labelSquatCorrect  = "correct_rep"
)

type squatAngles struct {
	knee, hip, back float64
}

// SquatDetector counts back squats from the left-side knee angle. Hip and back
// angles are checked against fixed floors while a repetition is in progress.
type SquatDetector struct {
	phase    Phase
	pending  bool   // a repetition is in progress
	fault    string // first floor breached during the current repetition
	outcome  string // stage text of the last completed repetition
	counters Counters
	last     *squatAngles
}

// NewSquat returns a squat detector in its initial phase.
func NewSquat() *SquatDetector {
	s := &SquatDetector{}
	s.Reset()
	return s
}

func (s *SquatDetector) ID() ID             { return Squats }
func (s *SquatDetector) Phase() Phase       { return s.phase }
func (s *SquatDetector) Counters() Counters { return s.counters }

// Reset implements Detector.
func (s *SquatDetector) Reset() {
	*s = SquatDetector{phase: SquatIdle}
}

// Update implements Detector.
func (s *SquatDetector) Update(p *pose.Pose) (string, Snapshot) {
	if p == nil {
		return LabelNoPose, s.snapshot(nil)
	}
	a := squatAngles{
		knee: geometry.Angle(p.Point(pose.LeftHip), p.Point(pose.LeftKnee), p.Point(pose.LeftAnkle)),
		hip:  geometry.Angle(p.Point(pose.LeftShoulder), p.Point(pose.LeftHip), p.Point(pose.LeftKnee)),
		back: geometry.Angle(p.Point(pose.LeftShoulder), p.Point(pose.LeftHip), p.Point(pose.LeftAnkle)),
	}
	if !allValid(a.knee, a.hip, a.back) {
		return LabelNoPose, s.snapshot(nil)
	}
	label := s.step(a)
	return label, s.snapshot(&a)
}

func (s *SquatDetector) step(a squatAngles) string {
	switch s.phase {
	case SquatIdle:
		if a.knee < squatDownKnee {
			s.begin()
			s.sample(a)
		}
	case SquatDown:
		s.sample(a)
		if a.knee > squatAscendKnee {
			s.phase = SquatUp
		}
	case SquatUp:
		switch {
		case s.pending:
			s.sample(a)
			if a.knee > squatUpKnee {
				return s.complete()
			}
			if a.knee < squatDownKnee {
				// Sank back before locking out: same repetition.
				s.phase = SquatDown
			}
		case a.knee < squatDownKnee:
			s.begin()
			s.sample(a)
		}
	}
	return string(s.phase)
}

func (s *SquatDetector) begin() {
	s.phase = SquatDown
	s.pending = true
	s.fault = ""
	s.outcome = ""
}

// sample latches the first floor breached in this repetition.
func (s *SquatDetector) sample(a squatAngles) {
	if s.fault != "" {
		return
	}
	switch {
	case a.knee < squatKneeFloor:
		s.fault = FaultKneesTooBent
	case a.hip < squatHipFloor:
		s.fault = FaultHipsTooBent
	case a.back < squatBackFloor:
		s.fault = FaultBackLeans
	}
}

func (s *SquatDetector) complete() string {
	s.pending = false
	label := labelSquatCorrect
	if s.fault == "" {
		s.counters.Correct++
		s.outcome = stageCorrectRep
	} else {
		s.counters.Incorrect++
		s.outcome = s.fault
		label = slug(s.fault)
	}
	s.fault = ""
	return label
}

func (s *SquatDetector) stage(a *squatAngles) string {
	switch {
	case s.fault != "":
		return s.fault
	case !s.pending && s.outcome != "":
		return s.outcome
	case a == nil:
		if s.last == nil {
			return stageWaiting
		}
		a = s.last
	}
	if s.phase == SquatDown {
		if a.knee < squatDownKnee+squatStageMargin {
			return stageSquatBottom
		}
		return stageSquatLowering
	}
	if a.knee > squatUpKnee-squatStageMargin {
		return stageSquatTop
	}
	return stageSquatRising
}

func (s *SquatDetector) snapshot(a *squatAngles) Snapshot {
	stage := s.stage(a)
	if a != nil {
		s.last = a
	}
	knee, hip, back := -1, -1, -1
	if a != nil {
		knee, hip, back = deg(a.knee), deg(a.hip), deg(a.back)
	}
	return NewSnapshot(s.counters, stage,
		Field{"knee_angle", knee},
		Field{"hip_angle", hip},
		Field{"back_angle", back},
	)
}
