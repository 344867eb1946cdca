package exercise

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/claude/formreps/internal/pose"
)

func TestParseAndNew(t *testing.T) {
	for _, id := range IDs() {
		got, err := Parse(string(id))
		require.NoError(t, err)
		d, err := New(got)
		require.NoError(t, err)
		assert.Equal(t, id, d.ID())
		assert.Equal(t, Counters{}, d.Counters())
	}

	_, err := Parse("burpees")
	assert.True(t, errors.Is(err, ErrUnknownExercise))
	_, err = New("burpees")
	assert.True(t, errors.Is(err, ErrUnknownExercise))
}

func TestSnapshotJSON(t *testing.T) {
	s := NewSnapshot(Counters{Correct: 2, Incorrect: 1}, "Abajo",
		Field{"knee_angle", 95},
		Field{"shoulder_plane_r", "OK"},
	)
	b, err := json.Marshal(s)
	require.NoError(t, err)
	assert.Equal(t, `{"reps":2,"incorrect_reps":1,"stage":"Abajo","knee_angle":95,"shoulder_plane_r":"OK"}`, string(b))

	v, ok := s.Field("knee_angle")
	assert.True(t, ok)
	assert.Equal(t, 95, v)
}

func TestSnapshotOwnsFields(t *testing.T) {
	fields := []Field{{"a", 1}}
	s := NewSnapshot(Counters{}, "x", fields...)
	fields[0].Value = 2
	v, _ := s.Field("a")
	assert.Equal(t, 1, v)
}

// standing and squatting build full poses with known angles: standing is a
// straight vertical line (every joint 180), squatting bends knees and hips
// to 90 with the back at 135.
func standing() *pose.Pose {
	var p pose.Pose
	for _, side := range [][4]int{
		{pose.LeftShoulder, pose.LeftHip, pose.LeftKnee, pose.LeftAnkle},
		{pose.RightShoulder, pose.RightHip, pose.RightKnee, pose.RightAnkle},
	} {
		p[side[0]] = pose.Landmark{X: 0.5, Y: 0.2, Visibility: 1}
		p[side[1]] = pose.Landmark{X: 0.5, Y: 0.5, Visibility: 1}
		p[side[2]] = pose.Landmark{X: 0.5, Y: 0.7, Visibility: 1}
		p[side[3]] = pose.Landmark{X: 0.5, Y: 0.9, Visibility: 1}
	}
	p[pose.LeftElbow] = pose.Landmark{X: 0.5, Y: 0.35}
	p[pose.RightElbow] = pose.Landmark{X: 0.5, Y: 0.35}
	p[pose.LeftWrist] = pose.Landmark{X: 0.5, Y: 0.5}
	p[pose.RightWrist] = pose.Landmark{X: 0.5, Y: 0.5}
	return &p
}

func squatting() *pose.Pose {
	p := standing()
	for _, side := range [][4]int{
		{pose.LeftShoulder, pose.LeftHip, pose.LeftKnee, pose.LeftAnkle},
		{pose.RightShoulder, pose.RightHip, pose.RightKnee, pose.RightAnkle},
	} {
		p[side[0]] = pose.Landmark{X: 0.3, Y: 0.4}
		p[side[1]] = pose.Landmark{X: 0.3, Y: 0.7}
		p[side[2]] = pose.Landmark{X: 0.5, Y: 0.7}
		p[side[3]] = pose.Landmark{X: 0.5, Y: 0.9}
	}
	return p
}

func TestSquatFromPoses(t *testing.T) {
	d := NewSquat()
	var labels []string
	var last Snapshot
	for _, p := range []*pose.Pose{standing(), squatting(), squatting(), standing(), standing()} {
		label, snap := d.Update(p)
		labels = append(labels, label)
		last = snap
	}
	assert.Equal(t, []string{"idle", "down", "down", "up", "correct_rep"}, labels)
	assert.Equal(t, Counters{Correct: 1}, d.Counters())
	assert.Equal(t, stageCorrectRep, last.Stage)
	knee, _ := last.Field("knee_angle")
	assert.Equal(t, 180, knee)
}

// TestNoPoseLeavesStateUnchanged drives each detector into an active phase
// and then feeds frames without landmarks.
func TestNoPoseLeavesStateUnchanged(t *testing.T) {
	for _, id := range IDs() {
		t.Run(string(id), func(t *testing.T) {
			d, err := New(id)
			require.NoError(t, err)
			d.Update(standing())
			d.Update(squatting())
			phase, counters := d.Phase(), d.Counters()

			for i := 0; i < 5; i++ {
				label, snap := d.Update(nil)
				assert.Equal(t, LabelNoPose, label)
				assert.Equal(t, counters.Correct, snap.Reps)
				assert.Equal(t, counters.Incorrect, snap.IncorrectReps)
			}
			assert.Equal(t, phase, d.Phase())
			assert.Equal(t, counters, d.Counters())
		})
	}
}

func TestInvalidLandmarksCountAsNoPose(t *testing.T) {
	d := NewSquat()
	var p pose.Pose
	p[pose.LeftKnee].X = nan()
	label, _ := d.Update(&p)
	assert.Equal(t, LabelNoPose, label)
	assert.Equal(t, SquatIdle, d.Phase())
}

func TestSnapshotDiffAfterReset(t *testing.T) {
	d := NewDeadlift()
	d.step(120, 130, 170)
	d.Reset()
	_, got := d.Update(nil)
	want := NewSnapshot(Counters{}, "initial",
		Field{"correct_reps", uint(0)},
		Field{"left_hip_angle", -1},
		Field{"right_hip_angle", -1},
		Field{"left_knee_angle", -1},
		Field{"right_knee_angle", -1},
		Field{"torso_angle", -1},
	)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("snapshot after reset (-want +got):\n%s", diff)
	}
}
