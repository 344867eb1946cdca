// Package posetest builds poses with known joint angles for tests.
package posetest

import "github.com/claude/formreps/internal/pose"

var legs = [][4]int{
	{pose.LeftShoulder, pose.LeftHip, pose.LeftKnee, pose.LeftAnkle},
	{pose.RightShoulder, pose.RightHip, pose.RightKnee, pose.RightAnkle},
}

// Standing is an upright body on a vertical line: knees, hips and back all
// at 180 degrees.
func Standing() *pose.Pose {
	var p pose.Pose
	for _, side := range legs {
		p[side[0]] = pose.Landmark{X: 0.5, Y: 0.2, Visibility: 1}
		p[side[1]] = pose.Landmark{X: 0.5, Y: 0.5, Visibility: 1}
		p[side[2]] = pose.Landmark{X: 0.5, Y: 0.7, Visibility: 1}
		p[side[3]] = pose.Landmark{X: 0.5, Y: 0.9, Visibility: 1}
	}
	p[pose.LeftElbow] = pose.Landmark{X: 0.5, Y: 0.35, Visibility: 1}
	p[pose.RightElbow] = pose.Landmark{X: 0.5, Y: 0.35, Visibility: 1}
	p[pose.LeftWrist] = pose.Landmark{X: 0.5, Y: 0.5, Visibility: 1}
	p[pose.RightWrist] = pose.Landmark{X: 0.5, Y: 0.5, Visibility: 1}
	return &p
}

// Squatting bends knees and hips to 90 degrees.
func Squatting() *pose.Pose {
	p := Standing()
	for _, side := range legs {
		p[side[0]] = pose.Landmark{X: 0.3, Y: 0.4, Visibility: 1}
		p[side[1]] = pose.Landmark{X: 0.3, Y: 0.7, Visibility: 1}
		p[side[2]] = pose.Landmark{X: 0.5, Y: 0.7, Visibility: 1}
		p[side[3]] = pose.Landmark{X: 0.5, Y: 0.9, Visibility: 1}
	}
	return p
}
