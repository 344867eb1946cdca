// Package pose defines body landmarks and the Extractor boundary that turns a
// camera frame into a Pose.
package pose

import (
	"context"
	"fmt"

	"github.com/claude/formreps/internal/geometry"
)

// Body landmark indices following the MediaPipe Pose convention.
const (
	Nose           = 0
	LeftEyeInner   = 1
	LeftEye        = 2
	LeftEyeOuter   = 3
	RightEyeInner  = 4
	RightEye       = 5
	RightEyeOuter  = 6
	LeftEar        = 7
	RightEar       = 8
	MouthLeft      = 9
	MouthRight     = 10
	LeftShoulder   = 11
	RightShoulder  = 12
	LeftElbow      = 13
	RightElbow     = 14
	LeftWrist      = 15
	RightWrist     = 16
	LeftPinky      = 17
	RightPinky     = 18
	LeftIndex      = 19
	RightIndex     = 20
	LeftThumb      = 21
	RightThumb     = 22
	LeftHip        = 23
	RightHip       = 24
	LeftKnee       = 25
	RightKnee      = 26
	LeftAnkle      = 27
	RightAnkle     = 28
	LeftHeel       = 29
	RightHeel      = 30
	LeftFootIndex  = 31
	RightFootIndex = 32
	NumLandmarks   = 33
)

// FeaturesPerLandmark is the number of values each landmark contributes to
// an exported row: x, y, z, visibility.
const FeaturesPerLandmark = 4

// Landmark is one estimated joint position. X and Y are normalised to the
// image size, Z is depth relative to the hips (smaller is closer to the
// camera).
type Landmark struct {
	X          float64 `json:"x" msgpack:"x"`
	Y          float64 `json:"y" msgpack:"y"`
	Z          float64 `json:"z" msgpack:"z"`
	Visibility float64 `json:"visibility" msgpack:"visibility"`
}

// Pose is a full set of body landmarks for one frame.
type Pose [NumLandmarks]Landmark

// Point returns the 2-D projection of landmark i.
func (p *Pose) Point(i int) geometry.Point {
	return geometry.Point{X: p[i].X, Y: p[i].Y}
}

// Features flattens the pose into x1,y1,z1,v1,...,x33,y33,z33,v33.
func (p *Pose) Features() []float64 {
	out := make([]float64, 0, NumLandmarks*FeaturesPerLandmark)
	for _, l := range p {
		out = append(out, l.X, l.Y, l.Z, l.Visibility)
	}
	return out
}

// FromRows builds a Pose from [x, y, z, visibility] rows as sent by the
// pose worker. Visibility may be omitted.
func FromRows(rows [][]float64) (*Pose, error) {
	if len(rows) != NumLandmarks {
		return nil, fmt.Errorf("pose: got %d landmarks, want %d", len(rows), NumLandmarks)
	}
	var p Pose
	for i, r := range rows {
		if len(r) < 3 {
			return nil, fmt.Errorf("pose: landmark %d has %d values", i, len(r))
		}
		p[i] = Landmark{X: r[0], Y: r[1], Z: r[2]}
		if len(r) > 3 {
			p[i].Visibility = r[3]
		}
	}
	return &p, nil
}

// Image is an encoded frame handed to an Extractor.
type Image struct {
	Data   []byte // JPEG
	Width  int
	Height int
}

// Extractor turns a frame into landmarks. A nil Pose with a nil error means
// no body was detected in the frame.
type Extractor interface {
	Extract(ctx context.Context, img Image) (*Pose, error)
}

// ExtractorFunc adapts a function to Extractor.
type ExtractorFunc func(ctx context.Context, img Image) (*Pose, error)

// Extract calls f.
func (f ExtractorFunc) Extract(ctx context.Context, img Image) (*Pose, error) {
	return f(ctx, img)
}

// WithMinVisibility reports a frame as having no pose when every landmark is
// less visible than min. A min of zero returns e unchanged.
func WithMinVisibility(e Extractor, min float64) Extractor {
	if min <= 0 {
		return e
	}
	return ExtractorFunc(func(ctx context.Context, img Image) (*Pose, error) {
		p, err := e.Extract(ctx, img)
		if err != nil || p == nil {
			return p, err
		}
		for _, l := range p {
			if l.Visibility >= min {
				return p, nil
			}
		}
		return nil, nil
	})
}
