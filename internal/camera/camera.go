// Package camera is the boundary between the session controller and a video
// capture backend. The gocv backend lives in camera/cv so the rest of the
// module builds and tests without OpenCV.
package camera

import (
	"errors"
	"image/color"

	"github.com/claude/formreps/internal/pose"
)

// ErrUnavailable is returned when a device cannot be opened or read.
var ErrUnavailable = errors.New("camera unavailable")

// Opener opens capture devices by index.
type Opener interface {
	Open(id int) (Device, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(id int) (Device, error)

// Open calls f.
func (f OpenerFunc) Open(id int) (Device, error) { return f(id) }

// Device is an open capture device. It is owned by a single goroutine.
type Device interface {
	Read() (Frame, error)
	Close() error
}

// Frame is one captured image. Annotate draws in place; Encode returns the
// annotated JPEG.
type Frame interface {
	// Image returns the frame as JPEG for pose extraction, before any
	// annotation is drawn.
	Image() (pose.Image, error)
	Annotate(o Overlay)
	Encode() ([]byte, error)
	Close() error
}

// Text is a label drawn at a pixel position.
type Text struct {
	X, Y  int
	Value string
	Color color.RGBA
	Scale float64
}

// Overlay is everything drawn on a frame before it is streamed.
type Overlay struct {
	Texts     []Text
	Landmarks *pose.Pose // drawn as dots when set
	Banner    string     // large red text in the top-left corner
}

// Colors used by the controller's overlays.
var (
	White = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	Red   = color.RGBA{R: 255, A: 255}
	Amber = color.RGBA{R: 245, G: 117, B: 66, A: 255}
)
