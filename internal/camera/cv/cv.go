// Package cv implements camera.Opener on top of OpenCV via gocv.
package cv

import (
	"fmt"
	"image"
	"log/slog"
	"sync"

	"gocv.io/x/gocv"

	"github.com/claude/formreps/internal/camera"
	"github.com/claude/formreps/internal/pose"
)

// Options configures capture devices.
type Options struct {
	Mirror bool // flip horizontally so the stream acts as a mirror
	Width  int
	Height int
}

// Opener opens local capture devices.
type Opener struct {
	opts Options
	log  *slog.Logger
}

// NewOpener returns an Opener applying opts to every device.
func NewOpener(opts Options, log *slog.Logger) *Opener {
	return &Opener{opts: opts, log: log}
}

// Open implements camera.Opener.
func (o *Opener) Open(id int) (camera.Device, error) {
	vc, err := gocv.OpenVideoCapture(id)
	if err != nil {
		return nil, fmt.Errorf("%w: device %d: %v", camera.ErrUnavailable, id, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("%w: device %d not opened", camera.ErrUnavailable, id)
	}
	// Keep only the newest frame so reads never lag behind real time.
	vc.Set(gocv.VideoCaptureBufferSize, 1)
	if o.opts.Width > 0 && o.opts.Height > 0 {
		vc.Set(gocv.VideoCaptureFrameWidth, float64(o.opts.Width))
		vc.Set(gocv.VideoCaptureFrameHeight, float64(o.opts.Height))
	}
	o.log.Info("camera opened", "device", id,
		"width", vc.Get(gocv.VideoCaptureFrameWidth),
		"height", vc.Get(gocv.VideoCaptureFrameHeight))
	return &device{vc: vc, id: id, mirror: o.opts.Mirror}, nil
}

type device struct {
	vc     *gocv.VideoCapture
	id     int
	mirror bool
	once   sync.Once
}

func (d *device) Read() (camera.Frame, error) {
	mat := gocv.NewMat()
	if ok := d.vc.Read(&mat); !ok || mat.Empty() {
		mat.Close()
		return nil, fmt.Errorf("%w: read from device %d failed", camera.ErrUnavailable, d.id)
	}
	if d.mirror {
		gocv.Flip(mat, &mat, 1)
	}
	return &frame{mat: mat}, nil
}

func (d *device) Close() error {
	var err error
	d.once.Do(func() { err = d.vc.Close() })
	return err
}

type frame struct {
	mat gocv.Mat
}

func (f *frame) Image() (pose.Image, error) {
	data, err := encode(f.mat)
	if err != nil {
		return pose.Image{}, err
	}
	return pose.Image{Data: data, Width: f.mat.Cols(), Height: f.mat.Rows()}, nil
}

func (f *frame) Annotate(o camera.Overlay) {
	w, h := f.mat.Cols(), f.mat.Rows()
	if o.Landmarks != nil {
		for _, l := range o.Landmarks {
			if l.Visibility < 0.5 {
				continue
			}
			pt := image.Pt(int(l.X*float64(w)), int(l.Y*float64(h)))
			gocv.Circle(&f.mat, pt, 3, camera.Amber, -1)
		}
	}
	for _, t := range o.Texts {
		scale := t.Scale
		if scale == 0 {
			scale = 0.5
		}
		gocv.PutText(&f.mat, t.Value, image.Pt(t.X, t.Y), gocv.FontHersheySimplex, scale, t.Color, 2)
	}
	if o.Banner != "" {
		gocv.PutText(&f.mat, o.Banner, image.Pt(50, 50), gocv.FontHersheySimplex, 1.5, camera.Red, 3)
	}
}

func (f *frame) Encode() ([]byte, error) {
	return encode(f.mat)
}

func (f *frame) Close() error {
	return f.mat.Close()
}

func encode(mat gocv.Mat) ([]byte, error) {
	buf, err := gocv.IMEncode(gocv.JPEGFileExt, mat)
	if err != nil {
		return nil, fmt.Errorf("encoding jpeg: %w", err)
	}
	defer buf.Close()
	// GetBytes aliases C memory that Close frees.
	return append([]byte(nil), buf.GetBytes()...), nil
}

// ErrorFrame renders text in red on a black 640x480 image, for streams that
// have no camera to show.
func ErrorFrame(text string) ([]byte, error) {
	mat := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), 480, 640, gocv.MatTypeCV8UC3)
	defer mat.Close()
	gocv.PutText(&mat, text, image.Pt(50, 240), gocv.FontHersheySimplex, 1, camera.Red, 2)
	return encode(mat)
}
