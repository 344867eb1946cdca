package pose

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakePeer plays the worker side of the protocol: it decodes each request
// and answers with whatever reply returns.
func fakePeer(t *testing.T, in io.Reader, out io.WriteCloser, reply func(request) []response) {
	t.Helper()
	go func() {
		defer out.Close()
		for {
			data, err := readFrame(in)
			if err != nil {
				return
			}
			var req request
			if err := msgpack.Unmarshal(data, &req); err != nil {
				t.Errorf("peer decode: %v", err)
				return
			}
			for _, resp := range reply(req) {
				b, err := msgpack.Marshal(&resp)
				if err != nil {
					t.Errorf("peer encode: %v", err)
					return
				}
				if err := writeFrame(out, b); err != nil {
					return
				}
			}
		}
	}()
}

func fullRows(x float64) [][]float64 {
	rows := make([][]float64, NumLandmarks)
	for i := range rows {
		rows[i] = []float64{x, float64(i) / 100, -0.1, 0.9}
	}
	return rows
}

func newPipedWorker(t *testing.T, reply func(request) []response) *Worker {
	t.Helper()
	w, err := NewWorker(WorkerConfig{Command: "unused", Timeout: 200 * time.Millisecond}, quietLogger())
	require.NoError(t, err)

	reqR, reqW := io.Pipe()
	respR, respW := io.Pipe()
	fakePeer(t, reqR, respW, reply)
	w.attach(reqW, respR)
	t.Cleanup(func() {
		_ = w.Close()
	})
	return w
}

func TestWorkerExtractDetected(t *testing.T) {
	var gotReq request
	w := newPipedWorker(t, func(req request) []response {
		gotReq = req
		return []response{{Seq: req.Seq, Detected: true, Landmarks: fullRows(0.5)}}
	})

	p, err := w.Extract(context.Background(), Image{Data: []byte{0xff, 0xd8}, Width: 640, Height: 480})
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, 0.5, p[LeftHip].X)
	assert.Equal(t, 0.9, p[RightAnkle].Visibility)
	assert.Equal(t, 640, gotReq.Width)
	assert.Equal(t, []byte{0xff, 0xd8}, gotReq.FrameData)
	assert.Equal(t, uint64(1), w.Stats().Detected)
}

func TestWorkerExtractNoDetection(t *testing.T) {
	w := newPipedWorker(t, func(req request) []response {
		return []response{{Seq: req.Seq, Detected: false}}
	})
	p, err := w.Extract(context.Background(), Image{})
	require.NoError(t, err)
	assert.Nil(t, p)
}

// TestWorkerDiscardsStaleResponses verifies an answer carrying an older
// sequence number is skipped rather than returned for the current frame.
func TestWorkerDiscardsStaleResponses(t *testing.T) {
	w := newPipedWorker(t, func(req request) []response {
		return []response{
			{Seq: req.Seq - 1, Detected: true, Landmarks: fullRows(0.1)},
			{Seq: req.Seq, Detected: true, Landmarks: fullRows(0.7)},
		}
	})
	p, err := w.Extract(context.Background(), Image{})
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, 0.7, p[Nose].X)
	assert.Equal(t, uint64(1), w.Stats().Discarded)
}

func TestWorkerTimeout(t *testing.T) {
	w := newPipedWorker(t, func(req request) []response { return nil })
	_, err := w.Extract(context.Background(), Image{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Equal(t, uint64(1), w.Stats().Failures)
}

func TestWorkerErrorReply(t *testing.T) {
	w := newPipedWorker(t, func(req request) []response {
		return []response{{Seq: req.Seq, Error: "model not loaded"}}
	})
	_, err := w.Extract(context.Background(), Image{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model not loaded")
}

func TestWorkerShortLandmarkSet(t *testing.T) {
	w := newPipedWorker(t, func(req request) []response {
		return []response{{Seq: req.Seq, Detected: true, Landmarks: fullRows(0.5)[:10]}}
	})
	_, err := w.Extract(context.Background(), Image{})
	require.Error(t, err)
}

func TestWorkerStopped(t *testing.T) {
	w, err := NewWorker(WorkerConfig{Command: "x"}, quietLogger())
	require.NoError(t, err)
	_, err = w.Extract(context.Background(), Image{})
	assert.ErrorIs(t, err, ErrWorkerStopped)
}

func TestNewWorkerRequiresCommand(t *testing.T) {
	_, err := NewWorker(WorkerConfig{}, quietLogger())
	assert.Error(t, err)
}

func TestFrameRoundTripAndLimit(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeFrame(&buf, []byte("hello")))
	got, err := readFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))

	oversized := []byte{0xff, 0xff, 0xff, 0xff}
	_, err = readFrame(bytes.NewReader(oversized))
	assert.Error(t, err)
}

func TestPoseFeaturesOrder(t *testing.T) {
	p, err := FromRows(fullRows(0.25))
	require.NoError(t, err)
	f := p.Features()
	require.Len(t, f, NumLandmarks*FeaturesPerLandmark)
	// Landmark 1 occupies indices 4..7 as x,y,z,v.
	assert.Equal(t, []float64{0.25, 0.01, -0.1, 0.9}, f[4:8])
}

func TestWithMinVisibility(t *testing.T) {
	var dim Pose
	for i := range dim {
		dim[i].Visibility = 0.1
	}
	bright := dim
	bright[LeftKnee].Visibility = 0.9

	next := func(p *Pose) Extractor {
		return ExtractorFunc(func(context.Context, Image) (*Pose, error) { return p, nil })
	}

	got, err := WithMinVisibility(next(&dim), 0.5).Extract(context.Background(), Image{})
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = WithMinVisibility(next(&bright), 0.5).Extract(context.Background(), Image{})
	require.NoError(t, err)
	assert.Same(t, &bright, got)

	got, err = WithMinVisibility(next(&dim), 0).Extract(context.Background(), Image{})
	require.NoError(t, err)
	assert.Same(t, &dim, got)
}
