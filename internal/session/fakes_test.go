package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/claude/formreps/internal/camera"
	"github.com/claude/formreps/internal/exercise"
	"github.com/claude/formreps/internal/pose"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeOpener records device acquire/release order and fails the test if two
// devices are ever open at once.
type fakeOpener struct {
	t *testing.T

	mu      sync.Mutex
	events  []string
	open    int
	openErr error
	// failAfter makes devices fail reads after that many frames; 0 never fails.
	failAfter int
	// readGate, when set, blocks every read until it is closed. readBlocked
	// is signalled when a read starts waiting.
	readGate    chan struct{}
	readBlocked chan struct{}
}

func (o *fakeOpener) Open(id int) (camera.Device, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.openErr != nil {
		return nil, o.openErr
	}
	o.open++
	if o.open > 1 {
		o.t.Errorf("device %d opened while %d others are open", id, o.open-1)
	}
	o.events = append(o.events, fmt.Sprintf("open %d", id))
	return &fakeDevice{opener: o, id: id}, nil
}

func (o *fakeOpener) Events() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.events...)
}

type fakeDevice struct {
	opener *fakeOpener
	id     int
	reads  atomic.Int64
	inRead atomic.Int32
	closed atomic.Int32
}

func (d *fakeDevice) Read() (camera.Frame, error) {
	d.inRead.Add(1)
	defer d.inRead.Add(-1)
	if d.closed.Load() > 0 {
		d.opener.t.Errorf("read from closed device %d", d.id)
		return nil, errors.New("closed")
	}
	if gate := d.opener.readGate; gate != nil {
		select {
		case d.opener.readBlocked <- struct{}{}:
		default:
		}
		<-gate
	}
	n := d.reads.Add(1)
	if f := d.opener.failAfter; f > 0 && n > int64(f) {
		return nil, errors.New("device unplugged")
	}
	return &fakeFrame{seq: n}, nil
}

func (d *fakeDevice) Close() error {
	if d.inRead.Load() > 0 {
		d.opener.t.Errorf("device %d closed during a read", d.id)
	}
	if d.closed.Add(1) > 1 {
		d.opener.t.Errorf("device %d closed twice", d.id)
		return nil
	}
	d.opener.mu.Lock()
	d.opener.open--
	d.opener.events = append(d.opener.events, fmt.Sprintf("close %d", d.id))
	d.opener.mu.Unlock()
	return nil
}

type fakeFrame struct {
	seq     int64
	overlay camera.Overlay
}

func (f *fakeFrame) Image() (pose.Image, error) {
	return pose.Image{Data: []byte{0xff, 0xd8}, Width: 640, Height: 480}, nil
}

func (f *fakeFrame) Annotate(o camera.Overlay) { f.overlay = o }

func (f *fakeFrame) Encode() ([]byte, error) {
	return []byte(fmt.Sprintf("frame %d banner=%s", f.seq, f.overlay.Banner)), nil
}

func (f *fakeFrame) Close() error { return nil }

// switchExtractor returns whichever pose the test last set.
type switchExtractor struct {
	current atomic.Pointer[pose.Pose]
	err     atomic.Pointer[error]
	calls   atomic.Int64
}

func (e *switchExtractor) Set(p *pose.Pose) { e.current.Store(p) }

func (e *switchExtractor) Fail(err error) { e.err.Store(&err) }

func (e *switchExtractor) Extract(ctx context.Context, img pose.Image) (*pose.Pose, error) {
	e.calls.Add(1)
	if err := e.err.Load(); err != nil {
		return nil, *err
	}
	return e.current.Load(), nil
}

// gatedExtractor holds its first call until release is closed, ignoring
// cancellation, and returns p from every call.
type gatedExtractor struct {
	p       *pose.Pose
	entered chan struct{}
	release chan struct{}
	calls   atomic.Int64
}

func newGatedExtractor(p *pose.Pose) *gatedExtractor {
	return &gatedExtractor{p: p, entered: make(chan struct{}), release: make(chan struct{})}
}

func (e *gatedExtractor) Extract(ctx context.Context, img pose.Image) (*pose.Pose, error) {
	if e.calls.Add(1) == 1 {
		close(e.entered)
		<-e.release
	}
	return e.p, nil
}

type row struct {
	label    string
	features int
}

type fakeRecorder struct {
	mu    sync.Mutex
	begun []exercise.ID
	rows  []row
	ended int
	// calls is the order of Begin, Record and End calls.
	calls []string
}

func (r *fakeRecorder) Begin(id exercise.ID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.begun = append(r.begun, id)
	r.calls = append(r.calls, "begin "+string(id))
	return nil
}

func (r *fakeRecorder) Record(label string, features []float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows = append(r.rows, row{label, len(features)})
	r.calls = append(r.calls, "row")
	return nil
}

func (r *fakeRecorder) End() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ended++
	r.calls = append(r.calls, "end")
	return nil
}

func (r *fakeRecorder) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func (r *fakeRecorder) Ended() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ended
}

func (r *fakeRecorder) Rows() []row {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]row(nil), r.rows...)
}

type fakeObserver struct {
	mu      sync.Mutex
	started []Info
	reps    []Rep
	ended   []string
}

func (o *fakeObserver) SessionStarted(_ context.Context, info Info) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.started = append(o.started, info)
}

func (o *fakeObserver) RepCompleted(_ context.Context, rep Rep) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.reps = append(o.reps, rep)
}

func (o *fakeObserver) SessionEnded(_ context.Context, info Info, reason string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ended = append(o.ended, reason)
}

func (o *fakeObserver) Reps() []Rep {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]Rep(nil), o.reps...)
}

func (o *fakeObserver) Ended() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.ended...)
}

const (
	waitFor = 2 * time.Second
	poll    = 2 * time.Millisecond
)

func newTestManager(t *testing.T, opener camera.Opener, ex pose.Extractor, rec Recorder, obs ...Observer) *Manager {
	t.Helper()
	m := NewManager(Options{
		Config:    Config{Tick: time.Millisecond, DrainDelay: 200 * time.Millisecond},
		Opener:    opener,
		Extractor: ex,
		Recorder:  rec,
		Observers: obs,
	}, discardLogger())
	t.Cleanup(func() { m.Stop() })
	return m
}
