// Package session runs one live exercise session at a time: it owns the
// camera device and the active detector, drives the per-frame loop and
// publishes frames and metrics on a Surface.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/claude/formreps/internal/camera"
	"github.com/claude/formreps/internal/exercise"
	"github.com/claude/formreps/internal/pose"
)

// ErrNoActiveSession is returned by operations that need a running session.
var ErrNoActiveSession = errors.New("no active session")

// Stage messages published on the metrics slot by the lifecycle.
const (
	StageStarting          = "Inicializando..."
	StageStopped           = "Detenido"
	StageUnknownExercise   = "ERROR: Ejercicio no válido"
	StageCameraUnavailable = "ERROR: Cámara no disponible"
	StageStreamFailed      = "ERROR: Stream de cámara falló"
	BannerPaused           = "PAUSADO"
)

// Reasons a session ended, as reported to observers.
const (
	ReasonStopped      = "stopped"
	ReasonReplaced     = "replaced"
	ReasonCameraFailed = "camera_failed"
)

// Config holds the loop timings.
type Config struct {
	Tick       time.Duration // pause between loop iterations
	DrainDelay time.Duration // how long Stop waits for the loop before warning
}

func (c Config) withDefaults() Config {
	if c.Tick <= 0 {
		c.Tick = 10 * time.Millisecond
	}
	if c.DrainDelay <= 0 {
		c.DrainDelay = 500 * time.Millisecond
	}
	return c
}

// Recorder receives one labelled landmark row per processed frame with a
// detected pose.
type Recorder interface {
	Begin(id exercise.ID) error
	Record(label string, features []float64) error
	End() error
}

// Info describes the current or last session.
type Info struct {
	ID        string            `json:"id,omitempty"`
	Exercise  exercise.ID       `json:"exercise,omitempty"`
	CameraID  int               `json:"camera_id"`
	Active    bool              `json:"active"`
	Paused    bool              `json:"paused"`
	StartedAt time.Time         `json:"started_at,omitempty"`
	Counters  exercise.Counters `json:"counters"`
}

// Rep is a completed repetition.
type Rep struct {
	SessionID string      `json:"session_id"`
	Exercise  exercise.ID `json:"exercise"`
	Seq       uint        `json:"seq"`
	Outcome   string      `json:"outcome"` // "correct" or "incorrect"
	Label     string      `json:"label"`
	At        time.Time   `json:"at"`
}

// Observer is notified of lifecycle and repetition events. Calls are made
// from the session loop and must not block for long.
type Observer interface {
	SessionStarted(ctx context.Context, info Info)
	RepCompleted(ctx context.Context, rep Rep)
	SessionEnded(ctx context.Context, info Info, reason string)
}

// Options are the collaborators of a Manager. Recorder and Observers are
// optional.
type Options struct {
	Config    Config
	Opener    camera.Opener
	Extractor pose.Extractor
	Recorder  Recorder
	Observers []Observer
}

// run is one session from Start until its device is released.
type run struct {
	info     Info
	detector exercise.Detector
	device   camera.Device
	cancel   context.CancelFunc
	done     chan struct{}
	reason   string

	releaseOnce sync.Once

	// Owned by the loop goroutine.
	last     exercise.Snapshot
	lastPose *pose.Pose
}

// Manager enforces the single-session rule. All state lives on the Manager
// so several can coexist in one process.
type Manager struct {
	cfg       Config
	opener    camera.Opener
	extractor pose.Extractor
	recorder  Recorder
	observers []Observer
	surface   *Surface
	log       *slog.Logger
	now       func() time.Time

	// lifecycleMu serialises Start and Stop.
	lifecycleMu sync.Mutex

	mu   sync.Mutex
	cur  *run
	last Info
}

// NewManager builds an idle Manager.
func NewManager(opts Options, log *slog.Logger) *Manager {
	return &Manager{
		cfg:       opts.Config.withDefaults(),
		opener:    opts.Opener,
		extractor: opts.Extractor,
		recorder:  opts.Recorder,
		observers: opts.Observers,
		surface:   NewSurface(),
		log:       log,
		now:       time.Now,
	}
}

// Surface returns the publication surface the loop writes to.
func (m *Manager) Surface() *Surface {
	return m.surface
}

// Active reports whether a session loop is running.
func (m *Manager) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cur != nil && m.cur.info.Active
}

// Frame returns the latest annotated frame.
func (m *Manager) Frame() []byte {
	return m.surface.Frame()
}

// Metrics returns the latest metrics snapshot.
func (m *Manager) Metrics() exercise.Snapshot {
	return m.surface.Metrics()
}

// Status describes the running session, or the last one when idle.
func (m *Manager) Status() Info {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cur != nil && m.cur.info.Active {
		return m.cur.info
	}
	return m.last
}

// Start stops any running session, then starts one for the named exercise
// on cameraID. Failures are published on the metrics slot as well as
// returned, since a streaming client only sees the metrics.
func (m *Manager) Start(ctx context.Context, name string, cameraID int) (Info, error) {
	m.lifecycleMu.Lock()
	defer m.lifecycleMu.Unlock()

	m.stop(ReasonReplaced)
	m.surface.ClearFrame()
	m.surface.PublishMetrics(exercise.StageSnapshot(StageStarting))

	id, err := exercise.Parse(name)
	if err != nil {
		m.surface.PublishMetrics(exercise.StageSnapshot(StageUnknownExercise))
		return Info{}, err
	}
	det, err := exercise.New(id)
	if err != nil {
		m.surface.PublishMetrics(exercise.StageSnapshot(StageUnknownExercise))
		return Info{}, err
	}
	det.Reset()

	dev, err := m.opener.Open(cameraID)
	if err != nil {
		m.log.Error("opening camera", "camera", cameraID, "error", err)
		m.surface.PublishMetrics(exercise.StageSnapshot(StageCameraUnavailable))
		if !errors.Is(err, camera.ErrUnavailable) {
			err = fmt.Errorf("%w: %v", camera.ErrUnavailable, err)
		}
		return Info{}, err
	}

	if m.recorder != nil {
		if err := m.recorder.Begin(id); err != nil {
			m.log.Warn("starting landmark export", "exercise", id, "error", err)
		}
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	r := &run{
		info: Info{
			ID:        uuid.NewString(),
			Exercise:  id,
			CameraID:  cameraID,
			Active:    true,
			StartedAt: m.now().UTC(),
		},
		detector: det,
		device:   dev,
		cancel:   cancel,
		done:     make(chan struct{}),
		last:     exercise.NewSnapshot(exercise.Counters{}, StageWaiting),
	}

	m.mu.Lock()
	m.cur = r
	info := r.info
	m.mu.Unlock()

	m.log.Info("session started", "session", info.ID, "exercise", id, "camera", cameraID)
	for _, o := range m.observers {
		o.SessionStarted(ctx, info)
	}

	go m.loop(loopCtx, r)
	return info, nil
}

// Stop ends the running session and resets the metrics to the stopped
// snapshot. It is safe to call at any time and reports whether a session
// was running.
func (m *Manager) Stop() bool {
	m.lifecycleMu.Lock()
	defer m.lifecycleMu.Unlock()
	return m.stop(ReasonStopped)
}

func (m *Manager) stop(reason string) bool {
	m.mu.Lock()
	r := m.cur
	if r == nil {
		m.mu.Unlock()
		m.surface.PublishMetrics(exercise.StageSnapshot(StageStopped))
		return false
	}
	wasActive := r.info.Active
	m.deactivateLocked(r, reason)
	m.mu.Unlock()

	// The loop releases the device and the export on its way out, so a new
	// session may only open them once done is closed.
	timer := time.NewTimer(m.cfg.DrainDelay)
	select {
	case <-r.done:
		timer.Stop()
	case <-timer.C:
		m.log.Warn("session loop did not exit in time, still waiting", "session", r.info.ID, "drain_delay", m.cfg.DrainDelay)
		<-r.done
	}

	m.surface.PublishMetrics(exercise.StageSnapshot(StageStopped))
	if wasActive {
		m.log.Info("session stopped", "session", r.info.ID, "reason", reason)
	}
	return wasActive
}

// deactivateLocked marks r inactive and cancels its loop. The loop checks
// the flag under m.mu before every device access and before publishing, so
// once this returns the loop will not start another read.
func (m *Manager) deactivateLocked(r *run, reason string) {
	if r.info.Active {
		r.info.Active = false
		r.info.Paused = false
		r.reason = reason
	}
	r.cancel()
}

// release closes the device and ends the export exactly once, then
// notifies observers. Only the loop calls it, after its last device read.
func (m *Manager) release(ctx context.Context, r *run) {
	r.releaseOnce.Do(func() {
		if err := r.device.Close(); err != nil {
			m.log.Warn("closing camera", "session", r.info.ID, "error", err)
		}
		if m.recorder != nil {
			if err := m.recorder.End(); err != nil {
				m.log.Warn("closing landmark export", "session", r.info.ID, "error", err)
			}
		}

		m.mu.Lock()
		if m.cur == r {
			m.cur = nil
		}
		info := r.info
		reason := r.reason
		m.last = info
		m.mu.Unlock()

		for _, o := range m.observers {
			o.SessionEnded(ctx, info, reason)
		}
	})
}

// TogglePause flips the pause flag of the running session and returns the
// new value.
func (m *Manager) TogglePause() (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cur == nil || !m.cur.info.Active {
		return false, ErrNoActiveSession
	}
	m.cur.info.Paused = !m.cur.info.Paused
	m.log.Info("session pause toggled", "session", m.cur.info.ID, "paused", m.cur.info.Paused)
	return m.cur.info.Paused, nil
}
