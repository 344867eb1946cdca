package session

import (
	"context"
	"fmt"
	"time"

	"github.com/claude/formreps/internal/camera"
	"github.com/claude/formreps/internal/exercise"
	"github.com/claude/formreps/internal/pose"
)

func (m *Manager) loop(ctx context.Context, r *run) {
	defer close(r.done)
	defer m.release(context.Background(), r)

	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		m.mu.Lock()
		active, paused := r.info.Active, r.info.Paused
		m.mu.Unlock()
		if !active {
			return
		}
		if !m.tick(ctx, r, paused) {
			return
		}
		timer.Reset(m.cfg.Tick)
	}
}

// tick processes one frame. It returns false when the session must end.
func (m *Manager) tick(ctx context.Context, r *run, paused bool) bool {
	frame, err := r.device.Read()
	if err != nil {
		m.log.Error("reading camera frame", "session", r.info.ID, "error", err)
		m.mu.Lock()
		m.deactivateLocked(r, ReasonCameraFailed)
		m.mu.Unlock()
		m.surface.PublishMetrics(exercise.StageSnapshot(StageStreamFailed))
		return false
	}
	defer frame.Close()

	if !paused {
		m.process(ctx, r, frame)
	}

	ov := overlay(r.last, r.lastPose)
	if paused {
		ov.Banner = BannerPaused
	}
	frame.Annotate(ov)
	data, err := frame.Encode()
	if err != nil {
		m.log.Warn("encoding frame", "session", r.info.ID, "error", err)
		data = nil
	}

	// Publishing under m.mu keeps a loop that outlived Stop's drain delay
	// from overwriting the stopped snapshot.
	m.mu.Lock()
	defer m.mu.Unlock()
	if !r.info.Active {
		return false
	}
	if data != nil {
		m.surface.PublishFrame(data)
	}
	m.surface.PublishMetrics(r.last)
	return true
}

// process runs pose extraction and the detector for one frame.
func (m *Manager) process(ctx context.Context, r *run, frame camera.Frame) {
	p := m.extract(ctx, r, frame)
	label, snap := r.detector.Update(p)
	r.last = snap
	r.lastPose = p

	// Extraction may outlast Stop; a deactivated run must not record rows
	// or repetitions.
	counters := r.detector.Counters()
	m.mu.Lock()
	active := r.info.Active
	prev := r.info.Counters
	if active {
		r.info.Counters = counters
	}
	m.mu.Unlock()
	if !active {
		return
	}

	if p != nil && label != exercise.LabelNoPose && m.recorder != nil {
		if err := m.recorder.Record(label, p.Features()); err != nil {
			m.log.Warn("writing landmark row", "session", r.info.ID, "error", err)
		}
	}

	if counters == prev {
		return
	}
	rep := Rep{
		SessionID: r.info.ID,
		Exercise:  r.info.Exercise,
		Seq:       counters.Total(),
		Outcome:   "correct",
		Label:     label,
		At:        m.now().UTC(),
	}
	if counters.Incorrect > prev.Incorrect {
		rep.Outcome = "incorrect"
	}
	m.log.Debug("repetition completed", "session", rep.SessionID, "seq", rep.Seq, "outcome", rep.Outcome)
	for _, o := range m.observers {
		o.RepCompleted(ctx, rep)
	}
}

// extract returns the frame's pose, or nil when none was found or the
// extractor failed.
func (m *Manager) extract(ctx context.Context, r *run, frame camera.Frame) *pose.Pose {
	if m.extractor == nil {
		return nil
	}
	img, err := frame.Image()
	if err != nil {
		m.log.Warn("preparing frame for pose extraction", "session", r.info.ID, "error", err)
		return nil
	}
	p, err := m.extractor.Extract(ctx, img)
	if err != nil {
		m.log.Warn("extracting pose", "session", r.info.ID, "error", err)
		return nil
	}
	return p
}

// overlay draws the snapshot as text lines in the top-left corner.
func overlay(s exercise.Snapshot, p *pose.Pose) camera.Overlay {
	const (
		left   = 10
		top    = 30
		height = 25
	)
	texts := []camera.Text{
		{X: left, Y: top, Value: fmt.Sprintf("Reps: %d  Incorrectas: %d", s.Reps, s.IncorrectReps), Color: camera.White, Scale: 0.7},
		{X: left, Y: top + height, Value: s.Stage, Color: camera.Amber, Scale: 0.7},
	}
	for i, f := range s.Fields {
		texts = append(texts, camera.Text{
			X:     left,
			Y:     top + height*(i+2),
			Value: fmt.Sprintf("%s: %v", f.Name, f.Value),
			Color: camera.White,
			Scale: 0.5,
		})
	}
	return camera.Overlay{Texts: texts, Landmarks: p}
}
