package storage

import (
	"context"
	"log/slog"
	"time"

	"github.com/claude/formreps/internal/session"
)

const recordTimeout = 2 * time.Second

// Recorder persists session lifecycle and repetition events. Failures are
// logged; the live session never waits on the database for long.
type Recorder struct {
	db  *DB
	log *slog.Logger
}

// NewRecorder returns a session.Observer writing to db.
func NewRecorder(db *DB, log *slog.Logger) *Recorder {
	return &Recorder{db: db, log: log}
}

var _ session.Observer = (*Recorder)(nil)

// SessionStarted implements session.Observer.
func (r *Recorder) SessionStarted(ctx context.Context, info session.Info) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()
	err := r.db.CreateSession(ctx, Session{
		ID:        info.ID,
		Exercise:  string(info.Exercise),
		CameraID:  info.CameraID,
		StartedAt: info.StartedAt,
	})
	if err != nil {
		r.log.Warn("recording session start", "session", info.ID, "error", err)
	}
}

// RepCompleted implements session.Observer.
func (r *Recorder) RepCompleted(ctx context.Context, rep session.Rep) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()
	err := r.db.AddRepetition(ctx, Repetition{
		SessionID: rep.SessionID,
		Seq:       int(rep.Seq),
		Outcome:   rep.Outcome,
		Label:     rep.Label,
		At:        rep.At,
	})
	if err != nil {
		r.log.Warn("recording repetition", "session", rep.SessionID, "seq", rep.Seq, "error", err)
	}
}

// SessionEnded implements session.Observer.
func (r *Recorder) SessionEnded(ctx context.Context, info session.Info, reason string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()
	err := r.db.FinishSession(ctx, info.ID, time.Now(),
		int(info.Counters.Correct), int(info.Counters.Incorrect), reason)
	if err != nil {
		r.log.Warn("recording session end", "session", info.ID, "error", err)
	}
}
