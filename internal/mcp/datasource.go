package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/claude/formreps/internal/exercise"
	"github.com/claude/formreps/internal/session"
	"github.com/claude/formreps/internal/storage"
)

// DataSource abstracts where live and recorded session data comes from.
// Local reads the in-process manager and store; HTTPClient calls a remote
// FormReps server over its REST API.
type DataSource interface {
	ExerciseData(ctx context.Context) (json.RawMessage, error)
	Status(ctx context.Context) (session.Info, error)
	TogglePause(ctx context.Context) (bool, error)
	ListSessions(ctx context.Context, exercise string, limit int) ([]storage.Session, error)
	GetSession(ctx context.Context, id string) (*storage.SessionDetail, error)
	Exercises(ctx context.Context) ([]exercise.ID, error)
}

// Sessions is the part of the session manager Local reads.
type Sessions interface {
	Metrics() exercise.Snapshot
	Status() session.Info
	TogglePause() (bool, error)
}

// Local serves tools from the running process. Store may be nil, in which
// case history tools report an error.
type Local struct {
	Sessions Sessions
	Store    *storage.DB
}

// Compile-time check: Local satisfies DataSource.
var _ DataSource = (*Local)(nil)

var errNoStore = fmt.Errorf("session history is not configured")

func (l *Local) ExerciseData(context.Context) (json.RawMessage, error) {
	return json.Marshal(l.Sessions.Metrics())
}

func (l *Local) Status(context.Context) (session.Info, error) {
	return l.Sessions.Status(), nil
}

func (l *Local) TogglePause(context.Context) (bool, error) {
	return l.Sessions.TogglePause()
}

func (l *Local) ListSessions(ctx context.Context, exercise string, limit int) ([]storage.Session, error) {
	if l.Store == nil {
		return nil, errNoStore
	}
	return l.Store.ListSessions(ctx, exercise, limit)
}

func (l *Local) GetSession(ctx context.Context, id string) (*storage.SessionDetail, error) {
	if l.Store == nil {
		return nil, errNoStore
	}
	return l.Store.GetSession(ctx, id)
}

func (l *Local) Exercises(context.Context) ([]exercise.ID, error) {
	return exercise.IDs(), nil
}
