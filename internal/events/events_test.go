package events

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/claude/formreps/internal/exercise"
	"github.com/claude/formreps/internal/session"
)

type message struct {
	topic   string
	payload []byte
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []message
	err  error
}

func (p *fakePublisher) Publish(topic string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, message{topic, payload})
	return nil
}

func newTestEmitter(pub Publisher) *Emitter {
	return NewEmitter(pub, "gym", slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestEmitterTopicsAndPayloads(t *testing.T) {
	pub := &fakePublisher{}
	e := newTestEmitter(pub)
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	info := session.Info{ID: "s1", Exercise: exercise.Pushups, CameraID: 2, StartedAt: at}
	e.SessionStarted(ctx, info)
	e.RepCompleted(ctx, session.Rep{SessionID: "s1", Exercise: exercise.Pushups, Seq: 1, Outcome: "correct", Label: "correct_finish", At: at})
	info.Counters = exercise.Counters{Correct: 1}
	e.SessionEnded(ctx, info, session.ReasonStopped)

	require.Len(t, pub.msgs, 3)
	assert.Equal(t, "gym/sessions/s1/started", pub.msgs[0].topic)
	assert.Equal(t, "gym/sessions/s1/reps", pub.msgs[1].topic)
	assert.Equal(t, "gym/sessions/s1/ended", pub.msgs[2].topic)

	var rep RepEvent
	require.NoError(t, json.Unmarshal(pub.msgs[1].payload, &rep))
	assert.Equal(t, uint(1), rep.Seq)
	assert.Equal(t, "correct_finish", rep.Label)

	assert.JSONEq(t,
		`{"session":"s1","exercise":"pushups","correct":1,"incorrect":0,"reason":"stopped"}`,
		string(pub.msgs[2].payload))

	stats := e.Stats()
	assert.Equal(t, uint64(1), stats.Published["gym/sessions/s1/reps"])
	assert.Zero(t, stats.Errors)
}

func TestEmitterCountsErrors(t *testing.T) {
	e := newTestEmitter(&fakePublisher{err: errors.New("mqtt not connected")})
	e.SessionStarted(context.Background(), session.Info{ID: "s1"})
	assert.Equal(t, uint64(1), e.Stats().Errors)
	assert.Empty(t, e.Stats().Published)
}

func TestDefaultPrefix(t *testing.T) {
	e := NewEmitter(&fakePublisher{}, "", slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.Equal(t, "formreps/sessions/x/ended", e.Topic("x", "ended"))
}
