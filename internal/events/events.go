// Package events publishes session lifecycle and repetition events to MQTT.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/claude/formreps/internal/session"
)

// Publisher sends a payload to a topic.
type Publisher interface {
	Publish(topic string, payload []byte) error
}

// Emitter turns session events into JSON messages under
// <prefix>/sessions/<id>/{started,reps,ended}.
type Emitter struct {
	pub    Publisher
	prefix string
	log    *slog.Logger

	mu        sync.Mutex
	published map[string]uint64
	errors    uint64
}

// NewEmitter returns an Emitter publishing through pub.
func NewEmitter(pub Publisher, prefix string, log *slog.Logger) *Emitter {
	if prefix == "" {
		prefix = "formreps"
	}
	return &Emitter{pub: pub, prefix: prefix, log: log, published: make(map[string]uint64)}
}

var _ session.Observer = (*Emitter)(nil)

// StartedEvent is published when a session starts.
type StartedEvent struct {
	Session   string    `json:"session"`
	Exercise  string    `json:"exercise"`
	CameraID  int       `json:"camera_id"`
	StartedAt time.Time `json:"started_at"`
}

// RepEvent is published for each completed repetition.
type RepEvent struct {
	Session  string    `json:"session"`
	Exercise string    `json:"exercise"`
	Seq      uint      `json:"seq"`
	Outcome  string    `json:"outcome"`
	Label    string    `json:"label"`
	At       time.Time `json:"at"`
}

// EndedEvent is published when a session ends.
type EndedEvent struct {
	Session   string `json:"session"`
	Exercise  string `json:"exercise"`
	Correct   uint   `json:"correct"`
	Incorrect uint   `json:"incorrect"`
	Reason    string `json:"reason"`
}

// Topic returns the topic for kind events of session id.
func (e *Emitter) Topic(id, kind string) string {
	return fmt.Sprintf("%s/sessions/%s/%s", e.prefix, id, kind)
}

// SessionStarted implements session.Observer.
func (e *Emitter) SessionStarted(_ context.Context, info session.Info) {
	e.emit(e.Topic(info.ID, "started"), StartedEvent{
		Session:   info.ID,
		Exercise:  string(info.Exercise),
		CameraID:  info.CameraID,
		StartedAt: info.StartedAt,
	})
}

// RepCompleted implements session.Observer.
func (e *Emitter) RepCompleted(_ context.Context, rep session.Rep) {
	e.emit(e.Topic(rep.SessionID, "reps"), RepEvent{
		Session:  rep.SessionID,
		Exercise: string(rep.Exercise),
		Seq:      rep.Seq,
		Outcome:  rep.Outcome,
		Label:    rep.Label,
		At:       rep.At,
	})
}

// SessionEnded implements session.Observer.
func (e *Emitter) SessionEnded(_ context.Context, info session.Info, reason string) {
	e.emit(e.Topic(info.ID, "ended"), EndedEvent{
		Session:   info.ID,
		Exercise:  string(info.Exercise),
		Correct:   info.Counters.Correct,
		Incorrect: info.Counters.Incorrect,
		Reason:    reason,
	})
}

func (e *Emitter) emit(topic string, v any) {
	payload, err := json.Marshal(v)
	if err == nil {
		err = e.pub.Publish(topic, payload)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if err != nil {
		e.errors++
		e.log.Warn("publishing session event", "topic", topic, "error", err)
		return
	}
	e.published[topic]++
	e.log.Debug("session event published", "topic", topic, "size", len(payload))
}

// Stats is a copy of the emitter counters.
type Stats struct {
	Published map[string]uint64 `json:"published"`
	Errors    uint64            `json:"errors"`
}

// Stats returns publish counts per topic and the error count.
func (e *Emitter) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	published := make(map[string]uint64, len(e.published))
	for k, v := range e.published {
		published[k] = v
	}
	return Stats{Published: published, Errors: e.errors}
}
