package session

import (
	"sync"

	"github.com/claude/formreps/internal/exercise"
)

// StageWaiting is shown before any session has published metrics.
const StageWaiting = "Esperando..."

// SlotStats counts writes to one slot. Dropped counts writes that replaced
// a value nobody had read.
type SlotStats struct {
	Writes  uint64 `json:"writes"`
	Reads   uint64 `json:"reads"`
	Dropped uint64 `json:"dropped"`
}

type slotState struct {
	stats  SlotStats
	unread bool
}

func (s *slotState) write() {
	s.stats.Writes++
	if s.unread {
		s.stats.Dropped++
	}
	s.unread = true
}

func (s *slotState) read() {
	s.stats.Reads++
	s.unread = false
}

// Surface holds the latest annotated frame and the latest metrics snapshot.
// The two slots have separate locks so a slow reader of one never delays
// the writer of the other. Writes replace; nothing is queued.
type Surface struct {
	frameMu   sync.Mutex
	frame     []byte
	frameSlot slotState

	metricsMu   sync.Mutex
	metrics     exercise.Snapshot
	hasMetrics  bool
	metricsSlot slotState
}

// NewSurface returns an empty surface.
func NewSurface() *Surface {
	return &Surface{}
}

// PublishFrame replaces the frame slot. The surface keeps data; callers
// must not modify it afterwards.
func (s *Surface) PublishFrame(data []byte) {
	s.frameMu.Lock()
	s.frame = data
	s.frameSlot.write()
	s.frameMu.Unlock()
}

// Frame returns a copy of the latest frame, or nil when the slot is empty.
func (s *Surface) Frame() []byte {
	s.frameMu.Lock()
	defer s.frameMu.Unlock()
	if len(s.frame) == 0 {
		return nil
	}
	s.frameSlot.read()
	return append([]byte(nil), s.frame...)
}

// ClearFrame empties the frame slot.
func (s *Surface) ClearFrame() {
	s.frameMu.Lock()
	s.frame = nil
	s.frameSlot.unread = false
	s.frameMu.Unlock()
}

// PublishMetrics replaces the metrics slot.
func (s *Surface) PublishMetrics(snap exercise.Snapshot) {
	snap = snap.Clone()
	s.metricsMu.Lock()
	s.metrics = snap
	s.hasMetrics = true
	s.metricsSlot.write()
	s.metricsMu.Unlock()
}

// Metrics returns the latest snapshot. It never blocks on the session and
// falls back to a zeroed waiting snapshot.
func (s *Surface) Metrics() exercise.Snapshot {
	s.metricsMu.Lock()
	defer s.metricsMu.Unlock()
	if !s.hasMetrics {
		return exercise.StageSnapshot(StageWaiting)
	}
	s.metricsSlot.read()
	return s.metrics.Clone()
}

// Stats returns the write counters of the frame and metrics slots.
func (s *Surface) Stats() (frame, metrics SlotStats) {
	s.frameMu.Lock()
	frame = s.frameSlot.stats
	s.frameMu.Unlock()
	s.metricsMu.Lock()
	metrics = s.metricsSlot.stats
	s.metricsMu.Unlock()
	return frame, metrics
}
