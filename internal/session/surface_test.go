package session

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/claude/formreps/internal/exercise"
)

func TestSurfaceDefaults(t *testing.T) {
	s := NewSurface()
	assert.Nil(t, s.Frame())
	assert.Equal(t, exercise.StageSnapshot(StageWaiting), s.Metrics())
}

func TestSurfaceCopiesOut(t *testing.T) {
	s := NewSurface()
	s.PublishFrame([]byte("abc"))
	got := s.Frame()
	got[0] = 'x'
	assert.Equal(t, []byte("abc"), s.Frame())

	snap := exercise.NewSnapshot(exercise.Counters{Correct: 1}, "Arriba", exercise.Field{Name: "knee_angle", Value: 170})
	s.PublishMetrics(snap)
	m := s.Metrics()
	m.Fields[0].Value = 0
	v, _ := s.Metrics().Field("knee_angle")
	assert.Equal(t, 170, v)

	s.ClearFrame()
	assert.Nil(t, s.Frame())
}

func TestSurfaceStatsCountDrops(t *testing.T) {
	s := NewSurface()
	s.PublishFrame([]byte("1"))
	s.PublishFrame([]byte("2"))
	s.Frame()
	s.PublishFrame([]byte("3"))

	frame, metrics := s.Stats()
	assert.Equal(t, SlotStats{Writes: 3, Reads: 1, Dropped: 1}, frame)
	assert.Equal(t, SlotStats{}, metrics)
}

func TestSurfaceConcurrentAccess(t *testing.T) {
	s := NewSurface()
	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			s.PublishFrame([]byte{byte(i)})
			s.PublishMetrics(exercise.NewSnapshot(exercise.Counters{Correct: uint(i)}, "x"))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			s.Frame()
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			m := s.Metrics()
			if m.Stage != "x" && m.Stage != StageWaiting {
				t.Errorf("torn snapshot %+v", m)
			}
		}
	}()
	wg.Wait()
}
