package stream

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	active atomic.Bool
	mu     sync.Mutex
	frame  []byte
}

func (s *fakeSource) Active() bool { return s.active.Load() }

func (s *fakeSource) Frame() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frame
}

func (s *fakeSource) set(frame string) {
	s.mu.Lock()
	s.frame = []byte(frame)
	s.mu.Unlock()
}

// syncBuffer is a bytes.Buffer safe to read while Serve writes.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestWritePart(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WritePart(&buf, []byte("JPEG")))
	assert.Equal(t, "--frame\r\nContent-Type: image/jpeg\r\n\r\nJPEG\r\n", buf.String())
}

func TestServeTimeoutSendsFallbackOnce(t *testing.T) {
	p := &Producer{
		Source:   &fakeSource{},
		Fallback: []byte("ERR"),
		Wait:     20 * time.Millisecond,
		Poll:     2 * time.Millisecond,
	}
	var buf bytes.Buffer
	flushes := 0
	err := p.Serve(context.Background(), &buf, func() { flushes++ })

	assert.True(t, errors.Is(err, ErrStartTimeout))
	assert.Equal(t, "--frame\r\nContent-Type: image/jpeg\r\n\r\nERR\r\n", buf.String())
	assert.Equal(t, 1, flushes)
}

func TestServeWaitsForFirstFrame(t *testing.T) {
	src := &fakeSource{}
	src.active.Store(true) // active but nothing published yet
	p := &Producer{Source: src, Wait: time.Second, Poll: time.Millisecond, Interval: time.Millisecond}

	var buf syncBuffer
	done := make(chan error, 1)
	go func() { done <- p.Serve(context.Background(), &buf, nil) }()

	time.Sleep(10 * time.Millisecond)
	assert.Empty(t, buf.String())

	src.set("A")
	require.Eventually(t, func() bool { return strings.Contains(buf.String(), "\r\n\r\nA\r\n") }, time.Second, time.Millisecond)

	src.active.Store(false)
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Serve did not return after the session ended")
	}
}

func TestServeStopsOnContextCancel(t *testing.T) {
	src := &fakeSource{}
	src.active.Store(true)
	src.set("A")
	p := &Producer{Source: src, Interval: time.Millisecond}

	ctx, cancel := context.WithCancel(context.Background())
	var buf syncBuffer
	done := make(chan error, 1)
	go func() { done <- p.Serve(ctx, &buf, nil) }()

	require.Eventually(t, func() bool { return strings.Count(buf.String(), "--frame") >= 3 }, time.Second, time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.True(t, errors.Is(err, context.Canceled))
	case <-time.After(time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("client gone") }

func TestServeReturnsWriteError(t *testing.T) {
	src := &fakeSource{}
	src.active.Store(true)
	src.set("A")
	p := &Producer{Source: src}

	err := p.Serve(context.Background(), failingWriter{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "client gone")
}
