// Package stream writes the latest session frame to a client as an MJPEG
// multipart response.
package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

// ContentType is the response content type for Serve.
const ContentType = "multipart/x-mixed-replace; boundary=frame"

// ErrStartTimeout is returned when no session produced a frame in time.
var ErrStartTimeout = errors.New("stream: session did not start in time")

// Source is where frames come from.
type Source interface {
	Active() bool
	Frame() []byte
}

// Producer paces frames from a Source to one client. The zero timings fall
// back to 15s wait, 100ms poll and 30ms between frames.
type Producer struct {
	Source   Source
	Fallback []byte // sent once when the session never starts

	Wait     time.Duration
	Poll     time.Duration
	Interval time.Duration
}

// Serve blocks until ctx is done, the session ends or a write fails. flush
// is called after every part and may be nil.
func (p *Producer) Serve(ctx context.Context, w io.Writer, flush func()) error {
	if flush == nil {
		flush = func() {}
	}
	wait, poll, interval := p.timings()

	deadline := time.Now().Add(wait)
	for !p.Source.Active() || len(p.Source.Frame()) == 0 {
		if time.Now().After(deadline) {
			if len(p.Fallback) > 0 {
				if err := WritePart(w, p.Fallback); err != nil {
					return err
				}
				flush()
			}
			return ErrStartTimeout
		}
		if err := sleep(ctx, poll); err != nil {
			return err
		}
	}

	for p.Source.Active() {
		if frame := p.Source.Frame(); len(frame) > 0 {
			if err := WritePart(w, frame); err != nil {
				return err
			}
			flush()
		}
		if err := sleep(ctx, interval); err != nil {
			return err
		}
	}
	return nil
}

func (p *Producer) timings() (wait, poll, interval time.Duration) {
	wait, poll, interval = p.Wait, p.Poll, p.Interval
	if wait <= 0 {
		wait = 15 * time.Second
	}
	if poll <= 0 {
		poll = 100 * time.Millisecond
	}
	if interval <= 0 {
		interval = 30 * time.Millisecond
	}
	return wait, poll, interval
}

// WritePart writes one JPEG as a multipart part.
func WritePart(w io.Writer, jpeg []byte) error {
	if _, err := fmt.Fprintf(w, "--frame\r\nContent-Type: image/jpeg\r\n\r\n"); err != nil {
		return fmt.Errorf("writing part header: %w", err)
	}
	if _, err := w.Write(jpeg); err != nil {
		return fmt.Errorf("writing part body: %w", err)
	}
	if _, err := io.WriteString(w, "\r\n"); err != nil {
		return fmt.Errorf("writing part trailer: %w", err)
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
