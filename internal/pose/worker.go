package pose

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// ErrWorkerStopped is returned by Extract when the worker process is not running.
var ErrWorkerStopped = errors.New("pose worker not running")

// maxMessageSize bounds a single framed message from the worker.
const maxMessageSize = 16 << 20

// WorkerConfig describes how to launch the landmark worker process.
type WorkerConfig struct {
	Command string
	Args    []string
	Timeout time.Duration // per frame, write and response
}

// WorkerStats reports request counters.
type WorkerStats struct {
	Requests  uint64 `json:"requests"`
	Detected  uint64 `json:"detected"`
	Failures  uint64 `json:"failures"`
	Discarded uint64 `json:"discarded"`
}

// request and response are the msgpack messages exchanged with the worker.
// Each message is preceded by a 4-byte big-endian length.
type request struct {
	FrameData []byte `msgpack:"frame_data"`
	Width     int    `msgpack:"width"`
	Height    int    `msgpack:"height"`
	Seq       uint64 `msgpack:"seq"`
}

type response struct {
	Seq       uint64      `msgpack:"seq"`
	Detected  bool        `msgpack:"detected"`
	Landmarks [][]float64 `msgpack:"landmarks"`
	Error     string      `msgpack:"error"`
}

// Worker is an Extractor backed by an external process (typically a Python
// MediaPipe script) speaking length-prefixed msgpack over stdin/stdout.
// One request is in flight at a time.
type Worker struct {
	cfg WorkerConfig
	log *slog.Logger

	cmd    *exec.Cmd
	cancel context.CancelFunc
	wg     sync.WaitGroup

	reqMu   sync.Mutex // serialises Extract
	writeMu sync.Mutex // guards stdin; held by the writing goroutine
	stdin   io.WriteCloser
	results chan response
	seq     uint64
	active  atomic.Bool

	requests  atomic.Uint64
	detected  atomic.Uint64
	failures  atomic.Uint64
	discarded atomic.Uint64
}

// NewWorker validates cfg and returns a stopped worker.
func NewWorker(cfg WorkerConfig, log *slog.Logger) (*Worker, error) {
	if cfg.Command == "" {
		return nil, fmt.Errorf("pose worker command is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Second
	}
	return &Worker{cfg: cfg, log: log}, nil
}

// Start spawns the worker process.
func (w *Worker) Start(ctx context.Context) error {
	if w.active.Load() {
		return fmt.Errorf("pose worker already started")
	}
	ctx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(ctx, w.cfg.Command, w.cfg.Args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("creating stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("creating stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("creating stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("starting pose worker: %w", err)
	}

	w.cmd = cmd
	w.cancel = cancel
	w.log.Info("pose worker spawned", "command", w.cfg.Command, "pid", cmd.Process.Pid)

	w.attach(stdin, stdout)

	w.wg.Add(2)
	go w.logStderr(stderr)
	go w.waitProcess(ctx)
	return nil
}

// attach wires the message streams and starts the response reader.
func (w *Worker) attach(stdin io.WriteCloser, stdout io.Reader) {
	w.stdin = stdin
	w.results = make(chan response, 4)
	w.active.Store(true)
	w.wg.Add(1)
	go w.readResults(stdout)
}

// Extract sends one frame and waits for its landmarks.
func (w *Worker) Extract(ctx context.Context, img Image) (*Pose, error) {
	if !w.active.Load() {
		return nil, ErrWorkerStopped
	}
	w.reqMu.Lock()
	defer w.reqMu.Unlock()

	w.seq++
	seq := w.seq
	w.requests.Add(1)

	ctx, cancel := context.WithTimeout(ctx, w.cfg.Timeout)
	defer cancel()

	if err := w.send(ctx, request{FrameData: img.Data, Width: img.Width, Height: img.Height, Seq: seq}); err != nil {
		w.failures.Add(1)
		return nil, err
	}

	for {
		select {
		case <-ctx.Done():
			w.failures.Add(1)
			return nil, fmt.Errorf("waiting for landmarks (seq %d): %w", seq, ctx.Err())
		case resp, ok := <-w.results:
			if !ok {
				w.failures.Add(1)
				return nil, ErrWorkerStopped
			}
			if resp.Seq != seq {
				// Late answer to a request that already timed out.
				w.discarded.Add(1)
				continue
			}
			if resp.Error != "" {
				w.failures.Add(1)
				return nil, fmt.Errorf("pose worker: %s", resp.Error)
			}
			if !resp.Detected {
				return nil, nil
			}
			p, err := FromRows(resp.Landmarks)
			if err != nil {
				w.failures.Add(1)
				return nil, err
			}
			w.detected.Add(1)
			return p, nil
		}
	}
}

// send writes a framed request, giving up when ctx expires. A write that
// outlives ctx keeps writeMu so the next request cannot interleave with it.
func (w *Worker) send(ctx context.Context, req request) error {
	data, err := msgpack.Marshal(&req)
	if err != nil {
		return fmt.Errorf("marshaling pose request: %w", err)
	}
	done := make(chan error, 1)
	go func() {
		w.writeMu.Lock()
		defer w.writeMu.Unlock()
		done <- writeFrame(w.stdin, data)
	}()
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("writing to pose worker: %w", err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("pose worker write timeout: %w", ctx.Err())
	}
}

func (w *Worker) readResults(r io.Reader) {
	defer w.wg.Done()
	defer close(w.results)
	defer w.active.Store(false)

	for {
		data, err := readFrame(r)
		if err != nil {
			if errors.Is(err, io.EOF) {
				w.log.Debug("pose worker stdout closed")
			} else {
				w.log.Error("reading from pose worker", "error", err)
			}
			return
		}
		var resp response
		if err := msgpack.Unmarshal(data, &resp); err != nil {
			w.log.Error("decoding pose worker response", "error", err, "bytes", len(data))
			continue
		}
		w.results <- resp
	}
}

func (w *Worker) logStderr(r io.Reader) {
	defer w.wg.Done()
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.Contains(line, "[ERROR]"), strings.Contains(line, "[CRITICAL]"):
			w.log.Error("pose worker", "line", line)
		case strings.Contains(line, "[WARNING]"), strings.Contains(line, "[WARN]"):
			w.log.Warn("pose worker", "line", line)
		default:
			w.log.Debug("pose worker", "line", line)
		}
	}
}

func (w *Worker) waitProcess(ctx context.Context) {
	defer w.wg.Done()
	err := w.cmd.Wait()
	w.active.Store(false)
	if err != nil && ctx.Err() == nil {
		w.log.Error("pose worker exited", "error", err)
		return
	}
	w.log.Debug("pose worker exited")
}

// Close stops the worker process and waits for its goroutines.
func (w *Worker) Close() error {
	w.active.Store(false)
	if w.stdin != nil {
		_ = w.stdin.Close()
	}
	if w.cancel == nil {
		w.wg.Wait()
		return nil
	}
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		w.log.Warn("pose worker did not exit, killing")
		w.cancel()
		<-done
	}
	w.cancel()
	return nil
}

// Stats returns a snapshot of the request counters.
func (w *Worker) Stats() WorkerStats {
	return WorkerStats{
		Requests:  w.requests.Load(),
		Detected:  w.detected.Load(),
		Failures:  w.failures.Load(),
		Discarded: w.discarded.Load(),
	}
}

func writeFrame(wr io.Writer, data []byte) error {
	var prefix [4]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(data)))
	if _, err := wr.Write(prefix[:]); err != nil {
		return fmt.Errorf("writing length prefix: %w", err)
	}
	if _, err := wr.Write(data); err != nil {
		return fmt.Errorf("writing payload: %w", err)
	}
	return nil
}

func readFrame(r io.Reader) ([]byte, error) {
	var prefix [4]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(prefix[:])
	if n > maxMessageSize {
		return nil, fmt.Errorf("message of %d bytes exceeds limit", n)
	}
	data := make([]byte, n)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, fmt.Errorf("reading payload: %w", err)
	}
	return data, nil
}
