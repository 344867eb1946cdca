// Package export writes labelled landmark rows to per-exercise CSV files,
// the training input of the analysis job.
package export

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/claude/formreps/internal/exercise"
	"github.com/claude/formreps/internal/pose"
)

// Columns is the number of columns in a row: the class plus four values
// per landmark.
const Columns = 1 + pose.NumLandmarks*pose.FeaturesPerLandmark

var fileNames = map[exercise.ID]string{
	exercise.Squats:        "coords_sentadilla.csv",
	exercise.Pushups:       "coords_flexiones.csv",
	exercise.Deadlift:      "coords_peso_muerto.csv",
	exercise.ShoulderPress: "coords_press_hombro.csv",
}

// FileName returns the CSV file name used for id.
func FileName(id exercise.ID) (string, error) {
	name, ok := fileNames[id]
	if !ok {
		return "", fmt.Errorf("%w: %q", exercise.ErrUnknownExercise, id)
	}
	return name, nil
}

// Header returns class,x1,y1,z1,v1,...,x33,y33,z33,v33.
func Header() []string {
	h := make([]string, 0, Columns)
	h = append(h, "class")
	for i := 1; i <= pose.NumLandmarks; i++ {
		n := strconv.Itoa(i)
		h = append(h, "x"+n, "y"+n, "z"+n, "v"+n)
	}
	return h
}

// CSVRecorder writes one file per session into Dir. Begin truncates the
// exercise's file, so each file holds the rows of the latest session.
type CSVRecorder struct {
	Dir string

	mu sync.Mutex
	f  *os.File
	w  *csv.Writer
}

// NewCSVRecorder returns a recorder writing into dir.
func NewCSVRecorder(dir string) *CSVRecorder {
	return &CSVRecorder{Dir: dir}
}

// Path returns the file path rows for id are written to.
func (r *CSVRecorder) Path(id exercise.ID) (string, error) {
	name, err := FileName(id)
	if err != nil {
		return "", err
	}
	return filepath.Join(r.Dir, name), nil
}

// Begin starts a new file for id and writes the header.
func (r *CSVRecorder) Begin(id exercise.ID) error {
	path, err := r.Path(id)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.closeLocked(); err != nil {
		return err
	}
	if err := os.MkdirAll(r.Dir, 0o755); err != nil {
		return fmt.Errorf("creating export dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	w := csv.NewWriter(f)
	if err := w.Write(Header()); err != nil {
		f.Close()
		return fmt.Errorf("writing header: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return fmt.Errorf("writing header: %w", err)
	}
	r.f, r.w = f, w
	return nil
}

// Record appends one row. It is a no-op between End and the next Begin.
func (r *CSVRecorder) Record(label string, features []float64) error {
	if len(features) != Columns-1 {
		return fmt.Errorf("row has %d features, want %d", len(features), Columns-1)
	}
	rec := make([]string, 0, Columns)
	rec = append(rec, label)
	for _, v := range features {
		rec = append(rec, strconv.FormatFloat(v, 'g', -1, 64))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.w == nil {
		return nil
	}
	if err := r.w.Write(rec); err != nil {
		return fmt.Errorf("writing row: %w", err)
	}
	r.w.Flush()
	return r.w.Error()
}

// End flushes and closes the current file.
func (r *CSVRecorder) End() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closeLocked()
}

func (r *CSVRecorder) closeLocked() error {
	if r.f == nil {
		return nil
	}
	r.w.Flush()
	werr := r.w.Error()
	cerr := r.f.Close()
	r.f, r.w = nil, nil
	return errors.Join(werr, cerr)
}

// Row is one labelled landmark sample.
type Row struct {
	Class    string
	Features []float64
}

// ReadRows loads every row of an exported file, checking the header and
// each row's width.
func ReadRows(path string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads rows in the exported layout from r.
func Parse(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	if len(header) != Columns || header[0] != "class" {
		return nil, fmt.Errorf("unexpected header: %d columns, first %q", len(header), header[0])
	}

	var rows []Row
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			return rows, nil
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if len(rec) != Columns {
			return nil, fmt.Errorf("line %d: %d columns, want %d", line, len(rec), Columns)
		}
		row := Row{Class: rec[0], Features: make([]float64, Columns-1)}
		for i, s := range rec[1:] {
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, fmt.Errorf("line %d column %s: %w", line, header[i+1], err)
			}
			row.Features[i] = v
		}
		rows = append(rows, row)
	}
}
