package analysis

import (
	"bytes"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/vmihailenco/msgpack/v5"
	"gonum.org/v1/gonum/floats"
)

// Candidate algorithms.
const (
	AlgoNearestCentroid = "nearest_centroid"
	AlgoKNN             = "knn"
)

const defaultK = 5

// Model is a trained classifier together with its scaler. It is the
// artifact written to disk.
type Model struct {
	Algorithm string   `msgpack:"algorithm"`
	Classes   []string `msgpack:"classes"`
	Scaler    Scaler   `msgpack:"scaler"`

	Centroids [][]float64 `msgpack:"centroids,omitempty"`

	K      int         `msgpack:"k,omitempty"`
	Points [][]float64 `msgpack:"points,omitempty"`
	Labels []int       `msgpack:"labels,omitempty"`
}

func train(algo string, d dataset) (*Model, error) {
	sc := fitScaler(d.X)
	x := sc.transformAll(d.X)
	m := &Model{Algorithm: algo, Classes: d.Classes, Scaler: sc}

	switch algo {
	case AlgoNearestCentroid:
		m.Centroids = make([][]float64, len(d.Classes))
		counts := make([]float64, len(d.Classes))
		for i, v := range x {
			c := d.Y[i]
			if m.Centroids[c] == nil {
				m.Centroids[c] = make([]float64, len(v))
			}
			floats.Add(m.Centroids[c], v)
			counts[c]++
		}
		for c := range m.Centroids {
			if counts[c] == 0 {
				return nil, fmt.Errorf("class %q has no training rows", d.Classes[c])
			}
			floats.Scale(1/counts[c], m.Centroids[c])
		}
	case AlgoKNN:
		m.K = min(defaultK, len(x))
		m.Points = x
		m.Labels = d.Y
	default:
		return nil, fmt.Errorf("unknown algorithm %q", algo)
	}
	return m, nil
}

// Scores returns one score per class for raw features v. Scores are
// non-negative and sum to 1.
func (m *Model) Scores(v []float64) []float64 {
	x := m.Scaler.Transform(v)
	scores := make([]float64, len(m.Classes))
	switch m.Algorithm {
	case AlgoNearestCentroid:
		// Softmax over negative distances.
		dists := make([]float64, len(m.Centroids))
		for c, centroid := range m.Centroids {
			dists[c] = floats.Distance(x, centroid, 2)
		}
		lo := floats.Min(dists)
		for c, d := range dists {
			scores[c] = math.Exp(lo - d)
		}
	case AlgoKNN:
		type neighbour struct {
			dist  float64
			label int
		}
		ns := make([]neighbour, len(m.Points))
		for i, p := range m.Points {
			ns[i] = neighbour{floats.Distance(x, p, 2), m.Labels[i]}
		}
		sort.SliceStable(ns, func(i, j int) bool { return ns[i].dist < ns[j].dist })
		for _, n := range ns[:m.K] {
			scores[n.label]++
		}
	}
	if sum := floats.Sum(scores); sum > 0 {
		floats.Scale(1/sum, scores)
	}
	return scores
}

// Predict returns the index of the highest scoring class.
func (m *Model) Predict(v []float64) int {
	return floats.MaxIdx(m.Scores(v))
}

// PredictClass returns the name of the predicted class.
func (m *Model) PredictClass(v []float64) string {
	return m.Classes[m.Predict(v)]
}

// Save writes the model as msgpack.
func (m *Model) Save(path string) error {
	var buf bytes.Buffer
	if err := msgpack.NewEncoder(&buf).Encode(m); err != nil {
		return fmt.Errorf("encoding model: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating model dir: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("writing model: %w", err)
	}
	return nil
}

// LoadModel reads a model written by Save.
func LoadModel(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading model: %w", err)
	}
	var m Model
	if err := msgpack.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decoding model: %w", err)
	}
	return &m, nil
}
