package analysis

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/claude/formreps/internal/export"
)

// dataset is a labelled feature matrix with classes indexed in sorted order.
type dataset struct {
	X       [][]float64
	Y       []int
	Classes []string
}

func newDataset(rows []export.Row) dataset {
	seen := map[string]bool{}
	for _, r := range rows {
		seen[r.Class] = true
	}
	classes := make([]string, 0, len(seen))
	for c := range seen {
		classes = append(classes, c)
	}
	sort.Strings(classes)
	index := make(map[string]int, len(classes))
	for i, c := range classes {
		index[c] = i
	}

	d := dataset{Classes: classes, X: make([][]float64, len(rows)), Y: make([]int, len(rows))}
	for i, r := range rows {
		d.X[i] = r.Features
		d.Y[i] = index[r.Class]
	}
	return d
}

func (d dataset) subset(idx []int) dataset {
	s := dataset{Classes: d.Classes, X: make([][]float64, len(idx)), Y: make([]int, len(idx))}
	for i, j := range idx {
		s.X[i] = d.X[j]
		s.Y[i] = d.Y[j]
	}
	return s
}

// split holds out ratio of every class for testing, shuffling with seed so
// runs are reproducible.
func (d dataset) split(ratio float64, seed uint64) (train, test dataset, err error) {
	byClass := make([][]int, len(d.Classes))
	for i, y := range d.Y {
		byClass[y] = append(byClass[y], i)
	}
	rng := rand.New(rand.NewPCG(seed, seed))

	var trainIdx, testIdx []int
	for c, idx := range byClass {
		if len(idx) < 2 {
			return train, test, fmt.Errorf("class %q has %d rows, need at least 2", d.Classes[c], len(idx))
		}
		rng.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })
		n := int(math.Round(ratio * float64(len(idx))))
		n = max(1, min(n, len(idx)-1))
		testIdx = append(testIdx, idx[:n]...)
		trainIdx = append(trainIdx, idx[n:]...)
	}
	sort.Ints(trainIdx)
	sort.Ints(testIdx)
	return d.subset(trainIdx), d.subset(testIdx), nil
}

// Scaler standardises features to zero mean and unit variance using the
// training statistics.
type Scaler struct {
	Mean []float64 `msgpack:"mean"`
	Std  []float64 `msgpack:"std"`
}

func fitScaler(x [][]float64) Scaler {
	if len(x) == 0 {
		return Scaler{}
	}
	cols := len(x[0])
	s := Scaler{Mean: make([]float64, cols), Std: make([]float64, cols)}
	col := make([]float64, len(x))
	for j := 0; j < cols; j++ {
		for i := range x {
			col[i] = x[i][j]
		}
		mean, std := stat.PopMeanStdDev(col, nil)
		if std == 0 || math.IsNaN(std) {
			std = 1
		}
		s.Mean[j], s.Std[j] = mean, std
	}
	return s
}

// Transform returns a scaled copy of v.
func (s Scaler) Transform(v []float64) []float64 {
	out := make([]float64, len(v))
	for j, x := range v {
		out[j] = (x - s.Mean[j]) / s.Std[j]
	}
	return out
}

func (s Scaler) transformAll(x [][]float64) [][]float64 {
	out := make([][]float64, len(x))
	for i, v := range x {
		out[i] = s.Transform(v)
	}
	return out
}
