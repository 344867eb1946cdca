package analysis

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/stat"
)

// confusion returns counts[true][predicted].
func confusion(yTrue, yPred []int, n int) [][]int {
	m := make([][]int, n)
	for i := range m {
		m[i] = make([]int, n)
	}
	for i := range yTrue {
		m[yTrue[i]][yPred[i]]++
	}
	return m
}

// classStats holds per-class precision, recall and F1 from a confusion
// matrix. Undefined ratios are 0.
type classStats struct {
	Precision, Recall, F1 float64
	Support               int
}

func perClass(cm [][]int) []classStats {
	out := make([]classStats, len(cm))
	for c := range cm {
		tp := cm[c][c]
		var predicted, actual int
		for k := range cm {
			predicted += cm[k][c]
			actual += cm[c][k]
		}
		s := classStats{Support: actual}
		if predicted > 0 {
			s.Precision = float64(tp) / float64(predicted)
		}
		if actual > 0 {
			s.Recall = float64(tp) / float64(actual)
		}
		if s.Precision+s.Recall > 0 {
			s.F1 = 2 * s.Precision * s.Recall / (s.Precision + s.Recall)
		}
		out[c] = s
	}
	return out
}

func accuracy(cm [][]int) float64 {
	var correct, total int
	for i := range cm {
		for j, v := range cm[i] {
			total += v
			if i == j {
				correct += v
			}
		}
	}
	if total == 0 {
		return 0
	}
	return float64(correct) / float64(total)
}

// averages returns the macro and support-weighted means of stats.
func averages(stats []classStats) (macro, weighted classStats) {
	var total int
	for _, s := range stats {
		total += s.Support
	}
	n := float64(len(stats))
	for _, s := range stats {
		macro.Precision += s.Precision / n
		macro.Recall += s.Recall / n
		macro.F1 += s.F1 / n
		if total > 0 {
			w := float64(s.Support) / float64(total)
			weighted.Precision += s.Precision * w
			weighted.Recall += s.Recall * w
			weighted.F1 += s.F1 * w
		}
	}
	macro.Support, weighted.Support = total, total
	return macro, weighted
}

// rocCurve computes the ROC curve of scores against the positive flags,
// ordered by increasing false positive rate, and its area. ok is false when
// the labels hold only one class.
func rocCurve(scores []float64, positive []bool) (fpr, tpr []float64, auc float64, ok bool) {
	if !bothClasses(positive) {
		return nil, nil, 0, false
	}
	y := append([]float64(nil), scores...)
	classes := append([]bool(nil), positive...)
	stat.SortWeightedLabeled(y, classes, nil)
	t, f, _ := stat.ROC(nil, y, classes, nil)

	type point struct{ fpr, tpr float64 }
	pts := make([]point, len(f))
	for i := range f {
		pts[i] = point{f[i], t[i]}
	}
	sort.SliceStable(pts, func(i, j int) bool {
		if pts[i].fpr != pts[j].fpr {
			return pts[i].fpr < pts[j].fpr
		}
		return pts[i].tpr < pts[j].tpr
	})
	fpr = make([]float64, len(pts))
	tpr = make([]float64, len(pts))
	for i, p := range pts {
		fpr[i], tpr[i] = p.fpr, p.tpr
	}
	return fpr, tpr, integrate.Trapezoidal(fpr, tpr), true
}

// prCurve computes precision and recall at every distinct score threshold,
// ordered by increasing threshold and ending at recall 0, precision 1.
func prCurve(scores []float64, positive []bool) (recall, precision []float64, ok bool) {
	if !bothClasses(positive) {
		return nil, nil, false
	}
	idx := make([]int, len(scores))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return scores[idx[a]] > scores[idx[b]] })

	var totalPos int
	for _, p := range positive {
		if p {
			totalPos++
		}
	}

	// Walk thresholds from the highest score down, emitting a point after
	// each run of equal scores.
	var tp, fp int
	for i, j := range idx {
		if positive[j] {
			tp++
		} else {
			fp++
		}
		if i+1 < len(idx) && scores[idx[i+1]] == scores[j] {
			continue
		}
		precision = append(precision, float64(tp)/float64(tp+fp))
		recall = append(recall, float64(tp)/float64(totalPos))
		if tp == totalPos {
			break
		}
	}
	reverse(precision)
	reverse(recall)
	return append(recall, 0), append(precision, 1), true
}

func bothClasses(positive []bool) bool {
	var pos, neg bool
	for _, p := range positive {
		if p {
			pos = true
		} else {
			neg = true
		}
	}
	return pos && neg
}

func reverse(s []float64) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}

func round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}
