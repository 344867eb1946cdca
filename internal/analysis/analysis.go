// Package analysis trains and evaluates a pose classifier from exported
// landmark rows and reports the metrics and chart data shown to users.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/claude/formreps/internal/exercise"
	"github.com/claude/formreps/internal/export"
)

// ErrNotEnoughClasses is returned when the data holds fewer than two
// classes.
var ErrNotEnoughClasses = errors.New("at least 2 classes are required")

var modelNames = map[exercise.ID]string{
	exercise.Squats:        "sentadilla_model.msgpack",
	exercise.Pushups:       "flexiones_model.msgpack",
	exercise.Deadlift:      "peso_muerto_model.msgpack",
	exercise.ShoulderPress: "press_hombro_model.msgpack",
}

// ModelFileName returns the artifact file name for id.
func ModelFileName(id exercise.ID) (string, error) {
	name, ok := modelNames[id]
	if !ok {
		return "", fmt.Errorf("%w: %q", exercise.ErrUnknownExercise, id)
	}
	return name, nil
}

// Options configures one training run.
type Options struct {
	CSVPath   string
	ModelPath string // skipped when empty
	Seed      uint64
	TestRatio float64 // default 0.3
	Title     string  // derived from CSVPath when empty
}

// Metrics are support-weighted averages over the test set.
type Metrics struct {
	Accuracy  float64 `json:"accuracy"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1Score   float64 `json:"f1_score"`
}

// RepsChart compares correctly classified repetitions against the rest.
type RepsChart struct {
	Labels     []string `json:"labels"`
	Values     []int    `json:"values"`
	ChartTitle string   `json:"chart_title"`
}

// ConfusionMatrix is indexed [true][predicted].
type ConfusionMatrix struct {
	Labels           []string `json:"labels"`
	PredictionLabels []string `json:"prediction_labels"`
	Matrix           [][]int  `json:"matrix"`
	ChartTitle       string   `json:"chart_title"`
}

// ROC is a receiver operating characteristic curve.
type ROC struct {
	FPR        []float64 `json:"fpr"`
	TPR        []float64 `json:"tpr"`
	AUC        float64   `json:"auc"`
	ChartTitle string    `json:"chart_title"`
}

// PR is a precision-recall curve.
type PR struct {
	Recall     []float64 `json:"recall"`
	Precision  []float64 `json:"precision"`
	ChartTitle string    `json:"chart_title"`
}

// ReportRow is one line of the classification report.
type ReportRow struct {
	Class     string  `json:"Clase"`
	Precision float64 `json:"Precision"`
	Recall    float64 `json:"Recall"`
	F1Score   float64 `json:"F1-Score"`
	Support   int     `json:"Soporte"`
}

// Report is a per-class table followed by macro and weighted averages.
type Report struct {
	Headers []string    `json:"headers"`
	Data    []ReportRow `json:"data"`
}

// Result is everything a training run reports.
type Result struct {
	Metrics             Metrics            `json:"metrics"`
	ChartDataReps       RepsChart          `json:"chart_data_reps"`
	ConfusionMatrixData ConfusionMatrix    `json:"confusion_matrix_data"`
	ROCData             ROC                `json:"roc_data"`
	PRData              PR                 `json:"pr_data"`
	Report              Report             `json:"classification_report_data"`
	BestModel           string             `json:"best_model"`
	Candidates          map[string]float64 `json:"candidate_accuracy"`
	TrainSize           int                `json:"train_size"`
	TestSize            int                `json:"test_size"`
}

// Runner trains models for the exercises' exported data.
type Runner struct {
	log *slog.Logger
}

// NewRunner returns a Runner.
func NewRunner(log *slog.Logger) *Runner {
	return &Runner{log: log}
}

// Run loads opts.CSVPath, trains every candidate, keeps the most accurate
// one and evaluates it on the held-out split.
func (r *Runner) Run(ctx context.Context, opts Options) (*Result, error) {
	if opts.TestRatio <= 0 || opts.TestRatio >= 1 {
		opts.TestRatio = 0.3
	}
	if opts.Title == "" {
		opts.Title = TitleFromPath(opts.CSVPath)
	}

	rows, err := export.ReadRows(opts.CSVPath)
	if err != nil {
		return nil, err
	}
	data := newDataset(rows)
	if len(data.Classes) < 2 {
		return nil, fmt.Errorf("%s: %w (found %d)", opts.CSVPath, ErrNotEnoughClasses, len(data.Classes))
	}
	trainSet, testSet, err := data.split(opts.TestRatio, opts.Seed)
	if err != nil {
		return nil, err
	}
	r.log.Info("dataset loaded", "path", opts.CSVPath, "rows", len(rows),
		"classes", len(data.Classes), "train", len(trainSet.Y), "test", len(testSet.Y))

	var best *Model
	bestAcc := -1.0
	candidates := map[string]float64{}
	for _, algo := range []string{AlgoNearestCentroid, AlgoKNN} {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		m, err := train(algo, trainSet)
		if err != nil {
			r.log.Warn("training candidate", "algorithm", algo, "error", err)
			continue
		}
		acc := accuracy(confusion(testSet.Y, predictAll(m, testSet.X), len(data.Classes)))
		candidates[algo] = acc
		r.log.Info("candidate evaluated", "algorithm", algo, "accuracy", acc)
		if acc > bestAcc {
			best, bestAcc = m, acc
		}
	}
	if best == nil {
		return nil, fmt.Errorf("no candidate model could be trained")
	}

	if opts.ModelPath != "" {
		if err := best.Save(opts.ModelPath); err != nil {
			return nil, err
		}
		r.log.Info("model saved", "algorithm", best.Algorithm, "path", opts.ModelPath)
	}

	res := evaluate(best, testSet, opts.Title)
	res.Candidates = candidates
	res.TrainSize = len(trainSet.Y)
	res.TestSize = len(testSet.Y)
	return res, nil
}

func predictAll(m *Model, x [][]float64) []int {
	out := make([]int, len(x))
	for i, v := range x {
		out[i] = m.Predict(v)
	}
	return out
}

func evaluate(m *Model, test dataset, title string) *Result {
	labels := test.Classes
	yPred := predictAll(m, test.X)
	cm := confusion(test.Y, yPred, len(labels))
	stats := perClass(cm)
	macro, weighted := averages(stats)

	res := &Result{
		Metrics: Metrics{
			Accuracy:  accuracy(cm),
			Precision: weighted.Precision,
			Recall:    weighted.Recall,
			F1Score:   weighted.F1,
		},
		BestModel: m.Algorithm,
	}

	res.ChartDataReps = repsChart(labels, test.Y, yPred, res.Metrics.Accuracy, title)

	res.ConfusionMatrixData = ConfusionMatrix{Matrix: cm, ChartTitle: "Matriz de Confusion"}
	for _, l := range labels {
		res.ConfusionMatrixData.Labels = append(res.ConfusionMatrixData.Labels, "Real "+l)
		res.ConfusionMatrixData.PredictionLabels = append(res.ConfusionMatrixData.PredictionLabels, "Pred. "+l)
	}

	res.ROCData, res.PRData = curves(m, test)

	res.Report = Report{Headers: []string{"Clase", "Precision", "Recall", "F1-Score", "Soporte"}}
	for c, s := range stats {
		res.Report.Data = append(res.Report.Data, reportRow(labels[c], s))
	}
	res.Report.Data = append(res.Report.Data,
		reportRow("Promedio Macro", macro),
		reportRow("Promedio Ponderado", weighted))
	return res
}

func reportRow(name string, s classStats) ReportRow {
	return ReportRow{Class: name, Precision: s.Precision, Recall: s.Recall, F1Score: s.F1, Support: s.Support}
}

// repsChart counts true positives of the first class whose name contains
// "correct" against every prediction of another class. Without such a
// class it splits the test set by accuracy.
func repsChart(labels []string, yTrue, yPred []int, acc float64, title string) RepsChart {
	chart := RepsChart{
		Labels:     []string{"Repeticiones Correctas", "Repeticiones Incorrectas"},
		ChartTitle: "Rendimiento de Repeticiones para " + title,
	}
	correct := -1
	for i, l := range labels {
		if strings.Contains(strings.ToLower(l), "correct") {
			correct = i
			break
		}
	}
	if correct < 0 {
		n := int(acc * float64(len(yTrue)))
		chart.Values = []int{n, len(yTrue) - n}
		return chart
	}
	var good, bad int
	for i := range yTrue {
		if yTrue[i] == correct && yPred[i] == correct {
			good++
		}
		if yPred[i] != correct {
			bad++
		}
	}
	chart.Values = []int{good, bad}
	return chart
}

// curves computes ROC and PR for one positive class: the second label of a
// binary problem, or the first label one-vs-rest otherwise.
func curves(m *Model, test dataset) (ROC, PR) {
	pos := 0
	if len(test.Classes) == 2 {
		pos = 1
	}
	name := test.Classes[pos]
	scores := make([]float64, len(test.X))
	positive := make([]bool, len(test.X))
	for i, v := range test.X {
		scores[i] = m.Scores(v)[pos]
		positive[i] = test.Y[i] == pos
	}

	roc := ROC{FPR: []float64{0, 1}, TPR: []float64{0, 1}, AUC: 0.5, ChartTitle: "Curva ROC y AUC (No disponible)"}
	pr := PR{Recall: []float64{0, 1}, Precision: []float64{1, 0}, ChartTitle: "Curva Precision-Recall (No disponible)"}

	if fpr, tpr, auc, ok := rocCurve(scores, positive); ok {
		roc = ROC{FPR: fpr, TPR: tpr, AUC: round4(auc)}
		if len(test.Classes) == 2 {
			roc.ChartTitle = fmt.Sprintf("Curva ROC para %s vs %s", test.Classes[1], test.Classes[0])
		} else {
			roc.ChartTitle = fmt.Sprintf("Curva ROC (OvR) para '%s'", name)
		}
	}
	if recall, precision, ok := prCurve(scores, positive); ok {
		pr = PR{Recall: recall, Precision: precision}
		if len(test.Classes) == 2 {
			pr.ChartTitle = "Curva Precision-Recall para " + name
		} else {
			pr.ChartTitle = fmt.Sprintf("Curva Precision-Recall (OvR) para '%s'", name)
		}
	}
	return roc, pr
}

// TitleFromPath turns data/coords_peso_muerto.csv into "Peso Muerto".
func TitleFromPath(path string) string {
	base := filepath.Base(path)
	base = strings.TrimPrefix(base, "coords_")
	base = strings.TrimSuffix(base, ".csv")
	base = strings.ReplaceAll(base, "_", " ")
	return cases.Title(language.Spanish).String(base)
}
