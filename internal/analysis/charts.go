package analysis

import (
	"bytes"
	"fmt"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// Charts renders the result as one HTML page: repetition bars, the
// confusion heatmap, the ROC and PR curves and the report table as a bar
// chart of per-class F1.
func Charts(res *Result) ([]byte, error) {
	page := components.NewPage()
	page.PageTitle = res.ChartDataReps.ChartTitle
	page.AddCharts(
		repsBar(res.ChartDataReps),
		confusionHeatMap(res.ConfusionMatrixData),
		curveLine(res.ROCData.ChartTitle, fmt.Sprintf("AUC = %.4f", res.ROCData.AUC), "FPR", "TPR", res.ROCData.FPR, res.ROCData.TPR),
		curveLine(res.PRData.ChartTitle, "", "Recall", "Precision", res.PRData.Recall, res.PRData.Precision),
		reportBar(res.Report),
	)

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		return nil, fmt.Errorf("rendering charts: %w", err)
	}
	return buf.Bytes(), nil
}

func repsBar(c RepsChart) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "900px", Height: "400px"}),
		charts.WithTitleOpts(opts.Title{Title: c.ChartTitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	data := make([]opts.BarData, len(c.Values))
	for i, v := range c.Values {
		data[i] = opts.BarData{Value: v}
	}
	bar.SetXAxis(c.Labels).
		AddSeries("repeticiones", data,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)
	return bar
}

func confusionHeatMap(cm ConfusionMatrix) *charts.HeatMap {
	hm := charts.NewHeatMap()
	maxCount := 0
	data := make([]opts.HeatMapData, 0, len(cm.Matrix)*len(cm.Matrix))
	for i, row := range cm.Matrix {
		for j, v := range row {
			maxCount = max(maxCount, v)
			data = append(data, opts.HeatMapData{Value: [3]interface{}{j, i, v}})
		}
	}
	hm.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "900px", Height: "500px"}),
		charts.WithTitleOpts(opts.Title{Title: cm.ChartTitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Type: "category", Data: cm.PredictionLabels}),
		charts.WithYAxisOpts(opts.YAxis{Type: "category", Data: cm.Labels}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        0,
			Max:        float32(maxCount),
			InRange:    &opts.VisualMapInRange{Color: []string{"#f7fbff", "#6baed6", "#08306b"}},
		}),
	)
	hm.AddSeries("conteo", data, charts.WithLabelOpts(opts.Label{Show: opts.Bool(true)}))
	return hm
}

func curveLine(title, subtitle, xName, yName string, xs, ys []float64) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "900px", Height: "400px"}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Type: "value", Name: xName, Min: 0, Max: 1}),
		charts.WithYAxisOpts(opts.YAxis{Type: "value", Name: yName, Min: 0, Max: 1}),
	)
	data := make([]opts.LineData, len(xs))
	for i := range xs {
		data[i] = opts.LineData{Value: []interface{}{xs[i], ys[i]}}
	}
	line.AddSeries(yName, data)
	return line
}

func reportBar(r Report) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "900px", Height: "400px"}),
		charts.WithTitleOpts(opts.Title{Title: "Reporte de Clasificacion"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	)
	names := make([]string, len(r.Data))
	precision := make([]opts.BarData, len(r.Data))
	recall := make([]opts.BarData, len(r.Data))
	f1 := make([]opts.BarData, len(r.Data))
	for i, row := range r.Data {
		names[i] = row.Class
		precision[i] = opts.BarData{Value: round4(row.Precision)}
		recall[i] = opts.BarData{Value: round4(row.Recall)}
		f1[i] = opts.BarData{Value: round4(row.F1Score)}
	}
	bar.SetXAxis(names).
		AddSeries("Precision", precision).
		AddSeries("Recall", recall).
		AddSeries("F1-Score", f1)
	return bar
}
