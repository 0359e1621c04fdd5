package reports

import (
  "io"

  "github.com/go-echarts/go-echarts/v2/charts"
  "github.com/go-echarts/go-echarts/v2/components"
  "github.com/go-echarts/go-echarts/v2/opts"
)

// RenderChart writes an HTML page with the cumulative reward line and the
// per-run difference bars.
func RenderChart(w io.Writer, runs []RunReward) error {
  labels := make([]string, 0, len(runs))
  cumulative := make([]opts.LineData, 0, len(runs))
  diffs := make([]opts.BarData, 0, len(runs))
  for _, r := range runs {
    labels = append(labels, r.Run.Format(RunLayout))
    cumulative = append(cumulative, opts.LineData{Value: r.Cumulative})
    diffs = append(diffs, opts.BarData{Value: r.Difference})
  }

  line := charts.NewLine()
  line.SetGlobalOptions(
    charts.WithTitleOpts(opts.Title{Title: "Cumulative Reward Over Time"}),
    charts.WithInitializationOpts(opts.Initialization{Theme: "shine"}),
  )
  line.SetXAxis(labels).AddSeries("Cumulative Reward", cumulative)

  bar := charts.NewBar()
  bar.SetGlobalOptions(
    charts.WithTitleOpts(opts.Title{Title: "Difference in Cumulative Reward Between Runs"}),
    charts.WithInitializationOpts(opts.Initialization{Theme: "shine"}),
  )
  bar.SetXAxis(labels).AddSeries("Difference from Previous Run", diffs)

  page := components.NewPage()
  page.AddCharts(line, bar)
  return page.Render(w)
}
