// Package report summarises how faithfully a replay run reproduced the
// captured timing, from the controller's per-message scheduling-error
// samples.
package report

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/gonum/stat"
)

// Summary describes the scheduling-error distribution of one run. Errors
// are actual emission instant minus target; positive means late.
type Summary struct {
	Count  int
	Mean   time.Duration
	StdDev time.Duration
	Max    time.Duration
	P95    time.Duration
}

// Summarize computes distribution statistics over the samples. An empty
// input yields a zero Summary.
func Summarize(samples []time.Duration) Summary {
	if len(samples) == 0 {
		return Summary{}
	}

	xs := make([]float64, len(samples))
	max := samples[0]
	for i, d := range samples {
		xs[i] = float64(d)
		if d > max {
			max = d
		}
	}

	mean, std := stat.MeanStdDev(xs, nil)
	if len(samples) == 1 {
		std = 0
	}

	sorted := make([]float64, len(xs))
	copy(sorted, xs)
	sort.Float64s(sorted)
	p95 := stat.Quantile(0.95, stat.Empirical, sorted, nil)

	return Summary{
		Count:  len(samples),
		Mean:   time.Duration(mean),
		StdDev: time.Duration(std),
		Max:    max,
		P95:    time.Duration(p95),
	}
}

// String renders a one-line summary for the CLI.
func (s Summary) String() string {
	if s.Count == 0 {
		return "no timing samples"
	}
	return fmt.Sprintf("timing error over %d messages: mean=%s stddev=%s p95=%s max=%s",
		s.Count, s.Mean.Round(time.Microsecond), s.StdDev.Round(time.Microsecond),
		s.P95.Round(time.Microsecond), s.Max.Round(time.Microsecond))
}

// WriteHTML renders the per-message scheduling error as an HTML line chart
// so timing fidelity can be eyeballed against the pacing tolerance.
func WriteHTML(path, title string, samples []time.Duration) error {
	summary := Summarize(samples)

	x := make([]int, len(samples))
	y := make([]opts.LineData, len(samples))
	for i, d := range samples {
		x[i] = i
		y[i] = opts.LineData{Value: float64(d) / float64(time.Millisecond)}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle: "Replay timing",
			Width:     "1200px",
			Height:    "500px",
		}),
		charts.WithTitleOpts(opts.Title{
			Title:    title,
			Subtitle: summary.String(),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "scheduling error (ms)"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "message"}),
	)
	line.SetXAxis(x)
	line.AddSeries("scheduling error", y)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report %s: %w", path, err)
	}
	defer f.Close()

	if err := line.Render(f); err != nil {
		return fmt.Errorf("failed to render report: %w", err)
	}
	return nil
}
