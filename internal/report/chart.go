package report

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/Sumatoshi-tech/ordmap/internal/workload"
)

const (
	chartWidth  = "100%"
	chartHeight = "480px"

	colorHeight = "#5470c6"
	colorBound  = "#ee6666"
	colorSize   = "#91cc75"
)

// ErrNoSamples is returned when a result carries nothing to plot.
var ErrNoSamples = errors.New("workload result has no samples")

// RenderChart writes an HTML page with the tree height against its
// theoretical bound and the element count over the run.
func RenderChart(res *workload.Result, w io.Writer) error {
	if len(res.Samples) == 0 {
		return ErrNoSamples
	}

	labels := make([]string, len(res.Samples))
	heights := make([]opts.LineData, len(res.Samples))
	bounds := make([]opts.LineData, len(res.Samples))
	sizes := make([]opts.LineData, len(res.Samples))

	for idx, sample := range res.Samples {
		labels[idx] = strconv.Itoa(sample.Op)
		heights[idx] = opts.LineData{Value: sample.Height}
		bounds[idx] = opts.LineData{Value: fmt.Sprintf("%.2f", HeightBound(sample.Size))}
		sizes[idx] = opts.LineData{Value: sample.Size}
	}

	heightChart := newLine("Tree height", "Height against 2*log2(n+1), run "+res.RunID, "height")
	heightChart.SetXAxis(labels).
		AddSeries("height", heights, seriesColor(colorHeight)...).
		AddSeries("bound", bounds, seriesColor(colorBound)...)

	sizeChart := newLine("Tree size", "Live elements after each sampled operation", "elements")
	sizeChart.SetXAxis(labels).
		AddSeries("size", sizes, append(seriesColor(colorSize),
			charts.WithAreaStyleOpts(opts.AreaStyle{Opacity: opts.Float(0.2)}))...)

	page := components.NewPage()
	page.PageTitle = "ordmap workload " + res.RunID
	page.AddCharts(heightChart, sizeChart)

	err := page.Render(w)
	if err != nil {
		return fmt.Errorf("render chart: %w", err)
	}

	return nil
}

// WriteChart renders the chart to path.
func WriteChart(res *workload.Result, path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create chart file: %w", err)
	}

	err = RenderChart(res, file)
	if err != nil {
		_ = file.Close()

		return err
	}

	err = file.Close()
	if err != nil {
		return fmt.Errorf("close chart file: %w", err)
	}

	return nil
}

func newLine(title, subtitle, yName string) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: chartWidth, Height: chartHeight}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: subtitle, Left: "center"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Top: "12%", Left: "center"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", Start: 0, End: 100}, opts.DataZoom{Type: "inside"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "operations"}),
		charts.WithYAxisOpts(opts.YAxis{Name: yName}),
	)

	return line
}

func seriesColor(hex string) []charts.SeriesOpts {
	return []charts.SeriesOpts{
		charts.WithItemStyleOpts(opts.ItemStyle{Color: hex}),
		charts.WithLineStyleOpts(opts.LineStyle{Color: hex}),
	}
}
