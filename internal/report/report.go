// Package report renders workload results for the terminal and as HTML charts.
package report

import (
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/Sumatoshi-tech/ordmap/internal/workload"
	"github.com/Sumatoshi-tech/ordmap/pkg/safeconv"
)

const throughputDigits = 1

// HeightBound is the red-black height limit 2*log2(n+1) for n elements.
func HeightBound(size int) float64 {
	return 2 * math.Log2(float64(size)+1)
}

// Printer writes human-readable summaries.
type Printer struct {
	out  io.Writer
	ok   *color.Color
	fail *color.Color
	note *color.Color
}

// NewPrinter creates a Printer writing to out. Colors are emitted only when
// useColor is set.
func NewPrinter(out io.Writer, useColor bool) *Printer {
	printer := &Printer{
		out:  out,
		ok:   color.New(color.FgGreen, color.Bold),
		fail: color.New(color.FgRed, color.Bold),
		note: color.New(color.FgCyan),
	}

	if !useColor {
		printer.ok.DisableColor()
		printer.fail.DisableColor()
		printer.note.DisableColor()
	}

	return printer
}

// Summary prints the result table followed by a status line.
func (p *Printer) Summary(res *workload.Result) error {
	_, err := fmt.Fprintf(p.out, "%s\n", p.table(res))
	if err != nil {
		return fmt.Errorf("write summary: %w", err)
	}

	_, err = p.ok.Fprintf(p.out, "OK: invariants held across %s checks\n", humanize.Comma(int64(res.Checks)))
	if err != nil {
		return fmt.Errorf("write summary: %w", err)
	}

	return nil
}

// Failure prints a failed run. res may be nil.
func (p *Printer) Failure(res *workload.Result, runErr error) error {
	if res != nil {
		_, err := fmt.Fprintf(p.out, "%s\n", p.table(res))
		if err != nil {
			return fmt.Errorf("write failure: %w", err)
		}
	}

	_, err := p.fail.Fprintf(p.out, "FAILED: %v\n", firstLine(runErr))
	if err != nil {
		return fmt.Errorf("write failure: %w", err)
	}

	var derr *workload.DivergenceError
	if errors.As(runErr, &derr) && derr.Detail != "" {
		_, err = p.note.Fprintf(p.out, "%s\n", derr.Detail)
		if err != nil {
			return fmt.Errorf("write failure: %w", err)
		}
	}

	return nil
}

// Notef prints an informational line.
func (p *Printer) Notef(format string, args ...any) error {
	_, err := p.note.Fprintf(p.out, format+"\n", args...)
	if err != nil {
		return fmt.Errorf("write note: %w", err)
	}

	return nil
}

func (p *Printer) table(res *workload.Result) string {
	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleLight)
	tbl.SetTitle("Workload " + res.RunID)
	tbl.AppendHeader(table.Row{"Metric", "Value"})

	bound := HeightBound(res.FinalSize)

	tbl.AppendRows([]table.Row{
		{"Keys", humanize.Comma(int64(res.Options.Keys))},
		{"Operations", humanize.Comma(int64(res.Options.Operations))},
		{"Seed", res.Options.Seed},
		{"Elapsed", res.Elapsed.Round(time.Microsecond).String()},
		{"Throughput", humanize.CommafWithDigits(res.OpsPerSecond(), throughputDigits) + " ops/s"},
	})
	tbl.AppendSeparator()
	tbl.AppendRows([]table.Row{
		{"Inserted", humanize.Comma(int64(res.Inserts))},
		{"Duplicates", humanize.Comma(int64(res.Duplicates))},
		{"Erased", humanize.Comma(int64(res.Erases))},
		{"Erase misses", humanize.Comma(int64(res.Misses))},
		{"Lookups (hits)", fmt.Sprintf("%s (%s)", humanize.Comma(int64(res.Lookups)), humanize.Comma(int64(res.Hits)))},
		{"Allocation failures", humanize.Comma(int64(res.AllocFailures))},
	})
	tbl.AppendSeparator()
	tbl.AppendRows([]table.Row{
		{"Final size", humanize.Comma(int64(res.FinalSize))},
		{"Final height", fmt.Sprintf("%d (bound %.1f)", res.FinalHeight, bound)},
		{"Rotations", humanize.Comma(safeconv.ClampToInt64(res.Stats.Rotations))},
		{"Recolors", humanize.Comma(safeconv.ClampToInt64(res.Stats.Recolors))},
		{"Insert fix-ups", humanize.Comma(safeconv.ClampToInt64(res.Stats.InsertFixups))},
		{"Erase fix-ups", humanize.Comma(safeconv.ClampToInt64(res.Stats.EraseFixups))},
	})
	tbl.AppendFooter(table.Row{"Checks", humanize.Comma(int64(res.Checks))})

	return tbl.Render()
}

func firstLine(err error) string {
	line, _, _ := strings.Cut(err.Error(), "\n")

	return line
}
