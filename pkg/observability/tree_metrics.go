package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/Sumatoshi-tech/ordmap/pkg/rbtree"
	"github.com/Sumatoshi-tech/ordmap/pkg/safeconv"
)

const (
	metricOperationsTotal   = "ordmap.operations.total"
	metricOperationDuration = "ordmap.operation.duration.seconds"
	metricRotationsTotal    = "ordmap.tree.rotations.total"
	metricRecolorsTotal     = "ordmap.tree.recolors.total"
	metricFixupsTotal       = "ordmap.tree.fixups.total"
	metricTreeSize          = "ordmap.tree.size"
	metricTreeHeight        = "ordmap.tree.height"
	metricViolationsTotal   = "ordmap.invariant.violations.total"

	attrOp      = "op"
	attrOutcome = "outcome"
	attrPhase   = "phase"
	attrKind    = "kind"
)

// Operation outcomes.
const (
	OutcomeHit      = "hit"
	OutcomeMiss     = "miss"
	OutcomeInserted = "inserted"
	OutcomeExisting = "existing"
	OutcomeFailed   = "failed"
)

// Single tree operations take micro- to milliseconds.
var operationBucketBoundaries = []float64{1e-7, 5e-7, 1e-6, 5e-6, 1e-5, 5e-5, 1e-4, 1e-3, 1e-2}

// TreeMetrics holds the OTel instruments describing a tree under a workload.
type TreeMetrics struct {
	operations metric.Int64Counter
	duration   metric.Float64Histogram
	rotations  metric.Int64Counter
	recolors   metric.Int64Counter
	fixups     metric.Int64Counter
	size       metric.Int64Gauge
	height     metric.Int64Gauge
	violations metric.Int64Counter
}

// NewTreeMetrics creates the instruments from the given meter.
func NewTreeMetrics(mt metric.Meter) (*TreeMetrics, error) {
	var (
		tm  TreeMetrics
		err error
	)

	counters := []struct {
		target *metric.Int64Counter
		name   string
		desc   string
		unit   string
	}{
		{&tm.operations, metricOperationsTotal, "Tree operations by kind and outcome", "{operation}"},
		{&tm.rotations, metricRotationsTotal, "Rotations performed by the fix-up routines", "{rotation}"},
		{&tm.recolors, metricRecolorsTotal, "Node recolorings performed by the fix-up routines", "{recolor}"},
		{&tm.fixups, metricFixupsTotal, "Fix-up loop iterations by phase", "{iteration}"},
		{&tm.violations, metricViolationsTotal, "Invariant violations reported by the checker", "{violation}"},
	}

	for _, counter := range counters {
		*counter.target, err = mt.Int64Counter(counter.name,
			metric.WithDescription(counter.desc),
			metric.WithUnit(counter.unit),
		)
		if err != nil {
			return nil, fmt.Errorf("create %s: %w", counter.name, err)
		}
	}

	tm.duration, err = mt.Float64Histogram(metricOperationDuration,
		metric.WithDescription("Tree operation duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(operationBucketBoundaries...),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricOperationDuration, err)
	}

	tm.size, err = mt.Int64Gauge(metricTreeSize,
		metric.WithDescription("Number of elements in the tree"),
		metric.WithUnit("{element}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricTreeSize, err)
	}

	tm.height, err = mt.Int64Gauge(metricTreeHeight,
		metric.WithDescription("Longest root-to-leaf path of the tree"),
		metric.WithUnit("{node}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricTreeHeight, err)
	}

	return &tm, nil
}

// RecordOperation records one tree operation.
func (tm *TreeMetrics) RecordOperation(ctx context.Context, op, outcome string, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String(attrOp, op),
		attribute.String(attrOutcome, outcome),
	)

	tm.operations.Add(ctx, 1, attrs)
	tm.duration.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.String(attrOp, op)))
}

// RecordStats adds the fix-up work in delta.
func (tm *TreeMetrics) RecordStats(ctx context.Context, delta rbtree.Stats) {
	tm.rotations.Add(ctx, safeconv.ClampToInt64(delta.Rotations))
	tm.recolors.Add(ctx, safeconv.ClampToInt64(delta.Recolors))
	tm.fixups.Add(ctx, safeconv.ClampToInt64(delta.InsertFixups), metric.WithAttributes(attribute.String(attrPhase, "insert")))
	tm.fixups.Add(ctx, safeconv.ClampToInt64(delta.EraseFixups), metric.WithAttributes(attribute.String(attrPhase, "erase")))
}

// RecordShape records the current size and height of the tree.
func (tm *TreeMetrics) RecordShape(ctx context.Context, size, height int) {
	tm.size.Record(ctx, int64(size))
	tm.height.Record(ctx, int64(height))
}

// RecordViolation counts a checker failure.
func (tm *TreeMetrics) RecordViolation(ctx context.Context, kind rbtree.ViolationKind) {
	tm.violations.Add(ctx, 1, metric.WithAttributes(attribute.String(attrKind, kind.String())))
}
