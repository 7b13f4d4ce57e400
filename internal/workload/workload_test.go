package workload //nolint:testpackage // divergence tests tamper with the reference map.

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"

	"github.com/Sumatoshi-tech/ordmap/pkg/config"
	"github.com/Sumatoshi-tech/ordmap/pkg/observability"
	"github.com/Sumatoshi-tech/ordmap/pkg/rbtree"
)

func testOptions() Options {
	return Options{
		Keys:          64,
		Operations:    3000,
		Seed:          7,
		EraseRatio:    0.35,
		LookupRatio:   0.15,
		CheckInterval: 1,
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func noopTracer() trace.Tracer {
	return nooptrace.NewTracerProvider().Tracer("test")
}

func newTestRunner(opts Options) *Runner {
	return NewRunner(opts, discardLogger(), noopTracer(), nil)
}

func TestRun_Consistent(t *testing.T) {
	t.Parallel()

	opts := testOptions()

	res, err := newTestRunner(opts).Run(context.Background())
	require.NoError(t, err)

	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, res.Inserts-res.Erases, res.FinalSize)
	assert.Equal(t, opts.Operations, res.Inserts+res.Duplicates+res.Erases+res.Misses+res.Lookups)
	assert.Equal(t, res.Inserts+res.Duplicates+res.Erases+res.Misses+1, res.Checks)
	assert.Zero(t, res.AllocFailures)
	assert.Positive(t, res.Lookups)
	assert.Positive(t, res.Hits)
	assert.Positive(t, res.Stats.Rotations)
	assert.LessOrEqual(t, res.FinalSize, opts.Keys)
	assert.Len(t, res.Samples, maxSamples)
	assert.Equal(t, opts.Operations, res.Samples[len(res.Samples)-1].Op)
	assert.Equal(t, res.FinalSize, res.Samples[len(res.Samples)-1].Size)
	assert.Positive(t, res.OpsPerSecond())
}

func TestRun_Deterministic(t *testing.T) {
	t.Parallel()

	first, err := newTestRunner(testOptions()).Run(context.Background())
	require.NoError(t, err)

	second, err := newTestRunner(testOptions()).Run(context.Background())
	require.NoError(t, err)

	assert.NotEqual(t, first.RunID, second.RunID)
	assert.Equal(t, first.Stats, second.Stats)
	assert.Equal(t, first.Samples, second.Samples)
	assert.Equal(t, first.FinalSize, second.FinalSize)
}

func TestRun_BoundedAllocator(t *testing.T) {
	t.Parallel()

	opts := testOptions()
	opts.Keys = 200
	opts.MaxNodes = 10
	opts.EraseRatio = 0.1
	opts.CheckInterval = 5

	res, err := newTestRunner(opts).Run(context.Background())
	require.NoError(t, err)

	assert.Positive(t, res.AllocFailures)
	assert.LessOrEqual(t, res.FinalSize, 10)
}

func TestRun_Cancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := newTestRunner(testOptions()).Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, res)
	assert.Zero(t, res.FinalSize)
}

func TestRun_LogsRunID(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	opts := testOptions()
	opts.Operations = 10

	res, err := NewRunner(opts, logger, noopTracer(), nil).Run(context.Background())
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	for _, line := range lines {
		var record map[string]any

		require.NoError(t, json.Unmarshal([]byte(line), &record))
		assert.Equal(t, res.RunID, record["run_id"])
	}
}

func TestRun_RecordsSpansAndMetrics(t *testing.T) {
	t.Parallel()

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	metrics, err := observability.NewTreeMetrics(mp.Meter("test"))
	require.NoError(t, err)

	opts := testOptions()
	opts.Operations = 500

	_, err = NewRunner(opts, discardLogger(), tp.Tracer("test"), metrics).Run(context.Background())
	require.NoError(t, err)

	names := make([]string, 0, 2)
	for _, span := range exporter.GetSpans() {
		names = append(names, span.Name)
	}

	assert.ElementsMatch(t, []string{"workload.run", "workload.verify"}, names)

	var rm metricdata.ResourceMetrics

	require.NoError(t, reader.Collect(context.Background(), &rm))

	var total int64

	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			if m.Name != "ordmap.operations.total" {
				continue
			}

			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)

			for _, point := range sum.DataPoints {
				total += point.Value
			}
		}
	}

	assert.Equal(t, int64(opts.Operations), total)
}

func TestVerifyFull_ReportsTraversalDiff(t *testing.T) {
	t.Parallel()

	runner := newTestRunner(testOptions())
	state := &run{
		Runner: runner,
		logger: discardLogger(),
		tree:   newTree(0),
		oracle: map[int]int{1: 0, 2: 0, 3: 0},
		rng:    rand.New(rand.NewSource(0)),
		result: &Result{},
	}

	for _, key := range []int{1, 3, 4} {
		_, _, err := state.tree.Emplace(key, 0)
		require.NoError(t, err)
	}

	err := state.verifyFull(context.Background(), 99)
	require.ErrorIs(t, err, ErrDivergence)

	var derr *DivergenceError

	require.ErrorAs(t, err, &derr)
	assert.Equal(t, OpVerify, derr.Op)
	assert.Equal(t, 99, derr.Step)
	assert.Contains(t, derr.Detail, "-2\n")
	assert.Contains(t, derr.Detail, "+4\n")
	assert.Contains(t, derr.Error(), "ascending traversal")
}

func TestVerify_SizeMismatch(t *testing.T) {
	t.Parallel()

	state := &run{
		Runner: newTestRunner(testOptions()),
		logger: discardLogger(),
		tree:   newTree(0),
		oracle: map[int]int{5: 0},
		result: &Result{},
	}

	err := state.verify(context.Background(), 3, OpErase, 5)
	require.ErrorIs(t, err, ErrDivergence)
	assert.Equal(t, 1, state.result.Checks)
}

func TestLookup_DetectsStaleValue(t *testing.T) {
	t.Parallel()

	state := &run{
		Runner: newTestRunner(testOptions()),
		logger: discardLogger(),
		tree:   newTree(0),
		oracle: map[int]int{5: 1},
		result: &Result{},
	}

	_, _, err := state.tree.Emplace(5, 2)
	require.NoError(t, err)

	_, err = state.lookup(0, 5)
	require.ErrorIs(t, err, ErrDivergence)
}

func TestTraversalDiff(t *testing.T) {
	t.Parallel()

	assert.Empty(t, TraversalDiff([]int{1, 2, 3}, []int{1, 2, 3}))
	assert.Empty(t, TraversalDiff(nil, []int{}))

	diff := TraversalDiff([]int{1, 2, 3}, []int{1, 3, 4})
	for _, line := range []string{" 1\n", "-2\n", " 3\n", "+4\n"} {
		assert.Contains(t, diff, line)
	}

	assert.NotContains(t, diff, "-1\n")
}

func TestOptionsFromConfig(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Allocator.MaxNodes = 9

	opts := OptionsFromConfig(&cfg)
	assert.Equal(t, cfg.Workload.Keys, opts.Keys)
	assert.Equal(t, cfg.Workload.Seed, opts.Seed)
	assert.Equal(t, 9, opts.MaxNodes)

	_, ok := newTree(opts.MaxNodes).Allocator().(*rbtree.BoundedAllocator[int, int])
	assert.True(t, ok)
}
