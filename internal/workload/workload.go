// Package workload drives a tree with a randomized insert/erase/lookup mix,
// replays every operation against a plain map and verifies the red-black
// invariants while it runs.
package workload

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"math/rand"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sumatoshi-tech/ordmap/pkg/config"
	"github.com/Sumatoshi-tech/ordmap/pkg/observability"
	"github.com/Sumatoshi-tech/ordmap/pkg/rbtree"
)

const (
	maxSamples         = 200
	cancellationStride = 1024
)

// Operation names used in logs, metrics and divergence reports.
const (
	OpInsert = "insert"
	OpErase  = "erase"
	OpLookup = "lookup"
	OpVerify = "verify"
)

// Options configures a run.
type Options struct {
	Keys          int
	Operations    int
	Seed          int64
	EraseRatio    float64
	LookupRatio   float64
	CheckInterval int
	// MaxNodes caps the live nodes through a BoundedAllocator. 0 means unbounded.
	MaxNodes int
}

// OptionsFromConfig maps the configuration sections onto Options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Keys:          cfg.Workload.Keys,
		Operations:    cfg.Workload.Operations,
		Seed:          cfg.Workload.Seed,
		EraseRatio:    cfg.Workload.EraseRatio,
		LookupRatio:   cfg.Workload.LookupRatio,
		CheckInterval: cfg.Workload.CheckInterval,
		MaxNodes:      cfg.Allocator.MaxNodes,
	}
}

// Sample is the shape of the tree after Op operations.
type Sample struct {
	Op     int
	Size   int
	Height int
}

// Result summarizes a completed run.
type Result struct {
	RunID      string
	Options    Options
	Inserts    int
	Duplicates int
	Erases     int
	Misses     int
	Lookups    int
	Hits       int
	// AllocFailures counts inserts rejected by the node budget.
	AllocFailures int
	Checks        int
	FinalSize     int
	FinalHeight   int
	Stats         rbtree.Stats
	Elapsed       time.Duration
	Samples       []Sample
}

// OpsPerSecond is the throughput of the run, checker time included.
func (res *Result) OpsPerSecond() float64 {
	if res.Elapsed <= 0 {
		return 0
	}

	return float64(res.Options.Operations) / res.Elapsed.Seconds()
}

// Runner executes workloads.
type Runner struct {
	opts    Options
	logger  *slog.Logger
	tracer  trace.Tracer
	metrics *observability.TreeMetrics
}

// NewRunner creates a Runner. metrics may be nil.
func NewRunner(opts Options, logger *slog.Logger, tracer trace.Tracer, metrics *observability.TreeMetrics) *Runner {
	return &Runner{opts: opts, logger: logger, tracer: tracer, metrics: metrics}
}

type run struct {
	*Runner

	logger  *slog.Logger
	tree    *rbtree.Tree[int, int]
	oracle  map[int]int
	rng     *rand.Rand
	result  *Result
	mutated int
}

// Run executes the workload. It returns a *DivergenceError when the tree
// disagrees with the reference map, an *rbtree.InvariantError when the checker
// fails, and ctx.Err() when cancelled.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	runID := uuid.NewString()

	ctx, span := r.tracer.Start(ctx, "workload.run", trace.WithAttributes(
		attribute.String("run.id", runID),
		attribute.Int("workload.keys", r.opts.Keys),
		attribute.Int("workload.operations", r.opts.Operations),
		attribute.Int64("workload.seed", r.opts.Seed),
	))
	defer span.End()

	state := &run{
		Runner: r,
		logger: r.logger.With("run_id", runID),
		tree:   newTree(r.opts.MaxNodes),
		oracle: make(map[int]int),
		rng:    rand.New(rand.NewSource(r.opts.Seed)), //nolint:gosec // reproducible workloads.
		result: &Result{RunID: runID, Options: r.opts},
	}

	state.logger.InfoContext(ctx, "workload started",
		"keys", r.opts.Keys, "operations", r.opts.Operations, "seed", r.opts.Seed, "max_nodes", r.opts.MaxNodes)

	started := time.Now()

	err := state.execute(ctx)
	if err == nil {
		err = state.verifyFull(ctx, r.opts.Operations)
	}

	state.result.Elapsed = time.Since(started)
	state.result.FinalSize = state.tree.Len()
	state.result.FinalHeight = state.tree.Height()
	state.result.Stats = state.tree.Stats()

	if r.metrics != nil {
		r.metrics.RecordStats(ctx, state.result.Stats)
		r.metrics.RecordShape(ctx, state.result.FinalSize, state.result.FinalHeight)
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		state.logger.ErrorContext(ctx, "workload failed", "error", err)

		return state.result, err
	}

	state.logger.InfoContext(ctx, "workload finished",
		"elapsed", state.result.Elapsed,
		"size", state.result.FinalSize,
		"height", state.result.FinalHeight,
		"checks", state.result.Checks,
		"rotations", state.result.Stats.Rotations)

	return state.result, nil
}

func newTree(maxNodes int) *rbtree.Tree[int, int] {
	if maxNodes <= 0 {
		return rbtree.NewOrdered[int, int]()
	}

	return rbtree.NewWithAllocator[int, int](cmp.Less[int], rbtree.NewBoundedAllocator[int, int](maxNodes, nil))
}

func (st *run) execute(ctx context.Context) error {
	sampleEvery := max(1, st.opts.Operations/maxSamples)

	for step := range st.opts.Operations {
		if step%cancellationStride == 0 {
			err := ctx.Err()
			if err != nil {
				return fmt.Errorf("workload cancelled at step %d: %w", step, err)
			}
		}

		err := st.step(ctx, step)
		if err != nil {
			return err
		}

		if (step+1)%sampleEvery == 0 {
			st.result.Samples = append(st.result.Samples, Sample{
				Op:     step + 1,
				Size:   st.tree.Len(),
				Height: st.tree.Height(),
			})
		}
	}

	return nil
}

func (st *run) step(ctx context.Context, step int) error {
	key := st.rng.Intn(st.opts.Keys)
	draw := st.rng.Float64()

	var (
		op      string
		outcome string
		err     error
	)

	started := time.Now()

	switch {
	case draw < st.opts.EraseRatio:
		op = OpErase
		outcome, err = st.erase(step, key)
	case draw < st.opts.EraseRatio+st.opts.LookupRatio:
		op = OpLookup
		outcome, err = st.lookup(step, key)
	default:
		op = OpInsert
		outcome, err = st.insert(step, key)
	}

	if st.metrics != nil {
		st.metrics.RecordOperation(ctx, op, outcome, time.Since(started))
	}

	if err != nil || op == OpLookup {
		return err
	}

	st.mutated++

	if st.opts.CheckInterval > 0 && st.mutated%st.opts.CheckInterval == 0 {
		return st.verify(ctx, step, op, key)
	}

	return nil
}

func (st *run) insert(step, key int) (string, error) {
	_, present := st.oracle[key]

	_, inserted, err := st.tree.Emplace(key, step)
	if err != nil {
		if !errors.Is(err, rbtree.ErrAllocation) {
			return observability.OutcomeFailed, fmt.Errorf("insert %d: %w", key, err)
		}

		st.result.AllocFailures++

		if present || st.tree.Len() != len(st.oracle) {
			return observability.OutcomeFailed, &DivergenceError{Step: step, Op: OpInsert, Key: key,
				Detail: "failed insert changed the tree or hit a present key"}
		}

		return observability.OutcomeFailed, nil
	}

	if inserted == present {
		return observability.OutcomeFailed, &DivergenceError{Step: step, Op: OpInsert, Key: key,
			Detail: fmt.Sprintf("inserted=%t but key present=%t", inserted, present)}
	}

	if !inserted {
		st.result.Duplicates++

		return observability.OutcomeExisting, nil
	}

	st.oracle[key] = step
	st.result.Inserts++

	return observability.OutcomeInserted, nil
}

func (st *run) erase(step, key int) (string, error) {
	_, present := st.oracle[key]
	delete(st.oracle, key)

	removed := st.tree.EraseKey(key)
	if (removed == 1) != present {
		return observability.OutcomeFailed, &DivergenceError{Step: step, Op: OpErase, Key: key,
			Detail: fmt.Sprintf("removed %d but key present=%t", removed, present)}
	}

	if !present {
		st.result.Misses++

		return observability.OutcomeMiss, nil
	}

	st.result.Erases++

	return observability.OutcomeHit, nil
}

func (st *run) lookup(step, key int) (string, error) {
	st.result.Lookups++

	want, present := st.oracle[key]
	got, found := st.tree.Get(key)

	if found != present || got != want {
		return observability.OutcomeFailed, &DivergenceError{Step: step, Op: OpLookup, Key: key,
			Detail: fmt.Sprintf("got (%d, %t), want (%d, %t)", got, found, want, present)}
	}

	if !found {
		return observability.OutcomeMiss, nil
	}

	st.result.Hits++

	return observability.OutcomeHit, nil
}

// verify runs the invariants checker and compares sizes.
func (st *run) verify(ctx context.Context, step int, op string, key int) error {
	st.result.Checks++

	err := st.tree.CheckInvariants()
	if err != nil {
		var verr *rbtree.InvariantError
		if st.metrics != nil && errors.As(err, &verr) {
			st.metrics.RecordViolation(ctx, verr.Kind)
		}

		return fmt.Errorf("step %d, %s %d: %w", step, op, key, err)
	}

	if st.tree.Len() != len(st.oracle) {
		return &DivergenceError{Step: step, Op: op, Key: key,
			Detail: fmt.Sprintf("size %d, want %d", st.tree.Len(), len(st.oracle))}
	}

	return nil
}

// verifyFull checks the invariants and the complete traversal in both directions.
func (st *run) verifyFull(ctx context.Context, step int) error {
	_, span := st.tracer.Start(ctx, "workload.verify")
	defer span.End()

	err := st.verify(ctx, step, OpVerify, st.tree.Len())
	if err != nil {
		return err
	}

	want := slices.Sorted(maps.Keys(st.oracle))

	got := st.tree.Keys()
	if diff := TraversalDiff(want, got); diff != "" {
		return &DivergenceError{Step: step, Op: OpVerify, Key: len(got), Detail: "ascending traversal\n" + diff}
	}

	backward := make([]int, 0, len(got))
	for key := range st.tree.Backward() {
		backward = append(backward, key)
	}

	slices.Reverse(backward)

	if diff := TraversalDiff(want, backward); diff != "" {
		return &DivergenceError{Step: step, Op: OpVerify, Key: len(backward), Detail: "descending traversal\n" + diff}
	}

	st.logger.DebugContext(ctx, "traversal verified", "size", len(got))

	return nil
}
