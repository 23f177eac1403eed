// Package extract orchestrates one extraction run: enumerate states, walk them with
// bounded concurrency, merge the records and persist the dataset.
package extract

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ppiankov/rnpdno/internal/aggregate"
	"github.com/ppiankov/rnpdno/internal/metrics"
	"github.com/ppiankov/rnpdno/internal/model"
	"github.com/ppiankov/rnpdno/internal/persist"
	"github.com/ppiankov/rnpdno/internal/registry"
	"github.com/ppiankov/rnpdno/internal/worker"
)

var (
	// ErrEnumerationFailed aborts a run before any state is walked
	ErrEnumerationFailed = errors.New("state enumeration failed")
	// ErrCancelled means the run was cancelled; nothing was persisted
	ErrCancelled = errors.New("extraction cancelled")
)

// Preflighter prepares the registry before enumeration (robots check, session)
type Preflighter interface {
	Preflight(ctx context.Context) error
}

// Extractor runs extractions. It holds no per-run state and may be reused.
type Extractor struct {
	enumerator registry.StateEnumerator
	walker     worker.StateWalker
	persister  *persist.Persister
	preflight  Preflighter
	workers    int
	reportPath string
	metrics    *metrics.Metrics
	log        zerolog.Logger
	now        func() time.Time
	newRunID   func() string
}

// Option customises an Extractor
type Option func(*Extractor)

// WithPreflight runs p at the start of Enumerating
func WithPreflight(p Preflighter) Option {
	return func(e *Extractor) { e.preflight = p }
}

// WithWorkers bounds concurrent state walks
func WithWorkers(n int) Option {
	return func(e *Extractor) { e.workers = n }
}

// WithReportPath also persists the RunOutcome of every run that reaches a verdict
func WithReportPath(path string) Option {
	return func(e *Extractor) { e.reportPath = path }
}

// WithMetrics records run metrics
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Extractor) { e.metrics = m }
}

// WithLogger sets the run logger
func WithLogger(l zerolog.Logger) Option {
	return func(e *Extractor) { e.log = l }
}

// New creates an extractor
func New(enumerator registry.StateEnumerator, w worker.StateWalker, p *persist.Persister, opts ...Option) *Extractor {
	e := &Extractor{
		enumerator: enumerator,
		walker:     w,
		persister:  p,
		workers:    1,
		log:        zerolog.Nop(),
		now:        time.Now,
		newRunID:   func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// run carries the state of one Run call
type run struct {
	outcome *model.RunOutcome
	log     zerolog.Logger
}

func (r *run) enter(next model.Phase) {
	if !r.outcome.Phase.CanTransition(next) {
		panic(fmt.Sprintf("extract: illegal phase transition %s -> %s", r.outcome.Phase, next))
	}
	r.log.Debug().Str("from", string(r.outcome.Phase)).Str("to", string(next)).Msg("phase")
	r.outcome.Phase = next
}

// Run extracts every state matching spec and writes the dataset to outputPath.
//
// A run in which some states fail still returns a nil error; the failures are listed in
// the outcome. Enumeration and persistence failures return the outcome in PhaseFailed
// with an error. Cancellation returns ErrCancelled and persists nothing.
func (e *Extractor) Run(ctx context.Context, spec model.FilterSpec, outputPath string) (*model.RunOutcome, error) {
	r := &run{
		outcome: &model.RunOutcome{
			RunID:     e.newRunID(),
			Phase:     model.PhaseBuilt,
			StartedAt: e.now(),
		},
	}
	r.log = e.log.With().Str("run_id", r.outcome.RunID).Logger()
	defer func() {
		r.outcome.FinishedAt = e.now()
		e.metrics.ObserveRun(r.outcome.FinishedAt.Sub(r.outcome.StartedAt))
	}()

	r.enter(model.PhaseEnumerating)
	states, err := e.enumerate(ctx, spec)
	if err != nil {
		r.enter(model.PhaseFailed)
		if ctx.Err() != nil {
			return r.outcome, fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
		}
		r.log.Error().Err(err).Msg("enumeration failed")
		e.writeReport(r)
		return r.outcome, fmt.Errorf("%w: %w", ErrEnumerationFailed, err)
	}

	agg, err := aggregate.New(states, r.log)
	if err != nil {
		r.enter(model.PhaseFailed)
		e.writeReport(r)
		return r.outcome, fmt.Errorf("%w: %w", ErrEnumerationFailed, err)
	}

	r.enter(model.PhaseWalking)
	r.log.Info().Int("states", len(states)).Int("workers", e.workers).Msg("walking states")

	// onResult runs on the pool's single collector goroutine, so addErrs needs no lock.
	addErrs := make(map[int]error)
	batch := worker.NewBatchProcessor(e.walker, e.workers)
	results := batch.ProcessStates(ctx, spec, states, func(res *worker.StateResult) {
		if res.Err != nil {
			return
		}
		if err := agg.Add(res.State.Code, res.Records); err != nil {
			addErrs[res.Index] = err
		}
	})

	r.outcome.States = make([]model.StateOutcome, len(results))
	for i, res := range results {
		if err := addErrs[i]; err != nil {
			res.Err = err
			res.Records = nil
		}
		r.outcome.States[i] = res.Outcome()
		if ctx.Err() == nil {
			e.metrics.ObserveStateWalk(res.Err == nil)
		}
	}
	r.outcome.Tally()

	if ctx.Err() != nil {
		r.enter(model.PhaseFailed)
		r.log.Warn().Err(ctx.Err()).Msg("run cancelled, nothing persisted")
		return r.outcome, fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
	}

	for _, failed := range r.outcome.Failed() {
		r.log.Error().Str("state", string(failed.State.Code)).Str("error", failed.Error).Msg("state skipped")
	}

	r.enter(model.PhaseAggregating)
	dataset := agg.Build()
	r.outcome.Records = dataset.Len()
	r.outcome.Collisions = len(dataset.Collisions)
	e.metrics.ObserveDataset(dataset.Len(), len(dataset.Collisions))

	r.enter(model.PhasePersisting)
	var covered []model.StateCode
	for _, s := range r.outcome.States {
		if s.Succeeded() {
			covered = append(covered, s.State.Code)
		}
	}
	doc := persist.NewDocument(r.outcome.RunID, spec, covered, dataset, e.now())
	if err := e.persister.WriteDataset(outputPath, doc); err != nil {
		r.enter(model.PhaseFailed)
		r.log.Error().Err(err).Msg("persist failed")
		e.writeReport(r)
		return r.outcome, err
	}
	r.outcome.OutputPath = outputPath

	r.enter(model.PhaseDone)
	r.log.Info().
		Int("records", r.outcome.Records).
		Int("collisions", r.outcome.Collisions).
		Int("failed_states", r.outcome.FailedCount).
		Msg("run complete")
	e.writeReport(r)
	return r.outcome, nil
}

func (e *Extractor) enumerate(ctx context.Context, spec model.FilterSpec) ([]model.State, error) {
	if e.preflight != nil {
		if err := e.preflight.Preflight(ctx); err != nil {
			return nil, fmt.Errorf("preflight: %w", err)
		}
	}
	states, err := e.enumerator.States(ctx)
	if err != nil {
		return nil, err
	}
	return registry.SelectStates(states, spec)
}

// writeReport persists the outcome when a report path is set. Failures are logged
// and never change the run verdict.
func (e *Extractor) writeReport(r *run) {
	if e.reportPath == "" {
		return
	}
	r.outcome.FinishedAt = e.now()
	if err := e.persister.WriteReport(e.reportPath, r.outcome); err != nil {
		r.log.Warn().Err(err).Str("path", e.reportPath).Msg("run report not written")
	}
}
