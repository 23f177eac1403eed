package worker

import (
	"context"

	"github.com/ppiankov/rnpdno/internal/model"
	"github.com/ppiankov/rnpdno/internal/walker"
)

// StateWalker walks every page of one state
type StateWalker interface {
	Walk(ctx context.Context, spec model.FilterSpec, state model.State) walker.Result
}

// StateJob walks one state. Index is the state's position in the enumerator order.
type StateJob struct {
	Index  int
	State  model.State
	Spec   model.FilterSpec
	Walker StateWalker
}

// Execute executes the state walk
func (j *StateJob) Execute(ctx context.Context) Result {
	return &StateResult{
		Index:  j.Index,
		Result: j.Walker.Walk(ctx, j.Spec, j.State),
	}
}

// StateResult represents the result of a state job
type StateResult struct {
	Index int
	walker.Result
}

// GetError returns the walk error, if any
func (r *StateResult) GetError() error {
	return r.Err
}

// BatchProcessor walks many states with bounded concurrency
type BatchProcessor struct {
	walker      StateWalker
	concurrency int
}

// NewBatchProcessor creates a new batch processor
func NewBatchProcessor(w StateWalker, concurrency int) *BatchProcessor {
	return &BatchProcessor{
		walker:      w,
		concurrency: concurrency,
	}
}

// ProcessStates walks states concurrently and returns one result per state, in the order
// of states. onResult, when set, sees each completed walk as it finishes, one at a time.
// If ctx is cancelled, states that never ran carry the context error.
func (b *BatchProcessor) ProcessStates(ctx context.Context, spec model.FilterSpec, states []model.State, onResult func(*StateResult)) []*StateResult {
	if len(states) == 0 {
		return []*StateResult{}
	}

	pool := NewPool(ctx, b.concurrency)
	if onResult != nil {
		pool.OnResult(func(r Result) { onResult(r.(*StateResult)) })
	}
	pool.Start()

	for i, state := range states {
		job := &StateJob{
			Index:  i,
			State:  state,
			Spec:   spec,
			Walker: b.walker,
		}
		if !pool.Submit(job) {
			break
		}
	}

	// Once ctx is done the queued states are abandoned
	finish := pool.Wait
	if ctx.Err() != nil {
		finish = pool.Shutdown
	}

	ordered := make([]*StateResult, len(states))
	for _, r := range finish() {
		sr := r.(*StateResult)
		ordered[sr.Index] = sr
	}

	for i, sr := range ordered {
		if sr != nil {
			continue
		}
		err := ctx.Err()
		if err == nil {
			err = context.Canceled
		}
		ordered[i] = &StateResult{
			Index:  i,
			Result: walker.Result{State: states[i], Err: err},
		}
	}

	return ordered
}
