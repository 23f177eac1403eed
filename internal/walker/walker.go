package walker

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/rs/zerolog"

	"github.com/ppiankov/rnpdno/internal/metrics"
	"github.com/ppiankov/rnpdno/internal/model"
	"github.com/ppiankov/rnpdno/internal/registry"
)

// PageFetcher issues exactly one registry request per call
type PageFetcher interface {
	FetchPage(ctx context.Context, spec model.FilterSpec, state model.StateCode, cursor string) (*model.Page, error)
}

// Config bounds the retry of a single page
type Config struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// sleepFunc waits out a retry delay. Overridden in tests.
var sleepFunc = func(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// StateWalkError is the terminal failure of one state's walk
type StateWalkError struct {
	State    model.StateCode
	Page     int // 1-based page that failed
	Attempts int
	Err      error
}

func (e *StateWalkError) Error() string {
	return fmt.Sprintf("state %s: page %d failed after %d attempt(s): %v", e.State, e.Page, e.Attempts, e.Err)
}

func (e *StateWalkError) Unwrap() error { return e.Err }

// Result is what one state walk contributes to the run
type Result struct {
	State    model.State
	Records  []model.Record // nil unless the walk succeeded
	Pages    int
	Retries  int
	Duration time.Duration
	Err      error
}

// Outcome converts the result into its report entry
func (r Result) Outcome() model.StateOutcome {
	out := model.StateOutcome{
		State:    r.State,
		Pages:    r.Pages,
		Records:  len(r.Records),
		Retries:  r.Retries,
		Duration: r.Duration,
		Err:      r.Err,
	}
	if r.Err != nil {
		out.Error = r.Err.Error()
	}
	return out
}

// Walker drives a PageFetcher through every page of one state
type Walker struct {
	fetcher PageFetcher
	cfg     Config
	metrics *metrics.Metrics
	log     zerolog.Logger
}

// Option customises a Walker
type Option func(*Walker)

// WithMetrics records retries
func WithMetrics(m *metrics.Metrics) Option {
	return func(w *Walker) { w.metrics = m }
}

// WithLogger sets the walker logger
func WithLogger(l zerolog.Logger) Option {
	return func(w *Walker) { w.log = l }
}

// New creates a walker. MaxAttempts below 1 means a single attempt per page.
func New(fetcher PageFetcher, cfg Config, opts ...Option) *Walker {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.MaxDelay > 0 && cfg.BaseDelay > cfg.MaxDelay {
		cfg.BaseDelay = cfg.MaxDelay
	}
	w := &Walker{
		fetcher: fetcher,
		cfg:     cfg,
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Pages lazily yields each page of state in registry order. After an error is yielded
// the sequence ends. Each range over the sequence starts again from the first page.
func (w *Walker) Pages(ctx context.Context, spec model.FilterSpec, state model.StateCode) iter.Seq2[*model.Page, error] {
	return w.pages(ctx, spec, state, nil)
}

// Walk collects every record of state. A failed walk keeps its counters but no records.
func (w *Walker) Walk(ctx context.Context, spec model.FilterSpec, state model.State) Result {
	start := time.Now()
	log := w.log.With().Str("state", string(state.Code)).Logger()
	log.Debug().Str("name", state.Name).Msg("walking state")

	res := Result{State: state}
	records := []model.Record{}
	for page, err := range w.pages(ctx, spec, state.Code, &res.Retries) {
		if err != nil {
			res.Err = err
			break
		}
		res.Pages++
		records = append(records, page.Records...)
	}
	res.Duration = time.Since(start)

	if res.Err != nil {
		log.Error().Err(res.Err).Int("pages", res.Pages).Msg("state walk failed")
		return res
	}
	res.Records = records
	log.Info().Int("pages", res.Pages).Int("records", len(records)).Dur("duration", res.Duration).Msg("state walk complete")
	return res
}

// pages is the pagination loop behind Pages and Walk. It stops when a page reports no
// more results, when the consumer stops, or on the first unrecoverable error. Retries
// are added to retries when it is non-nil.
func (w *Walker) pages(ctx context.Context, spec model.FilterSpec, state model.StateCode, retries *int) iter.Seq2[*model.Page, error] {
	return func(yield func(*model.Page, error) bool) {
		cursor := ""
		seen := make(map[string]bool)

		for n := 1; ; n++ {
			page, r, err := w.fetch(ctx, spec, state, cursor, n)
			if retries != nil {
				*retries += r
			}
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(page, nil) || !page.HasMore {
				return
			}

			if page.Next == "" || page.Next == cursor || seen[page.Next] {
				yield(nil, &StateWalkError{
					State:    state,
					Page:     n,
					Attempts: 1,
					Err:      &registry.RegistryError{Message: fmt.Sprintf("continuation %q does not advance", page.Next)},
				})
				return
			}
			seen[cursor] = true
			cursor = page.Next
		}
	}
}

// fetch retries one page on transport errors only
func (w *Walker) fetch(ctx context.Context, spec model.FilterSpec, state model.StateCode, cursor string, n int) (*model.Page, int, error) {
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, attempt - 1, err
		}

		page, err := w.fetcher.FetchPage(ctx, spec, state, cursor)
		if err == nil {
			return page, attempt - 1, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return nil, attempt - 1, ctxErr
		}
		if !registry.IsTransient(err) || attempt >= w.cfg.MaxAttempts {
			return nil, attempt - 1, &StateWalkError{State: state, Page: n, Attempts: attempt, Err: err}
		}

		delay := w.backoff(attempt)
		w.log.Warn().Err(err).
			Str("state", string(state)).
			Int("page", n).
			Int("attempt", attempt).
			Dur("delay", delay).
			Msg("transient failure, retrying page")
		w.metrics.ObserveRetry(string(state))

		if err := sleepFunc(ctx, delay); err != nil {
			return nil, attempt, err
		}
	}
}

// backoff returns BaseDelay * 2^(attempt-1), capped at MaxDelay
func (w *Walker) backoff(attempt int) time.Duration {
	d := w.cfg.BaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if w.cfg.MaxDelay > 0 && d >= w.cfg.MaxDelay {
			return w.cfg.MaxDelay
		}
	}
	return d
}
