package model

import (
	"fmt"
	"time"
)

// Phase is a step of the extraction run state machine
type Phase string

const (
	PhaseBuilt       Phase = "built"
	PhaseEnumerating Phase = "enumerating"
	PhaseWalking     Phase = "walking"
	PhaseAggregating Phase = "aggregating"
	PhasePersisting  Phase = "persisting"
	PhaseDone        Phase = "done"
	PhaseFailed      Phase = "failed"
)

// phaseTransitions lists the legal successors of each phase. Failed is reachable from
// Walking only through cancellation.
var phaseTransitions = map[Phase][]Phase{
	PhaseBuilt:       {PhaseEnumerating},
	PhaseEnumerating: {PhaseWalking, PhaseFailed},
	PhaseWalking:     {PhaseAggregating, PhaseFailed},
	PhaseAggregating: {PhasePersisting},
	PhasePersisting:  {PhaseDone, PhaseFailed},
}

// CanTransition reports whether next may follow p
func (p Phase) CanTransition(next Phase) bool {
	for _, candidate := range phaseTransitions[p] {
		if candidate == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transitions exist
func (p Phase) Terminal() bool {
	return p == PhaseDone || p == PhaseFailed
}

// StateOutcome summarises the walk of one state
type StateOutcome struct {
	State    State         `json:"state"`
	Pages    int           `json:"pages"`
	Records  int           `json:"records"`
	Retries  int           `json:"retries"`
	Duration time.Duration `json:"duration_ns"`
	Error    string        `json:"error,omitempty"`
	Err      error         `json:"-"`
}

// Succeeded reports whether the walk completed
func (s StateOutcome) Succeeded() bool {
	return s.Err == nil
}

// RunOutcome is the per-state and aggregate summary of one extraction run
type RunOutcome struct {
	RunID       string         `json:"run_id"`
	Phase       Phase          `json:"phase"`
	StartedAt   time.Time      `json:"started_at"`
	FinishedAt  time.Time      `json:"finished_at"`
	OutputPath  string         `json:"output_path,omitempty"`
	States      []StateOutcome `json:"states"`
	Records     int            `json:"records"` // Unique records in the dataset
	Collisions  int            `json:"collisions"`
	Pages       int            `json:"pages"`
	FailedCount int            `json:"failed_states"`
}

// Failed returns the outcomes of states whose walk failed, in catalog order
func (o *RunOutcome) Failed() []StateOutcome {
	var failed []StateOutcome
	for _, s := range o.States {
		if !s.Succeeded() {
			failed = append(failed, s)
		}
	}
	return failed
}

// Partial reports whether some but not all states failed
func (o *RunOutcome) Partial() bool {
	n := len(o.Failed())
	return n > 0 && n < len(o.States)
}

// Tally recomputes the aggregate page and failure counts from States
func (o *RunOutcome) Tally() {
	o.Pages, o.FailedCount = 0, 0
	for _, s := range o.States {
		o.Pages += s.Pages
		if !s.Succeeded() {
			o.FailedCount++
		}
	}
}

func (o *RunOutcome) String() string {
	return fmt.Sprintf("run %s: phase=%s states=%d failed=%d pages=%d records=%d collisions=%d",
		o.RunID, o.Phase, len(o.States), o.FailedCount, o.Pages, o.Records, o.Collisions)
}
