package model

import (
	"errors"
	"testing"
)

func TestPhase_CanTransition(t *testing.T) {
	tests := []struct {
		from, to Phase
		want     bool
	}{
		{PhaseBuilt, PhaseEnumerating, true},
		{PhaseEnumerating, PhaseWalking, true},
		{PhaseEnumerating, PhaseFailed, true},
		{PhaseWalking, PhaseAggregating, true},
		{PhaseAggregating, PhasePersisting, true},
		{PhasePersisting, PhaseDone, true},
		{PhasePersisting, PhaseFailed, true},
		{PhaseBuilt, PhaseWalking, false},
		{PhaseAggregating, PhaseFailed, false},
		{PhaseDone, PhaseFailed, false},
		{PhaseFailed, PhaseBuilt, false},
	}

	for _, tt := range tests {
		if got := tt.from.CanTransition(tt.to); got != tt.want {
			t.Errorf("%s -> %s: got %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestPhase_Terminal(t *testing.T) {
	if !PhaseDone.Terminal() || !PhaseFailed.Terminal() {
		t.Error("done and failed must be terminal")
	}
	if PhaseWalking.Terminal() {
		t.Error("walking is not terminal")
	}
}

func TestRunOutcome_Tally(t *testing.T) {
	o := &RunOutcome{
		States: []StateOutcome{
			{State: State{Code: "1"}, Pages: 2, Records: 3},
			{State: State{Code: "2"}, Pages: 1, Err: errors.New("boom")},
			{State: State{Code: "3"}, Pages: 4, Records: 10},
		},
	}
	o.Tally()

	if o.Pages != 7 {
		t.Errorf("expected 7 pages, got %d", o.Pages)
	}
	if o.FailedCount != 1 {
		t.Errorf("expected 1 failed state, got %d", o.FailedCount)
	}
	if !o.Partial() {
		t.Error("expected partial outcome")
	}
	failed := o.Failed()
	if len(failed) != 1 || failed[0].State.Code != "2" {
		t.Errorf("unexpected failed states: %+v", failed)
	}
}

func TestDataset_Get(t *testing.T) {
	d := NewDataset([]Record{{ID: "a"}, {ID: "b"}}, nil)
	if d.Len() != 2 {
		t.Fatalf("expected 2 records, got %d", d.Len())
	}
	if r, ok := d.Get("b"); !ok || r.ID != "b" {
		t.Errorf("expected record b, got %+v %v", r, ok)
	}
	if _, ok := d.Get("c"); ok {
		t.Error("unexpected record c")
	}
}

func TestDefaultConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should be valid: %v", err)
	}

	cfg.Retry.MaxAttempts = 0
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for zero retry attempts")
	}
}
