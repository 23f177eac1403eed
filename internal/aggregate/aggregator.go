// Package aggregate merges per-state record sequences into one deduplicated dataset
package aggregate

import (
	"fmt"
	"sync"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"

	"github.com/ppiankov/rnpdno/internal/model"
)

// Aggregator accepts completed state walks in any order and merges them in enumerator
// order. Each state owns one slot; mu guards the slots and is never held while merging
// runs in Build.
type Aggregator struct {
	mu     sync.Mutex
	states []model.State
	index  map[model.StateCode]int
	slots  [][]model.Record
	filled []bool
	built  bool
	log    zerolog.Logger
}

// New creates an aggregator for states in enumerator order
func New(states []model.State, log zerolog.Logger) (*Aggregator, error) {
	index := make(map[model.StateCode]int, len(states))
	for i, s := range states {
		if _, dup := index[s.Code]; dup {
			return nil, fmt.Errorf("state %s listed twice", s.Code)
		}
		index[s.Code] = i
	}
	return &Aggregator{
		states: states,
		index:  index,
		slots:  make([][]model.Record, len(states)),
		filled: make([]bool, len(states)),
		log:    log,
	}, nil
}

// Add hands over the full record sequence of a state whose walk succeeded
func (a *Aggregator) Add(state model.StateCode, records []model.Record) error {
	for i, r := range records {
		if r.ID == "" {
			return fmt.Errorf("state %s: record %d has no id", state, i)
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.built {
		return fmt.Errorf("state %s: dataset already built", state)
	}
	i, ok := a.index[state]
	if !ok {
		return fmt.Errorf("state %s was not enumerated", state)
	}
	if a.filled[i] {
		return fmt.Errorf("state %s added twice", state)
	}
	a.slots[i] = records
	a.filled[i] = true
	return nil
}

// Build merges the added states. The first occurrence of an id in enumerator order wins;
// a later occurrence with different attributes is recorded as a collision.
func (a *Aggregator) Build() *model.Dataset {
	a.mu.Lock()
	a.built = true
	slots := a.slots
	a.mu.Unlock()

	var total int
	for _, s := range slots {
		total += len(s)
	}

	records := make([]model.Record, 0, total)
	first := make(map[string]int, total)
	var collisions []model.Collision

	for i, slot := range slots {
		for _, r := range slot {
			at, seen := first[r.ID]
			if !seen {
				first[r.ID] = len(records)
				records = append(records, r)
				continue
			}

			kept := records[at]
			if cmp.Equal(kept.Attributes, r.Attributes) {
				continue
			}
			diff := cmp.Diff(kept.Attributes, r.Attributes)
			collisions = append(collisions, model.Collision{
				ID:        r.ID,
				KeptFrom:  kept.State,
				DroppedIn: a.states[i].Code,
				Diff:      diff,
			})
			a.log.Warn().
				Str("id", r.ID).
				Str("kept_from", string(kept.State)).
				Str("dropped_in", string(a.states[i].Code)).
				Str("diff", diff).
				Msg("record id collision, keeping first occurrence")
		}
	}

	return model.NewDataset(records, collisions)
}
