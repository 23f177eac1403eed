package model

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"
)

// DateLayout is the calendar date format accepted for date bounds
const DateLayout = "2006-01-02"

// ErrInvalidFilter is returned when caller-supplied filter values are unusable
var ErrInvalidFilter = errors.New("invalid filter")

// FilterParams holds raw, unvalidated filter values as supplied by a caller
type FilterParams struct {
	StatusID      string
	Title         string
	DateStart     string
	DateEnd       string
	NationalityID string
	States        []string          // Optional subset of state codes to walk
	Extra         map[string]string // Additional registry form fields passed through verbatim
}

// FilterSpec is the validated, immutable search criteria for one extraction run.
// Empty status or nationality means no filter on that field.
type FilterSpec struct {
	statusID      string
	title         string
	dateStart     time.Time
	dateEnd       time.Time
	hasDates      bool
	nationalityID string
	states        []StateCode
	extra         map[string]string
}

// NewFilterSpec validates params and builds a FilterSpec
func NewFilterSpec(p FilterParams) (FilterSpec, error) {
	spec := FilterSpec{
		statusID:      strings.TrimSpace(p.StatusID),
		title:         strings.TrimSpace(p.Title),
		nationalityID: strings.TrimSpace(p.NationalityID),
	}

	start, end := strings.TrimSpace(p.DateStart), strings.TrimSpace(p.DateEnd)
	if (start == "") != (end == "") {
		return FilterSpec{}, fmt.Errorf("%w: date_start and date_end must be given together", ErrInvalidFilter)
	}
	if start != "" {
		s, err := time.Parse(DateLayout, start)
		if err != nil {
			return FilterSpec{}, fmt.Errorf("%w: date_start %q: %v", ErrInvalidFilter, start, err)
		}
		e, err := time.Parse(DateLayout, end)
		if err != nil {
			return FilterSpec{}, fmt.Errorf("%w: date_end %q: %v", ErrInvalidFilter, end, err)
		}
		if s.After(e) {
			return FilterSpec{}, fmt.Errorf("%w: date_start %s is after date_end %s", ErrInvalidFilter, start, end)
		}
		spec.dateStart, spec.dateEnd, spec.hasDates = s, e, true
	}

	seen := make(map[StateCode]bool)
	for _, raw := range p.States {
		code, err := ParseStateCode(raw)
		if err != nil {
			return FilterSpec{}, fmt.Errorf("%w: %v", ErrInvalidFilter, err)
		}
		if !seen[code] {
			seen[code] = true
			spec.states = append(spec.states, code)
		}
	}

	if len(p.Extra) > 0 {
		spec.extra = make(map[string]string, len(p.Extra))
		for k, v := range p.Extra {
			k = strings.TrimSpace(k)
			if k == "" {
				return FilterSpec{}, fmt.Errorf("%w: empty extra parameter name", ErrInvalidFilter)
			}
			spec.extra[k] = v
		}
	}

	return spec, nil
}

// StatusID returns the victim status category, or "" for no filter
func (f FilterSpec) StatusID() string { return f.statusID }

// Title returns the label attached to the output document
func (f FilterSpec) Title() string { return f.title }

// NationalityID returns the nationality category, or "" for no filter
func (f FilterSpec) NationalityID() string { return f.nationalityID }

// DateRange returns the inclusive date bounds and whether a range was given
func (f FilterSpec) DateRange() (start, end time.Time, ok bool) {
	return f.dateStart, f.dateEnd, f.hasDates
}

// States returns the requested state subset, nil meaning every state
func (f FilterSpec) States() []StateCode { return slices.Clone(f.states) }

// Extra returns a copy of the pass-through registry parameters
func (f FilterSpec) Extra() map[string]string { return maps.Clone(f.extra) }

// Includes reports whether the filter scopes the run to state code
func (f FilterSpec) Includes(code StateCode) bool {
	return len(f.states) == 0 || slices.Contains(f.states, code)
}

// FormValues renders the query predicates for one state. Title is not a predicate.
func (f FilterSpec) FormValues() map[string]string {
	values := make(map[string]string, len(f.extra)+4)
	for k, v := range f.extra {
		values[k] = v
	}
	if f.statusID != "" {
		values["id_estatus_victima"] = f.statusID
	}
	if f.nationalityID != "" {
		values["id_nacionalidad"] = f.nationalityID
	}
	if f.hasDates {
		values["fecha_inicio"] = f.dateStart.Format(DateLayout)
		values["fecha_fin"] = f.dateEnd.Format(DateLayout)
	}
	return values
}

// FilterSummary is the serialisable view of a FilterSpec written into output documents
type FilterSummary struct {
	StatusID      string            `json:"status_id,omitempty" yaml:"status_id,omitempty"`
	Title         string            `json:"title,omitempty" yaml:"title,omitempty"`
	DateStart     string            `json:"date_start,omitempty" yaml:"date_start,omitempty"`
	DateEnd       string            `json:"date_end,omitempty" yaml:"date_end,omitempty"`
	NationalityID string            `json:"nationality_id,omitempty" yaml:"nationality_id,omitempty"`
	States        []StateCode       `json:"states,omitempty" yaml:"states,omitempty"`
	Extra         map[string]string `json:"extra,omitempty" yaml:"extra,omitempty"`
}

// Summary returns the serialisable view of the filter
func (f FilterSpec) Summary() FilterSummary {
	s := FilterSummary{
		StatusID:      f.statusID,
		Title:         f.title,
		NationalityID: f.nationalityID,
		States:        f.States(),
		Extra:         f.Extra(),
	}
	if f.hasDates {
		s.DateStart = f.dateStart.Format(DateLayout)
		s.DateEnd = f.dateEnd.Format(DateLayout)
	}
	return s
}
