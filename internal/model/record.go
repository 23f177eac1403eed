package model

import (
	"fmt"
	"strconv"
	"strings"
)

// StateCode identifies one administrative region of the registry
type StateCode string

// ParseStateCode normalises a raw state identifier. Numeric codes lose leading zeros
// so "07" and "7" name the same state.
func ParseStateCode(raw string) (StateCode, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", fmt.Errorf("empty state code")
	}
	if strings.ContainsAny(s, " \t\r\n") {
		return "", fmt.Errorf("state code %q contains whitespace", raw)
	}
	if n, err := strconv.Atoi(s); err == nil {
		if n <= 0 {
			return "", fmt.Errorf("state code %q must be positive", raw)
		}
		return StateCode(strconv.Itoa(n)), nil
	}
	return StateCode(s), nil
}

// State is one catalog entry
type State struct {
	Code StateCode `json:"code" yaml:"code"`
	Name string    `json:"name" yaml:"name"`
}

func (s State) String() string {
	if s.Name == "" {
		return string(s.Code)
	}
	return fmt.Sprintf("%s (%s)", s.Code, s.Name)
}

// Record is one registry entry. Identity is ID alone; Attributes may drift between pages.
type Record struct {
	ID         string         `json:"id"`
	State      StateCode      `json:"state"`
	Attributes map[string]any `json:"attributes"`
}

// Page is one fetch result for one state
type Page struct {
	Records []Record
	Next    string // Continuation token for the following page
	HasMore bool
	Total   int // Total records reported by the registry, -1 when unknown
}
