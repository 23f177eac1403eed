package registry

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/ppiankov/rnpdno/internal/model"
)

// StateEnumerator supplies the ordered set of states to walk. The same source yields
// the same order on every call.
type StateEnumerator interface {
	States(ctx context.Context) ([]model.State, error)
}

// CatalogEnumerator serves a fixed catalog
type CatalogEnumerator struct {
	Catalog []model.State
}

// NewCatalogEnumerator serves the built-in catalog of Mexican states
func NewCatalogEnumerator() *CatalogEnumerator {
	return &CatalogEnumerator{Catalog: MexicanStates}
}

func (e *CatalogEnumerator) States(context.Context) ([]model.State, error) {
	if len(e.Catalog) == 0 {
		return nil, errors.New("empty state catalog")
	}
	return slices.Clone(e.Catalog), nil
}

// FileEnumerator reads state codes from a file, one per line. Names are taken from
// the built-in catalog when the code is known.
type FileEnumerator struct {
	Path string
}

func (e *FileEnumerator) States(context.Context) ([]model.State, error) {
	codes, err := ReadStatesFromFile(e.Path)
	if err != nil {
		return nil, err
	}
	if len(codes) == 0 {
		return nil, fmt.Errorf("no states in %s", e.Path)
	}

	names := make(map[model.StateCode]string, len(MexicanStates))
	for _, s := range MexicanStates {
		names[s.Code] = s.Name
	}
	states := make([]model.State, len(codes))
	for i, code := range codes {
		states[i] = model.State{Code: code, Name: names[code]}
	}
	return states, nil
}

// ReadStatesFromFile reads state codes from a file, skipping blank lines, # comments
// and repeated codes
func ReadStatesFromFile(filePath string) ([]model.StateCode, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var codes []model.StateCode
	seen := make(map[model.StateCode]bool)

	scanner := bufio.NewScanner(file)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		code, err := model.ParseStateCode(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		if !seen[code] {
			seen[code] = true
			codes = append(codes, code)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan file: %w", err)
	}

	return codes, nil
}

// StateLister is the part of Client used for discovery
type StateLister interface {
	ListStates(ctx context.Context) ([]model.State, error)
}

// DiscoveryEnumerator asks the registry for its catalog once per call. Any failure is
// fatal to the run; a partial work list is never returned.
type DiscoveryEnumerator struct {
	Lister StateLister
}

func (e *DiscoveryEnumerator) States(ctx context.Context) ([]model.State, error) {
	states, err := e.Lister.ListStates(ctx)
	if err != nil {
		return nil, fmt.Errorf("discover states: %w", err)
	}
	if len(states) == 0 {
		return nil, errors.New("discover states: registry returned no states")
	}
	return states, nil
}

// SelectStates narrows catalog to the states spec asks for, keeping catalog order.
// Requesting a state the catalog lacks is an error.
func SelectStates(catalog []model.State, spec model.FilterSpec) ([]model.State, error) {
	requested := spec.States()
	if len(requested) == 0 {
		return catalog, nil
	}

	known := make(map[model.StateCode]bool, len(catalog))
	for _, s := range catalog {
		known[s.Code] = true
	}
	for _, code := range requested {
		if !known[code] {
			return nil, fmt.Errorf("requested state %s is not in the catalog", code)
		}
	}

	selected := make([]model.State, 0, len(requested))
	for _, s := range catalog {
		if spec.Includes(s.Code) {
			selected = append(selected, s)
		}
	}
	return selected, nil
}
