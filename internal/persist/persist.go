// Package persist writes run artifacts so a reader never observes a partial file
package persist

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/ppiankov/rnpdno/internal/model"
)

// Overridden in tests to simulate crashes between create and rename.
var (
	writeFunc   = func(f *os.File, data []byte) (int, error) { return f.Write(data) }
	renameFunc  = os.Rename
	syncDirFunc = syncDir
)

// PersistError is any I/O failure while writing an artifact. The destination is untouched.
type PersistError struct {
	Path string
	Op   string
	Err  error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("persist %s: %s: %v", e.Path, e.Op, e.Err)
}

func (e *PersistError) Unwrap() error { return e.Err }

// Document is the persisted dataset
type Document struct {
	RunID       string              `json:"run_id"`
	Title       string              `json:"title,omitempty"`
	Filter      model.FilterSummary `json:"filter"`
	GeneratedAt time.Time           `json:"generated_at"`
	States      []model.StateCode   `json:"states"` // States whose walk succeeded
	Count       int                 `json:"count"`
	Collisions  []model.Collision   `json:"collisions,omitempty"`
	Records     []model.Record      `json:"records"`
}

// NewDocument describes dataset for the given run
func NewDocument(runID string, spec model.FilterSpec, states []model.StateCode, dataset *model.Dataset, now time.Time) Document {
	records := dataset.Records
	if records == nil {
		records = []model.Record{}
	}
	if states == nil {
		states = []model.StateCode{}
	}
	return Document{
		RunID:       runID,
		Title:       spec.Title(),
		Filter:      spec.Summary(),
		GeneratedAt: now.UTC(),
		States:      states,
		Count:       len(records),
		Collisions:  dataset.Collisions,
		Records:     records,
	}
}

// Persister writes documents as JSON
type Persister struct {
	pretty bool
	log    zerolog.Logger
}

// New creates a persister
func New(pretty bool, log zerolog.Logger) *Persister {
	return &Persister{pretty: pretty, log: log}
}

// WriteDataset replaces path with doc
func (p *Persister) WriteDataset(path string, doc Document) error {
	if err := p.writeJSON(path, doc); err != nil {
		return err
	}
	p.log.Info().Str("path", path).Int("records", doc.Count).Msg("dataset written")
	return nil
}

// WriteReport replaces path with the run outcome
func (p *Persister) WriteReport(path string, outcome *model.RunOutcome) error {
	if err := p.writeJSON(path, outcome); err != nil {
		return err
	}
	p.log.Debug().Str("path", path).Msg("run report written")
	return nil
}

func (p *Persister) writeJSON(path string, v any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if p.pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(v); err != nil {
		return &PersistError{Path: path, Op: "encode", Err: err}
	}
	return WriteFileAtomic(path, buf.Bytes())
}

// WriteFileAtomic writes data to a temp file in path's directory, syncs it, renames it
// over path and syncs the directory so the rename survives a crash. A failure before
// the rename removes the temp file and leaves path with its prior contents.
func WriteFileAtomic(path string, data []byte) (err error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return &PersistError{Path: path, Op: "create temp", Err: err}
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := writeFunc(tmp, data); err != nil {
		return &PersistError{Path: path, Op: "write", Err: err}
	}
	if err := tmp.Sync(); err != nil {
		return &PersistError{Path: path, Op: "sync", Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &PersistError{Path: path, Op: "close", Err: err}
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return &PersistError{Path: path, Op: "chmod", Err: err}
	}
	if err := renameFunc(tmpName, path); err != nil {
		return &PersistError{Path: path, Op: "rename", Err: err}
	}
	if err := syncDirFunc(dir); err != nil {
		return &PersistError{Path: path, Op: "sync dir", Err: err}
	}
	return nil
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	if err := d.Sync(); err != nil {
		_ = d.Close()
		return err
	}
	return d.Close()
}
