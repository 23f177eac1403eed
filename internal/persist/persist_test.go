package persist

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"

	"github.com/ppiankov/rnpdno/internal/model"
)

func sampleDocument(t *testing.T, ids ...string) Document {
	t.Helper()
	spec, err := model.NewFilterSpec(model.FilterParams{
		StatusID:      "7",
		Title:         "PERSONAS DESAPARECIDAS Y NO LOCALIZADAS",
		DateStart:     "2024-01-01",
		DateEnd:       "2025-01-01",
		NationalityID: "1",
	})
	if err != nil {
		t.Fatal(err)
	}
	records := make([]model.Record, len(ids))
	for i, id := range ids {
		records[i] = model.Record{ID: id, State: "1", Attributes: map[string]any{"nombre": "N" + id}}
	}
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	return NewDocument("run-1", spec, []model.StateCode{"1"}, model.NewDataset(records, nil), now)
}

func readDocument(t *testing.T, path string) Document {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("destination is not a complete document: %v", err)
	}
	return doc
}

func assertNoTempFiles(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		names := make([]string, len(entries))
		for i, e := range entries {
			names[i] = e.Name()
		}
		t.Errorf("expected only the destination file, found %v", names)
	}
}

func TestWriteDataset_ReplacesPrior(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "datos.json")
	p := New(true, zerolog.Nop())

	if err := p.WriteDataset(path, sampleDocument(t, "1", "2")); err != nil {
		t.Fatalf("first write: %v", err)
	}
	next := sampleDocument(t, "3")
	if err := p.WriteDataset(path, next); err != nil {
		t.Fatalf("second write: %v", err)
	}

	got := readDocument(t, path)
	if got.Count != 1 || got.Records[0].ID != "3" {
		t.Errorf("expected replaced content, got %+v", got)
	}
	if got.Title != "PERSONAS DESAPARECIDAS Y NO LOCALIZADAS" || got.Filter.DateStart != "2024-01-01" {
		t.Errorf("filter metadata lost: %+v", got.Filter)
	}
	if diff := cmp.Diff(next.GeneratedAt, got.GeneratedAt); diff != "" {
		t.Errorf("generated_at mismatch (-want +got):\n%s", diff)
	}
	assertNoTempFiles(t, dir)
}

func TestWriteDataset_CrashMidWriteKeepsPrior(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "datos.json")
	p := New(false, zerolog.Nop())

	if err := p.WriteDataset(path, sampleDocument(t, "1", "2")); err != nil {
		t.Fatal(err)
	}
	before, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	orig := writeFunc
	writeFunc = func(f *os.File, data []byte) (int, error) {
		n, _ := f.Write(data[:len(data)/2])
		return n, errors.New("disk full")
	}
	defer func() { writeFunc = orig }()

	err = p.WriteDataset(path, sampleDocument(t, "9"))
	var pe *PersistError
	if !errors.As(err, &pe) || pe.Op != "write" {
		t.Fatalf("expected write PersistError, got %v", err)
	}

	after, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(string(before), string(after)); diff != "" {
		t.Errorf("prior file changed (-before +after):\n%s", diff)
	}
	assertNoTempFiles(t, dir)
}

func TestWriteDataset_RenameFailure(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "datos.json")

	orig := renameFunc
	renameFunc = func(string, string) error { return errors.New("cross-device link") }
	defer func() { renameFunc = orig }()

	err := New(false, zerolog.Nop()).WriteDataset(path, sampleDocument(t, "1"))
	var pe *PersistError
	if !errors.As(err, &pe) || pe.Op != "rename" {
		t.Fatalf("expected rename PersistError, got %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("destination should not exist, stat err = %v", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("temp file left behind: %d entries", len(entries))
	}
}

func TestWriteFileAtomic_SyncsDirectoryAfterRename(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "datos.json")

	var synced []string
	origRename, origSync := renameFunc, syncDirFunc
	renamed := false
	renameFunc = func(from, to string) error {
		renamed = true
		return origRename(from, to)
	}
	syncDirFunc = func(d string) error {
		if !renamed {
			t.Error("directory synced before the rename")
		}
		synced = append(synced, d)
		return origSync(d)
	}
	defer func() { renameFunc, syncDirFunc = origRename, origSync }()

	if err := WriteFileAtomic(path, []byte(`{}`)); err != nil {
		t.Fatalf("WriteFileAtomic: %v", err)
	}
	if diff := cmp.Diff([]string{dir}, synced); diff != "" {
		t.Errorf("synced dirs mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteFileAtomic_DirectorySyncFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "datos.json")

	orig := syncDirFunc
	syncDirFunc = func(string) error { return errors.New("input/output error") }
	defer func() { syncDirFunc = orig }()

	err := WriteFileAtomic(path, []byte(`{}`))
	var pe *PersistError
	if !errors.As(err, &pe) || pe.Op != "sync dir" {
		t.Fatalf("expected sync dir PersistError, got %v", err)
	}
}

func TestWriteDataset_MissingDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "datos.json")
	err := New(false, zerolog.Nop()).WriteDataset(path, sampleDocument(t, "1"))
	var pe *PersistError
	if !errors.As(err, &pe) {
		t.Fatalf("expected PersistError, got %v", err)
	}
}

func TestNewDocument_EmptyDataset(t *testing.T) {
	doc := NewDocument("run", model.FilterSpec{}, nil, model.NewDataset(nil, nil), time.Now())
	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatal(err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatal(err)
	}
	if recs, ok := raw["records"].([]any); !ok || len(recs) != 0 {
		t.Errorf("expected an empty records array, got %v", raw["records"])
	}
	if doc.Count != 0 {
		t.Errorf("expected count 0, got %d", doc.Count)
	}
}

func TestWriteReport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.json")
	outcome := &model.RunOutcome{
		RunID: "run-1",
		Phase: model.PhaseDone,
		States: []model.StateOutcome{
			{State: model.State{Code: "1"}, Pages: 2, Records: 3},
			{State: model.State{Code: "2"}, Error: "state 2: page 1 failed", Err: errors.New("x")},
		},
	}
	outcome.Tally()

	if err := New(true, zerolog.Nop()).WriteReport(path, outcome); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var got model.RunOutcome
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	if got.FailedCount != 1 || got.Pages != 2 || got.States[1].Error == "" {
		t.Errorf("unexpected report %+v", got)
	}
}
