package store

import (
	"errors"
	"io"
	"testing"
	"time"
)

func sampleResult(runID string) *FitResult {
	return &FitResult{
		RunID:      runID,
		Names:      []string{"b1", "f"},
		X:          []float64{2.05, 0.48},
		Fun:        123.45,
		Iterations: 42,
		Funcalls:   180,
		Status:     2,
		Message:    "projected gradient norm below tolerance",
		Converged:  true,
		Elapsed:    3 * time.Second,
		Timestamp:  time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC),
		Config: RunConfig{
			Model:    "reference",
			DataPath: "data/poles.json",
			InitFrom: "fiducial",
			Epsilon:  1e-4,
			MaxIter:  500,
		},
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	fs, err := NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSStore returned error: %v", err)
	}

	want := sampleResult(NewRunID())
	if err := fs.SaveResult(want.RunID, want); err != nil {
		t.Fatalf("SaveResult returned error: %v", err)
	}

	got, err := fs.LoadResult(want.RunID)
	if err != nil {
		t.Fatalf("LoadResult returned error: %v", err)
	}
	if got.RunID != want.RunID || got.Fun != want.Fun || got.Iterations != want.Iterations {
		t.Errorf("loaded result differs: %+v", got)
	}
	if len(got.X) != 2 || got.X[0] != 2.05 {
		t.Errorf("loaded X = %v", got.X)
	}
	if got.Config.Model != "reference" {
		t.Errorf("loaded config model = %q", got.Config.Model)
	}
}

func TestLoadMissingResult(t *testing.T) {
	fs, _ := NewFSStore(t.TempDir())

	_, err := fs.LoadResult("no-such-run")
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("error = %v, want NotFoundError", err)
	}
	if !errors.Is(err, ErrNotFound) {
		t.Error("NotFoundError does not match ErrNotFound")
	}
}

func TestSaveRejectsInvalidResult(t *testing.T) {
	fs, _ := NewFSStore(t.TempDir())

	bad := sampleResult("run")
	bad.X = bad.X[:1] // length mismatch against Names
	err := fs.SaveResult("run", bad)
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("error = %v, want ValidationError", err)
	}
}

func TestListResults(t *testing.T) {
	fs, _ := NewFSStore(t.TempDir())

	for _, id := range []string{"a", "b", "c"} {
		r := sampleResult(id)
		if err := fs.SaveResult(id, r); err != nil {
			t.Fatalf("SaveResult(%s) returned error: %v", id, err)
		}
	}

	infos, err := fs.ListResults()
	if err != nil {
		t.Fatalf("ListResults returned error: %v", err)
	}
	if len(infos) != 3 {
		t.Fatalf("listed %d results, want 3", len(infos))
	}
	for _, info := range infos {
		if info.Model != "reference" || !info.Converged {
			t.Errorf("listing entry %+v", info)
		}
	}
}

func TestDeleteResult(t *testing.T) {
	fs, _ := NewFSStore(t.TempDir())

	r := sampleResult("gone")
	if err := fs.SaveResult("gone", r); err != nil {
		t.Fatalf("SaveResult returned error: %v", err)
	}
	if err := fs.DeleteResult("gone"); err != nil {
		t.Fatalf("DeleteResult returned error: %v", err)
	}
	if _, err := fs.LoadResult("gone"); err == nil {
		t.Error("result still loadable after delete")
	}
	var nf *NotFoundError
	if err := fs.DeleteResult("gone"); !errors.As(err, &nf) {
		t.Errorf("second delete error = %v, want NotFoundError", err)
	}
}

func TestIsCompatible(t *testing.T) {
	r := sampleResult("run")

	if err := r.IsCompatible(r.Config); err != nil {
		t.Errorf("result incompatible with its own config: %v", err)
	}

	other := r.Config
	other.Model = "different"
	err := r.IsCompatible(other)
	var ce *CompatibilityError
	if !errors.As(err, &ce) {
		t.Fatalf("error = %v, want CompatibilityError", err)
	}
	if ce.Field != "Model" {
		t.Errorf("mismatched field = %q, want Model", ce.Field)
	}
}

func TestResultValue(t *testing.T) {
	r := sampleResult("run")
	if v, ok := r.Value("f"); !ok || v != 0.48 {
		t.Errorf("Value(f) = (%v, %v)", v, ok)
	}
	if _, ok := r.Value("missing"); ok {
		t.Error("Value found a parameter that does not exist")
	}
}

func TestTraceWriteRead(t *testing.T) {
	dir := t.TempDir()

	tw, err := NewTraceWriter(dir, "run", false)
	if err != nil {
		t.Fatalf("NewTraceWriter returned error: %v", err)
	}
	for i := 1; i <= 3; i++ {
		entry := TraceEntry{Iteration: i, F: float64(100 - i), Timestamp: time.Now()}
		if err := tw.Write(entry); err != nil {
			t.Fatalf("Write returned error: %v", err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}

	tr, err := NewTraceReader(dir, "run")
	if err != nil {
		t.Fatalf("NewTraceReader returned error: %v", err)
	}
	defer tr.Close()

	entries, err := tr.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll returned error: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("read %d entries, want 3", len(entries))
	}
	if entries[0].Iteration != 1 || entries[2].F != 97 {
		t.Errorf("entries = %+v", entries)
	}
}

func TestTraceAppendExtends(t *testing.T) {
	dir := t.TempDir()

	tw, _ := NewTraceWriter(dir, "run", false)
	tw.Write(TraceEntry{Iteration: 1, F: 10, Timestamp: time.Now()})
	tw.Close()

	tw2, err := NewTraceWriter(dir, "run", true)
	if err != nil {
		t.Fatalf("NewTraceWriter(append) returned error: %v", err)
	}
	tw2.Write(TraceEntry{Iteration: 2, F: 9, Timestamp: time.Now()})
	tw2.Close()

	tr, _ := NewTraceReader(dir, "run")
	defer tr.Close()
	entries, err := tr.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll returned error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("appended trace has %d entries, want 2", len(entries))
	}
}

func TestTraceReaderMissing(t *testing.T) {
	_, err := NewTraceReader(t.TempDir(), "nope")
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("error = %v, want NotFoundError", err)
	}
}

func TestTraceReadEOF(t *testing.T) {
	dir := t.TempDir()
	tw, _ := NewTraceWriter(dir, "run", false)
	tw.Close()

	tr, err := NewTraceReader(dir, "run")
	if err != nil {
		t.Fatalf("NewTraceReader returned error: %v", err)
	}
	defer tr.Close()
	if _, err := tr.Read(); err != io.EOF {
		t.Errorf("Read on empty trace = %v, want io.EOF", err)
	}
}
