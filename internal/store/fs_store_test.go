package store

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/cwbudde/invsizer/internal/cell"
)

var testBounds = cell.Bounds{
	Lower: cell.Sizing{Wn: 1, Wp: 1, L: 0.35},
	Upper: cell.Sizing{Wn: 10, Wp: 10, L: 1},
}

// setupTestStore creates a temporary directory and returns an FSStore for testing.
func setupTestStore(t *testing.T) (*FSStore, string) {
	t.Helper()

	tempDir := t.TempDir()
	s, err := NewFSStore(tempDir)
	if err != nil {
		t.Fatalf("Failed to create test store: %v", err)
	}
	return s, tempDir
}

func createTestRecord() *RunRecord {
	rec := NewRunRecord(KindOptimize, "mayfly", testBounds)
	rec.Started = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rec.Elapsed = 1500 * time.Millisecond
	rec.Found = true
	rec.Best = cell.Sizing{Wn: 1.4, Wp: 2.5, L: 0.35}
	rec.Result = cell.Result{Delay: 2.9e-12, Power: 1.09e-5, Area: 4.1}
	rec.Objective = 0.11732
	rec.Evaluations = 6000
	rec.Settings = map[string]string{"seed": "42", "runs": "3"}
	return rec
}

func TestSaveAndLoadRun(t *testing.T) {
	s, tempDir := setupTestStore(t)
	rec := createTestRecord()

	if err := s.SaveRun(rec); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}

	path := filepath.Join(tempDir, "runs", rec.RunID, "record.json")
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("record not written at %s: %v", path, err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Errorf("temp file should not remain after save")
	}

	loaded, err := s.LoadRun(rec.RunID)
	if err != nil {
		t.Fatalf("LoadRun failed: %v", err)
	}
	if diff := cmp.Diff(rec, loaded); diff != "" {
		t.Errorf("loaded record differs (-saved +loaded):\n%s", diff)
	}
}

func TestSaveRunOverwrites(t *testing.T) {
	s, _ := setupTestStore(t)
	rec := createTestRecord()

	if err := s.SaveRun(rec); err != nil {
		t.Fatal(err)
	}
	rec.Objective = 0.1
	if err := s.SaveRun(rec); err != nil {
		t.Fatal(err)
	}

	loaded, err := s.LoadRun(rec.RunID)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Objective != 0.1 {
		t.Errorf("Objective = %v, want 0.1", loaded.Objective)
	}
}

func TestSaveRunRejectsInvalid(t *testing.T) {
	s, _ := setupTestStore(t)

	tests := []struct {
		name   string
		mutate func(*RunRecord)
	}{
		{"empty id", func(r *RunRecord) { r.RunID = "" }},
		{"non-uuid id", func(r *RunRecord) { r.RunID = "run-1" }},
		{"unknown kind", func(r *RunRecord) { r.Kind = "resume" }},
		{"empty driver", func(r *RunRecord) { r.Driver = "" }},
		{"zero start", func(r *RunRecord) { r.Started = time.Time{} }},
		{"negative evaluations", func(r *RunRecord) { r.Evaluations = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := createTestRecord()
			tt.mutate(rec)
			var verr *cell.ValidationError
			if err := s.SaveRun(rec); !errors.As(err, &verr) {
				t.Errorf("expected ValidationError, got %v", err)
			}
		})
	}

	if err := s.SaveRun(nil); err == nil {
		t.Error("expected error for nil record")
	}
}

func TestLoadRunNotFound(t *testing.T) {
	s, _ := setupTestStore(t)

	_, err := s.LoadRun(NewRunID())
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.LoadRun(""); err == nil {
		t.Error("expected error for empty runID")
	}
}

func TestLoadRunCorrupted(t *testing.T) {
	s, _ := setupTestStore(t)
	id := NewRunID()

	if err := os.MkdirAll(s.RunDir(id), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(s.RunDir(id), "record.json"), []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := s.LoadRun(id)
	if err == nil || errors.Is(err, ErrNotFound) {
		t.Errorf("expected deserialization error, got %v", err)
	}
}

func TestListRuns(t *testing.T) {
	s, _ := setupTestStore(t)

	infos, err := s.ListRuns()
	if err != nil {
		t.Fatalf("ListRuns on empty store failed: %v", err)
	}
	if len(infos) != 0 {
		t.Fatalf("expected no runs, got %d", len(infos))
	}

	older := createTestRecord()
	newer := createTestRecord()
	newer.Kind = KindGrid
	newer.Driver = "grid"
	newer.Started = older.Started.Add(time.Hour)
	for _, rec := range []*RunRecord{older, newer} {
		if err := s.SaveRun(rec); err != nil {
			t.Fatal(err)
		}
	}

	// a run directory without a record and a corrupted one are skipped
	if err := os.MkdirAll(s.RunDir(NewRunID()), 0755); err != nil {
		t.Fatal(err)
	}
	broken := s.RunDir(NewRunID())
	if err := os.MkdirAll(broken, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(broken, "record.json"), []byte("[]x"), 0644); err != nil {
		t.Fatal(err)
	}

	infos, err = s.ListRuns()
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	want := []RunInfo{newer.ToInfo(), older.ToInfo()}
	if diff := cmp.Diff(want, infos); diff != "" {
		t.Errorf("listing mismatch (-want +got):\n%s", diff)
	}
}

func TestDeleteRun(t *testing.T) {
	s, _ := setupTestStore(t)
	rec := createTestRecord()
	if err := s.SaveRun(rec); err != nil {
		t.Fatal(err)
	}

	tw, err := NewTraceWriter(s.BaseDir(), rec.RunID)
	if err != nil {
		t.Fatal(err)
	}
	if err := tw.Write(TraceEntry{Sizing: rec.Best}); err != nil {
		t.Fatal(err)
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}

	if err := s.DeleteRun(rec.RunID); err != nil {
		t.Fatalf("DeleteRun failed: %v", err)
	}
	if _, err := os.Stat(s.RunDir(rec.RunID)); !os.IsNotExist(err) {
		t.Error("run directory should be removed with its trace")
	}
	if err := s.DeleteRun(rec.RunID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete: expected ErrNotFound, got %v", err)
	}
}
