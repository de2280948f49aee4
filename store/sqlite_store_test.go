package store

import (
	"encoding/json"
	"path/filepath"
	"testing"
)

func setupSQLiteStore(t *testing.T) *SQLiteProjectStore {
	t.Helper()
	s, err := NewSQLiteProjectStore(filepath.Join(t.TempDir(), "data", "state.db"))
	if err != nil {
		t.Fatalf("open sqlite store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteStoreFirstRunYieldsNil(t *testing.T) {
	s := setupSQLiteStore(t)
	state, err := s.Load()
	if err != nil {
		t.Fatal(err)
	}
	if state != nil {
		t.Fatal("empty database must load as nil")
	}
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	s := setupSQLiteStore(t)
	saved := sampleState()
	if err := s.Save(saved); err != nil {
		t.Fatal(err)
	}
	loaded, err := s.Load()
	if err != nil {
		t.Fatal(err)
	}

	savedJSON, _ := json.Marshal(saved)
	loadedJSON, _ := json.Marshal(loaded)
	if string(savedJSON) != string(loadedJSON) {
		t.Fatalf("round trip mismatch:\nsaved:  %s\nloaded: %s", savedJSON, loadedJSON)
	}
}

func TestSQLiteStoreOverwritesSingleRow(t *testing.T) {
	s := setupSQLiteStore(t)

	first := sampleState()
	if err := s.Save(first); err != nil {
		t.Fatal(err)
	}
	second := sampleState()
	second.Version = 9
	second.Goal = "revised"
	if err := s.Save(second); err != nil {
		t.Fatal(err)
	}

	loaded, err := s.Load()
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Version != 9 || loaded.Goal != "revised" {
		t.Fatalf("latest save must win, got version=%d goal=%q", loaded.Version, loaded.Goal)
	}
}
