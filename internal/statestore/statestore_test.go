package statestore

import (
	"path/filepath"
	"testing"
	"time"
)

func TestUpdateAndIndex(t *testing.T) {
	s := New("")

	if _, ok := s.Index("https://log.example/"); ok {
		t.Fatalf("expected no cursor for an unknown log")
	}

	s.Update("https://log.example/", 42, 100, time.Unix(1704067200, 0))

	idx, ok := s.Index("https://log.example/")
	if !ok || idx != 42 {
		t.Fatalf("Index = (%d, %v), want (42, true)", idx, ok)
	}
}

func TestSaveIfDirtyWithoutPathIsANoop(t *testing.T) {
	s := New("")
	s.Update("https://log.example/", 1, 1, time.Unix(0, 0))
	s.SaveIfDirty() // must not panic despite filePath == ""
	if s.dirty.Load() {
		t.Fatalf("dirty flag should clear even without a file path")
	}
}

func TestPersistAndReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")

	s := New(path)
	s.Update("https://log.example/", 7, 20, time.Unix(1704067200, 0))
	s.SaveIfDirty()

	reloaded := New(path)
	idx, ok := reloaded.Index("https://log.example/")
	if !ok || idx != 7 {
		t.Fatalf("reloaded Index = (%d, %v), want (7, true)", idx, ok)
	}
}

func TestLoadMissingFileStartsEmpty(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "does-not-exist.json")

	s := New(path)
	if _, ok := s.Index("anything"); ok {
		t.Fatalf("expected an empty store when no state file exists")
	}
}
