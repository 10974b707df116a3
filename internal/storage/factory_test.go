package storage

import "testing"

func TestNewStoreMemory(t *testing.T) {
	store, err := NewStore(BackendMemory, "")
	if err != nil {
		t.Fatalf("new memory store: %v", err)
	}
	if _, ok := store.(*MemoryStore); !ok {
		t.Fatalf("expected *MemoryStore, got %T", store)
	}
}

func TestNewStoreSQLite(t *testing.T) {
	store, err := NewStore(BackendSQLite, t.TempDir()+"/runs.db")
	if err != nil {
		t.Fatalf("new sqlite store: %v", err)
	}
	if _, ok := store.(*SQLiteStore); !ok {
		t.Fatalf("expected *SQLiteStore, got %T", store)
	}
	if _, err := NewStore(BackendSQLite, ""); err == nil {
		t.Fatal("expected error without a path")
	}
}

func TestNewStoreUnsupported(t *testing.T) {
	if _, err := NewStore("unknown", ""); err == nil {
		t.Fatal("expected unsupported store error")
	}
}

func TestCloseIfSupported(t *testing.T) {
	if err := CloseIfSupported(NewMemoryStore()); err != nil {
		t.Fatalf("memory store close: %v", err)
	}
	if err := CloseIfSupported(NewSQLiteStore("unused.db")); err != nil {
		t.Fatalf("uninitialised sqlite close: %v", err)
	}
}
