package state

import (
	"errors"
	"testing"

	"ethpool/storage"
)

func TestEnsureSchemaVersion(t *testing.T) {
	manager := NewManager(storage.NewMemDB())
	if err := manager.EnsureSchemaVersion(); err != nil {
		t.Fatalf("stamp empty database: %v", err)
	}
	version, ok, err := manager.SchemaVersion()
	if err != nil || !ok || version != SchemaVersion {
		t.Fatalf("unexpected stored version %d (present=%v): %v", version, ok, err)
	}
	if err := manager.EnsureSchemaVersion(); err != nil {
		t.Fatalf("matching version rejected: %v", err)
	}

	if err := manager.SetSchemaVersion(SchemaVersion + 1); err != nil {
		t.Fatalf("set version: %v", err)
	}
	if err := manager.EnsureSchemaVersion(); !errors.Is(err, ErrSchemaMismatch) {
		t.Fatalf("expected mismatch, got %v", err)
	}
}
