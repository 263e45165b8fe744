//go:build sqlite

package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"spikeprop/internal/model"
)

func TestSQLiteStoreContract(t *testing.T) {
	store := NewSQLiteStore(filepath.Join(t.TempDir(), "spikeprop.db"))
	if err := store.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	exerciseStore(t, store)
}

func TestSQLiteStorePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "spikeprop.db")

	store := NewSQLiteStore(dbPath)
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := store.SaveParameterSet(ctx, testParameterSet("p1")); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened := NewSQLiteStore(dbPath)
	if err := reopened.Init(ctx); err != nil {
		t.Fatalf("reopen: %v", err)
	}
	t.Cleanup(func() {
		_ = reopened.Close()
	})
	set, ok, err := reopened.GetParameterSet(ctx, "p1")
	if err != nil || !ok {
		t.Fatalf("get after reopen: ok=%t err=%v", ok, err)
	}
	if set.Parameters.Len() != 3 {
		t.Fatalf("unexpected parameters after reopen: %+v", set.Parameters)
	}
}

func TestSQLiteStoreRejectsVersionMismatch(t *testing.T) {
	ctx := context.Background()
	store := NewSQLiteStore(filepath.Join(t.TempDir(), "spikeprop.db"))
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})

	set := testParameterSet("old")
	set.VersionedRecord = model.VersionedRecord{SchemaVersion: 0, CodecVersion: 1}
	if err := store.SaveParameterSet(ctx, set); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, _, err := store.GetParameterSet(ctx, "old"); !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("expected ErrVersionMismatch, got %v", err)
	}
}

func TestSQLiteStoreRequiresInit(t *testing.T) {
	store := NewSQLiteStore(filepath.Join(t.TempDir(), "spikeprop.db"))
	if _, _, err := store.GetRun(context.Background(), "run-1"); err == nil {
		t.Fatal("expected error before init")
	}
}

func TestNewStoreSQLite(t *testing.T) {
	store, err := NewStore("sqlite", filepath.Join(t.TempDir(), "spikeprop.db"))
	if err != nil {
		t.Fatalf("new sqlite store: %v", err)
	}
	if err := store.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := CloseIfSupported(store); err != nil {
		t.Fatalf("close: %v", err)
	}
	if DefaultStoreKind() != "sqlite" {
		t.Fatalf("unexpected default store kind: %s", DefaultStoreKind())
	}
}
