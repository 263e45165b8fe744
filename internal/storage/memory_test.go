package storage

import (
	"context"
	"testing"
)

func TestMemoryStoreContract(t *testing.T) {
	store := NewMemoryStore()
	if err := store.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	exerciseStore(t, store)
}

func TestMemoryStoreRequiresInit(t *testing.T) {
	store := NewMemoryStore()
	if err := store.SaveRun(context.Background(), testRun("run-1", "2026-02-10T10:00:00Z")); err == nil {
		t.Fatal("expected error saving to an uninitialized store")
	}
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := store.SaveParameterSet(ctx, testParameterSet("p1")); err != nil {
		t.Fatalf("save: %v", err)
	}

	first, _, err := store.GetParameterSet(ctx, "p1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	first.Parameters.Weights[0] = 42
	first.Names.Hidden[0] = "mutated"

	second, _, err := store.GetParameterSet(ctx, "p1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if second.Parameters.Weights[0] != 0.25 || second.Names.Hidden[0] != "hidden 1" {
		t.Fatalf("stored parameter set was mutated through a returned copy: %+v", second)
	}
}
