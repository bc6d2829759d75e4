package testsupport

import (
	"context"
	"testing"

	"reelsmith/internal/checkpoint"
	"reelsmith/internal/config"
	"reelsmith/internal/state"
)

// MustOpenStore opens a SQLite checkpoint store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *checkpoint.DB {
	t.Helper()

	store, err := checkpoint.Open(cfg)
	if err != nil {
		t.Fatalf("checkpoint.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewJob creates and persists a pending job record for tests.
func NewJob(t testing.TB, store checkpoint.Store, content string) *state.Record {
	t.Helper()

	rec := state.NewRecord(state.Input{Type: "text", Content: content}, state.Options{MaxAttempts: 3})
	if err := store.Save(context.Background(), rec); err != nil {
		t.Fatalf("store.Save: %v", err)
	}
	return rec
}
