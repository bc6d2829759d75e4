package checkpoint_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"reelsmith/internal/checkpoint"
	"reelsmith/internal/state"
)

func TestMemoryStoreMatchesClaimSemantics(t *testing.T) {
	store := checkpoint.NewMemory()
	ctx := context.Background()

	first := state.NewRecord(state.Input{Type: "text", Content: "one"}, state.Options{})
	if err := store.Save(ctx, first); err != nil {
		t.Fatalf("Save: %v", err)
	}
	time.Sleep(time.Millisecond)
	second := state.NewRecord(state.Input{Type: "text", Content: "two"}, state.Options{})
	if err := store.Save(ctx, second); err != nil {
		t.Fatalf("Save: %v", err)
	}

	claimed, err := store.ClaimPending(ctx)
	if err != nil {
		t.Fatalf("ClaimPending: %v", err)
	}
	if claimed.JobID != first.JobID || claimed.Status != state.StatusRunning {
		t.Fatalf("claimed %s (%s), want oldest pending", claimed.JobID, claimed.Status)
	}

	reclaimed, err := store.ReclaimStale(ctx, time.Now().UTC().Add(time.Hour))
	if err != nil {
		t.Fatalf("ReclaimStale: %v", err)
	}
	if reclaimed != 1 {
		t.Fatalf("reclaimed = %d", reclaimed)
	}
}

func TestMemoryStoreCancelAndIsolation(t *testing.T) {
	store := checkpoint.NewMemory()
	ctx := context.Background()

	rec := state.NewRecord(state.Input{Type: "text", Content: "x"}, state.Options{})
	if err := store.Save(ctx, rec); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := store.RequestCancel(ctx, rec.JobID); err != nil {
		t.Fatalf("RequestCancel: %v", err)
	}
	cancelled, err := store.CancelRequested(ctx, rec.JobID)
	if err != nil || !cancelled {
		t.Fatalf("CancelRequested = %v, %v", cancelled, err)
	}

	// Mutating a loaded copy must not leak into the store.
	loaded, err := store.Load(ctx, rec.JobID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	loaded.Input.Content = "mutated"
	again, err := store.Load(ctx, rec.JobID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if again.Input.Content != "x" {
		t.Fatal("store returned aliased record")
	}

	if _, err := store.Load(ctx, "missing"); !errors.Is(err, checkpoint.ErrNotFound) {
		t.Fatalf("Load missing = %v", err)
	}
}
