package memory

import (
	"context"
	"testing"
	"time"
)

func TestNewPruner_Validation(t *testing.T) {
	store := openTestStore(t)
	if _, err := NewPruner(nil, "@daily", time.Hour, nil); err == nil {
		t.Fatal("expected error for nil store")
	}
	if _, err := NewPruner(store, "@daily", 0, nil); err == nil {
		t.Fatal("expected error for zero retention")
	}
	if _, err := NewPruner(store, "not a schedule", time.Hour, nil); err == nil {
		t.Fatal("expected error for invalid schedule")
	}
	p, err := NewPruner(store, "0 3 * * *", time.Hour, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p.Start()
	p.Stop()
}

func TestPruner_PruneOnce(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	store.now = func() time.Time { return time.Now().Add(-72 * time.Hour) }
	if _, err := store.Store(ctx, Entry{SessionID: "s1", Content: "old"}); err != nil {
		t.Fatalf("store failed: %v", err)
	}
	store.now = time.Now

	p, err := NewPruner(store, "@hourly", 24*time.Hour, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	n, err := p.PruneOnce(ctx)
	if err != nil {
		t.Fatalf("prune failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 pruned, got %d", n)
	}
}
