package agent

import (
	"sync"
	"sync/atomic"
	"testing"
)

func TestIsConfirmation(t *testing.T) {
	for _, msg := range []string{"confirm", "CONFIRM", "  Confirm \n"} {
		if !IsConfirmation(msg) {
			t.Fatalf("expected %q to confirm", msg)
		}
	}
	for _, msg := range []string{"", "yes", "confirm it", "confirmed"} {
		if IsConfirmation(msg) {
			t.Fatalf("expected %q not to confirm", msg)
		}
	}
}

func TestPendingStore(t *testing.T) {
	s := NewPendingStore()
	s.Put("s1", PendingConfirmation{UserMessage: "first"})
	s.Put("s1", PendingConfirmation{UserMessage: "second"})
	if s.Len() != 1 {
		t.Fatalf("expected one entry per session, got %d", s.Len())
	}
	if p, ok := s.Get("s1"); !ok || p.UserMessage != "second" {
		t.Fatalf("expected latest entry, got %+v", p)
	}

	if _, ok := s.PopIfConfirm("s1", "no thanks"); ok {
		t.Fatal("expected non-confirm reply to leave the entry")
	}
	if s.Len() != 1 {
		t.Fatal("expected entry kept after non-confirm reply")
	}
	if _, ok := s.PopIfConfirm("s1", "confirm"); !ok {
		t.Fatal("expected confirm to pop")
	}
	if _, ok := s.Pop("s1"); ok {
		t.Fatal("expected entry consumed")
	}
}

func TestPendingStoreSinglePop(t *testing.T) {
	s := NewPendingStore()
	s.Put("s1", PendingConfirmation{UserMessage: "run"})

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := s.PopIfConfirm("s1", "confirm"); ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	if wins.Load() != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins.Load())
	}
}
