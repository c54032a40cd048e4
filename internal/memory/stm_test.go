package memory

import (
	"fmt"
	"sync"
	"testing"
)

func TestShortTermMemory_RingBound(t *testing.T) {
	stm := NewShortTermMemory(5)
	for i := 0; i < 8; i++ {
		stm.Append("s1", "user", fmt.Sprintf("msg-%d", i))
	}
	all := stm.All("s1")
	if len(all) != 5 {
		t.Fatalf("expected 5 messages, got %d", len(all))
	}
	if all[0].Content != "msg-3" || all[4].Content != "msg-7" {
		t.Fatalf("expected msg-3..msg-7, got %q..%q", all[0].Content, all[4].Content)
	}
}

func TestShortTermMemory_RecentAndClear(t *testing.T) {
	stm := NewShortTermMemory(0)
	if stm.MaxTurns() != DefaultSTMTurns {
		t.Fatalf("expected default %d turns, got %d", DefaultSTMTurns, stm.MaxTurns())
	}
	stm.Append("s1", "user", "a")
	stm.Append("s1", "assistant", "b")
	stm.Append("s2", "user", "other")

	recent := stm.Recent("s1", 1)
	if len(recent) != 1 || recent[0].Content != "b" {
		t.Fatalf("expected last message b, got %+v", recent)
	}

	stm.Clear("s1")
	if got := len(stm.All("s1")); got != 0 {
		t.Fatalf("expected cleared session, got %d messages", got)
	}
	if got := len(stm.All("s2")); got != 1 {
		t.Fatalf("expected other session untouched, got %d messages", got)
	}
}

func TestShortTermMemory_ReturnsCopies(t *testing.T) {
	stm := NewShortTermMemory(5)
	stm.Append("s1", "user", "original")
	msgs := stm.All("s1")
	msgs[0].Content = "mutated"
	if stm.All("s1")[0].Content != "original" {
		t.Fatal("expected stored history to be unaffected by caller mutation")
	}
}

func TestShortTermMemory_Concurrent(t *testing.T) {
	stm := NewShortTermMemory(100)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				stm.Append("shared", "user", fmt.Sprintf("%d-%d", i, j))
			}
		}(i)
	}
	wg.Wait()
	if got := len(stm.All("shared")); got != 100 {
		t.Fatalf("expected 100 messages, got %d", got)
	}
}
