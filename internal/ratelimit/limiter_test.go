package ratelimit

import (
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestLimiter_Allow(t *testing.T) {
	l := NewLimiter(Config{RequestsPerMinute: 60, Burst: 3, Enabled: true})
	now := time.Now()
	l.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		if !l.Allow("client") {
			t.Fatalf("expected request %d within burst to pass", i+1)
		}
	}
	if l.Allow("client") {
		t.Fatal("expected request past burst to be limited")
	}
	if !l.Allow("other") {
		t.Fatal("expected other client to have its own bucket")
	}

	now = now.Add(time.Second)
	if !l.Allow("client") {
		t.Fatal("expected a token after one second at 60/min")
	}
}

func TestLimiter_WaitTime(t *testing.T) {
	l := NewLimiter(Config{RequestsPerMinute: 60, Burst: 1, Enabled: true})
	now := time.Now()
	l.now = func() time.Time { return now }

	if wait := l.WaitTime("client"); wait != 0 {
		t.Fatalf("expected no wait, got %v", wait)
	}
	l.Allow("client")
	wait := l.WaitTime("client")
	if wait <= 0 || wait > time.Second {
		t.Fatalf("expected wait up to 1s, got %v", wait)
	}
	// WaitTime must not consume the token.
	now = now.Add(time.Second)
	if !l.Allow("client") {
		t.Fatal("expected token after waiting")
	}
}

func TestLimiter_Disabled(t *testing.T) {
	l := NewLimiter(Config{RequestsPerMinute: 1, Burst: 1})
	for i := 0; i < 10; i++ {
		if !l.Allow("client") {
			t.Fatal("expected disabled limiter to allow everything")
		}
	}
	var nilLimiter *Limiter
	if !nilLimiter.Allow("x") {
		t.Fatal("expected nil limiter to allow")
	}
}

func TestLimiter_Reset(t *testing.T) {
	l := NewLimiter(Config{RequestsPerMinute: 1, Burst: 1, Enabled: true})
	l.Allow("client")
	if l.Allow("client") {
		t.Fatal("expected limit")
	}
	l.Reset("client")
	if !l.Allow("client") {
		t.Fatal("expected fresh bucket after reset")
	}
}

func TestLimiter_PrunesIdleKeys(t *testing.T) {
	l := NewLimiter(Config{RequestsPerMinute: 60, Burst: 10, Enabled: true})
	l.maxKeys = 5
	now := time.Now()
	l.now = func() time.Time { return now }

	for i := 0; i < 5; i++ {
		l.Allow(fmt.Sprintf("idle-%d", i))
	}
	now = now.Add(time.Minute)
	l.Allow("new")
	if l.Len() != 1 {
		t.Fatalf("expected idle keys pruned, got %d keys", l.Len())
	}
}

func TestAbuseChecker_Order(t *testing.T) {
	c := NewAbuseChecker(AbuseConfig{MaxInputLength: 10, BlockedKeywords: []string{" Forbidden "}})

	tests := []struct {
		message string
		want    string
	}{
		{strings.Repeat("a", 11), "Input exceeds maximum length of 10 characters"},
		{"FORBIDDEN", "Input contains disallowed content"},
		{"hello", ""},
	}
	for _, tt := range tests {
		if got := c.Check(tt.message, "client"); got != tt.want {
			t.Fatalf("Check(%q): expected %q, got %q", tt.message, tt.want, got)
		}
	}
}

func TestAbuseChecker_Burst(t *testing.T) {
	c := NewAbuseChecker(AbuseConfig{Window: time.Minute, MaxRequests: 3})
	now := time.Now()
	c.now = func() time.Time { return now }

	// More than MaxRequests are tolerated before the window blocks.
	for i := 0; i < 4; i++ {
		if got := c.Check("hi", "client"); got != "" {
			t.Fatalf("expected request %d to pass, got %q", i+1, got)
		}
	}
	if got := c.Check("hi", "client"); got != "Rate limit exceeded - too many requests in short period" {
		t.Fatalf("expected burst block, got %q", got)
	}
	if got := c.Check("hi", "other"); got != "" {
		t.Fatalf("expected other client unaffected, got %q", got)
	}

	now = now.Add(time.Minute)
	if got := c.Check("hi", "client"); got != "" {
		t.Fatalf("expected window to expire, got %q", got)
	}
}

func TestAbuseChecker_RejectedInputNotCounted(t *testing.T) {
	c := NewAbuseChecker(AbuseConfig{MaxInputLength: 100, MaxRequests: 1, BlockedKeywords: []string{"bad"}})
	for i := 0; i < 5; i++ {
		c.Check("bad word", "client")
	}
	if got := c.Check("fine", "client"); got != "" {
		t.Fatalf("expected keyword rejections not to count, got %q", got)
	}
}
