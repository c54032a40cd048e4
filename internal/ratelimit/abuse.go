package ratelimit

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// AbuseConfig configures the abuse checker.
type AbuseConfig struct {
	MaxInputLength  int
	BlockedKeywords []string
	Window          time.Duration
	MaxRequests     int
}

// AbuseChecker rejects oversized input, blocked keywords and clients that
// burst past MaxRequests within Window.
type AbuseChecker struct {
	maxInputLength int
	keywords       []string
	window         time.Duration
	maxRequests    int

	mu      sync.Mutex
	history map[string][]time.Time
	now     func() time.Time
}

// NewAbuseChecker creates a checker. Window defaults to 5m and MaxRequests
// to 30.
func NewAbuseChecker(config AbuseConfig) *AbuseChecker {
	if config.Window <= 0 {
		config.Window = 5 * time.Minute
	}
	if config.MaxRequests <= 0 {
		config.MaxRequests = 30
	}
	if config.MaxInputLength <= 0 {
		config.MaxInputLength = 10000
	}
	keywords := make([]string, 0, len(config.BlockedKeywords))
	for _, k := range config.BlockedKeywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			keywords = append(keywords, k)
		}
	}
	return &AbuseChecker{
		maxInputLength: config.MaxInputLength,
		keywords:       keywords,
		window:         config.Window,
		maxRequests:    config.MaxRequests,
		history:        make(map[string][]time.Time),
		now:            time.Now,
	}
}

// Check runs the length, keyword and burst checks in that order and
// returns the first failure message, or "" when the request may proceed.
// Only requests that reach the burst check are counted.
func (c *AbuseChecker) Check(message, clientID string) string {
	if len([]rune(message)) > c.maxInputLength {
		return fmt.Sprintf("Input exceeds maximum length of %d characters", c.maxInputLength)
	}
	lower := strings.ToLower(message)
	for _, k := range c.keywords {
		if strings.Contains(lower, k) {
			return "Input contains disallowed content"
		}
	}
	if !c.record(clientID) {
		return "Rate limit exceeded - too many requests in short period"
	}
	return ""
}

func (c *AbuseChecker) record(clientID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	kept := c.history[clientID][:0]
	for _, t := range c.history[clientID] {
		if now.Sub(t) < c.window {
			kept = append(kept, t)
		}
	}
	if len(kept) > c.maxRequests {
		c.history[clientID] = kept
		return false
	}
	c.history[clientID] = append(kept, now)
	return true
}
