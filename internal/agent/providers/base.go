// Package providers implements agent.LLMProvider for the supported model
// backends: OpenRouter (the default), OpenAI, Anthropic, AWS Bedrock and
// Google Gemini. Every provider streams its answer as agent.CompletionChunk
// values and reports failures as *ProviderError.
package providers

import (
	"context"
	"strings"
	"time"

	"github.com/haasonsaas/conductor/internal/agent"
)

const (
	defaultMaxRetries = 3
	defaultRetryDelay = time.Second
	defaultMaxTokens  = 4096
)

// BaseProvider holds the retry policy shared by all providers.
type BaseProvider struct {
	name       string
	maxRetries int
	retryDelay time.Duration
}

// NewBaseProvider creates a base provider. Non-positive values select the
// defaults of three attempts and a one second delay.
func NewBaseProvider(name string, maxRetries int, retryDelay time.Duration) BaseProvider {
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	if retryDelay <= 0 {
		retryDelay = defaultRetryDelay
	}
	return BaseProvider{name: name, maxRetries: maxRetries, retryDelay: retryDelay}
}

// Name returns the provider name.
func (b *BaseProvider) Name() string { return b.name }

// Retry runs op until it succeeds, returns an error isRetryable rejects, or
// the attempts run out. The wait grows linearly with the attempt number.
func (b *BaseProvider) Retry(ctx context.Context, isRetryable func(error) bool, op func() error) error {
	if op == nil {
		return nil
	}
	var lastErr error
	for attempt := 1; attempt <= b.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if isRetryable == nil || !isRetryable(lastErr) || attempt == b.maxRetries {
			return lastErr
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(b.retryDelay * time.Duration(attempt)):
		}
	}
	return lastErr
}

// systemPrompt folds req.System and every system or developer message into a
// single instruction block, for backends that take the system prompt out of
// band.
func systemPrompt(req *agent.CompletionRequest) string {
	var parts []string
	if s := strings.TrimSpace(req.System); s != "" {
		parts = append(parts, s)
	}
	for _, msg := range req.Messages {
		if isInstruction(msg.Role) && strings.TrimSpace(msg.Content) != "" {
			parts = append(parts, msg.Content)
		}
	}
	return strings.Join(parts, "\n\n")
}

// conversation returns the messages that are not instructions.
func conversation(req *agent.CompletionRequest) []agent.CompletionMessage {
	out := make([]agent.CompletionMessage, 0, len(req.Messages))
	for _, msg := range req.Messages {
		if !isInstruction(msg.Role) {
			out = append(out, msg)
		}
	}
	return out
}

func isInstruction(role string) bool {
	return role == agent.RoleSystem || role == agent.RoleDeveloper
}

// toolNames maps tool call ids to tool names across the conversation, for
// backends whose tool results are keyed by name.
func toolNames(messages []agent.CompletionMessage) map[string]string {
	names := make(map[string]string)
	for _, msg := range messages {
		for _, tc := range msg.ToolCalls {
			names[tc.ID] = tc.Name
		}
	}
	return names
}

func maxTokens(req *agent.CompletionRequest) int {
	if req.MaxTokens > 0 {
		return req.MaxTokens
	}
	return defaultMaxTokens
}

// send delivers chunk unless ctx is done first.
func send(ctx context.Context, ch chan<- *agent.CompletionChunk, chunk *agent.CompletionChunk) bool {
	select {
	case ch <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}
