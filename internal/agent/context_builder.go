package agent

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/haasonsaas/conductor/internal/memory"
)

// Retrieval supplies formatted long-term memory for a query. memory.Retriever
// satisfies it.
type Retrieval interface {
	Context(ctx context.Context, sessionID, query string) string
}

// ContextConfig configures prompt assembly.
type ContextConfig struct {
	AgentName        string
	AgentDescription string

	// SystemPromptPath points at a template file. Placeholders <Your Agent Name>,
	// <N>, <T> and <budget> are substituted. Empty or unreadable uses the
	// built-in prompt.
	SystemPromptPath string

	// ToolGuidePath points at a markdown guide appended to the developer prompt.
	ToolGuidePath string
}

// ContextBuilder assembles the message list sent to the model.
type ContextBuilder struct {
	config    ContextConfig
	registry  *ToolRegistry
	stm       *memory.ShortTermMemory
	retriever Retrieval

	template  string
	toolGuide string
}

// NewContextBuilder loads the optional prompt files once. A nil retriever
// disables retrieval.
func NewContextBuilder(config ContextConfig, registry *ToolRegistry, stm *memory.ShortTermMemory, retriever Retrieval, logger *slog.Logger) *ContextBuilder {
	if logger == nil {
		logger = slog.Default()
	}
	if config.AgentName == "" {
		config.AgentName = "Conductor"
	}
	b := &ContextBuilder{
		config:    config,
		registry:  registry,
		stm:       stm,
		retriever: retriever,
	}
	if config.SystemPromptPath != "" {
		data, err := os.ReadFile(config.SystemPromptPath)
		if err != nil {
			logger.Warn("system prompt unavailable, using default", "path", config.SystemPromptPath, "error", err)
		} else {
			b.template = string(data)
		}
	}
	if b.template == "" {
		b.template = b.defaultSystemPrompt()
	}
	if config.ToolGuidePath != "" {
		if data, err := os.ReadFile(config.ToolGuidePath); err == nil {
			b.toolGuide = string(data)
		}
	}
	return b
}

// BuildInput is the per-call state the builder needs.
type BuildInput struct {
	SessionID        string
	UserMessage      string
	Run              *RunContext
	AssistantMessage *CompletionMessage
	ToolResults      []CompletionMessage
}

// Build returns messages in order: system, developer, retrieved memory,
// history, the assistant turn that requested tools, its tool results and the
// user message. The user message is left out when history already ends with it.
func (b *ContextBuilder) Build(ctx context.Context, in BuildInput) []CompletionMessage {
	limits := DefaultLimits()
	if in.Run != nil {
		limits = in.Run.Limits
	}

	messages := []CompletionMessage{
		{Role: RoleSystem, Content: b.SystemPrompt(limits)},
		{Role: RoleDeveloper, Content: b.DeveloperPrompt(limits)},
	}

	if b.retriever != nil {
		if retrieved := b.retriever.Context(ctx, in.SessionID, in.UserMessage); retrieved != "" {
			messages = append(messages, CompletionMessage{Role: RoleSystem, Content: retrieved})
		}
	}

	var history []memory.Message
	if b.stm != nil {
		history = b.stm.All(in.SessionID)
	}
	for _, m := range history {
		messages = append(messages, CompletionMessage{Role: m.Role, Content: m.Content})
	}

	if in.AssistantMessage != nil {
		messages = append(messages, *in.AssistantMessage)
	}
	messages = append(messages, in.ToolResults...)

	if n := len(history); n == 0 || history[n-1].Role != RoleUser || history[n-1].Content != in.UserMessage {
		messages = append(messages, CompletionMessage{Role: RoleUser, Content: in.UserMessage})
	}
	return messages
}

// SystemPrompt renders the system template for limits.
func (b *ContextBuilder) SystemPrompt(limits Limits) string {
	r := strings.NewReplacer(
		"<Your Agent Name>", b.config.AgentName,
		"<N>", fmt.Sprintf("%d", limits.MaxToolCalls),
		"<T>", fmt.Sprintf("%d", limits.MaxTimeSeconds),
		"<budget>", fmt.Sprintf("%.2f", limits.MaxCost),
	)
	return r.Replace(b.template)
}

// DeveloperPrompt lists the tools and run constraints.
func (b *ContextBuilder) DeveloperPrompt(limits Limits) string {
	parts := []string{"You have access to the following tools:"}
	if b.registry != nil {
		for _, t := range b.registry.List() {
			parts = append(parts, fmt.Sprintf("- %s: %s", t.Name(), t.Description()))
		}
	}
	parts = append(parts,
		"",
		"Constraints:",
		fmt.Sprintf("- Maximum tool calls per request: %d", limits.MaxToolCalls),
		fmt.Sprintf("- Maximum response time: %ds", limits.MaxTimeSeconds),
		"- Be concise and structured in your responses.",
	)
	if b.toolGuide != "" {
		parts = append(parts, "", "---", b.toolGuide)
	}
	return strings.Join(parts, "\n")
}

func (b *ContextBuilder) defaultSystemPrompt() string {
	return fmt.Sprintf(`You are %s. %s

Mission:
- Solve the user's task correctly and efficiently.
- Be safe, honest, and privacy-preserving.
- Minimize cost and latency while maintaining quality.

Operating Principles:
1. Truthfulness: If you don't know, say so. Don't invent facts.
2. Tool honesty: Only claim you did something if a tool confirms it.
3. User intent first: Optimize for what the user wants to accomplish.
4. Ask when blocked: If requirements are ambiguous, ask clarifying questions.
5. Safety & policy: Refuse disallowed requests; offer safe alternatives.

Workflow:
1. Understand the goal and identify missing details.
2. Decide: ask question, answer directly, or use tools.
3. Plan: create a short internal plan.
4. Execute: use minimum tools needed, validate inputs, handle failures.
5. Verify: check for contradictions or issues.
6. Deliver: provide final output, offer next steps.

Tool Calling:
- Use tools when they materially increase correctness.
- Max tool calls per request: <N>
- Time limit: <T> seconds.
- Never fabricate tool results.

Memory:
- Short-term: use conversation context.
- Long-term: store only durable, user-approved info (preferences, stable facts).
- Never store secrets or sensitive data.
- When deciding to remember, ask: "Should I remember this?"

Response Style:
- Be concise, structured, and actionable.
- Use markdown headings and bullets.
- Include minimal, runnable code examples when relevant.
- If refusing: brief reason + safe alternative.
`, b.config.AgentName, b.config.AgentDescription)
}
