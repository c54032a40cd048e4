package providers

import (
	"errors"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/smithy-go"
	"github.com/haasonsaas/conductor/internal/agent"
	"google.golang.org/genai"
)

func TestToBedrockMessages(t *testing.T) {
	msgs := toBedrockMessages([]agent.CompletionMessage{
		{Role: agent.RoleUser, Content: "go"},
		{Role: agent.RoleAssistant, Content: "calling", ToolCalls: []agent.ToolCallRequest{{ID: "t1", Name: "echo", Arguments: map[string]any{"message": "x"}}}},
		{Role: agent.RoleTool, ToolCallID: "t1", Content: "x"},
		{Role: agent.RoleAssistant},
	})
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	if msgs[1].Role != types.ConversationRoleAssistant || len(msgs[1].Content) != 2 {
		t.Fatalf("expected assistant text and tool use, got %+v", msgs[1])
	}
	result, ok := msgs[2].Content[0].(*types.ContentBlockMemberToolResult)
	if !ok || *result.Value.ToolUseId != "t1" {
		t.Fatalf("expected tool result for t1, got %+v", msgs[2].Content[0])
	}
	if msgs[2].Role != types.ConversationRoleUser {
		t.Fatalf("expected tool results as user turn, got %s", msgs[2].Role)
	}
}

func TestBedrockWrapErrorUsesAPICode(t *testing.T) {
	p := &BedrockProvider{}
	apiErr := &smithy.GenericAPIError{Code: "ThrottlingException", Message: "slow down"}
	err := p.wrapError(fmt.Errorf("operation error: %w", apiErr), "m")
	perr, ok := GetProviderError(err)
	if !ok {
		t.Fatalf("expected ProviderError, got %v", err)
	}
	if perr.Reason != FailoverRateLimit || perr.Code != "ThrottlingException" || perr.Message != "slow down" {
		t.Fatalf("expected throttling classification, got %+v", perr)
	}
	if !IsRetryable(err) {
		t.Fatal("expected throttling to be retryable")
	}

	again := p.wrapError(err, "m")
	if again != err {
		t.Fatal("expected already wrapped errors to pass through")
	}
}

func TestToGeminiContentsResolvesToolNames(t *testing.T) {
	contents := toGeminiContents([]agent.CompletionMessage{
		{Role: agent.RoleUser, Content: "go"},
		{Role: agent.RoleAssistant, ToolCalls: []agent.ToolCallRequest{{ID: "c1", Name: "web_search", Arguments: `{"query":"go"}`}}},
		{Role: agent.RoleTool, ToolCallID: "c1", Content: `{"results":[]}`},
		{Role: agent.RoleTool, ToolCallID: "c2", Name: "echo", Content: "plain"},
	})
	if len(contents) != 3 {
		t.Fatalf("expected 3 contents, got %d", len(contents))
	}
	if contents[1].Role != genai.RoleModel {
		t.Fatalf("expected model role, got %s", contents[1].Role)
	}
	parts := contents[2].Parts
	if len(parts) != 2 {
		t.Fatalf("expected 2 function responses in one turn, got %d", len(parts))
	}
	if parts[0].FunctionResponse.Name != "web_search" {
		t.Fatalf("expected name from the call, got %s", parts[0].FunctionResponse.Name)
	}
	if parts[1].FunctionResponse.Response["result"] != "plain" {
		t.Fatalf("expected non-JSON content wrapped, got %v", parts[1].FunctionResponse.Response)
	}
}

func TestGeminiChunk(t *testing.T) {
	if geminiChunk(&genai.Part{Text: "thinking", Thought: true}) != nil {
		t.Fatal("expected thought parts to be skipped")
	}
	chunk := geminiChunk(&genai.Part{FunctionCall: &genai.FunctionCall{Name: "echo"}})
	if chunk == nil || chunk.ToolCall == nil || chunk.ToolCall.ID == "" {
		t.Fatalf("expected tool call with generated id, got %+v", chunk)
	}
	if args, ok := chunk.ToolCall.Arguments.(map[string]any); !ok || args == nil {
		t.Fatalf("expected empty argument map, got %#v", chunk.ToolCall.Arguments)
	}
}

func TestGoogleWrapError(t *testing.T) {
	p := &GoogleProvider{}
	perr, _ := GetProviderError(p.wrapError(errors.New("rpc error: RESOURCE_EXHAUSTED quota"), "gemini"))
	if perr == nil || perr.Status != 429 || perr.Reason != FailoverRateLimit {
		t.Fatalf("expected 429 rate limit, got %+v", perr)
	}
}
