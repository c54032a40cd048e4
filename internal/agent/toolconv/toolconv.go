// Package toolconv translates registry tools into the tool declarations each
// model SDK expects.
package toolconv

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/haasonsaas/conductor/internal/agent"
	openai "github.com/sashabaranov/go-openai"
	"google.golang.org/genai"
)

// emptyObject is used for tools whose schema is missing or unparseable.
func emptyObject() map[string]any {
	return map[string]any{"type": "object", "properties": map[string]any{}}
}

// SchemaMap decodes a tool schema, falling back to an empty object schema.
func SchemaMap(tool agent.Tool) map[string]any {
	raw := tool.Schema()
	if len(raw) == 0 {
		return emptyObject()
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil || m == nil {
		return emptyObject()
	}
	return m
}

// ToOpenAITools converts tools to OpenAI function definitions. OpenRouter
// accepts the same shape.
func ToOpenAITools(tools []agent.Tool) []openai.Tool {
	if len(tools) == 0 {
		return nil
	}
	out := make([]openai.Tool, len(tools))
	for i, tool := range tools {
		out[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        tool.Name(),
				Description: tool.Description(),
				Parameters:  SchemaMap(tool),
			},
		}
	}
	return out
}

// ToAnthropicTools converts tools to Anthropic tool params.
func ToAnthropicTools(tools []agent.Tool) ([]anthropic.ToolUnionParam, error) {
	if len(tools) == 0 {
		return nil, nil
	}
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, tool := range tools {
		data, err := json.Marshal(SchemaMap(tool))
		if err != nil {
			return nil, fmt.Errorf("encode schema for %s: %w", tool.Name(), err)
		}
		var schema anthropic.ToolInputSchemaParam
		if err := json.Unmarshal(data, &schema); err != nil {
			return nil, fmt.Errorf("invalid tool schema for %s: %w", tool.Name(), err)
		}
		param := anthropic.ToolUnionParamOfTool(schema, tool.Name())
		if param.OfTool == nil {
			return nil, fmt.Errorf("invalid tool schema for %s: missing tool definition", tool.Name())
		}
		param.OfTool.Description = anthropic.String(tool.Description())
		out = append(out, param)
	}
	return out, nil
}

// ToBedrockTools converts tools to a Bedrock Converse tool configuration.
func ToBedrockTools(tools []agent.Tool) *types.ToolConfiguration {
	if len(tools) == 0 {
		return nil
	}
	specs := make([]types.Tool, len(tools))
	for i, tool := range tools {
		specs[i] = &types.ToolMemberToolSpec{
			Value: types.ToolSpecification{
				Name:        aws.String(tool.Name()),
				Description: aws.String(tool.Description()),
				InputSchema: &types.ToolInputSchemaMemberJson{Value: document.NewLazyDocument(SchemaMap(tool))},
			},
		}
	}
	return &types.ToolConfiguration{Tools: specs}
}

// ToGeminiTools converts tools to a single Gemini tool holding every
// function declaration.
func ToGeminiTools(tools []agent.Tool) []*genai.Tool {
	if len(tools) == 0 {
		return nil
	}
	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, tool := range tools {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        tool.Name(),
			Description: tool.Description(),
			Parameters:  ToGeminiSchema(SchemaMap(tool)),
		})
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

// ToGeminiSchema converts a JSON Schema object to genai.Schema. Only the
// keywords Gemini understands are carried over.
func ToGeminiSchema(m map[string]any) *genai.Schema {
	if m == nil {
		return nil
	}
	schema := &genai.Schema{}
	if t, ok := m["type"].(string); ok {
		schema.Type = genai.Type(strings.ToUpper(t))
	}
	if desc, ok := m["description"].(string); ok {
		schema.Description = desc
	}
	schema.Enum = stringList(m["enum"])
	schema.Required = stringList(m["required"])
	if props, ok := m["properties"].(map[string]any); ok {
		schema.Properties = make(map[string]*genai.Schema, len(props))
		for name, prop := range props {
			if pm, ok := prop.(map[string]any); ok {
				schema.Properties[name] = ToGeminiSchema(pm)
			}
		}
	}
	if items, ok := m["items"].(map[string]any); ok {
		schema.Items = ToGeminiSchema(items)
	}
	return schema
}

func stringList(v any) []string {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	var out []string
	for _, item := range list {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
