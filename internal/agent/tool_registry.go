package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ToolRegistry manages available tools with thread-safe registration and lookup.
// Tools are registered by name at startup and looked up for every model-issued call.
type ToolRegistry struct {
	mu      sync.RWMutex
	tools   map[string]Tool
	schemas map[string]*jsonschema.Schema
}

// NewToolRegistry creates a new empty tool registry ready for tool registration.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{
		tools:   make(map[string]Tool),
		schemas: make(map[string]*jsonschema.Schema),
	}
}

// Register adds a tool to the registry by its name.
// If a tool with the same name already exists, it is replaced.
func (r *ToolRegistry) Register(tool Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name()] = tool
	delete(r.schemas, tool.Name())
}

// Unregister removes a tool from the registry by name.
func (r *ToolRegistry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
	delete(r.schemas, name)
}

// Get returns a tool by name and a boolean indicating if it was found.
func (r *ToolRegistry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// Has reports whether a tool is registered under name.
func (r *ToolRegistry) Has(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// List returns all tools sorted by name, for prompt construction and listings.
func (r *ToolRegistry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tools := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		tools = append(tools, t)
	}
	sort.Slice(tools, func(i, j int) bool { return tools[i].Name() < tools[j].Name() })
	return tools
}

// ToolSpec is the model-facing definition of a tool.
type ToolSpec struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// Specs returns the definitions of all tools, sorted by name.
func (r *ToolRegistry) Specs() []ToolSpec {
	tools := r.List()
	specs := make([]ToolSpec, len(tools))
	for i, t := range tools {
		specs[i] = ToolSpec{Name: t.Name(), Description: t.Description(), Parameters: t.Schema()}
	}
	return specs
}

// Tool parameter limits to prevent resource exhaustion
const (
	// MaxToolNameLength is the maximum length of a tool name.
	MaxToolNameLength = 256

	// MaxToolParamsSize is the maximum size of tool parameters JSON (10MB).
	MaxToolParamsSize = 10 << 20
)

// Execute runs a tool by name with decoded arguments. An unknown name yields
// an error wrapping ErrToolNotFound.
func (r *ToolRegistry) Execute(ctx context.Context, name string, args map[string]any) (*ToolResult, error) {
	if len(name) > MaxToolNameLength {
		return nil, fmt.Errorf("tool name exceeds maximum length of %d characters", MaxToolNameLength)
	}
	if args == nil {
		args = map[string]any{}
	}
	params, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("encode tool arguments: %w", err)
	}
	if len(params) > MaxToolParamsSize {
		return nil, fmt.Errorf("tool parameters exceed maximum size of %d bytes", MaxToolParamsSize)
	}

	tool, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	return tool.Execute(ctx, params)
}

// ValidateArguments checks args against the tool's declared schema. Tools
// whose schema is empty or fails to compile accept any object.
func (r *ToolRegistry) ValidateArguments(name string, args map[string]any) error {
	schema, err := r.compiledSchema(name)
	if err != nil || schema == nil {
		return nil
	}

	// Round-trip so numbers and nested values have the shapes the validator expects.
	payload, err := json.Marshal(args)
	if err != nil {
		return err
	}
	var decoded any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return err
	}
	return schema.Validate(decoded)
}

func (r *ToolRegistry) compiledSchema(name string) (*jsonschema.Schema, error) {
	r.mu.RLock()
	cached, ok := r.schemas[name]
	tool, exists := r.tools[name]
	r.mu.RUnlock()
	if ok {
		return cached, nil
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}

	raw := tool.Schema()
	var compiled *jsonschema.Schema
	if len(raw) > 0 {
		var err error
		compiled, err = jsonschema.CompileString(name+".schema.json", string(raw))
		if err != nil {
			return nil, err
		}
	}

	r.mu.Lock()
	r.schemas[name] = compiled
	r.mu.Unlock()
	return compiled, nil
}
