package agent

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ToolSelector validates model-issued tool calls against the registry and the
// configured allow-list.
type ToolSelector struct {
	registry *ToolRegistry
	allowed  map[string]struct{}
	allowAll bool
}

// NewToolSelector creates a selector. An empty allow-list, or one containing
// "*", permits every registered tool.
func NewToolSelector(registry *ToolRegistry, allowed []string) *ToolSelector {
	s := &ToolSelector{
		registry: registry,
		allowed:  make(map[string]struct{}, len(allowed)),
	}
	for _, name := range allowed {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if name == "*" {
			s.allowAll = true
		}
		s.allowed[name] = struct{}{}
	}
	if len(s.allowed) == 0 {
		s.allowAll = true
	}
	return s
}

// IsAllowed reports whether the allow-list permits name.
func (s *ToolSelector) IsAllowed(name string) bool {
	if s.allowAll {
		return true
	}
	_, ok := s.allowed[name]
	return ok
}

// Select splits requests into accepted calls and error messages. Every request
// lands in exactly one of the two, and accepted order follows input order.
func (s *ToolSelector) Select(requests []ToolCallRequest) ([]ToolCall, []string) {
	var valid []ToolCall
	var errs []string

	for _, req := range requests {
		id := req.ID
		if id == "" {
			id = "unknown"
		}

		if s.registry == nil || !s.registry.Has(req.Name) {
			errs = append(errs, fmt.Sprintf("Tool '%s' (id: %s) not found in registry", req.Name, id))
			continue
		}

		if !s.IsAllowed(req.Name) {
			errs = append(errs, fmt.Sprintf("Tool '%s' is not in the allowed tools list", req.Name))
			continue
		}

		args, err := decodeArguments(req.Arguments)
		if err != nil {
			errs = append(errs, fmt.Sprintf("Invalid JSON in tool '%s' arguments: %v", req.Name, err))
			continue
		}

		if err := s.registry.ValidateArguments(req.Name, args); err != nil {
			errs = append(errs, fmt.Sprintf("Invalid arguments for tool '%s': %v", req.Name, err))
			continue
		}

		valid = append(valid, ToolCall{ID: req.ID, Name: req.Name, Arguments: args})
	}

	return valid, errs
}

func decodeArguments(raw any) (map[string]any, error) {
	switch v := raw.(type) {
	case nil:
		return map[string]any{}, nil
	case map[string]any:
		return v, nil
	case string:
		return decodeArgumentText([]byte(v))
	case json.RawMessage:
		return decodeArgumentText(v)
	case []byte:
		return decodeArgumentText(v)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return decodeArgumentText(data)
	}
}

func decodeArgumentText(data []byte) (map[string]any, error) {
	if strings.TrimSpace(string(data)) == "" {
		return map[string]any{}, nil
	}
	var decoded any
	if err := json.Unmarshal(data, &decoded); err != nil {
		return nil, err
	}
	switch v := decoded.(type) {
	case nil:
		return map[string]any{}, nil
	case map[string]any:
		return v, nil
	default:
		return nil, fmt.Errorf("arguments must be a JSON object, got %T", decoded)
	}
}
