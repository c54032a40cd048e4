// Package schema derives tool input schemas from Go parameter structs.
package schema

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
)

var reflector = &jsonschema.Reflector{
	AllowAdditionalProperties: true,
	DoNotReference:            true,
}

// Reflect returns the JSON Schema for T's fields. Fields without omitempty
// are required; descriptions and defaults come from jsonschema tags.
func Reflect[T any]() json.RawMessage {
	s := reflector.Reflect(new(T))
	s.Version = ""
	s.ID = ""
	data, err := json.Marshal(s)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return data
}
