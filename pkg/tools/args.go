package tools

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/kaptinlin/jsonrepair"
)

// Schema is a compiled input contract.
type Schema struct {
	resolved *jsonschema.Resolved
}

// CompileSchema resolves s so arguments can be validated against it.
// A nil schema compiles to a contract that accepts any JSON object.
func CompileSchema(s *jsonschema.Schema) (*Schema, error) {
	if s == nil {
		return &Schema{}, nil
	}
	resolved, err := s.Resolve(&jsonschema.ResolveOptions{})
	if err != nil {
		return nil, fmt.Errorf("%w: resolving input schema: %v", ErrInvalidDescriptor, err)
	}
	return &Schema{resolved: resolved}, nil
}

// Validate checks args against the schema. Empty args are treated as an
// empty object.
func (s *Schema) Validate(args json.RawMessage) error {
	var instance any
	if len(args) == 0 {
		instance = map[string]any{}
	} else if err := json.Unmarshal(args, &instance); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	if _, ok := instance.(map[string]any); !ok {
		return fmt.Errorf("%w: arguments must be a JSON object", ErrInvalidArguments)
	}
	if s == nil || s.resolved == nil {
		return nil
	}
	if err := s.resolved.Validate(instance); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	return nil
}

// SchemaFromJSON converts a schema in generic JSON form, as received from
// remote components, into a jsonschema.Schema. A nil or empty value yields
// a nil schema.
func SchemaFromJSON(v any) (*jsonschema.Schema, error) {
	if v == nil {
		return nil, nil
	}
	var data []byte
	switch s := v.(type) {
	case json.RawMessage:
		data = s
	case []byte:
		data = s
	case *jsonschema.Schema:
		return s, nil
	default:
		var err error
		if data, err = json.Marshal(v); err != nil {
			return nil, fmt.Errorf("encoding input schema: %w", err)
		}
	}
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}
	var schema jsonschema.Schema
	if err := json.Unmarshal(data, &schema); err != nil {
		return nil, fmt.Errorf("decoding input schema: %w", err)
	}
	return &schema, nil
}

// DecodeArguments turns the raw argument string produced by a model into a
// JSON object. Empty input becomes "{}". Malformed JSON (trailing commas,
// single quotes, truncated objects) is repaired before giving up.
func DecodeArguments(raw string) (json.RawMessage, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return json.RawMessage("{}"), nil
	}
	if json.Valid([]byte(raw)) {
		return json.RawMessage(raw), nil
	}
	repaired, err := jsonrepair.JSONRepair(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	if !json.Valid([]byte(repaired)) {
		return nil, fmt.Errorf("%w: arguments are not valid JSON", ErrInvalidArguments)
	}
	return json.RawMessage(repaired), nil
}
