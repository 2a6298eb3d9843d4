package provider

import "encoding/json"

// emptyObjectSchema is sent for tools without an input schema; most
// backends reject a function definition with no parameters.
var emptyObjectSchema = json.RawMessage(`{"type":"object","properties":{}}`)

// FunctionTool builds a function tool definition. A nil or empty schema is
// replaced by an empty object schema.
func FunctionTool(name, description string, parameters json.RawMessage) ProviderTool {
	if len(parameters) == 0 || string(parameters) == "null" {
		parameters = emptyObjectSchema
	}
	return ProviderTool{
		Type: "function",
		Function: ProviderFunctionDef{
			Name:        name,
			Description: description,
			Parameters:  parameters,
		},
	}
}
