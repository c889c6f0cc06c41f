package perception

import (
	"sort"

	"google.golang.org/genai"
)

// BuildOpenAIResponseFormat wraps a schema in OpenAI's strict json_schema
// response format. A nil schema yields nil (free-form output).
// See: https://platform.openai.com/docs/guides/structured-outputs
func BuildOpenAIResponseFormat(schema *ResponseSchema) *OpenAIResponseFormat {
	if schema == nil {
		return nil
	}
	return &OpenAIResponseFormat{
		Type: "json_schema",
		JSONSchema: &OpenAIJSONSchema{
			Name:   schema.Name,
			Strict: true,
			Schema: schema.Schema,
		},
	}
}

// BuildGeminiSchema converts a JSON schema map into the genai schema type.
// Only the subset the review schema uses is mapped: object, array, string,
// integer, number, boolean, properties, items, required, description.
func BuildGeminiSchema(raw map[string]interface{}) *genai.Schema {
	if raw == nil {
		return nil
	}
	s := &genai.Schema{}

	switch raw["type"] {
	case "object":
		s.Type = genai.TypeObject
	case "array":
		s.Type = genai.TypeArray
	case "string":
		s.Type = genai.TypeString
	case "integer":
		s.Type = genai.TypeInteger
	case "number":
		s.Type = genai.TypeNumber
	case "boolean":
		s.Type = genai.TypeBoolean
	}

	if desc, ok := raw["description"].(string); ok {
		s.Description = desc
	}

	if props, ok := raw["properties"].(map[string]interface{}); ok {
		s.Properties = make(map[string]*genai.Schema, len(props))
		names := make([]string, 0, len(props))
		for name, p := range props {
			if pm, ok := p.(map[string]interface{}); ok {
				s.Properties[name] = BuildGeminiSchema(pm)
				names = append(names, name)
			}
		}
		sort.Strings(names)
		s.PropertyOrdering = names
	}

	if items, ok := raw["items"].(map[string]interface{}); ok {
		s.Items = BuildGeminiSchema(items)
	}

	switch req := raw["required"].(type) {
	case []string:
		s.Required = append([]string(nil), req...)
	case []interface{}:
		for _, r := range req {
			if name, ok := r.(string); ok {
				s.Required = append(s.Required, name)
			}
		}
	}

	return s
}
