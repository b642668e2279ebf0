package provider

import (
	"encoding/json"
	"maps"
	"slices"
)

// NormalizeSchema prepares a JSON Schema for strict-mode structured-output
// acceptance, run for every vendor's structured-output path (SPEC_FULL
// §3.5), not just OpenAI's. Grounded on cagent's
// pkg/model/provider/openai/schema.go makeAllRequired/fixSchemaArrayItems:
// all properties become "required", with optionality instead encoded as a
// nullable union type, since several vendors' strict JSON Schema subsets
// reject an absent "required" entry for an optional property. It works on
// a deep copy, so the caller's schema map is left unchanged.
func NormalizeSchema(schema map[string]any) map[string]any {
	if schema == nil {
		schema = map[string]any{"type": "object", "properties": map[string]any{}}
	} else if data, err := json.Marshal(schema); err == nil {
		var copied map[string]any
		if json.Unmarshal(data, &copied) == nil {
			schema = copied
		}
	}
	return fixArrayItems(makeAllRequired(schema))
}

func makeAllRequired(schema map[string]any) map[string]any {
	properties, ok := schema["properties"].(map[string]any)
	if !ok {
		return schema
	}

	reallyRequired := map[string]bool{}
	if required, ok := schema["required"].([]any); ok {
		for _, name := range required {
			if s, ok := name.(string); ok {
				reallyRequired[s] = true
			}
		}
	} else if required, ok := schema["required"].([]string); ok {
		for _, name := range required {
			reallyRequired[name] = true
		}
	}

	newRequired := []any{}
	for _, propName := range slices.Sorted(maps.Keys(properties)) {
		newRequired = append(newRequired, propName)
		if reallyRequired[propName] {
			continue
		}

		if propMap, ok := properties[propName].(map[string]any); ok {
			if typeValue, ok := propMap["type"].(string); ok {
				propMap["type"] = []string{typeValue, "null"}
			}
		}
	}

	schema["required"] = newRequired
	schema["additionalProperties"] = false
	return schema
}

// fixArrayItems ensures every "array"-typed property declares an "items"
// schema, which some vendors' strict validators require even when the
// original schema left it implicit.
func fixArrayItems(schema map[string]any) map[string]any {
	properties, ok := schema["properties"].(map[string]any)
	if !ok {
		return schema
	}

	for _, propValue := range properties {
		prop, ok := propValue.(map[string]any)
		if !ok {
			continue
		}

		isArray := false
		switch t := prop["type"].(type) {
		case string:
			isArray = t == "array"
		case []string:
			isArray = slices.Contains(t, "array")
		}
		if !isArray {
			continue
		}

		if _, ok := prop["items"]; !ok {
			prop["items"] = map[string]any{"type": "object"}
		}
	}

	return schema
}
