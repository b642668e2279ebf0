package provider

import "encoding/json"

// ParseJSONObject parses text as a JSON object, the shared last step of the
// adapters whose response body is JSON text (OpenAI, OpenRouter, Gemini, the
// OpenAI batch adapter) before handing it to the
// scheduler (spec §4.5's "malformed response body... → ValidationError").
func ParseJSONObject(text string) (map[string]any, error) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(text), &obj); err != nil {
		return nil, err
	}
	return obj, nil
}
