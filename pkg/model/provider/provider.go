// Package provider implements C5, the Provider Abstraction: a vendor-neutral
// one-shot structured-output call, provider detection, capability
// descriptors, and parameter filtering (spec §4.5).
package provider

import "context"

// Request is the normalized shape of a one-shot structured-output call.
// Schema is a JSON Schema describing the required top-level object.
type Request struct {
	Model      string
	Prompt     string
	Schema     map[string]any
	SchemaName string
	Parameters Parameters
}

// Response is the normalized result of Invoke. RawText carries the
// provider's response body verbatim when it could not be parsed as JSON
// matching Schema, so callers (C9) can preserve it under an "error" key
// rather than discarding it (spec §4.9).
type Response struct {
	Object       map[string]any
	RawText      string
	InputTokens  int64
	OutputTokens int64
}

// Provider is implemented by each vendor adapter (openai, anthropic, gemini,
// bedrock, openrouter).
type Provider interface {
	// ID names the model/provider pair for logging, e.g. "openai/gpt-4o".
	ID() string

	// Invoke performs one structured-output call (spec §4.5's invoke()).
	// Errors are classified as one of xerrors.Transient, xerrors.Permanent,
	// xerrors.Validation, or xerrors.SchemaUnsupported.
	Invoke(ctx context.Context, req Request) (*Response, error)

	// Capabilities returns this model's static capability descriptor.
	Capabilities() Capability
}
