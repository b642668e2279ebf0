package provider

import (
	"path"
	"strings"
)

// Vendor names the four providers named in spec §6 plus Bedrock, which this
// engine enriches beyond the spec's explicit list (SPEC_FULL §2).
type Vendor string

const (
	VendorOpenAI     Vendor = "openai"
	VendorAnthropic  Vendor = "anthropic"
	VendorGemini     Vendor = "gemini"
	VendorBedrock    Vendor = "bedrock"
	VendorOpenRouter Vendor = "openrouter"
)

// Capability is the static, immutable-for-the-run descriptor looked up by
// model family (spec §4.5 capabilities()). Loaded once at process start per
// SPEC_FULL §3.5's "pure and memoizable" rule.
type Capability struct {
	Vendor           Vendor
	ReasoningOnly    bool // true for o1-*/o3-*/o4-* and any model run with a non-zero thinking budget
	SupportsThinking bool // model family accepts a thinking/reasoning-effort parameter at all
	NativeStructured bool // supports a native JSON-schema response-format field
	BatchSupported   bool // spec §4.8's batch_supported
}

// familyDescriptors maps a model-family glob to its capability descriptor.
// Patterns are matched with path.Match against the model name.
var familyDescriptors = []struct {
	pattern string
	cap     Capability
}{
	{"o1-*", Capability{Vendor: VendorOpenAI, ReasoningOnly: true, SupportsThinking: true, NativeStructured: true, BatchSupported: true}},
	{"o3-*", Capability{Vendor: VendorOpenAI, ReasoningOnly: true, SupportsThinking: true, NativeStructured: true, BatchSupported: true}},
	{"o4-*", Capability{Vendor: VendorOpenAI, ReasoningOnly: true, SupportsThinking: true, NativeStructured: true, BatchSupported: true}},
	{"gpt-*", Capability{Vendor: VendorOpenAI, SupportsThinking: false, NativeStructured: true, BatchSupported: true}},
	{"claude-*", Capability{Vendor: VendorAnthropic, SupportsThinking: true, NativeStructured: false, BatchSupported: true}},
	// Gemini's batch API shape (Batches.Create) differs enough from the
	// request/response model C8 standardizes on that it isn't worth a
	// third adapter for this engine's scope (DESIGN.md); gemini falls back
	// to synchronous mode like bedrock and openrouter.
	{"gemini-*", Capability{Vendor: VendorGemini, SupportsThinking: true, NativeStructured: true, BatchSupported: false}},
	// Bedrock batch inference requires an S3 input/output manifest rather
	// than a simple submit/poll/download call; C8 does not implement that
	// adapter (DESIGN.md), so bedrock always falls back to synchronous mode.
	{"bedrock/*", Capability{Vendor: VendorBedrock, SupportsThinking: true, NativeStructured: false, BatchSupported: false}},
}

// defaultCapability is used for any vendor/model/shape that falls through to
// openrouter: conservative (no native structured output, no batch API).
var defaultCapability = Capability{Vendor: VendorOpenRouter, NativeStructured: false, BatchSupported: false}

// DetectProvider implements spec §4.5's detect_provider: prefix/pattern
// match against the model name, in the order cagent's provider.New applies
// an explicit override before falling through to its type switch. override,
// when non-empty, always wins.
func DetectProvider(modelName, override string) Vendor {
	if override != "" {
		return Vendor(override)
	}

	switch {
	case strings.HasPrefix(modelName, "gpt-"), strings.HasPrefix(modelName, "o1-"),
		strings.HasPrefix(modelName, "o3-"), strings.HasPrefix(modelName, "o4-"):
		return VendorOpenAI
	case strings.HasPrefix(modelName, "claude-"):
		return VendorAnthropic
	case strings.HasPrefix(modelName, "gemini-"):
		return VendorGemini
	case strings.HasPrefix(modelName, "bedrock/"):
		return VendorBedrock
	case strings.Contains(modelName, "/"):
		// <vendor>/<model> shape with no recognized vendor prefix → openrouter.
		return VendorOpenRouter
	default:
		return VendorOpenRouter
	}
}

// CapabilitiesFor implements spec §4.5's capabilities(model_name).
// thinkingRequested reports whether a reasoning effort is requested for this
// call; when true it marks ReasoningOnly for Anthropic/Gemini/Bedrock models too, per
// SPEC_FULL §3.5 ("any Anthropic/Gemini model configured with a non-zero
// thinking budget").
func CapabilitiesFor(modelName string, override string, thinkingRequested bool) Capability {
	for _, fd := range familyDescriptors {
		if ok, _ := path.Match(fd.pattern, modelName); ok {
			c := fd.cap
			if thinkingRequested && (c.Vendor == VendorAnthropic || c.Vendor == VendorGemini || c.Vendor == VendorBedrock) {
				c.ReasoningOnly = true
			}
			return c
		}
	}

	c := defaultCapability
	if override != "" {
		c.Vendor = Vendor(override)
	}
	return c
}
