// Package gemini implements the Gemini adapter for C5: native JSON-schema
// structured output via ResponseMIMEType/ResponseJsonSchema, and effort
// translated to thinking_config.thinking_level for Gemini 3 models or
// thinkingBudget tokens for earlier ones. Grounded on cagent's
// pkg/model/provider/gemini/client.go buildConfig/applyThinkingConfig.
package gemini

import (
	"context"
	"strings"

	"google.golang.org/genai"

	chronoenv "github.com/chronominer/chronominer/pkg/env"
	"github.com/chronominer/chronominer/pkg/model/provider"
	"github.com/chronominer/chronominer/pkg/xerrors"
)

type Client struct {
	model  string
	apiKey string
}

func NewClient(ctx context.Context, model string, envProvider chronoenv.Provider, apiKeyVar string) (*Client, error) {
	if apiKeyVar == "" {
		apiKeyVar = "GOOGLE_API_KEY"
	}
	key, ok := envProvider.Get(ctx, apiKeyVar)
	if !ok || key == "" {
		return nil, xerrors.AuthMissing.New(apiKeyVar + " environment variable is required")
	}
	return &Client{model: model, apiKey: key}, nil
}

func (c *Client) ID() string { return "gemini/" + c.model }

func (c *Client) Capabilities() provider.Capability {
	return provider.CapabilitiesFor(c.model, "", false)
}

func (c *Client) Invoke(ctx context.Context, req provider.Request) (*provider.Response, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: c.apiKey, Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, provider.ClassifyError(err)
	}

	cap := c.Capabilities()
	params := req.Parameters.Filter(cap)

	config := &genai.GenerateContentConfig{
		ResponseMIMEType:   "application/json",
		ResponseJsonSchema: provider.NormalizeSchema(req.Schema),
	}
	if params.Temperature != nil {
		config.Temperature = genai.Ptr(float32(*params.Temperature))
	}
	if params.TopP != nil {
		config.TopP = genai.Ptr(float32(*params.TopP))
	}
	if params.MaxOutputTokens > 0 {
		config.MaxOutputTokens = int32(params.MaxOutputTokens)
	}
	if params.ReasoningEffort != "" {
		applyThinkingConfig(config, c.model, params.ReasoningEffort)
	}

	resp, err := client.Models.GenerateContent(ctx, c.model, genai.Text(req.Prompt), config)
	if err != nil {
		return nil, provider.ClassifyError(err)
	}

	text := resp.Text()
	obj, parseErr := provider.ParseJSONObject(text)
	if parseErr != nil {
		return &provider.Response{RawText: text}, xerrors.Validation.Wrap(parseErr)
	}

	var inputTokens, outputTokens int64
	if resp.UsageMetadata != nil {
		inputTokens = int64(resp.UsageMetadata.PromptTokenCount)
		outputTokens = int64(resp.UsageMetadata.CandidatesTokenCount)
	}

	return &provider.Response{Object: obj, RawText: text, InputTokens: inputTokens, OutputTokens: outputTokens}, nil
}

// applyThinkingConfig mirrors cagent's model-family branch: Gemini 3 models
// take an effort-based ThinkingLevel, earlier models take a token budget
// derived from the same effort tiers used for Anthropic.
func applyThinkingConfig(config *genai.GenerateContentConfig, model string, effort provider.Effort) {
	config.ThinkingConfig = &genai.ThinkingConfig{}

	if strings.HasPrefix(strings.ToLower(model), "gemini-3-") {
		var level genai.ThinkingLevel
		switch effort {
		case provider.EffortLow:
			level = genai.ThinkingLevelLow
		case provider.EffortMedium:
			level = genai.ThinkingLevelMedium
		default:
			level = genai.ThinkingLevelHigh
		}
		config.ThinkingConfig.ThinkingLevel = level
		return
	}

	tokens := int32(provider.AnthropicThinkingBudget(effort))
	config.ThinkingConfig.ThinkingBudget = genai.Ptr(tokens)
}
