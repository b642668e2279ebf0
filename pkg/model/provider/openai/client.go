// Package openai implements the OpenAI adapter for C5: native JSON-schema
// structured output via the Chat Completions API, with reasoning_effort for
// the o-series reasoning models (the capability table gives gpt-* models,
// gpt-5 included, no reasoning-effort support, so Parameters.Filter drops
// it for them). Grounded on cagent's
// pkg/model/provider/openai/client.go and schema.go.
package openai

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"github.com/chronominer/chronominer/pkg/env"
	"github.com/chronominer/chronominer/pkg/model/provider"
	"github.com/chronominer/chronominer/pkg/xerrors"
)

// Client is the OpenAI adapter, also reused by the openrouter package with a
// custom base URL since OpenRouter speaks the OpenAI Chat Completions
// wire format.
type Client struct {
	model   string
	vendor  provider.Vendor
	apiKey  string
	baseURL string
}

// NewClient resolves an API key from env (OPENAI_API_KEY by default, or the
// override name) and returns an adapter for model.
func NewClient(ctx context.Context, model string, envProvider env.Provider, apiKeyVar, baseURL string) (*Client, error) {
	if apiKeyVar == "" {
		apiKeyVar = "OPENAI_API_KEY"
	}
	key, ok := envProvider.Get(ctx, apiKeyVar)
	if !ok || key == "" {
		return nil, xerrors.AuthMissing.New(apiKeyVar + " environment variable is required")
	}
	return &Client{model: model, vendor: provider.VendorOpenAI, apiKey: key, baseURL: baseURL}, nil
}

func (c *Client) ID() string { return "openai/" + c.model }

func (c *Client) Capabilities() provider.Capability {
	return provider.CapabilitiesFor(c.model, "", false)
}

// jsonSchema lets an already-built map[string]any satisfy the SDK's
// json.Marshaler-shaped schema parameter without re-encoding through an
// intermediate struct, matching cagent's own jsonSchema wrapper type.
type jsonSchema map[string]any

func (j jsonSchema) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any(j))
}

func (c *Client) Invoke(ctx context.Context, req provider.Request) (*provider.Response, error) {
	opts := []option.RequestOption{option.WithAPIKey(c.apiKey)}
	if c.baseURL != "" {
		opts = append(opts, option.WithBaseURL(c.baseURL))
	}
	client := openai.NewClient(opts...)

	cap := c.Capabilities()
	params := c.Filter(req.Parameters, cap)

	schema := provider.NormalizeSchema(req.Schema)
	name := req.SchemaName
	if name == "" {
		name = "extraction"
	}

	ccParams := openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(req.Prompt),
		},
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   name,
					Schema: jsonSchema(schema),
					Strict: openai.Bool(true),
				},
			},
		},
	}

	if params.Temperature != nil {
		ccParams.Temperature = openai.Float(*params.Temperature)
	}
	if params.TopP != nil {
		ccParams.TopP = openai.Float(*params.TopP)
	}
	if params.MaxOutputTokens > 0 {
		ccParams.MaxCompletionTokens = openai.Int(int64(params.MaxOutputTokens))
	}
	if params.ReasoningEffort != "" {
		ccParams.ReasoningEffort = shared.ReasoningEffort(params.ReasoningEffort)
	}

	resp, err := client.Chat.Completions.New(ctx, ccParams)
	if err != nil {
		return nil, provider.ClassifyError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, xerrors.Validation.New("openai: response contained no choices")
	}

	content := resp.Choices[0].Message.Content

	obj, parseErr := provider.ParseJSONObject(content)
	if parseErr != nil {
		return &provider.Response{
			RawText:      content,
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		}, xerrors.Validation.Wrap(fmt.Errorf("openai: response body is not a JSON object: %w", parseErr))
	}

	return &provider.Response{
		Object:       obj,
		RawText:      content,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}, nil
}

// Filter applies spec §4.5's filter_parameters, translating ReasoningEffort
// into OpenAI's native field name (no translation needed: OpenAI's
// reasoning_effort already uses low/medium/high, unlike Anthropic's
// token-budget or Gemini's thinking_level).
func (c *Client) Filter(p provider.Parameters, cap provider.Capability) provider.Parameters {
	return p.Filter(cap)
}
