// Package anthropic implements the Anthropic adapter for C5: Anthropic has
// no native structured-output field, so the schema is wrapped as a single
// forced tool call and the tool's input is extracted as the response
// object, per spec §4.5's "wrap the schema as a single tool" fallback.
// Grounded on cagent's pkg/model/provider/anthropic/client.go
// (adjustMaxTokensForThinking, thinking/temperature mutual exclusion).
package anthropic

import (
	"context"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/chronominer/chronominer/pkg/env"
	"github.com/chronominer/chronominer/pkg/model/provider"
	"github.com/chronominer/chronominer/pkg/xerrors"
)

const defaultMaxTokens = 8192

type Client struct {
	model  string
	apiKey string
}

func NewClient(ctx context.Context, model string, envProvider env.Provider, apiKeyVar string) (*Client, error) {
	if apiKeyVar == "" {
		apiKeyVar = "ANTHROPIC_API_KEY"
	}
	key, ok := envProvider.Get(ctx, apiKeyVar)
	if !ok || key == "" {
		return nil, xerrors.AuthMissing.New(apiKeyVar + " environment variable is required")
	}
	return &Client{model: model, apiKey: key}, nil
}

func (c *Client) ID() string { return "anthropic/" + c.model }

func (c *Client) Capabilities() provider.Capability {
	return provider.CapabilitiesFor(c.model, "", false)
}

// adjustMaxTokensForThinking mirrors cagent's method of the same name: when
// a thinking budget is requested, max_tokens must exceed it by at least a
// small output buffer, since Anthropic's max_tokens covers thinking and
// output combined.
func adjustMaxTokensForThinking(maxTokens, thinkingTokens int64) int64 {
	if thinkingTokens <= 0 {
		return maxTokens
	}
	minRequired := thinkingTokens + 1024
	if maxTokens <= thinkingTokens {
		return thinkingTokens + 8192
	}
	if maxTokens < minRequired {
		return minRequired
	}
	return maxTokens
}

func (c *Client) Invoke(ctx context.Context, req provider.Request) (*provider.Response, error) {
	client := anthropic.NewClient(option.WithAPIKey(c.apiKey))

	cap := c.Capabilities()
	params := req.Parameters.Filter(cap)

	maxTokens := int64(params.MaxOutputTokens)
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	var thinkingTokens int64
	if params.ReasoningEffort != "" {
		thinkingTokens = int64(provider.AnthropicThinkingBudget(params.ReasoningEffort))
		maxTokens = adjustMaxTokensForThinking(maxTokens, thinkingTokens)
	}

	schema := provider.NormalizeSchema(req.Schema)
	toolName := req.SchemaName
	if toolName == "" {
		toolName = "extraction"
	}

	msgParams := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
		Tools: []anthropic.ToolUnionParam{
			{
				OfTool: &anthropic.ToolParam{
					Name:        toolName,
					InputSchema: toInputSchema(schema),
				},
			},
		},
		// Force the model to call the extraction tool rather than reply in
		// prose, the same "single forced tool call" trick spec §4.5 names.
		ToolChoice: anthropic.ToolChoiceUnionParam{
			OfTool: &anthropic.ToolChoiceToolParam{Name: toolName},
		},
	}

	if thinkingTokens > 0 {
		msgParams.Thinking = anthropic.ThinkingConfigParamOfEnabled(thinkingTokens)
	} else {
		if params.Temperature != nil {
			msgParams.Temperature = anthropic.Float(*params.Temperature)
		}
		if params.TopP != nil {
			msgParams.TopP = anthropic.Float(*params.TopP)
		}
	}

	resp, err := client.Messages.New(ctx, msgParams)
	if err != nil {
		return nil, provider.ClassifyError(err)
	}

	for _, block := range resp.Content {
		if block.Type == "tool_use" && block.Name == toolName {
			obj, ok := block.Input.(map[string]any)
			if !ok {
				return nil, xerrors.Validation.New("anthropic: tool_use input is not a JSON object")
			}
			return &provider.Response{
				Object:       obj,
				InputTokens:  resp.Usage.InputTokens,
				OutputTokens: resp.Usage.OutputTokens,
			}, nil
		}
	}

	return nil, xerrors.Validation.New("anthropic: response contained no tool_use block for " + toolName)
}

// toInputSchema adapts a plain map[string]any JSON Schema into the SDK's
// strongly-typed InputSchema param.
func toInputSchema(schema map[string]any) anthropic.ToolInputSchemaParam {
	properties, _ := schema["properties"].(map[string]any)
	return anthropic.ToolInputSchemaParam{
		Type:       "object",
		Properties: properties,
	}
}
