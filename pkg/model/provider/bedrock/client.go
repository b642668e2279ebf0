// Package bedrock implements the Bedrock adapter for C5, enriching beyond
// spec §6's four named providers (SPEC_FULL §2). Like Anthropic, Bedrock's
// Converse API has no native structured-output field, so the schema is
// wrapped as a single forced tool call. Extended thinking is passed through
// additionalModelRequestFields, mirroring cagent's
// buildAdditionalModelRequestFields for Claude-on-Bedrock.
package bedrock

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/smithy-go/document"

	"github.com/chronominer/chronominer/pkg/model/provider"
	"github.com/chronominer/chronominer/pkg/xerrors"
)

type Client struct {
	model  string
	client *bedrockruntime.Client
}

func NewClient(ctx context.Context, model, region string) (*Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, xerrors.ConfigInvalid.Wrap(err)
	}
	return &Client{model: model, client: bedrockruntime.NewFromConfig(cfg)}, nil
}

func (c *Client) ID() string { return "bedrock/" + c.model }

func (c *Client) Capabilities() provider.Capability {
	return provider.CapabilitiesFor("bedrock/"+c.model, "", false)
}

func (c *Client) Invoke(ctx context.Context, req provider.Request) (*provider.Response, error) {
	cap := c.Capabilities()
	params := req.Parameters.Filter(cap)

	schema := provider.NormalizeSchema(req.Schema)
	toolName := req.SchemaName
	if toolName == "" {
		toolName = "extraction"
	}

	inferenceCfg := &types.InferenceConfiguration{}
	var thinkingTokens int32
	if params.ReasoningEffort != "" {
		thinkingTokens = int32(provider.AnthropicThinkingBudget(params.ReasoningEffort))
	}
	if params.MaxOutputTokens > 0 {
		inferenceCfg.MaxTokens = aws.Int32(int32(params.MaxOutputTokens))
	}
	if thinkingTokens == 0 {
		if params.Temperature != nil {
			inferenceCfg.Temperature = aws.Float32(float32(*params.Temperature))
		}
		if params.TopP != nil {
			inferenceCfg.TopP = aws.Float32(float32(*params.TopP))
		}
	}

	input := &bedrockruntime.ConverseInput{
		ModelId: aws.String(c.model),
		Messages: []types.Message{
			{
				Role:    types.ConversationRoleUser,
				Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: req.Prompt}},
			},
		},
		InferenceConfig: inferenceCfg,
		ToolConfig: &types.ToolConfiguration{
			Tools: []types.Tool{
				&types.ToolMemberToolSpec{
					Value: types.ToolSpecification{
						Name:        aws.String(toolName),
						InputSchema: &types.ToolInputSchemaMemberJson{Value: document.NewLazyDocument(schema)},
					},
				},
			},
			ToolChoice: &types.ToolChoiceMemberTool{Value: types.SpecificToolChoice{Name: aws.String(toolName)}},
		},
	}

	if thinkingTokens > 0 {
		input.AdditionalModelRequestFields = document.NewLazyDocument(map[string]any{
			"thinking": map[string]any{"type": "enabled", "budget_tokens": thinkingTokens},
		})
	}

	resp, err := c.client.Converse(ctx, input)
	if err != nil {
		return nil, provider.ClassifyError(err)
	}

	msg, ok := resp.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return nil, xerrors.Validation.New("bedrock: response contained no message output")
	}

	for _, block := range msg.Value.Content {
		if toolUse, ok := block.(*types.ContentBlockMemberToolUse); ok {
			var obj map[string]any
			if err := toolUse.Value.Input.UnmarshalSmithyDocument(&obj); err != nil {
				return nil, xerrors.Validation.Wrap(err)
			}
			inputTokens, outputTokens := usageTokens(resp.Usage)
			return &provider.Response{Object: obj, InputTokens: inputTokens, OutputTokens: outputTokens}, nil
		}
	}

	return nil, xerrors.Validation.New("bedrock: response contained no tool_use block for " + toolName)
}

func usageTokens(u *types.TokenUsage) (input, output int64) {
	if u == nil {
		return 0, 0
	}
	if u.InputTokens != nil {
		input = int64(*u.InputTokens)
	}
	if u.OutputTokens != nil {
		output = int64(*u.OutputTokens)
	}
	return input, output
}
