// Package anthropicbatch implements C8's Anthropic adapter on top of the
// Message Batches API. Per-request construction (forced single-tool-call
// structured output) mirrors provider/anthropic.Client.Invoke, adapted from
// one synchronous call into one MessageBatchNewParamsRequest per chunk.
package anthropicbatch

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/chronominer/chronominer/pkg/batch"
	"github.com/chronominer/chronominer/pkg/model/provider"
)

const defaultMaxTokens = 8192

type Adapter struct {
	client anthropic.Client
}

func New(apiKey string) *Adapter {
	return &Adapter{client: anthropic.NewClient(option.WithAPIKey(apiKey))}
}

func buildParams(model string, r batch.ChunkRequest) anthropic.MessageNewParams {
	schema := provider.NormalizeSchema(r.Schema)
	toolName := r.SchemaName
	if toolName == "" {
		toolName = "extraction"
	}
	properties, _ := schema["properties"].(map[string]any)

	return anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: defaultMaxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(r.Prompt)),
		},
		Tools: []anthropic.ToolUnionParam{
			{OfTool: &anthropic.ToolParam{Name: toolName, InputSchema: anthropic.ToolInputSchemaParam{Type: "object", Properties: properties}}},
		},
		ToolChoice: anthropic.ToolChoiceUnionParam{
			OfTool: &anthropic.ToolChoiceToolParam{Name: toolName},
		},
	}
}

// Submit creates a message batch with one request per chunk. Callers set
// ChunkRequest.CustomID to batch.CustomIDFor(fileStem, chunkIndex) so
// Download can recover the chunk index without needing in-process state
// (spec §4.8 submit(), spec §6 custom_id format).
func (a *Adapter) Submit(ctx context.Context, model string, reqs []batch.ChunkRequest) (string, error) {
	items := make([]anthropic.MessageBatchNewParamsRequest, 0, len(reqs))
	for _, r := range reqs {
		items = append(items, anthropic.MessageBatchNewParamsRequest{
			CustomID: r.CustomID,
			Params:   buildParams(model, r),
		})
	}

	b, err := a.client.Messages.Batches.New(ctx, anthropic.MessageBatchNewParams{Requests: items})
	if err != nil {
		return "", provider.ClassifyError(err)
	}
	return b.ID, nil
}

// unifiedStatus maps Anthropic's processing_status onto spec §4.8's
// vocabulary (§6's provider-specific state mapping table). "ended" always
// maps to completed; errored, canceled and expired requests inside an ended
// batch are reported item by item by Download.
func unifiedStatus(processingStatus string) batch.Status {
	switch processingStatus {
	case "in_progress":
		return batch.StatusInProgress
	case "canceling":
		return batch.StatusCancelled
	case "ended":
		return batch.StatusCompleted
	default:
		return batch.StatusInProgress
	}
}

func (a *Adapter) Status(ctx context.Context, batchID string) (batch.Status, error) {
	b, err := a.client.Messages.Batches.Get(ctx, batchID)
	if err != nil {
		return "", provider.ClassifyError(err)
	}
	return unifiedStatus(string(b.ProcessingStatus)), nil
}

// Download streams the batch's results, one MessageBatchIndividualResponse
// per request, and extracts each succeeded item's forced-tool-call input as
// the chunk's response object (spec §4.8 download()).
func (a *Adapter) Download(ctx context.Context, batchID string) ([]batch.ChunkResult, error) {
	var results []batch.ChunkResult

	iter := a.client.Messages.Batches.ResultsStreaming(ctx, batchID)
	for iter.Next() {
		entry := iter.Current()
		r := batch.ChunkResult{CustomID: entry.CustomID}
		if idx, ok := batch.ChunkIndexFromCustomID(entry.CustomID); ok {
			r.ChunkIndex = idx
		}

		switch entry.Result.Type {
		case "succeeded":
			msg := entry.Result.Message
			r.InputTokens = msg.Usage.InputTokens
			r.OutputTokens = msg.Usage.OutputTokens
			found := false
			for _, block := range msg.Content {
				if block.Type == "tool_use" {
					if obj, ok := block.Input.(map[string]any); ok {
						r.Object = obj
						found = true
					}
				}
			}
			if !found {
				r.Error = "anthropic batch: succeeded result had no tool_use block"
			}
		case "errored":
			r.Error = fmt.Sprintf("anthropic batch: %v", entry.Result.Error)
		case "canceled":
			r.Error = "anthropic batch: request was canceled"
		case "expired":
			r.Error = "anthropic batch: request expired before processing"
		default:
			r.Error = "anthropic batch: unrecognized result type " + entry.Result.Type
		}

		results = append(results, r)
	}
	if err := iter.Err(); err != nil {
		return results, provider.ClassifyError(err)
	}

	return results, nil
}

func (a *Adapter) Cancel(ctx context.Context, batchID string) error {
	_, err := a.client.Messages.Batches.Cancel(ctx, batchID)
	if err != nil {
		return provider.ClassifyError(err)
	}
	return nil
}
