// Package openaibatch implements C8's OpenAI adapter: one JSONL request per
// chunk, uploaded as a batch input file and submitted to the Batch API,
// polled by ID, and downloaded from the output file once complete. Request
// construction (schema normalization, forced JSON-schema response format)
// mirrors provider/openai.Client.Invoke, adapted from a single synchronous
// call into a batch-input line per chunk.
package openaibatch

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/chronominer/chronominer/pkg/batch"
	"github.com/chronominer/chronominer/pkg/model/provider"
	"github.com/chronominer/chronominer/pkg/xerrors"
)

type Adapter struct {
	client openai.Client
}

func New(apiKey, baseURL string) *Adapter {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &Adapter{client: openai.NewClient(opts...)}
}

type jsonSchema map[string]any

func (j jsonSchema) MarshalJSON() ([]byte, error) { return json.Marshal(map[string]any(j)) }

type batchLine struct {
	CustomID string                         `json:"custom_id"`
	Method   string                         `json:"method"`
	URL      string                         `json:"url"`
	Body     openai.ChatCompletionNewParams `json:"body"`
}

func buildBody(model string, r batch.ChunkRequest) openai.ChatCompletionNewParams {
	schema := provider.NormalizeSchema(r.Schema)
	name := r.SchemaName
	if name == "" {
		name = "extraction"
	}
	return openai.ChatCompletionNewParams{
		Model:    model,
		Messages: []openai.ChatCompletionMessageParamUnion{openai.UserMessage(r.Prompt)},
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
}

// Submit uploads a batch_input.jsonl file of one line per chunk and starts
// a 24h-completion-window chat-completions batch (spec §4.8 submit()).
func (a *Adapter) Submit(ctx context.Context, model string, reqs []batch.ChunkRequest) (string, error) {
	var buf bytes.Buffer
	for _, r := range reqs {
		line := batchLine{CustomID: r.CustomID, Method: "POST", URL: "/v1/chat/completions", Body: buildBody(model, r)}
		data, err := json.Marshal(line)
		if err != nil {
			return "", err
		}
		buf.Write(data)
		buf.WriteByte('\n')
	}

	file, err := a.client.Files.New(ctx, openai.FileNewParams{
		File:    openai.File(bytes.NewReader(buf.Bytes()), "batch_input.jsonl", "application/jsonl"),
		Purpose: openai.FilePurposeBatch,
	})
	if err != nil {
		return "", provider.ClassifyError(err)
	}

	b, err := a.client.Batches.New(ctx, openai.BatchNewParams{
		InputFileID:      file.ID,
		Endpoint:         openai.BatchNewParamsEndpointV1ChatCompletions,
		CompletionWindow: openai.BatchNewParamsCompletionWindow24h,
	})
	if err != nil {
		return "", provider.ClassifyError(err)
	}

	return b.ID, nil
}

// unifiedStatus maps OpenAI's batch status vocabulary onto spec §4.8's
// unified vocabulary (§6's provider-specific state mapping table).
func unifiedStatus(s string) batch.Status {
	switch s {
	case "validating":
		return batch.StatusValidating
	case "in_progress":
		return batch.StatusInProgress
	case "finalizing":
		return batch.StatusFinalizing
	case "completed":
		return batch.StatusCompleted
	case "failed":
		return batch.StatusFailed
	case "cancelling", "cancelled":
		return batch.StatusCancelled
	case "expired":
		return batch.StatusExpired
	default:
		return batch.StatusInProgress
	}
}

func (a *Adapter) Status(ctx context.Context, batchID string) (batch.Status, error) {
	b, err := a.client.Batches.Get(ctx, batchID)
	if err != nil {
		return "", provider.ClassifyError(err)
	}
	return unifiedStatus(string(b.Status)), nil
}

type outputLine struct {
	CustomID string `json:"custom_id"`
	Response *struct {
		StatusCode int             `json:"status_code"`
		Body       json.RawMessage `json:"body"`
	} `json:"response"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Download retrieves the completed batch's output file and parses each
// line's chat-completion body back into a chunk result (spec §4.8
// download()).
func (a *Adapter) Download(ctx context.Context, batchID string) ([]batch.ChunkResult, error) {
	b, err := a.client.Batches.Get(ctx, batchID)
	if err != nil {
		return nil, provider.ClassifyError(err)
	}
	if b.OutputFileID == "" {
		return nil, xerrors.Validation.New("openai batch: completed batch has no output file")
	}

	content, err := a.client.Files.Content(ctx, b.OutputFileID)
	if err != nil {
		return nil, provider.ClassifyError(err)
	}
	defer content.Body.Close()

	var results []batch.ChunkResult
	scanner := bufio.NewScanner(content.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var ol outputLine
		if err := json.Unmarshal(line, &ol); err != nil {
			continue
		}

		r := batch.ChunkResult{CustomID: ol.CustomID}
		if ol.Error != nil {
			r.Error = ol.Error.Message
			results = append(results, r)
			continue
		}
		if ol.Response == nil {
			r.Error = "openai batch: output line had neither response nor error"
			results = append(results, r)
			continue
		}

		var cc openai.ChatCompletion
		if err := json.Unmarshal(ol.Response.Body, &cc); err != nil {
			r.Error = fmt.Sprintf("openai batch: could not parse completion body: %v", err)
			results = append(results, r)
			continue
		}
		r.InputTokens = cc.Usage.PromptTokens
		r.OutputTokens = cc.Usage.CompletionTokens
		if len(cc.Choices) > 0 {
			r.RawText = cc.Choices[0].Message.Content
			if obj, err := provider.ParseJSONObject(r.RawText); err == nil {
				r.Object = obj
			} else {
				r.Error = fmt.Sprintf("openai batch: response body is not a JSON object: %v", err)
			}
		}
		results = append(results, r)
	}

	return results, scanner.Err()
}

func (a *Adapter) Cancel(ctx context.Context, batchID string) error {
	_, err := a.client.Batches.Cancel(ctx, batchID)
	if err != nil {
		return provider.ClassifyError(err)
	}
	return nil
}
