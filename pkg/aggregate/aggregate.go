// Package aggregate implements C9, the Extraction Aggregator: a pure
// function of the journal's final-occurrence-wins view that folds one
// file's chunk responses into a single per-file dataset (spec §4.9).
// Schema validation is grounded on cagent's pkg/config/examples_test.go
// gojsonschema.NewSchema/Validate pattern.
package aggregate

import (
	"bytes"
	"encoding/json"
	"sort"

	"github.com/natefinch/atomic"
	"github.com/xeipuuv/gojsonschema"

	"github.com/chronominer/chronominer/pkg/journal"
)

// Meta is the aggregate's file-level header (spec §4.9).
type Meta struct {
	File        string `json:"file"`
	Schema      string `json:"schema"`
	Model       string `json:"model"`
	ChunkCount  int    `json:"chunk_count"`
	GeneratedAt string `json:"generated_at"`
	Partial     bool   `json:"partial,omitempty"`
}

// ChunkResult is one entry in the aggregate's chunks array.
type ChunkResult struct {
	ChunkIndex int            `json:"chunk_index"`
	CustomID   string         `json:"custom_id,omitempty"`
	Response   map[string]any `json:"response,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// Aggregate is the full per-file output document (spec §4.9).
type Aggregate struct {
	Meta     Meta          `json:"meta"`
	Chunks   []ChunkResult `json:"chunks"`
	Warnings []string      `json:"warnings,omitempty"`
}

// Build reads view (already loaded from the journal) and produces the
// per-file aggregate, sorted by chunk_index. schemaJSON, when non-nil, is
// used to validate each response's top-level shape; a mismatch doesn't
// discard the chunk, it's preserved verbatim under "error" (spec §4.9).
func Build(sourceFile, schemaName, model string, chunkCount int, view *journal.View, schemaJSON map[string]any, generatedAt string) (*Aggregate, error) {
	var validator *gojsonschema.Schema
	if schemaJSON != nil {
		data, err := json.Marshal(schemaJSON)
		if err != nil {
			return nil, err
		}
		validator, err = gojsonschema.NewSchema(gojsonschema.NewBytesLoader(data))
		if err != nil {
			return nil, err
		}
	}

	agg := &Aggregate{
		Meta: Meta{
			File:        sourceFile,
			Schema:      schemaName,
			Model:       model,
			ChunkCount:  chunkCount,
			GeneratedAt: generatedAt,
		},
		Chunks: []ChunkResult{},
	}

	for idx := 1; idx <= chunkCount; idx++ {
		rec, ok := view.ByChunk[idx]
		if !ok {
			agg.Meta.Partial = true
			continue
		}

		cr := ChunkResult{ChunkIndex: idx, CustomID: rec.CustomID}

		switch rec.Kind {
		case journal.KindError:
			cr.Error = rec.Error
		case journal.KindResponse:
			if rec.Response == nil {
				cr.Error = rec.RawText
			} else if validator != nil {
				result, err := validator.Validate(gojsonschema.NewGoLoader(rec.Response))
				if err != nil || !result.Valid() {
					cr.Error = "schema validation failed: " + rawOrErr(rec.RawText, err, result)
					cr.Response = rec.Response
				} else {
					cr.Response = rec.Response
				}
			} else {
				cr.Response = rec.Response
			}
		}

		agg.Chunks = append(agg.Chunks, cr)
	}

	sort.Slice(agg.Chunks, func(i, j int) bool { return agg.Chunks[i].ChunkIndex < agg.Chunks[j].ChunkIndex })

	if agg.Meta.Partial {
		agg.Warnings = append(agg.Warnings, "one or more chunk_index values in 1..chunk_count are missing from the journal")
	}

	return agg, nil
}

// Write atomically persists agg as the canonical `<stem>.json` output
// (spec §6's persisted state layout), so a crash mid-write never leaves a
// truncated aggregate for a later run or repair to trip over.
func Write(path string, agg *Aggregate) error {
	data, err := json.MarshalIndent(agg, "", "  ")
	if err != nil {
		return err
	}
	return atomic.WriteFile(path, bytes.NewReader(data))
}

func rawOrErr(raw string, err error, result *gojsonschema.Result) string {
	if err != nil {
		return err.Error()
	}
	if result != nil && len(result.Errors()) > 0 {
		return result.Errors()[0].String()
	}
	return raw
}
