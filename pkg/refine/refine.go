// Package refine implements C4, the Semantic Boundary Refiner: it aligns
// each internal chunk boundary with a natural semantic marker by asking the
// LLM to locate one inside a context window around the candidate line_start
// (spec §4.4).
package refine

import (
	"context"
	"fmt"
	"strings"

	"github.com/chronominer/chronominer/pkg/chunk"
	"github.com/chronominer/chronominer/pkg/model/provider"
)

// Config holds the tunables named in spec §4.4, each with the spec's stated
// default.
type Config struct {
	Window                   int // W, default 300
	CertaintyThreshold       int // T, default 70
	VerificationMultiplier   int // M, default 3
	MaxContextExpansions     int // default 3
	MaxLowCertaintyRetries   int // default 3
	RelevanceProbe           string
}

func DefaultConfig() Config {
	return Config{
		Window:                 300,
		CertaintyThreshold:     70,
		VerificationMultiplier: 3,
		MaxContextExpansions:   3,
		MaxLowCertaintyRetries: 3,
	}
}

// boundaryProbeSchema is the internal schema named in SPEC_FULL §3.4 under
// the reserved schema name "__boundary_probe__", never exposed as a
// user-selectable extraction schema.
var boundaryProbeSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"contains_no_semantic_boundary": map[string]any{"type": "boolean"},
		"needs_more_context":            map[string]any{"type": "boolean"},
		"semantic_marker":                map[string]any{"type": "string"},
		"certainty":                      map[string]any{"type": "integer"},
	},
	"required": []any{"contains_no_semantic_boundary", "needs_more_context", "semantic_marker", "certainty"},
}

type probeResult struct {
	ContainsNoSemanticBoundary bool
	NeedsMoreContext           bool
	SemanticMarker             string
	Certainty                  int
}

// Refine runs the boundary-alignment algorithm over every internal boundary
// (i = 2..N) of chunks, returning an adjusted copy. lines is the full,
// already-split source file (chunk.Lines output). relevanceProbe is the
// schema-specific probe text used in the up/down verification scan (step 3,
// second bullet); it is not sent to the provider.
func Refine(ctx context.Context, p provider.Provider, lines []string, chunks []chunk.Chunk, cfg Config, relevanceProbe string) ([]chunk.Chunk, error) {
	if len(chunks) < 2 {
		return chunks, nil
	}

	result := make([]chunk.Chunk, len(chunks))
	copy(result, chunks)

	// Walk internal boundaries i = 2..N (1-based chunk positions), i.e. the
	// start of every chunk but the first.
	for i := 1; i < len(result); i++ {
		prevStart := result[i-1].LineStart
		var nextStart int
		if i+1 < len(result) {
			nextStart = result[i+1].LineStart
		} else {
			nextStart = len(lines) + 1
		}

		newStart, deleted, err := refineBoundary(ctx, p, lines, result[i].LineStart, prevStart, nextStart, cfg, relevanceProbe)
		if err != nil {
			return nil, err
		}

		if deleted {
			// Merge this chunk into the previous one; clamp to the invariant
			// that a boundary never crosses a neighbour (spec §4.4 point 4).
			result[i-1].LineEnd = result[i].LineEnd
			result[i-1].Text = chunkText(lines, result[i-1].LineStart, result[i-1].LineEnd)
			result = append(result[:i], result[i+1:]...)
			i-- // re-examine the new boundary at this position
			continue
		}

		if newStart != result[i].LineStart {
			result[i-1].LineEnd = newStart - 1
			result[i].LineStart = newStart
		}
		result[i-1].Text = chunkText(lines, result[i-1].LineStart, result[i-1].LineEnd)
		result[i].Text = chunkText(lines, result[i].LineStart, result[i].LineEnd)
	}

	for idx := range result {
		result[idx].Index = idx + 1
	}
	return result, nil
}

func chunkText(lines []string, start, end int) string {
	if start < 1 || end > len(lines) || start > end {
		return ""
	}
	return strings.Join(lines[start-1:end], "\n")
}

// refineBoundary implements the per-boundary decision table (spec §4.4
// steps 2-4). Returns the (possibly unchanged) new line_start, or
// deleted=true if the range should be merged into the preceding chunk.
func refineBoundary(ctx context.Context, p provider.Provider, lines []string, candidateStart, prevStart, nextStart int, cfg Config, relevanceProbe string) (int, bool, error) {
	window := cfg.Window
	lowCertaintyRetries := 0
	expansions := 0

	for {
		start, end := windowBounds(candidateStart, window, len(lines))
		contextText := strings.Join(lines[start-1:end], "\n")

		probe, err := invokeProbe(ctx, p, contextText, candidateStart-start+1)
		if err != nil {
			return candidateStart, false, err
		}

		switch {
		case probe.Certainty >= cfg.CertaintyThreshold && probe.SemanticMarker != "" && strings.Contains(contextText, probe.SemanticMarker):
			markerLine := locateMarkerLine(lines, start, end, probe.SemanticMarker)
			if markerLine == 0 {
				// Exact substring match required by spec §4.4; fall through
				// to keeping the original boundary if we can't locate a line.
				return candidateStart, false, nil
			}
			return clamp(markerLine, prevStart, nextStart), false, nil

		case probe.Certainty >= cfg.CertaintyThreshold && probe.ContainsNoSemanticBoundary:
			if verificationScanFindsRelevance(lines, candidateStart, cfg.VerificationMultiplier*window, relevanceProbe) {
				return candidateStart, false, nil
			}
			return candidateStart, true, nil

		case probe.NeedsMoreContext && expansions < cfg.MaxContextExpansions:
			window *= 2
			expansions++
			continue

		case probe.Certainty < cfg.CertaintyThreshold && lowCertaintyRetries < cfg.MaxLowCertaintyRetries:
			lowCertaintyRetries++
			continue

		default:
			// Retry budget exhausted: keep the original boundary (spec §4.4
			// step 3, final bullet).
			return candidateStart, false, nil
		}
	}
}

func windowBounds(center, window, totalLines int) (start, end int) {
	start = center - window
	if start < 1 {
		start = 1
	}
	end = center + window
	if end > totalLines {
		end = totalLines
	}
	return start, end
}

// clamp enforces spec §4.4 point 4: never shift a boundary past a
// neighbouring boundary.
func clamp(newStart, prevStart, nextStart int) int {
	if newStart <= prevStart {
		return prevStart + 1
	}
	if newStart >= nextStart {
		return nextStart - 1
	}
	return newStart
}

func locateMarkerLine(lines []string, start, end int, marker string) int {
	for i := start; i <= end; i++ {
		if strings.Contains(lines[i-1], marker) {
			return i
		}
	}
	return 0
}

// verificationScanFindsRelevance implements the "up/down verification scan
// of M·W lines for any content matching a schema-specific relevance probe"
// (spec §4.4 step 3, second bullet). probe is a plain substring match; a
// richer semantic match is left to the LLM probe call itself.
func verificationScanFindsRelevance(lines []string, center, span int, relevanceProbe string) bool {
	if relevanceProbe == "" {
		return false
	}
	start, end := windowBounds(center, span, len(lines))
	for i := start; i <= end; i++ {
		if strings.Contains(lines[i-1], relevanceProbe) {
			return true
		}
	}
	return false
}

// invokeProbe calls C5 with the reserved internal boundary-probe schema
// (SPEC_FULL §3.4), asking it to locate a semantic boundary near
// candidateOffset within contextText.
func invokeProbe(ctx context.Context, p provider.Provider, contextText string, candidateOffset int) (probeResult, error) {
	prompt := fmt.Sprintf(
		"Within the following text window, a candidate chunk boundary falls at relative line %d. "+
			"Determine whether a natural semantic boundary (entry start, section header) exists near that "+
			"point; if so report it verbatim as it appears in the text.\n\n%s",
		candidateOffset, contextText)

	resp, err := p.Invoke(ctx, provider.Request{
		Model:      p.ID(),
		Prompt:     prompt,
		Schema:     boundaryProbeSchema,
		SchemaName: "__boundary_probe__",
	})
	if err != nil {
		return probeResult{}, err
	}

	result := probeResult{}
	if v, ok := resp.Object["contains_no_semantic_boundary"].(bool); ok {
		result.ContainsNoSemanticBoundary = v
	}
	if v, ok := resp.Object["needs_more_context"].(bool); ok {
		result.NeedsMoreContext = v
	}
	if v, ok := resp.Object["semantic_marker"].(string); ok {
		result.SemanticMarker = v
	}
	if v, ok := resp.Object["certainty"].(float64); ok {
		result.Certainty = int(v)
	}
	return result, nil
}
