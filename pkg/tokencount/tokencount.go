// Package tokencount implements C1: a pure, stateless token counter used by
// the chunker for sizing. Ledger reservations are estimated from
// tokens_per_chunk rather than counted here.
package tokencount

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// defaultEncoding is used for any model family we don't recognize, per
// spec §4.1 ("unknown families fall back to a default encoding"), and for
// Anthropic/Gemini models as a documented best-available approximation:
// neither vendor publishes a public BPE, so cl100k_base is the closest
// tokenizer cagent-style code reaches for when no first-party counter
// exists.
const defaultEncoding = "cl100k_base"

var (
	encodingCache   sync.Map // string -> *tiktoken.Tiktoken
	approxWarnedFor sync.Map // model name -> struct{}, so the Claude/Gemini approximation notice is logged once per model
)

// encodingForModel maps a model name to a tiktoken encoding name, following
// spec §4.1's "tokenization scheme consistent with the target model
// family" rule.
func encodingForModel(model string) string {
	switch {
	case strings.HasPrefix(model, "gpt-3.5"), model == "gpt-4", strings.HasPrefix(model, "gpt-4-32k"):
		return "cl100k_base"
	case strings.HasPrefix(model, "gpt-4o"), strings.HasPrefix(model, "gpt-4.1"),
		strings.HasPrefix(model, "gpt-5"), strings.HasPrefix(model, "o1"),
		strings.HasPrefix(model, "o3"), strings.HasPrefix(model, "o4"):
		return "o200k_base"
	default:
		return defaultEncoding
	}
}

func encodingFor(name string) (*tiktoken.Tiktoken, error) {
	if enc, ok := encodingCache.Load(name); ok {
		return enc.(*tiktoken.Tiktoken), nil
	}

	enc, err := tiktoken.GetEncoding(name)
	if err != nil {
		return nil, err
	}
	encodingCache.Store(name, enc)
	return enc, nil
}

// Count returns the number of tokens text would cost for model, using the
// encoding consistent with model's family. It never returns an error to
// callers: if the requested encoding can't be loaded, it falls back to a
// conservative whitespace-based estimate rather than blocking chunking.
func Count(text, model string) int {
	encName := encodingForModel(model)
	if strings.HasPrefix(model, "claude-") || strings.HasPrefix(model, "gemini-") {
		if _, logged := approxWarnedFor.LoadOrStore(model, struct{}{}); !logged {
			slog.Debug("token count uses an approximate encoding for this model", "model", model, "encoding", encName)
		}
	}

	enc, err := encodingFor(encName)
	if err != nil {
		return fallbackEstimate(text)
	}

	return len(enc.Encode(text, nil, nil))
}

// fallbackEstimate is used only if the tiktoken encoding tables themselves
// fail to load (e.g. no embedded vocab available); ~4 characters per token
// is the commonly cited average for English prose.
func fallbackEstimate(text string) int {
	if len(text) == 0 {
		return 0
	}
	return (len(text) + 3) / 4
}
