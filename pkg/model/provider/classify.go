package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"google.golang.org/genai"

	"github.com/chronominer/chronominer/pkg/xerrors"
)

// statusCodeRegex recovers an HTTP status code from an error message for
// providers (OpenAI, Bedrock) whose SDK doesn't expose a typed status field,
// grounded on cagent's pkg/runtime/fallback.go statusCodeRegex.
var statusCodeRegex = regexp.MustCompile(`\b([45]\d{2})\b`)

// extractHTTPStatusCode checks known SDK error types first, then falls back
// to regex parsing of the message. Returns 0 if nothing was found.
func extractHTTPStatusCode(err error) int {
	var anthropicErr *anthropic.Error
	if errors.As(err, &anthropicErr) {
		return anthropicErr.StatusCode
	}

	var geminiErr *genai.APIError
	if errors.As(err, &geminiErr) {
		return geminiErr.Code
	}

	if matches := statusCodeRegex.FindStringSubmatch(err.Error()); len(matches) >= 2 {
		var code int
		if _, scanErr := fmt.Sscanf(matches[1], "%d", &code); scanErr == nil {
			return code
		}
	}
	return 0
}

// ClassifyError implements spec §4.5's error mapping: transport/5xx/429 →
// TransientError, 4xx schema/auth → PermanentError. This is the two-stage
// classification grounded on cagent's isRetryableModelError: structured SDK
// error type first, then message-pattern fallback.
func ClassifyError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := xerrors.KindOf(err); ok {
		return err // already classified upstream (e.g. SchemaUnsupported)
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return xerrors.Transient.Wrap(err)
	}

	if statusCode := extractHTTPStatusCode(err); statusCode != 0 {
		if isTransientStatus(statusCode) {
			return xerrors.Transient.Wrap(err)
		}
		return xerrors.Permanent.Wrap(err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return xerrors.Transient.Wrap(err)
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range transientPatterns {
		if strings.Contains(msg, pattern) {
			return xerrors.Transient.Wrap(err)
		}
	}
	for _, pattern := range permanentPatterns {
		if strings.Contains(msg, pattern) {
			return xerrors.Permanent.Wrap(err)
		}
	}

	// Unknown errors default to permanent: spec §4.6 step 4 never retries a
	// chunk indefinitely on an unrecognized failure.
	return xerrors.Permanent.Wrap(err)
}

// isTransientStatus implements spec §4.5's "transport/5xx/429 →
// TransientError". Unlike cagent's fallback.go (which treats 429 as a
// signal to skip to a different model rather than retry the same one),
// this engine has no model-fallback chain to skip to, so 429 is retried
// with backoff like any other transient failure, per spec §7's
// TransientError definition.
func isTransientStatus(statusCode int) bool {
	switch statusCode {
	case 500, 502, 503, 504, 408, 429:
		return true
	default:
		return false
	}
}

var transientPatterns = []string{
	"500", "502", "503", "504", "408", "429",
	"timeout", "connection reset", "connection refused",
	"no such host", "temporary failure", "service unavailable",
	"internal server error", "bad gateway", "gateway timeout", "overloaded",
	"rate limit", "too many requests", "throttl", "quota", "capacity",
}

var permanentPatterns = []string{
	"401", "403", "404", "400", "invalid", "unauthorized", "authentication", "api key",
}
